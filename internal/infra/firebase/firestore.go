package firebase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ============================================================
// RecordStore implementation: Firestore v1 REST
// ============================================================

const usersCollection = "users"

type fieldReference struct {
	FieldPath string `json:"fieldPath"`
}

type fieldFilter struct {
	Field fieldReference `json:"field"`
	Op    string         `json:"op"`
	Value value          `json:"value"`
}

type filter struct {
	FieldFilter     *fieldFilter     `json:"fieldFilter,omitempty"`
	CompositeFilter *compositeFilter `json:"compositeFilter,omitempty"`
}

type compositeFilter struct {
	Op      string   `json:"op"`
	Filters []filter `json:"filters"`
}

type collectionSelector struct {
	CollectionID string `json:"collectionId"`
}

type structuredQuery struct {
	From  []collectionSelector `json:"from"`
	Where filter               `json:"where"`
	Limit int                  `json:"limit,omitempty"`
}

type runQueryRequest struct {
	StructuredQuery structuredQuery `json:"structuredQuery"`
}

type runQueryResult struct {
	Document *document `json:"document,omitempty"`
	ReadTime string    `json:"readTime,omitempty"`
}

func (c *Client) documentsURL() string {
	return fmt.Sprintf("%s/v1/projects/%s/databases/(default)/documents", c.endpoints.Firestore, c.cred.ProjectID)
}

func (c *Client) userDocURL(uid string) string {
	return fmt.Sprintf("%s/%s/%s", c.documentsURL(), usersCollection, url.PathEscape(uid))
}

// SetUserProfile writes the whole profile document, replacing any previous one.
func (c *Client) SetUserProfile(ctx context.Context, uid string, profile domain.UserProfileRecord) error {
	ctx, span := tracer.Start(ctx, "Firebase.SetUserProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.uid", uid))

	err := c.write(func() error {
		return c.doJSON(ctx, firestoreAudience, http.MethodPatch, c.userDocURL(uid), document{Fields: profileFields(profile)}, nil)
	})
	if err != nil {
		storeErr := c.storeError("set_profile", err)
		span.SetStatus(codes.Error, storeErr.Error())
		return storeErr
	}
	return nil
}

// GetUserProfile reads the profile document. A missing document is (nil, nil).
func (c *Client) GetUserProfile(ctx context.Context, uid string) (*domain.UserProfileRecord, error) {
	ctx, span := tracer.Start(ctx, "Firebase.GetUserProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.uid", uid))

	var doc document
	err := c.read(ctx, func() error {
		doc = document{}
		return c.doJSON(ctx, firestoreAudience, http.MethodGet, c.userDocURL(uid), nil, &doc)
	})
	if err != nil {
		var apiErr *apiError
		if errors.As(c.upstreamCause(serviceFirestore, "get_profile", err), &apiErr) && apiErr.HTTPStatus == http.StatusNotFound {
			return nil, nil
		}
		storeErr := c.storeError("get_profile", err)
		span.SetStatus(codes.Error, storeErr.Error())
		return nil, storeErr
	}

	profile, err := profileFromFields(doc.Fields)
	if err != nil {
		return nil, &domain.ErrStore{Op: "get_profile", Err: err}
	}
	return profile, nil
}

// HasActiveDocument runs
// users.where(type == number).where(status in [trial, active]).limit(1).
func (c *Client) HasActiveDocument(ctx context.Context, q domain.DocumentQuery) (bool, error) {
	ctx, span := tracer.Start(ctx, "Firebase.HasActiveDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document.type", string(q.Type)))

	query := runQueryRequest{StructuredQuery: structuredQuery{
		From: []collectionSelector{{CollectionID: usersCollection}},
		Where: filter{CompositeFilter: &compositeFilter{
			Op: "AND",
			Filters: []filter{
				{FieldFilter: &fieldFilter{
					Field: fieldReference{FieldPath: string(q.Type)},
					Op:    "EQUAL",
					Value: stringVal(q.Number),
				}},
				{FieldFilter: &fieldFilter{
					Field: fieldReference{FieldPath: "status"},
					Op:    "IN",
					Value: stringArray(domain.BlockingDocumentStatuses),
				}},
			},
		}},
		Limit: 1,
	}}

	var results []runQueryResult
	err := c.read(ctx, func() error {
		results = nil
		return c.doJSON(ctx, firestoreAudience, http.MethodPost, c.documentsURL()+":runQuery", query, &results)
	})
	if err != nil {
		storeErr := c.storeError("query_document", err)
		span.SetStatus(codes.Error, storeErr.Error())
		return false, storeErr
	}

	for _, r := range results {
		if r.Document != nil {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) storeError(op string, err error) *domain.ErrStore {
	cause := c.upstreamCause(serviceFirestore, op, err)
	c.incrExternalError(serviceFirestore)

	storeErr := &domain.ErrStore{Op: op, Err: cause}
	var apiErr *apiError
	if errors.As(cause, &apiErr) {
		storeErr.Code = apiErr.Status
	}
	c.logger.Error("firebase: store call failed",
		zap.String("op", op),
		zap.String("code", storeErr.Code),
		zap.Error(cause),
	)
	return storeErr
}
