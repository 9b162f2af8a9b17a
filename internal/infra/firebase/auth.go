package firebase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ============================================================
// UserDirectory implementation: Identity Toolkit v1
// ============================================================

type userInfo struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type lookupRequest struct {
	Email []string `json:"email"`
}

type lookupResponse struct {
	Users []userInfo `json:"users"`
}

type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

type deleteUserRequest struct {
	LocalID string `json:"localId"`
}

func (c *Client) accountsURL(suffix string) string {
	return fmt.Sprintf("%s/v1/projects/%s/accounts%s", c.endpoints.IdentityToolkit, c.cred.ProjectID, suffix)
}

// GetUserByEmail looks the address up. A missing account is (nil, nil).
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	ctx, span := tracer.Start(ctx, "Firebase.GetUserByEmail")
	defer span.End()

	var resp lookupResponse
	err := c.read(ctx, func() error {
		resp = lookupResponse{}
		return c.doJSON(ctx, identityToolkitAudience, http.MethodPost, c.accountsURL(":lookup"), lookupRequest{Email: []string{email}}, &resp)
	})
	if err != nil {
		dirErr := c.directoryError("lookup", err)
		if dirErr.Kind == domain.DirectoryUserNotFound {
			return nil, nil
		}
		span.SetStatus(codes.Error, dirErr.Error())
		return nil, dirErr
	}

	if len(resp.Users) == 0 {
		return nil, nil
	}
	u := resp.Users[0]
	span.SetAttributes(attribute.String("user.uid", u.LocalID))
	return &domain.UserAccount{UID: u.LocalID, Email: u.Email, DisplayName: u.DisplayName}, nil
}

// CreateUser creates the account. Identity Toolkit enforces e-mail
// uniqueness atomically, so EMAIL_EXISTS is the authoritative conflict.
func (c *Client) CreateUser(ctx context.Context, user domain.NewUser) (*domain.UserAccount, error) {
	ctx, span := tracer.Start(ctx, "Firebase.CreateUser")
	defer span.End()

	var created userInfo
	err := c.write(func() error {
		return c.doJSON(ctx, identityToolkitAudience, http.MethodPost, c.accountsURL(""), createUserRequest{
			Email:       user.Email,
			Password:    user.Password,
			DisplayName: user.DisplayName,
		}, &created)
	})
	if err != nil {
		dirErr := c.directoryError("create", err)
		span.SetStatus(codes.Error, dirErr.Error())
		return nil, dirErr
	}

	if created.LocalID == "" {
		return nil, &domain.ErrDirectory{Kind: domain.DirectoryUnavailable, Op: "create", Err: errors.New("response without localId")}
	}
	span.SetAttributes(attribute.String("user.uid", created.LocalID))

	account := &domain.UserAccount{UID: created.LocalID, Email: created.Email, DisplayName: created.DisplayName}
	if account.Email == "" {
		account.Email = user.Email
	}
	if account.DisplayName == "" {
		account.DisplayName = user.DisplayName
	}
	return account, nil
}

// DeleteUser removes an account. Used only by reconciliation.
func (c *Client) DeleteUser(ctx context.Context, uid string) error {
	ctx, span := tracer.Start(ctx, "Firebase.DeleteUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.uid", uid))

	err := c.write(func() error {
		return c.doJSON(ctx, identityToolkitAudience, http.MethodPost, c.accountsURL(":delete"), deleteUserRequest{LocalID: uid}, nil)
	})
	if err != nil {
		dirErr := c.directoryError("delete", err)
		span.SetStatus(codes.Error, dirErr.Error())
		return dirErr
	}
	return nil
}

// directoryError translates Identity Toolkit error codes into typed kinds.
func (c *Client) directoryError(op string, err error) *domain.ErrDirectory {
	cause := c.upstreamCause(serviceAuth, op, err)

	var apiErr *apiError
	if errors.As(cause, &apiErr) {
		code := apiErr.providerCode()
		switch code {
		case "EMAIL_EXISTS", "DUPLICATE_EMAIL":
			return &domain.ErrDirectory{Kind: domain.DirectoryEmailExists, Op: op, Code: code}
		case "INVALID_PASSWORD", "WEAK_PASSWORD":
			return &domain.ErrDirectory{Kind: domain.DirectoryInvalidPassword, Op: op, Code: code}
		case "USER_NOT_FOUND", "EMAIL_NOT_FOUND":
			return &domain.ErrDirectory{Kind: domain.DirectoryUserNotFound, Op: op, Code: code}
		}
		c.incrExternalError(serviceAuth)
		c.logger.Error("firebase: directory call failed",
			zap.String("op", op),
			zap.String("code", code),
			zap.Int("status", apiErr.HTTPStatus),
		)
		return &domain.ErrDirectory{Kind: domain.DirectoryUnavailable, Op: op, Code: code, Err: cause}
	}

	c.incrExternalError(serviceAuth)
	c.logger.Error("firebase: directory call failed", zap.String("op", op), zap.Error(cause))
	return &domain.ErrDirectory{Kind: domain.DirectoryUnavailable, Op: op, Err: cause}
}
