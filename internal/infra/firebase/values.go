package firebase

import (
	"fmt"
	"strconv"
	"time"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
)

// isoMillis is the layout of JavaScript's Date.toISOString, which the
// frontend already parses for createdAt and lastLogin.
const isoMillis = "2006-01-02T15:04:05.000Z"

// value is a Firestore REST typed value. Exactly one field is set.
type value struct {
	StringValue  *string     `json:"stringValue,omitempty"`
	BooleanValue *bool       `json:"booleanValue,omitempty"`
	IntegerValue *string     `json:"integerValue,omitempty"`
	ArrayValue   *arrayValue `json:"arrayValue,omitempty"`
}

type arrayValue struct {
	Values []value `json:"values"`
}

func stringVal(s string) value { return value{StringValue: &s} }
func boolVal(b bool) value     { return value{BooleanValue: &b} }

func intVal(i int) value {
	s := strconv.Itoa(i)
	return value{IntegerValue: &s}
}

func stringArray(items []string) value {
	vals := make([]value, 0, len(items))
	for _, it := range items {
		vals = append(vals, stringVal(it))
	}
	return value{ArrayValue: &arrayValue{Values: vals}}
}

type document struct {
	Name   string           `json:"name,omitempty"`
	Fields map[string]value `json:"fields"`
}

func profileFields(p domain.UserProfileRecord) map[string]value {
	return map[string]value{
		"fullName":    stringVal(p.FullName),
		"email":       stringVal(p.Email),
		"createdAt":   stringVal(p.CreatedAt.UTC().Format(isoMillis)),
		"lastLogin":   stringVal(p.LastLogin.UTC().Format(isoMillis)),
		"role":        stringVal(p.Role),
		"autoBilling": boolVal(p.AutoBilling),
		"trialPeriod": intVal(p.TrialPeriod),
	}
}

func profileFromFields(fields map[string]value) (*domain.UserProfileRecord, error) {
	p := &domain.UserProfileRecord{
		FullName: fields["fullName"].str(),
		Email:    fields["email"].str(),
		Role:     fields["role"].str(),
	}
	if v, ok := fields["autoBilling"]; ok && v.BooleanValue != nil {
		p.AutoBilling = *v.BooleanValue
	}
	if v, ok := fields["trialPeriod"]; ok && v.IntegerValue != nil {
		n, err := strconv.Atoi(*v.IntegerValue)
		if err != nil {
			return nil, fmt.Errorf("trialPeriod: %w", err)
		}
		p.TrialPeriod = n
	}
	var err error
	if p.CreatedAt, err = parseISO(fields["createdAt"].str()); err != nil {
		return nil, fmt.Errorf("createdAt: %w", err)
	}
	if p.LastLogin, err = parseISO(fields["lastLogin"].str()); err != nil {
		return nil, fmt.Errorf("lastLogin: %w", err)
	}
	return p, nil
}

func (v value) str() string {
	if v.StringValue == nil {
		return ""
	}
	return *v.StringValue
}

func parseISO(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
