// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
)

// UserDirectory is the identity provider capability.
//
// GetUserByEmail returns (nil, nil) when no account exists. CreateUser is the
// authoritative uniqueness check: implementations must create-if-absent
// atomically and report *domain.ErrDirectory with kind DirectoryEmailExists
// when the address is taken.
type UserDirectory interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.NewUser) (*domain.UserAccount, error)
	DeleteUser(ctx context.Context, uid string) error
}

// RecordStore is the document database capability.
type RecordStore interface {
	SetUserProfile(ctx context.Context, uid string, profile domain.UserProfileRecord) error
	// GetUserProfile returns (nil, nil) when the document does not exist.
	GetUserProfile(ctx context.Context, uid string) (*domain.UserProfileRecord, error)
	// HasActiveDocument reports whether any record holds the document with a
	// status in domain.BlockingDocumentStatuses.
	HasActiveDocument(ctx context.Context, query domain.DocumentQuery) (bool, error)
}

// TokenIssuer mints custom tokens bound to a uid.
type TokenIssuer interface {
	CreateCustomToken(ctx context.Context, uid string) (string, error)
}

// OrphanJournal remembers accounts created without a profile record.
type OrphanJournal interface {
	Record(ctx context.Context, entry domain.OrphanedSignup) error
	List(ctx context.Context) ([]domain.OrphanedSignup, error)
	Remove(ctx context.Context, uid string) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	SetWithTTL(key string, value T, ttl time.Duration)
	Delete(key string)
}
