// Package memory is a process-local backend for development and tests.
// It implements the same ports as the Firebase adapter.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	tokenLifetime     = time.Hour
)

type userRecord struct {
	account      domain.UserAccount
	passwordHash []byte
}

// Directory is an in-memory user directory. E-mail uniqueness is checked
// under the same lock as the insert.
type Directory struct {
	mu      sync.RWMutex
	byEmail map[string]*userRecord
	byUID   map[string]*userRecord
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byEmail: make(map[string]*userRecord),
		byUID:   make(map[string]*userRecord),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetUserByEmail returns (nil, nil) when no account uses the address.
func (d *Directory) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	account := rec.account
	return &account, nil
}

func (d *Directory) CreateUser(_ context.Context, user domain.NewUser) (*domain.UserAccount, error) {
	if domain.TextLength(user.Password) < minPasswordLength {
		return nil, &domain.ErrDirectory{Kind: domain.DirectoryInvalidPassword, Op: "create", Code: "WEAK_PASSWORD"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, &domain.ErrDirectory{Kind: domain.DirectoryUnavailable, Op: "create", Err: fmt.Errorf("hash password: %w", err)}
	}

	key := normalizeEmail(user.Email)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byEmail[key]; exists {
		return nil, &domain.ErrDirectory{Kind: domain.DirectoryEmailExists, Op: "create", Code: "EMAIL_EXISTS"}
	}

	rec := &userRecord{
		account: domain.UserAccount{
			UID:         uuid.NewString(),
			Email:       key,
			DisplayName: user.DisplayName,
		},
		passwordHash: hash,
	}
	d.byEmail[key] = rec
	d.byUID[rec.account.UID] = rec

	account := rec.account
	return &account, nil
}

func (d *Directory) DeleteUser(_ context.Context, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.byUID[uid]
	if !ok {
		return &domain.ErrDirectory{Kind: domain.DirectoryUserNotFound, Op: "delete", Code: "USER_NOT_FOUND"}
	}
	delete(d.byUID, uid)
	delete(d.byEmail, rec.account.Email)
	return nil
}

// CheckPassword reports whether password matches the stored hash. The
// service never logs users in; this is for local-dev verification.
func (d *Directory) CheckPassword(email, password string) bool {
	d.mu.RLock()
	rec, ok := d.byEmail[normalizeEmail(email)]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)) == nil
}

// Len returns the number of accounts.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byUID)
}

type documentKey struct {
	docType domain.DocumentType
	number  string
}

// Store keeps profile records and the document registry.
type Store struct {
	mu        sync.RWMutex
	profiles  map[string]domain.UserProfileRecord
	documents map[documentKey]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		profiles:  make(map[string]domain.UserProfileRecord),
		documents: make(map[documentKey]string),
	}
}

func (s *Store) SetUserProfile(_ context.Context, uid string, profile domain.UserProfileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[uid] = profile
	return nil
}

func (s *Store) GetUserProfile(_ context.Context, uid string) (*domain.UserProfileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[uid]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SeedDocument registers a document number with a status such as
// "trial", "active" or "canceled".
func (s *Store) SeedDocument(docType domain.DocumentType, number, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[documentKey{docType: docType, number: number}] = status
}

func (s *Store) HasActiveDocument(_ context.Context, q domain.DocumentQuery) (bool, error) {
	s.mu.RLock()
	status, ok := s.documents[documentKey{docType: q.Type, number: q.Number}]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	for _, blocking := range domain.BlockingDocumentStatuses {
		if status == blocking {
			return true, nil
		}
	}
	return false, nil
}

// TokenIssuer signs HS256 custom tokens with a shared secret.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. The secret must not be empty.
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("memory: token secret is empty")
	}
	return &TokenIssuer{secret: []byte(secret), now: time.Now}, nil
}

// CustomClaims are the claims carried by memory-issued tokens.
type CustomClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

func (t *TokenIssuer) CreateCustomToken(_ context.Context, uid string) (string, error) {
	if uid == "" {
		return "", errors.New("memory: uid is empty")
	}
	now := t.now()
	claims := CustomClaims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    "bfa-memory",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// ParseCustomToken verifies a token created by CreateCustomToken and returns
// its uid. The frontend exchanges tokens elsewhere; this is for local-dev
// verification.
func (t *TokenIssuer) ParseCustomToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return "", errors.New("memory: invalid token")
	}
	return claims.UID, nil
}
