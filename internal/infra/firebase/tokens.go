package firebase

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
)

const (
	accessTokenLifetime = time.Hour
	// accessTokenRefreshMargin keeps cached tokens from expiring mid-request.
	accessTokenRefreshMargin = 5 * time.Minute

	customTokenLifetime = time.Hour
	customTokenAudience = "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit"
	maxUIDLength        = 128

	emulatorBearer = "owner"
)

// accessToken returns a self-signed service account JWT for the audience.
// Google APIs accept these in place of OAuth access tokens.
func (c *Client) accessToken(audience string) (string, error) {
	if c.emulated(audience) {
		return emulatorBearer, nil
	}

	if tok, ok := c.tokens.Get(audience); ok {
		if c.metrics != nil {
			c.metrics.IncrCacheHit("access_token")
		}
		return tok, nil
	}
	if c.metrics != nil {
		c.metrics.IncrCacheMiss("access_token")
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": c.cred.ClientEmail,
		"sub": c.cred.ClientEmail,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(accessTokenLifetime).Unix(),
	})
	if c.cred.PrivateKeyID != "" {
		token.Header["kid"] = c.cred.PrivateKeyID
	}

	signed, err := token.SignedString(c.cred.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	c.tokens.SetWithTTL(audience, signed, accessTokenLifetime-accessTokenRefreshMargin)
	return signed, nil
}

func (c *Client) emulated(audience string) bool {
	switch audience {
	case identityToolkitAudience:
		return c.endpoints.AuthEmulated
	case firestoreAudience:
		return c.endpoints.FirestoreEmulated
	}
	return false
}

// CreateCustomToken signs a custom token bound to uid with the service
// account key, the same way the Admin SDK does. The client exchanges it
// for an ID token with signInWithCustomToken.
func (c *Client) CreateCustomToken(ctx context.Context, uid string) (string, error) {
	_, span := tracer.Start(ctx, "Firebase.CreateCustomToken")
	defer span.End()
	span.SetAttributes(attribute.String("user.uid", uid))

	if uid == "" || len(uid) > maxUIDLength {
		return "", fmt.Errorf("custom token: uid must be 1-%d characters", maxUIDLength)
	}

	// aud is a plain string, matching what the Admin SDKs emit.
	now := c.now()
	claims := jwt.MapClaims{
		"iss": c.cred.ClientEmail,
		"sub": c.cred.ClientEmail,
		"aud": customTokenAudience,
		"iat": now.Unix(),
		"exp": now.Add(customTokenLifetime).Unix(),
		"uid": uid,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.cred.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign custom token: %w", err)
	}
	return signed, nil
}
