// Package federated verifies identity-provider tokens for federated sign-in.
package federated

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/idtoken"
)

// ErrInvalidToken is returned for any token that fails verification,
// including timeouts talking to the provider.
var ErrInvalidToken = errors.New("invalid federated token")

// Claims are the identity attributes asserted by the provider.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
}

// Verifier validates a provider token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// validateFunc matches idtoken.Validate.
type validateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// GoogleVerifier validates Google ID tokens against a client ID.
type GoogleVerifier struct {
	clientID string
	timeout  time.Duration
	validate validateFunc
}

// NewGoogleVerifier creates a verifier for tokens minted for clientID.
func NewGoogleVerifier(clientID string, timeout time.Duration) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: clientID,
		timeout:  timeout,
		validate: idtoken.Validate,
	}
}

func (v *GoogleVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	if v.clientID == "" {
		return Claims{}, fmt.Errorf("%w: federated sign-in is not configured", ErrInvalidToken)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	payload, err := v.validate(ctx, token, v.clientID)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claimsFromPayload(payload)
}

func claimsFromPayload(p *idtoken.Payload) (Claims, error) {
	c := Claims{Subject: p.Subject}
	if c.Subject == "" {
		c.Subject, _ = p.Claims["sub"].(string)
	}
	if c.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	c.Email, _ = p.Claims["email"].(string)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.GivenName, _ = p.Claims["given_name"].(string)
	c.FamilyName, _ = p.Claims["family_name"].(string)

	switch v := p.Claims["email_verified"].(type) {
	case bool:
		c.EmailVerified = v
	case string:
		c.EmailVerified = v == "true"
	}
	return c, nil
}
