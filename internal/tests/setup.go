package tests

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/signalix/phoneauth/internal/auth"
	"github.com/signalix/phoneauth/internal/db"
	"github.com/signalix/phoneauth/internal/federated"
	httphandler "github.com/signalix/phoneauth/internal/http"
	"github.com/signalix/phoneauth/internal/otp"
	"github.com/signalix/phoneauth/internal/repo"
)

// JWTSecret signs tokens in every test stack.
const JWTSecret = "test-jwt-secret-at-least-32-characters-long"

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

// CaptureGateway is a notify.Gateway that keeps every message it is asked to
// send. SetFail makes subsequent deliveries fail.
type CaptureGateway struct {
	mu   sync.Mutex
	fail bool
	sent map[string][]string
}

func NewCaptureGateway() *CaptureGateway {
	return &CaptureGateway{sent: make(map[string][]string)}
}

func (g *CaptureGateway) Notify(ctx context.Context, phone, text string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent[phone] = append(g.sent[phone], text)
	return !g.fail
}

func (g *CaptureGateway) SetFail(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = fail
}

// LastCode extracts the code from the most recent message to phone.
func (g *CaptureGateway) LastCode(phone string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msgs := g.sent[phone]
	if len(msgs) == 0 {
		return "", false
	}
	m := codePattern.FindStringSubmatch(msgs[len(msgs)-1])
	if m == nil {
		return "", false
	}
	return m[1], true
}

// StubVerifier maps provider tokens to claims.
type StubVerifier map[string]federated.Claims

func (v StubVerifier) Verify(ctx context.Context, token string) (federated.Claims, error) {
	c, ok := v[token]
	if !ok {
		return federated.Claims{}, federated.ErrInvalidToken
	}
	return c, nil
}

// Stack is a fully wired service behind the production router.
type Stack struct {
	Router  http.Handler
	Users   repo.UserRepo
	OTPs    otp.Store
	Gateway *CaptureGateway
	JWT     *auth.JWTService
}

// NewStack wires users and otps behind the HTTP router.
func NewStack(users repo.UserRepo, otps otp.Store, verifier federated.Verifier, logger *zap.Logger, opts ...auth.Option) *Stack {
	gateway := NewCaptureGateway()
	jwtService := auth.NewJWTService(JWTSecret, time.Hour, 24*time.Hour)
	authService := auth.NewAuthService(users, otps, gateway, jwtService, verifier, logger, opts...)

	router := httphandler.NewRouter(httphandler.RouterDeps{
		AuthService: authService,
		JWTService:  jwtService,
		UserRepo:    users,
		Logger:      logger,
	})
	return &Stack{Router: router, Users: users, OTPs: otps, Gateway: gateway, JWT: jwtService}
}

// OpenTestDB connects, migrates and empties the database at databaseURL.
func OpenTestDB(ctx context.Context, databaseURL string, logger *zap.Logger) (*sql.DB, error) {
	database, err := db.Open(ctx, databaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		_ = database.Close()
		return nil, err
	}
	if err := db.TruncateAll(database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("reset test database: %w", err)
	}
	return database, nil
}
