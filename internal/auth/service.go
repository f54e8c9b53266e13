package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signalix/phoneauth/internal/federated"
	"github.com/signalix/phoneauth/internal/logging"
	"github.com/signalix/phoneauth/internal/model"
	"github.com/signalix/phoneauth/internal/notify"
	"github.com/signalix/phoneauth/internal/otp"
	"github.com/signalix/phoneauth/internal/repo"
)

// SessionIssuer mints tokens for verified users and validates refresh tokens.
type SessionIssuer interface {
	IssueSession(ctx context.Context, user model.User) (model.TokenPair, error)
	VerifyRefresh(ctx context.Context, refreshToken string) (uuid.UUID, error)
}

// AuthService orchestrates authentication operations: it moves a phone number
// (and optionally a federated identity) from first contact to a verified
// account with an issued session.
type AuthService struct {
	users    repo.UserRepo
	otps     otp.Store
	gateway  notify.Gateway
	sessions SessionIssuer
	verifier federated.Verifier
	logger   *zap.Logger

	emailLinking bool
	generate     func() (string, error)
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithEmailLinking lets federated sign-in fall back to an email match when the
// provider asserts the email is verified.
func WithEmailLinking(enabled bool) Option {
	return func(s *AuthService) { s.emailLinking = enabled }
}

// NewAuthService creates a new auth service
func NewAuthService(
	users repo.UserRepo,
	otps otp.Store,
	gateway notify.Gateway,
	sessions SessionIssuer,
	verifier federated.Verifier,
	logger *zap.Logger,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		users:    users,
		otps:     otps,
		gateway:  gateway,
		sessions: sessions,
		verifier: verifier,
		logger:   logger,
		generate: otp.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitiateResult is returned when an OTP was sent for a phone number.
type InitiateResult struct {
	PhoneNumber string
	IsNewUser   bool
}

// Initiate starts signup or login for a phone number. An unknown phone gets a
// provisional unverified user, which is removed again if the OTP cannot be
// delivered.
func (s *AuthService) Initiate(ctx context.Context, phone string) (InitiateResult, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return InitiateResult{}, err
	}
	log := s.logger.With(logging.Phone(phone))

	user, isNew, err := s.findOrCreateByPhone(ctx, phone)
	if err != nil {
		return InitiateResult{}, err
	}
	if isNew {
		log.Info("provisional user created", zap.Stringer("user_id", user.ID))
	}

	if err := s.sendCode(ctx, phone, user.FirstName); err != nil {
		if isNew {
			s.rollbackProvisional(ctx, user, phone)
		}
		return InitiateResult{}, err
	}

	log.Info("otp sent", zap.Bool("is_new_user", isNew))
	return InitiateResult{PhoneNumber: phone, IsNewUser: isNew}, nil
}

// findOrCreateByPhone returns the user for phone, creating it if needed. A
// duplicate-key failure on create means a concurrent request won the race;
// that user is then treated as existing.
func (s *AuthService) findOrCreateByPhone(ctx context.Context, phone string) (model.User, bool, error) {
	user, err := s.users.FindByPhone(ctx, phone)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.User{}, false, fmt.Errorf("find user by phone: %w", err)
	}

	user, err = s.users.Create(ctx, model.NewUser{PhoneNumber: &phone})
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, repo.ErrDuplicateKey) {
		return model.User{}, false, fmt.Errorf("create user: %w", err)
	}

	user, ferr := s.users.FindByPhone(ctx, phone)
	if ferr == nil {
		return user, false, nil
	}
	return model.User{}, false, fieldError("phone_number", "A user with this phone number already exists.")
}

// rollbackProvisional undoes a provisional create. It runs detached from ctx
// so a cancelled request still restores the registry.
func (s *AuthService) rollbackProvisional(ctx context.Context, user model.User, phone string) {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(logging.Phone(phone), zap.Stringer("user_id", user.ID))

	if err := s.users.Delete(ctx, user.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		log.Error("failed to delete provisional user", zap.Error(err))
	} else {
		log.Info("deleted provisional user after delivery failure")
	}
	if err := s.otps.Clear(ctx, phone); err != nil {
		log.Warn("failed to clear otp after rollback", zap.Error(err))
	}
}

// sendCode generates a fresh code, stores it (replacing any previous one) and
// delivers it. Delivery failure is ErrDeliveryFailed.
func (s *AuthService) sendCode(ctx context.Context, phone, name string) error {
	code, err := s.generate()
	if err != nil {
		return err
	}
	if err := s.otps.Store(ctx, phone, code); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	if !s.gateway.Notify(ctx, phone, notify.OTPMessage(name, code)) {
		s.logger.Warn("otp delivery failed", logging.Phone(phone))
		return ErrDeliveryFailed
	}
	return nil
}

// VerifyResult is either a completed verification (Session set) or a resend.
type VerifyResult struct {
	Resent      bool
	PhoneNumber string
	User        model.User
	Session     model.TokenPair
	IsNewUser   bool
}

// VerifyOrResend checks code for phone and issues a session on a match. An
// empty code resends a new OTP instead.
func (s *AuthService) VerifyOrResend(ctx context.Context, phone, code string) (VerifyResult, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return VerifyResult{}, err
	}
	code, err = normalizeCode(code)
	if err != nil {
		return VerifyResult{}, err
	}
	log := s.logger.With(logging.Phone(phone))

	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return VerifyResult{}, ErrNotFound
		}
		return VerifyResult{}, fmt.Errorf("find user by phone: %w", err)
	}

	if code == "" {
		if err := s.sendCode(ctx, phone, user.FirstName); err != nil {
			return VerifyResult{}, err
		}
		log.Info("otp resent")
		return VerifyResult{Resent: true, PhoneNumber: phone, User: user}, nil
	}

	ok, err := s.otps.Verify(ctx, phone, code)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify otp: %w", err)
	}
	if !ok {
		log.Info("invalid otp submitted")
		return VerifyResult{}, ErrInvalidOTP
	}

	verified := true
	user, err = s.users.Update(ctx, user.ID, model.UserUpdate{IsVerified: &verified})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return VerifyResult{}, ErrNotFound
		}
		return VerifyResult{}, fmt.Errorf("mark user verified: %w", err)
	}
	if err := s.otps.Clear(ctx, phone); err != nil {
		return VerifyResult{}, fmt.Errorf("clear otp: %w", err)
	}

	session, err := s.sessions.IssueSession(ctx, user)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("issue session: %w", err)
	}

	log.Info("user verified", zap.Stringer("user_id", user.ID))
	return VerifyResult{
		PhoneNumber: phone,
		User:        user,
		Session:     session,
		IsNewUser:   user.FirstName == "",
	}, nil
}

// FederatedOutcome says which branch of federated sign-in was taken.
type FederatedOutcome int

const (
	// FederatedNewUser: a user was created from the claims; a phone is needed.
	FederatedNewUser FederatedOutcome = iota + 1
	// FederatedOTPSent: the phone was linked and an OTP sent.
	FederatedOTPSent
	// FederatedSignedIn: the user is verified and a session was issued.
	FederatedSignedIn
	// FederatedPhoneRequired: the user exists but is not verified yet.
	FederatedPhoneRequired
)

// FederatedResult is the outcome of FederatedSignIn.
type FederatedResult struct {
	Outcome     FederatedOutcome
	User        model.User
	FederatedID string
	PhoneNumber string
	Session     model.TokenPair
	IsNewUser   bool
}

// FederatedSignIn verifies a provider token and reconciles it with the
// registry. A federated-id match always wins over an email match.
func (s *AuthService) FederatedSignIn(ctx context.Context, token, phone string) (FederatedResult, error) {
	claims, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.logger.Info("federated token rejected", zap.Error(err))
		return FederatedResult{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if strings.TrimSpace(phone) != "" {
		if phone, err = normalizePhone(phone); err != nil {
			return FederatedResult{}, err
		}
	} else {
		phone = ""
	}

	log := s.logger.With(zap.String("federated_id", claims.Subject))
	res := FederatedResult{FederatedID: claims.Subject}

	user, found, err := s.resolveFederated(ctx, claims)
	if err != nil {
		return FederatedResult{}, err
	}

	if !found {
		user, found, err = s.createFederated(ctx, claims)
		if err != nil {
			return FederatedResult{}, err
		}
		if !found {
			log.Info("federated user created, phone required", zap.Stringer("user_id", user.ID))
			res.Outcome = FederatedNewUser
			res.User = user
			res.IsNewUser = true
			return res, nil
		}
	}

	switch {
	case phone != "":
		user, err = s.linkPhone(ctx, user, phone)
		if err != nil {
			return FederatedResult{}, err
		}
		name := claims.GivenName
		if name == "" {
			name = user.FirstName
		}
		if err := s.sendCode(ctx, phone, name); err != nil {
			return FederatedResult{}, err
		}
		log.Info("otp sent for federated user", logging.Phone(phone))
		res.Outcome = FederatedOTPSent
		res.PhoneNumber = phone

	case user.IsVerified:
		session, err := s.sessions.IssueSession(ctx, user)
		if err != nil {
			return FederatedResult{}, fmt.Errorf("issue session: %w", err)
		}
		log.Info("federated sign-in completed", zap.Stringer("user_id", user.ID))
		res.Outcome = FederatedSignedIn
		res.Session = session

	default:
		res.Outcome = FederatedPhoneRequired
	}

	res.User = user
	return res, nil
}

// resolveFederated finds the user for the claims: by federated id, then by
// email when linking is enabled and the provider verified the address. An
// email match is ignored if that user is bound to a different federated id.
func (s *AuthService) resolveFederated(ctx context.Context, claims federated.Claims) (model.User, bool, error) {
	user, err := s.users.FindByFederatedID(ctx, claims.Subject)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.User{}, false, fmt.Errorf("find user by federated id: %w", err)
	}

	if !s.emailLinking || !claims.EmailVerified || claims.Email == "" {
		return model.User{}, false, nil
	}
	user, err = s.users.FindByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, false, nil
		}
		return model.User{}, false, fmt.Errorf("find user by email: %w", err)
	}
	if user.FederatedID != nil && *user.FederatedID != claims.Subject {
		return model.User{}, false, nil
	}
	return user, true, nil
}

// createFederated creates a phone-less user from the claims. found is true
// when a concurrent request created the same federated identity first.
func (s *AuthService) createFederated(ctx context.Context, claims federated.Claims) (model.User, bool, error) {
	sub := claims.Subject
	user, err := s.users.Create(ctx, model.NewUser{
		FederatedID: &sub,
		Email:       model.StringPtr(claims.Email),
		FirstName:   truncateName(claims.GivenName),
		LastName:    truncateName(claims.FamilyName),
	})
	if err == nil {
		return user, false, nil
	}

	var dup *repo.DuplicateKeyError
	if !errors.As(err, &dup) {
		return model.User{}, false, fmt.Errorf("create federated user: %w", err)
	}
	if dup.Field == "email" {
		return model.User{}, false, fieldError("email", "A user with this email already exists.")
	}
	user, ferr := s.users.FindByFederatedID(ctx, sub)
	if ferr != nil {
		return model.User{}, false, fieldError("federated_id", "This account is already registered.")
	}
	return user, true, nil
}

// linkPhone attaches phone to user. The link is kept even if the OTP that
// follows cannot be delivered.
func (s *AuthService) linkPhone(ctx context.Context, user model.User, phone string) (model.User, error) {
	if user.Phone() == phone {
		return user, nil
	}
	updated, err := s.users.Update(ctx, user.ID, model.UserUpdate{PhoneNumber: &phone})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateKey) {
			return model.User{}, fieldError("phone_number", "This phone number is already registered.")
		}
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("link phone: %w", err)
	}
	return updated, nil
}

// RefreshSession exchanges a refresh token for a new pair. The user must still
// exist and be verified.
func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	userID, err := s.sessions.VerifyRefresh(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.TokenPair{}, fmt.Errorf("%w: user no longer exists", ErrInvalidToken)
		}
		return model.TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsVerified {
		return model.TokenPair{}, fmt.Errorf("%w: user is not verified", ErrInvalidToken)
	}
	return s.sessions.IssueSession(ctx, user)
}
