package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/jrsteele09/go-cookie-auth/internal/errors"
	"github.com/jrsteele09/go-cookie-auth/token"
	"github.com/jrsteele09/go-cookie-auth/users"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
)

const tracerName = "github.com/jrsteele09/go-cookie-auth/auth"

// Service implements login, registration, token refresh and the access-token
// check behind the session middleware. It keeps no per-session state.
type Service struct {
	users         users.UserRepo
	tokens        *token.Manager
	rotateRefresh bool
	bcryptCost    int
	tracer        trace.Tracer
}

// ServiceOption configures a Service built by NewService.
type ServiceOption func(*Service)

// WithRefreshRotation makes Refresh issue a new refresh token alongside the access token.
func WithRefreshRotation(rotate bool) ServiceOption {
	return func(s *Service) {
		s.rotateRefresh = rotate
	}
}

// WithBcryptCost sets the cost used when hashing passwords on Register.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// WithTracer replaces the tracer taken from the global otel provider.
func WithTracer(tracer trace.Tracer) ServiceOption {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// NewService creates a Service over the credential store and token manager. Both are required.
func NewService(userRepo users.UserRepo, tokens *token.Manager, options ...ServiceOption) (*Service, error) {
	if userRepo == nil {
		return nil, errors.New("[auth NewService] user repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[auth NewService] token manager is required")
	}

	s := &Service{
		users:      userRepo,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s, nil
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register stores a new user. The role defaults to USER.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (user *users.User, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.register", trace.WithAttributes(attribute.String("username", req.Username)))
	defer func() { endSpan(span, err) }()

	username := normalizeUsername(req.Username)
	if username == "" || req.Password == "" {
		return nil, errMissingCredentials()
	}

	role, err := users.ParseRole(req.Role)
	if err != nil {
		return nil, apperrors.Validation("Invalid role").WithDetails(map[string]string{"role": req.Role})
	}

	hash, err := users.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.Internal(apperrors.Wrapf(err, "hash password"))
	}

	user = &users.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if apperrors.Is(err, users.ErrAlreadyExists) {
			return nil, apperrors.Conflict("Username already taken").WithCause(err)
		}
		return nil, apperrors.Internal(apperrors.Wrapf(err, "create user"))
	}
	return user, nil
}

// Login checks the credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, req LoginRequest) (user *users.User, pair *token.Pair, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.login", trace.WithAttributes(attribute.String("username", req.Username)))
	defer func() { endSpan(span, err) }()

	username := normalizeUsername(req.Username)
	if username == "" || req.Password == "" {
		return nil, nil, errMissingCredentials()
	}

	user, err = s.users.GetByUsername(ctx, username)
	if err != nil {
		if apperrors.Is(err, users.ErrNotFound) {
			return nil, nil, errInvalidCredentials()
		}
		return nil, nil, apperrors.Internal(apperrors.Wrapf(err, "find user"))
	}
	if !user.CheckPassword(req.Password) {
		return nil, nil, errInvalidCredentials()
	}

	pair, err = s.tokens.Issue(user.Identity())
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}
	return user, pair, nil
}

// Authenticate runs the access-token state machine used by the session middleware:
// missing token, expired token, invalid token and unknown user are AUTH failures with
// their own reason; a store failure or a panic is INTERNAL.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (user *users.User, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.authenticate")
	defer func() {
		if r := recover(); r != nil {
			user, err = nil, apperrors.Internal(fmt.Errorf("authenticate panic: %v", r))
		}
		endSpan(span, err)
	}()

	if accessToken == "" {
		return nil, errTokenMissing()
	}

	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, verifyFailure(err)
	}
	span.SetAttributes(attribute.String("username", claims.Username))

	return s.lookup(ctx, claims.Username)
}

// Refresh exchanges a valid refresh token for a new access token. With rotation
// enabled the returned pair also carries a new refresh token; otherwise its
// RefreshToken is empty.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (pair *token.Pair, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.refresh")
	defer func() { endSpan(span, err) }()

	if refreshToken == "" {
		return nil, errTokenMissing()
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, verifyFailure(err)
	}
	span.SetAttributes(attribute.String("username", claims.Username), attribute.Bool("rotate", s.rotateRefresh))

	// the stored role wins over the one in the old token
	user, err := s.lookup(ctx, claims.Username)
	if err != nil {
		return nil, err
	}

	if s.rotateRefresh {
		pair, err = s.tokens.Issue(user.Identity())
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		return pair, nil
	}

	access, exp, err := s.tokens.IssueAccess(user.Identity())
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &token.Pair{AccessToken: access, AccessExpiresAt: exp}, nil
}

// GetUser returns a user by name for already-authenticated callers.
func (s *Service) GetUser(ctx context.Context, username string) (*users.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if apperrors.Is(err, users.ErrNotFound) {
			return nil, apperrors.NotFound("User not found").WithCause(err)
		}
		return nil, apperrors.Internal(apperrors.Wrapf(err, "find user"))
	}
	return user, nil
}

// RotatesRefreshTokens reports whether Refresh issues a new refresh token.
func (s *Service) RotatesRefreshTokens() bool {
	return s.rotateRefresh
}

func (s *Service) lookup(ctx context.Context, username string) (*users.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if apperrors.Is(err, users.ErrNotFound) {
			return nil, errUserNotFound()
		}
		return nil, apperrors.Internal(apperrors.Wrapf(err, "find user"))
	}
	return user, nil
}

// normalizeUsername is applied wherever a username arrives from a request body, so the
// stored name and the login name always compare equal.
func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

func verifyFailure(err error) *apperrors.AppError {
	if token.FailureOf(err) == token.FailureExpired {
		return errTokenExpired().WithCause(err)
	}
	return errTokenInvalid().WithCause(err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
