package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/policy"
	"github.com/crmhub/crm-api/internal/core/ports"
)

const (
	tokenIssuer            = "crm-api"
	defaultTokenTTL        = 24 * time.Hour
	defaultProviderTimeout = 10 * time.Second
	maxUsernameAttempts    = 100
)

// AuthConfig holds token and identity-provider settings.
type AuthConfig struct {
	JWTSecret       string
	TokenTTL        time.Duration
	ProviderTimeout time.Duration
}

// AuthOption wires an optional collaborator into the AuthService.
type AuthOption func(*AuthService)

func WithUserCache(c ports.UserCache) AuthOption {
	return func(s *AuthService) { s.cache = cacheOrNop(c) }
}

func WithTokenStore(t ports.TokenStore) AuthOption {
	return func(s *AuthService) { s.tokens = t }
}

func WithIdentityProvider(p ports.IdentityProvider) AuthOption {
	return func(s *AuthService) { s.identity = p }
}

func WithEventPublisher(p ports.EventPublisher) AuthOption {
	return func(s *AuthService) { s.events = publisherOrNop(p) }
}

// AuthService implements password login, registration, bearer token
// resolution, logout and Google sign-in.
type AuthService struct {
	users           ports.UserRepository
	cache           ports.UserCache
	tokens          ports.TokenStore
	identity        ports.IdentityProvider
	events          ports.EventPublisher
	jwtSecret       []byte
	tokenTTL        time.Duration
	providerTimeout time.Duration
	log             zerolog.Logger
}

type accessClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewAuthService(users ports.UserRepository, cfg AuthConfig, log zerolog.Logger, opts ...AuthOption) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	s := &AuthService{
		users:           users,
		cache:           nopUserCache{},
		events:          nopPublisher{},
		jwtSecret:       []byte(cfg.JWTSecret),
		tokenTTL:        cfg.TokenTTL,
		providerTimeout: cfg.ProviderTimeout,
		log:             log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a regular (never admin) account and logs it in.
func (s *AuthService) Register(ctx context.Context, input ports.RegisterInput) (*ports.AuthResult, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = normalizeEmail(input.Email)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user, err := s.users.Create(ctx, &domain.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		IsActive:     true,
		DateJoined:   now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	s.events.Publish(newAuditEvent(domain.ActionUserRegistered, policy.KindUser, user, user.ID, nil))

	res, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	res.Created = true
	return res, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*ports.AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.HasUsablePassword() ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrInactiveUser
	}

	s.touchLogin(ctx, user)
	return s.issue(user)
}

// Authenticate resolves a bearer token to the current user record. The user
// is always reloaded (through the cache) so admin changes apply immediately.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, *ports.Session, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, nil, domain.ErrUnauthorized
	}

	if s.tokens != nil {
		revoked, err := s.tokens.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("jti", claims.ID).Msg("revocation check failed, accepting token")
		} else if revoked {
			return nil, nil, fmt.Errorf("%w: token revoked", domain.ErrUnauthorized)
		}
	}

	user, err := s.loadUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrUnauthorized
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, domain.ErrUnauthorized
	}

	session := &ports.Session{TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return user, session, nil
}

// Logout revokes the session's token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, session *ports.Session) error {
	if session == nil || s.tokens == nil {
		return nil
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.tokens.Revoke(ctx, session.TokenID, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// GoogleLogin exchanges a Google code or access token for a verified
// identity, then finds, links or creates the local account. Nothing is
// written before the provider has answered.
func (s *AuthService) GoogleLogin(ctx context.Context, input ports.GoogleLoginInput) (*ports.AuthResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if s.identity == nil {
		return nil, fmt.Errorf("%w: google login is not configured", domain.ErrUpstreamAuth)
	}

	ident, err := s.resolveIdentity(ctx, input)
	if err != nil {
		s.log.Warn().Err(err).Msg("google identity exchange failed")
		return nil, err
	}

	user, err := s.users.FindBySocial(ctx, domain.SocialProviderGoogle, ident.SubjectID)
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, domain.ErrInactiveUser
		}
		s.touchLogin(ctx, user)
		return s.issue(user)
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, err
	}

	if ident.Email != "" && ident.EmailVerified {
		linked, err := s.linkByEmail(ctx, ident)
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		if linked != nil {
			return s.issue(linked)
		}
	}

	created, err := s.createSocialUser(ctx, ident)
	if err != nil {
		return nil, err
	}
	res, err := s.issue(created)
	if err != nil {
		return nil, err
	}
	res.Created = true
	return res, nil
}

// GoogleAuthURL returns the consent page URL for state.
func (s *AuthService) GoogleAuthURL(state string) (string, error) {
	if s.identity == nil {
		return "", fmt.Errorf("%w: google login is not configured", domain.ErrUpstreamAuth)
	}
	return s.identity.AuthCodeURL(state), nil
}

// UpdateProfile lets the caller edit their own username and email. Admin,
// superuser and active flags are never writable here.
func (s *AuthService) UpdateProfile(ctx context.Context, caller *domain.User, input ports.ProfileInput, partial bool) (*domain.User, error) {
	if caller == nil {
		return nil, domain.ErrUnauthorized
	}

	input.Username = trimPtr(input.Username)
	input.Email = normalizeEmailPtr(input.Email)
	if !partial && input.Username == nil {
		return nil, domain.FieldError("username", "this field is required")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Email != nil {
		if err := validateEmail(*input.Email); err != nil {
			return nil, err
		}
	}

	existing, err := s.users.FindByID(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if input.Username != nil {
		updated.Username = *input.Username
	}
	if input.Email != nil {
		updated.Email = *input.Email
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.users.Update(ctx, &updated)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, saved.ID)

	s.log.Info().Str("user_id", saved.ID).Bool("partial", partial).Msg("profile updated")
	s.events.Publish(newAuditEvent(domain.ActionUserProfileUpdated, policy.KindUser, caller, saved.ID, map[string]any{
		"partial": partial,
	}))
	return saved, nil
}

// ChangePassword replaces the caller's password. The current password must be
// confirmed unless the account was created through social login.
func (s *AuthService) ChangePassword(ctx context.Context, caller *domain.User, input ports.ChangePasswordInput) error {
	if caller == nil {
		return domain.ErrUnauthorized
	}
	if err := validateInput(input); err != nil {
		return err
	}
	if input.NewPassword1 != input.NewPassword2 {
		return domain.FieldError("new_password2", "the two password fields didn't match")
	}

	existing, err := s.users.FindByID(ctx, caller.ID)
	if err != nil {
		return err
	}
	if existing.HasUsablePassword() {
		if input.OldPassword == "" {
			return domain.FieldError("old_password", "this field is required")
		}
		if bcrypt.CompareHashAndPassword([]byte(existing.PasswordHash), []byte(input.OldPassword)) != nil {
			return domain.FieldError("old_password", "your old password was entered incorrectly")
		}
	}

	updated := *existing
	if updated.PasswordHash, err = hashPassword(input.NewPassword1); err != nil {
		return err
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.users.Update(ctx, &updated)
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, saved.ID)

	s.log.Info().Str("user_id", saved.ID).Msg("password changed")
	s.events.Publish(newAuditEvent(domain.ActionUserPasswordChanged, policy.KindUser, caller, saved.ID, nil))
	return nil
}

// EnsureAdmin creates the bootstrap administrator when it does not exist.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	if username == "" || password == "" {
		return nil
	}
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	user, err := s.users.Create(ctx, &domain.User{
		Username:     username,
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		IsAdmin:      true,
		IsSuperuser:  true,
		IsActive:     true,
		DateJoined:   now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil
		}
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	s.log.Info().Str("user_id", user.ID).Str("username", username).Msg("bootstrap admin created")
	return nil
}

func (s *AuthService) resolveIdentity(ctx context.Context, input ports.GoogleLoginInput) (*ports.ExternalIdentity, error) {
	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	var (
		ident *ports.ExternalIdentity
		err   error
	)
	if input.Code != "" {
		ident, err = s.identity.Exchange(pctx, input.Code)
	} else {
		ident, err = s.identity.Identify(pctx, input.AccessToken)
	}
	if err != nil {
		if errors.Is(err, domain.ErrUpstreamAuth) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamAuth, err)
	}
	if ident == nil || ident.SubjectID == "" {
		return nil, fmt.Errorf("%w: provider returned no subject", domain.ErrUpstreamAuth)
	}
	return ident, nil
}

func (s *AuthService) linkByEmail(ctx context.Context, ident *ports.ExternalIdentity) (*domain.User, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(ident.Email))
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.ErrInactiveUser
	}

	user.SocialProvider = domain.SocialProviderGoogle
	user.SocialID = ident.SubjectID
	now := time.Now().UTC()
	user.LastLogin = &now
	user.UpdatedAt = now

	saved, err := s.users.Update(ctx, user)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, saved.ID)

	s.log.Info().Str("user_id", saved.ID).Msg("google identity linked to existing user")
	s.events.Publish(newAuditEvent(domain.ActionUserSocialLinked, policy.KindUser, saved, saved.ID, map[string]any{
		"provider": domain.SocialProviderGoogle,
	}))
	return saved, nil
}

func (s *AuthService) createSocialUser(ctx context.Context, ident *ports.ExternalIdentity) (*domain.User, error) {
	username, err := s.uniqueUsername(ctx, usernameBase(ident))
	if err != nil {
		return nil, err
	}

	email := ""
	if ident.EmailVerified {
		email = normalizeEmail(ident.Email)
	}
	now := time.Now().UTC()
	user, err := s.users.Create(ctx, &domain.User{
		Username:       username,
		Email:          email,
		IsActive:       true,
		SocialProvider: domain.SocialProviderGoogle,
		SocialID:       ident.SubjectID,
		DateJoined:     now,
		LastLogin:      &now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user created from google login")
	s.events.Publish(newAuditEvent(domain.ActionUserRegistered, policy.KindUser, user, user.ID, map[string]any{
		"provider": domain.SocialProviderGoogle,
	}))
	return user, nil
}

// uniqueUsername returns base, or base followed by the first free numeric
// suffix.
func (s *AuthService) uniqueUsername(ctx context.Context, base string) (string, error) {
	for i := 0; i < maxUsernameAttempts; i++ {
		candidate := base
		if i > 0 {
			suffix := strconv.Itoa(i)
			candidate = truncate(base, 150-len(suffix)) + suffix
		}
		_, err := s.users.FindByUsername(ctx, candidate)
		if errors.Is(err, domain.ErrUserNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return base + "_" + uuid.NewString()[:8], nil
}

func usernameBase(ident *ports.ExternalIdentity) string {
	raw := ident.Email
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}
	if raw == "" {
		raw = ident.GivenName + ident.FamilyName
	}

	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if usernamePattern.MatchString(string(r)) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return truncate(b.String(), 150)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (s *AuthService) loadUser(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := s.cache.Get(ctx, id); ok {
		return u, nil
	}
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, u)
	return u, nil
}

func (s *AuthService) touchLogin(ctx context.Context, user *domain.User) {
	now := time.Now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
		return
	}
	user.LastLogin = &now
}

func (s *AuthService) issue(user *domain.User) (*ports.AuthResult, error) {
	now := time.Now()
	exp := now.Add(s.tokenTTL)
	claims := accessClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &ports.AuthResult{Token: signed, ExpiresAt: exp, User: user}, nil
}
