package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/ports"
)

type authFixture struct {
	svc      *AuthService
	users    *stubUserRepo
	tokens   *stubTokenStore
	cache    *stubUserCache
	provider *stubIdentityProvider
	pub      *recordingPublisher
}

func newAuthFixture(cfg AuthConfig) *authFixture {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "secret"
	}
	f := &authFixture{
		users:    newStubUserRepo(),
		tokens:   newStubTokenStore(),
		cache:    newStubUserCache(),
		provider: &stubIdentityProvider{},
		pub:      &recordingPublisher{},
	}
	f.svc = NewAuthService(f.users, cfg, zerolog.Nop(),
		WithTokenStore(f.tokens),
		WithUserCache(f.cache),
		WithIdentityProvider(f.provider),
		WithEventPublisher(f.pub),
	)
	return f
}

func (f *authFixture) seedUser(t *testing.T, username, password string, admin bool) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := f.users.Create(context.Background(), &domain.User{
		Username: username, PasswordHash: string(hash), IsAdmin: admin, IsActive: true,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// ---- Register ----

func TestAuthService_Register_NeverAdmin(t *testing.T) {
	f := newAuthFixture(AuthConfig{})

	res, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Username: "alice", Email: "alice@example.com", Password: "pass12345",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if res.User.IsAdmin {
		t.Fatalf("registered user must not be admin")
	}
	if res.Token == "" || !res.Created {
		t.Fatalf("expected token and Created flag, got %+v", res)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(res.User.PasswordHash), []byte("pass12345")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	ctx := context.Background()

	_, _ = f.svc.Register(ctx, ports.RegisterInput{Username: "bob", Password: "pass12345"})
	if _, err := f.svc.Register(ctx, ports.RegisterInput{Username: "bob", Password: "pass67890"}); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

// ---- Login / Authenticate ----

func TestAuthService_Login_Success(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	seeded := f.seedUser(t, "carol", "s3cretpass", true)

	res, err := f.svc.Login(context.Background(), "carol", "s3cretpass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.User.ID != seeded.ID {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if res.User.LastLogin == nil {
		t.Fatalf("expected last_login to be recorded")
	}

	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(res.Token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims.Subject != seeded.ID || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestAuthService_Login_TrimsUsername(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	seeded := f.seedUser(t, "carol", "s3cretpass", false)

	res, err := f.svc.Login(context.Background(), "  carol ", "s3cretpass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.User.ID != seeded.ID {
		t.Fatalf("unexpected user: %+v", res.User)
	}
}

func TestAuthService_Login_InvalidPassword(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	f.seedUser(t, "dave", "goodpass", false)

	if _, err := f.svc.Login(context.Background(), "dave", "badpass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_UnknownUser(t *testing.T) {
	f := newAuthFixture(AuthConfig{})

	if _, err := f.svc.Login(context.Background(), "ghost", "pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_Inactive(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	u := f.seedUser(t, "frozen", "password1", false)
	f.users.users[u.ID].IsActive = false

	if _, err := f.svc.Login(context.Background(), "frozen", "password1"); !errors.Is(err, domain.ErrInactiveUser) {
		t.Fatalf("expected ErrInactiveUser, got %v", err)
	}
}

func TestAuthService_Authenticate_ReflectsCurrentAdminFlag(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	ctx := context.Background()
	u := f.seedUser(t, "erin", "password1", false)

	res, _ := f.svc.Login(ctx, "erin", "password1")

	caller, session, err := f.svc.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if caller.IsAdmin || session.TokenID == "" {
		t.Fatalf("unexpected caller/session: %+v %+v", caller, session)
	}

	users := NewUserService(f.users, newStubCustomerRepo(), f.cache, nil, zerolog.Nop())
	if _, err := users.SetAdminStatus(ctx, adminCaller, u.ID, true); err != nil {
		t.Fatalf("SetAdminStatus: %v", err)
	}

	caller, _, err = f.svc.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if !caller.IsAdmin {
		t.Fatalf("expected admin flag to apply to existing token")
	}
}

func TestAuthService_Authenticate_Rejects(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	ctx := context.Background()
	u := f.seedUser(t, "gina", "password1", false)

	wrongKey, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: tokenIssuer, Subject: u.ID, ID: "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("other"))

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: tokenIssuer, Subject: u.ID, ID: "y",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("secret"))

	unknownUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: tokenIssuer, Subject: "nobody", ID: "z",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong key":    wrongKey,
		"expired":      expired,
		"unknown user": unknownUser,
	} {
		if _, _, err := f.svc.Authenticate(ctx, token); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestAuthService_Logout_RevokesToken(t *testing.T) {
	f := newAuthFixture(AuthConfig{TokenTTL: time.Hour})
	ctx := context.Background()
	f.seedUser(t, "hank", "password1", false)

	res, _ := f.svc.Login(ctx, "hank", "password1")
	_, session, err := f.svc.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	if err := f.svc.Logout(ctx, session); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if ttl := f.tokens.revoked[session.TokenID]; ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected revocation ttl %v", ttl)
	}
	if _, _, err := f.svc.Authenticate(ctx, res.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
}

func TestAuthService_Authenticate_RevocationStoreDown(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	ctx := context.Background()
	f.seedUser(t, "ivan", "password1", false)
	res, _ := f.svc.Login(ctx, "ivan", "password1")

	f.tokens.err = errors.New("connection refused")
	if _, _, err := f.svc.Authenticate(ctx, res.Token); err != nil {
		t.Fatalf("expected token accepted when revocation store is down, got %v", err)
	}
}

// ---- Google ----

func googleIdentity(sub, email string) *ports.ExternalIdentity {
	return &ports.ExternalIdentity{Provider: domain.SocialProviderGoogle, SubjectID: sub, Email: email, EmailVerified: true}
}

func TestAuthService_GoogleLogin_CreatesUser(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	f.provider.exchangeFn = func(_ context.Context, code string) (*ports.ExternalIdentity, error) {
		if code != "auth-code" {
			t.Fatalf("unexpected code %q", code)
		}
		return googleIdentity("g-1", "jane.doe@gmail.com"), nil
	}

	res, err := f.svc.GoogleLogin(context.Background(), ports.GoogleLoginInput{Code: "auth-code"})
	if err != nil {
		t.Fatalf("GoogleLogin returned error: %v", err)
	}
	if !res.Created || res.Token == "" {
		t.Fatalf("expected new user with token, got %+v", res)
	}
	if res.User.Username != "jane.doe" || res.User.Email != "jane.doe@gmail.com" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if res.User.IsAdmin || res.User.HasUsablePassword() {
		t.Fatalf("social user must be non-admin without password")
	}

	again, err := f.svc.GoogleLogin(context.Background(), ports.GoogleLoginInput{Code: "auth-code"})
	if err != nil {
		t.Fatalf("second GoogleLogin returned error: %v", err)
	}
	if again.Created || again.User.ID != res.User.ID {
		t.Fatalf("expected existing user on second login, got %+v", again)
	}
}

func TestAuthService_GoogleLogin_UsernameCollision(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	f.seedUser(t, "jane", "password1", false)
	f.provider.identifyFn = func(context.Context, string) (*ports.ExternalIdentity, error) {
		return &ports.ExternalIdentity{SubjectID: "g-2", Email: "jane@other.org", EmailVerified: false}, nil
	}

	res, err := f.svc.GoogleLogin(context.Background(), ports.GoogleLoginInput{AccessToken: "ya29.token"})
	if err != nil {
		t.Fatalf("GoogleLogin returned error: %v", err)
	}
	if res.User.Username != "jane1" {
		t.Fatalf("expected de-duplicated username jane1, got %s", res.User.Username)
	}
	if res.User.Email != "" {
		t.Fatalf("unverified email must not be stored")
	}
}

func TestAuthService_GoogleLogin_LinksVerifiedEmail(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	existing, _ := f.users.Create(context.Background(), &domain.User{Username: "kim", Email: "kim@example.com", IsActive: true})
	f.provider.exchangeFn = func(context.Context, string) (*ports.ExternalIdentity, error) {
		return googleIdentity("g-3", "kim@example.com"), nil
	}

	res, err := f.svc.GoogleLogin(context.Background(), ports.GoogleLoginInput{Code: "c"})
	if err != nil {
		t.Fatalf("GoogleLogin returned error: %v", err)
	}
	if res.User.ID != existing.ID || res.Created {
		t.Fatalf("expected existing account to be linked, got %+v", res)
	}
	stored, _ := f.users.FindBySocial(context.Background(), domain.SocialProviderGoogle, "g-3")
	if stored == nil || stored.ID != existing.ID {
		t.Fatalf("expected social binding to be stored")
	}
}

func TestAuthService_GoogleLogin_LinksEmailRegardlessOfCase(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, ports.RegisterInput{Username: "gina", Email: "Gina@Example.com", Password: "password-1"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if reg.User.Email != "gina@example.com" {
		t.Fatalf("expected normalized email, got %q", reg.User.Email)
	}
	f.provider.exchangeFn = func(context.Context, string) (*ports.ExternalIdentity, error) {
		return googleIdentity("g-4", "GINA@example.com"), nil
	}

	res, err := f.svc.GoogleLogin(ctx, ports.GoogleLoginInput{Code: "c"})
	if err != nil {
		t.Fatalf("GoogleLogin returned error: %v", err)
	}
	if res.User.ID != reg.User.ID || res.Created {
		t.Fatalf("expected the registered account to be linked, got %+v", res.User)
	}
	if len(f.users.users) != 1 {
		t.Fatalf("expected no duplicate account, got %d users", len(f.users.users))
	}
}

func TestAuthService_GoogleAuthURL(t *testing.T) {
	f := newAuthFixture(AuthConfig{})

	url, err := f.svc.GoogleAuthURL("st-1")
	if err != nil || url != "https://accounts.example.com/auth?state=st-1" {
		t.Fatalf("unexpected url %q, %v", url, err)
	}

	bare := NewAuthService(f.users, AuthConfig{JWTSecret: "secret"}, zerolog.Nop())
	if _, err := bare.GoogleAuthURL("st-1"); !errors.Is(err, domain.ErrUpstreamAuth) {
		t.Fatalf("expected ErrUpstreamAuth without a provider, got %v", err)
	}
}

func TestAuthService_GoogleLogin_UpstreamFailureCreatesNothing(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	f.provider.exchangeFn = func(context.Context, string) (*ports.ExternalIdentity, error) {
		return nil, errors.New("invalid_grant")
	}

	_, err := f.svc.GoogleLogin(context.Background(), ports.GoogleLoginInput{Code: "stale"})
	if !errors.Is(err, domain.ErrUpstreamAuth) {
		t.Fatalf("expected ErrUpstreamAuth, got %v", err)
	}
	if len(f.users.users) != 0 {
		t.Fatalf("expected no user persisted, found %d", len(f.users.users))
	}
}

func TestAuthService_GoogleLogin_Timeout(t *testing.T) {
	f := newAuthFixture(AuthConfig{ProviderTimeout: 20 * time.Millisecond})
	f.provider.exchangeFn = func(ctx context.Context, _ string) (*ports.ExternalIdentity, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	start := time.Now()
	_, err := f.svc.GoogleLogin(context.Background(), ports.GoogleLoginInput{Code: "slow"})
	if !errors.Is(err, domain.ErrUpstreamAuth) {
		t.Fatalf("expected ErrUpstreamAuth, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("exchange was not bounded by the timeout")
	}
	if len(f.users.users) != 0 {
		t.Fatalf("expected no user persisted")
	}
}

func TestAuthService_GoogleLogin_RequiresCodeOrToken(t *testing.T) {
	f := newAuthFixture(AuthConfig{})

	_, err := f.svc.GoogleLogin(context.Background(), ports.GoogleLoginInput{})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

// ---- Bootstrap ----

func TestAuthService_EnsureAdmin(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	ctx := context.Background()

	if err := f.svc.EnsureAdmin(ctx, "root", "root@example.com", "rootpass1"); err != nil {
		t.Fatalf("EnsureAdmin returned error: %v", err)
	}
	if err := f.svc.EnsureAdmin(ctx, "root", "root@example.com", "rootpass1"); err != nil {
		t.Fatalf("second EnsureAdmin returned error: %v", err)
	}
	if len(f.users.users) != 1 {
		t.Fatalf("expected exactly one admin, got %d users", len(f.users.users))
	}
	u, _ := f.users.FindByUsername(ctx, "root")
	if !u.IsAdmin || !u.IsSuperuser {
		t.Fatalf("expected admin superuser, got %+v", u)
	}
}

// ---- Profile ----

func TestAuthService_UpdateProfile_OnlyUsernameAndEmail(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	ctx := context.Background()
	u := f.seedUser(t, "hank", "password-1", false)
	f.cache.Set(ctx, u)

	saved, err := f.svc.UpdateProfile(ctx, u, ports.ProfileInput{Email: strp(" Hank@Example.COM ")}, true)
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if saved.Email != "hank@example.com" || saved.Username != "hank" || saved.IsAdmin {
		t.Fatalf("unexpected profile: %+v", saved)
	}
	if _, ok := f.cache.Get(ctx, u.ID); ok {
		t.Fatal("expected cache entry to be invalidated")
	}
	if got := f.pub.actions(); len(got) != 1 || got[0] != domain.ActionUserProfileUpdated {
		t.Fatalf("unexpected audit actions %v", got)
	}
}

func TestAuthService_UpdateProfile_FullRequiresUsername(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	u := f.seedUser(t, "ivy", "password-1", false)

	_, err := f.svc.UpdateProfile(context.Background(), u, ports.ProfileInput{Email: strp("ivy@example.com")}, false)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || len(ve.Fields["username"]) == 0 {
		t.Fatalf("expected username validation error, got %v", err)
	}
}

func TestAuthService_UpdateProfile_DuplicateUsername(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	f.seedUser(t, "jack", "password-1", false)
	u := f.seedUser(t, "jill", "password-1", false)

	_, err := f.svc.UpdateProfile(context.Background(), u, ports.ProfileInput{Username: strp("jack")}, true)
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_UpdateProfile_RequiresCaller(t *testing.T) {
	f := newAuthFixture(AuthConfig{})

	if _, err := f.svc.UpdateProfile(context.Background(), nil, ports.ProfileInput{}, true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

// ---- ChangePassword ----

func TestAuthService_ChangePassword(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	ctx := context.Background()
	u := f.seedUser(t, "kate", "old-password", false)

	err := f.svc.ChangePassword(ctx, u, ports.ChangePasswordInput{
		OldPassword: "old-password", NewPassword1: "new-password", NewPassword2: "new-password",
	})
	if err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if _, err := f.svc.Login(ctx, "kate", "old-password"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := f.svc.Login(ctx, "kate", "new-password"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if got := f.pub.actions(); len(got) != 1 || got[0] != domain.ActionUserPasswordChanged {
		t.Fatalf("unexpected audit actions %v", got)
	}
}

func TestAuthService_ChangePassword_Rejections(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	u := f.seedUser(t, "liam", "old-password", false)

	cases := []struct {
		name  string
		input ports.ChangePasswordInput
		field string
	}{
		{"mismatch", ports.ChangePasswordInput{OldPassword: "old-password", NewPassword1: "new-password", NewPassword2: "other-password"}, "new_password2"},
		{"wrong old", ports.ChangePasswordInput{OldPassword: "nope-nope", NewPassword1: "new-password", NewPassword2: "new-password"}, "old_password"},
		{"missing old", ports.ChangePasswordInput{NewPassword1: "new-password", NewPassword2: "new-password"}, "old_password"},
		{"too short", ports.ChangePasswordInput{OldPassword: "old-password", NewPassword1: "short", NewPassword2: "short"}, "new_password1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.ChangePassword(context.Background(), u, tc.input)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || len(ve.Fields[tc.field]) == 0 {
				t.Fatalf("expected %s error, got %v", tc.field, err)
			}
		})
	}
	if len(f.pub.actions()) != 0 {
		t.Fatalf("rejected changes must not be audited")
	}
}

func TestAuthService_ChangePassword_SocialAccountSkipsOldPassword(t *testing.T) {
	f := newAuthFixture(AuthConfig{})
	ctx := context.Background()
	u, _ := f.users.Create(ctx, &domain.User{Username: "mia", IsActive: true, SocialProvider: domain.SocialProviderGoogle, SocialID: "g-9"})

	err := f.svc.ChangePassword(ctx, u, ports.ChangePasswordInput{NewPassword1: "fresh-password", NewPassword2: "fresh-password"})
	if err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if _, err := f.svc.Login(ctx, "mia", "fresh-password"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}
