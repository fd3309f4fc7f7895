package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/ports"
)

type userFixture struct {
	svc       *UserService
	users     *stubUserRepo
	customers *stubCustomerRepo
	cache     *stubUserCache
	pub       *recordingPublisher
}

func newUserFixture() *userFixture {
	f := &userFixture{
		users:     newStubUserRepo(),
		customers: newStubCustomerRepo(),
		cache:     newStubUserCache(),
		pub:       &recordingPublisher{},
	}
	f.svc = NewUserService(f.users, f.customers, f.cache, f.pub, zerolog.Nop())
	return f
}

// ---- Authorization ----

func TestUserService_RegularCallerForbidden(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()
	target := f.users.put(&domain.User{ID: "t1", Username: "target", IsActive: true})

	checks := map[string]error{}
	_, checks["list"] = f.svc.List(ctx, regularCaller)
	_, checks["get"] = f.svc.Get(ctx, regularCaller, target.ID)
	_, checks["create"] = f.svc.Create(ctx, regularCaller, ports.CreateUserInput{Username: "x", Password: "password123"})
	_, checks["update"] = f.svc.Update(ctx, regularCaller, target.ID, ports.UpdateUserInput{IsAdmin: boolp(true)}, true)
	checks["delete"] = f.svc.Delete(ctx, regularCaller, target.ID)
	_, checks["set_admin_status"] = f.svc.SetAdminStatus(ctx, regularCaller, target.ID, true)

	for op, err := range checks {
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("%s: expected ErrForbidden, got %v", op, err)
		}
	}
	if stored, _ := f.users.FindByID(ctx, target.ID); stored.IsAdmin {
		t.Fatalf("target was promoted by a regular caller")
	}
}

func TestUserService_AnonymousUnauthorized(t *testing.T) {
	f := newUserFixture()

	if _, err := f.svc.List(context.Background(), nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

// ---- Create ----

func TestUserService_Create_HashesPassword(t *testing.T) {
	f := newUserFixture()

	u, err := f.svc.Create(context.Background(), adminCaller, ports.CreateUserInput{
		Username: "carol", Email: "carol@example.com", Password: "s3cretpass",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if u.PasswordHash == "s3cretpass" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cretpass")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if u.IsAdmin {
		t.Fatalf("expected is_admin default false")
	}
	if !u.IsActive {
		t.Fatalf("expected is_active default true")
	}
}

func TestUserService_Create_Duplicate(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()

	_, _ = f.svc.Create(ctx, adminCaller, ports.CreateUserInput{Username: "dave", Password: "password123"})
	_, err := f.svc.Create(ctx, adminCaller, ports.CreateUserInput{Username: "dave", Password: "password456"})
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestUserService_Create_EmailUniqueRegardlessOfCase(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()

	first, err := f.svc.Create(ctx, adminCaller, ports.CreateUserInput{
		Username: "gina", Email: "  Gina@Example.com ", Password: "password123",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if first.Email != "gina@example.com" {
		t.Fatalf("expected normalized email, got %q", first.Email)
	}

	_, err = f.svc.Create(ctx, adminCaller, ports.CreateUserInput{
		Username: "gina2", Email: "GINA@EXAMPLE.COM", Password: "password123",
	})
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	u, err := f.svc.Update(ctx, adminCaller, first.ID, ports.UpdateUserInput{Email: strp("Gina.New@Example.COM")}, true)
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if u.Email != "gina.new@example.com" {
		t.Fatalf("expected normalized email on update, got %q", u.Email)
	}
}

func TestUserService_Create_Validation(t *testing.T) {
	f := newUserFixture()

	_, err := f.svc.Create(context.Background(), adminCaller, ports.CreateUserInput{
		Username: "bad name!", Email: "not-an-email", Password: "short",
	})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"username", "email", "password"} {
		if len(ve.Fields[field]) == 0 {
			t.Fatalf("expected error on %s, got %v", field, ve.Fields)
		}
	}
}

// ---- SetAdminStatus ----

func TestUserService_SetAdminStatus(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()
	target := f.users.put(&domain.User{ID: "t1", Username: "target", IsActive: true})

	for _, want := range []bool{true, false, false, true} {
		u, err := f.svc.SetAdminStatus(ctx, adminCaller, target.ID, want)
		if err != nil {
			t.Fatalf("SetAdminStatus(%v) returned error: %v", want, err)
		}
		if u.IsAdmin != want {
			t.Fatalf("expected is_admin %v, got %v", want, u.IsAdmin)
		}
		stored, _ := f.users.FindByID(ctx, target.ID)
		if stored.IsAdmin != want {
			t.Fatalf("stored is_admin %v, want %v", stored.IsAdmin, want)
		}
	}
	if len(f.cache.invalidated) != 4 {
		t.Fatalf("expected cache invalidated on every change, got %v", f.cache.invalidated)
	}
}

func TestUserService_SetAdminStatus_NotFound(t *testing.T) {
	f := newUserFixture()

	if _, err := f.svc.SetAdminStatus(context.Background(), adminCaller, "ghost", true); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

// ---- Update ----

func TestUserService_Update_PartialAdminFlag(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()
	target := f.users.put(&domain.User{ID: "t1", Username: "target", Email: "t@example.com", IsActive: true})

	u, err := f.svc.Update(ctx, adminCaller, target.ID, ports.UpdateUserInput{IsAdmin: boolp(true)}, true)
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if !u.IsAdmin || u.Username != "target" || u.Email != "t@example.com" {
		t.Fatalf("unexpected user after partial update: %+v", u)
	}
	acts := f.pub.actions()
	if len(acts) != 2 || acts[1] != domain.ActionUserAdminChanged {
		t.Fatalf("expected update and admin change events, got %v", acts)
	}
}

func TestUserService_Update_FullRequiresUsername(t *testing.T) {
	f := newUserFixture()
	target := f.users.put(&domain.User{ID: "t1", Username: "target", IsActive: true})

	_, err := f.svc.Update(context.Background(), adminCaller, target.ID, ports.UpdateUserInput{Email: strp("a@b.co")}, false)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || len(ve.Fields["username"]) == 0 {
		t.Fatalf("expected username validation error, got %v", err)
	}
}

func TestUserService_Update_PasswordRehashed(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()
	created, _ := f.svc.Create(ctx, adminCaller, ports.CreateUserInput{Username: "erin", Password: "original-pass"})

	u, err := f.svc.Update(ctx, adminCaller, created.ID, ports.UpdateUserInput{Password: strp("replacement-pass")}, true)
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("replacement-pass")) != nil {
		t.Fatalf("password not replaced")
	}
}

func TestUserService_Update_InvalidEmail(t *testing.T) {
	f := newUserFixture()
	target := f.users.put(&domain.User{ID: "t1", Username: "target", IsActive: true})

	_, err := f.svc.Update(context.Background(), adminCaller, target.ID, ports.UpdateUserInput{Email: strp("nope")}, true)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || len(ve.Fields["email"]) == 0 {
		t.Fatalf("expected email validation error, got %v", err)
	}
}

// ---- Delete ----

func TestUserService_Delete_ClearsCustomerReferences(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()
	target := f.users.put(&domain.User{ID: "t1", Username: "target", IsActive: true})

	customers := NewCustomerService(f.customers, newStubBlobStore(), nil, 0, zerolog.Nop())
	c, err := customers.Create(ctx, target, ports.CreateCustomerInput{Name: "Kept", Surname: "Record"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	if err := f.svc.Delete(ctx, adminCaller, target.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	stored, err := f.customers.FindByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("customer should survive user deletion: %v", err)
	}
	if stored.CreatedBy != nil || stored.ModifiedBy != nil {
		t.Fatalf("expected audit references cleared, got %v / %v", stored.CreatedBy, stored.ModifiedBy)
	}
	if _, err := f.users.FindByID(ctx, target.ID); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user removed")
	}
}

func TestUserService_Delete_AbortsWhenReferencesCannotBeCleared(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()
	target := f.users.put(&domain.User{ID: "t1", Username: "target", IsActive: true})
	f.customers.clearErr = errors.New("timeout")

	if err := f.svc.Delete(ctx, adminCaller, target.ID); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := f.users.FindByID(ctx, target.ID); err != nil {
		t.Fatalf("user should not be deleted: %v", err)
	}
}
