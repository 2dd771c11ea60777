package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tagmate/tagmate-backend/internal/data/repos/testutil"
	userrepo "github.com/tagmate/tagmate-backend/internal/data/repos/users"
	"github.com/tagmate/tagmate-backend/internal/pkg/apperr"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
)

func newAuthService(t *testing.T, tx *gorm.DB) AuthService {
	t.Helper()
	log := testutil.Logger(t)
	return NewAuthService(tx, log, userrepo.NewUserRepo(tx, log), "test-secret", time.Hour)
}

func TestAuthRegisterLoginRoundTrip(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	svc := newAuthService(t, tx)
	dbc := dbctx.Context{Ctx: context.Background()}

	user, token, err := svc.Register(dbc, "Ada", "Ada@Example.com", "longenough")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.Password == "longenough" {
		t.Fatal("password stored in plaintext")
	}

	userID, email, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if userID != user.ID || email != user.Email {
		t.Fatalf("token claims = (%s, %s), want (%s, %s)", userID, email, user.ID, user.Email)
	}

	if _, _, err := svc.Login(dbc, "ada@example.com", "longenough"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, _, err := svc.Login(dbc, "ada@example.com", "wrongpassword"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("bad password login = %v, want ErrUnauthorized", err)
	}
	if _, _, err := svc.Login(dbc, "nobody@example.com", "longenough"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("unknown user login = %v, want ErrUnauthorized", err)
	}
}

func TestAuthRegisterValidation(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	svc := newAuthService(t, tx)
	dbc := dbctx.Context{Ctx: context.Background()}

	if _, _, err := svc.Register(dbc, "Ada", "ada2@example.com", "short"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("short password = %v, want ErrInvalidArgument", err)
	}

	if _, _, err := svc.Register(dbc, "Ada", "dup@example.com", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Register(dbc, "Ada Again", "dup@example.com", "longenough"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("duplicate email = %v, want ErrInvalidArgument", err)
	}
}

func TestAuthParseTokenRejectsGarbage(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	svc := newAuthService(t, tx)

	if _, _, err := svc.ParseToken("not-a-token"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("garbage token = %v, want ErrUnauthorized", err)
	}
}
