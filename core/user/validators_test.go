package user_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academy/core"
	"github.com/trezcool/academy/core/user"
	"github.com/trezcool/academy/storage/database/inmem"
	"github.com/trezcool/academy/tests"
)

func newValidator(t *testing.T) *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(testutil.Logger{T: t})
	return validate
}

func TestNewUser_Validate(t *testing.T) {
	validate := newValidator(t)
	db := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	svc := user.NewService(repo, new(mailRecorder), &core.Config{SecretKey: "secret"})
	_ = testutil.CreateUser(t, repo, "Taken", "taken", "taken@test.cd", "", nil, true)

	newUser := func(pwd string) user.NewUser {
		return user.NewUser{
			Name:            "Test User",
			Username:        "testuser",
			Email:           "testuser@test.cd",
			Password:        pwd,
			PasswordConfirm: pwd,
		}
	}

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
		wantTag   string
	}{
		{name: "valid", nu: newUser("Zx9#kLm2qP")},
		{name: "too short", nu: newUser("Ab1!"), wantField: "password", wantTag: "pwdminlen"},
		{name: "whitespace", nu: newUser("Abcd 123!"), wantField: "password", wantTag: "pwdnospace"},
		{name: "all numeric", nu: newUser("12345678"), wantField: "password", wantTag: "pwdnotallnum"},
		{name: "not complex", nu: newUser("abcdefgh1"), wantField: "password", wantTag: "pwdcplx"},
		{name: "similar to username", nu: newUser("Testuser1!"), wantField: "password", wantTag: "pwdtoosim"},
		{name: "common", nu: newUser("P@ssw0rd1"), wantField: "password", wantTag: "pwdnocommon"},
		{
			name: "confirmation mismatch",
			nu: user.NewUser{
				Name: "Test", Username: "test1", Password: "Zx9#kLm2qP", PasswordConfirm: "Zx9#kLm2qp",
			},
			wantField: "password_confirm", wantTag: "eqfield",
		},
		{
			name:      "no username nor email",
			nu:        user.NewUser{Name: "Test", Password: "Zx9#kLm2qP", PasswordConfirm: "Zx9#kLm2qP"},
			wantField: "username", wantTag: "username_or_email",
		},
		{
			name: "invalid role",
			nu: user.NewUser{
				Name: "Test", Username: "test2", Password: "Zx9#kLm2qP", PasswordConfirm: "Zx9#kLm2qP", Roles: []string{"king:"},
			},
			wantField: "roles", wantTag: "allroles",
		},
		{
			name: "invalid username",
			nu: user.NewUser{
				Name: "Test", Username: "te-st", Password: "Zx9#kLm2qP", PasswordConfirm: "Zx9#kLm2qP",
			},
			wantField: "username", wantTag: "alphanum_",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(context.Background(), validate, svc)
			if tt.wantTag == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v; want nil", err)
				}
				return
			}

			vErrs, ok := err.(validator.ValidationErrors)
			if !ok {
				t.Fatalf("Validate() error = %v; want validator.ValidationErrors", err)
			}
			for _, fe := range vErrs {
				if fe.Field() == tt.wantField && fe.Tag() == tt.wantTag {
					return
				}
			}
			t.Errorf("Validate() errors = %v; want %s on %s", vErrs, tt.wantTag, tt.wantField)
		})
	}

	t.Run("username taken", func(t *testing.T) {
		nu := newUser("Zx9#kLm2qP")
		nu.Username = " Taken "
		err := nu.Validate(context.Background(), validate, svc)
		vErr, ok := err.(*core.ValidationError)
		if !ok {
			t.Fatalf("Validate() error = %v; want *core.ValidationError", err)
		}
		if vErr.Fields[0].Field != "username" {
			t.Errorf("Validate() field = %s; want username", vErr.Fields[0].Field)
		}
	})
}

func TestUpdateUser_Validate(t *testing.T) {
	validate := newValidator(t)
	db := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	svc := user.NewService(repo, new(mailRecorder), &core.Config{SecretKey: "secret"})
	orig := testutil.CreateUser(t, repo, "Orig", "orig", "orig@test.cd", "", nil, true)
	_ = testutil.CreateUser(t, repo, "Other", "other", "other@test.cd", "", nil, true)

	uu := user.UpdateUser{Name: "  "}
	if err := uu.Validate(context.Background(), orig, validate, svc); err != nil {
		t.Fatalf("Validate() error = %v; want nil", err)
	}
	if uu.Name != orig.Name || uu.Username != orig.Username || uu.Email != orig.Email {
		t.Errorf("Validate() = %+v; want original values", uu)
	}

	uu = user.UpdateUser{Email: "OTHER@test.cd"}
	if err := uu.Validate(context.Background(), orig, validate, svc); err == nil {
		t.Error("Validate() error = nil; want email exists")
	}

	uu = user.UpdateUser{Password: "Zx9#kLm2qP"}
	if err := uu.Validate(context.Background(), orig, validate, svc); err == nil {
		t.Error("Validate() error = nil; want password_confirm required")
	}
}
