package tests

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/academy/apps/api/echo"
	"github.com/trezcool/academy/core/user"
	"github.com/trezcool/academy/services/email"
	"github.com/trezcool/academy/tests"
)

const validPwd = "LolC@t123"

func Test_userApi_login(t *testing.T) {
	db.Reset()

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", validPwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.cd", validPwd, []string{user.RoleStudent}, false) // 😂

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoapi.LoginRequest{Username: reqMsg, Password: reqMsg}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "lol", Password: validPwd}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "hero", Password: "lol"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive user", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ndog", Password: validPwd}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "username", wantCode: http.StatusOK, body: marchallObj(t, echoapi.LoginRequest{Username: "HERO ", Password: validPwd})},
		{name: "email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.LoginRequest{Username: student.Email, Password: validPwd})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp echoapi.LoginResponse
			rec := serve(t, http.MethodPost, "/api/users/login", "", tt.body, &resp)
			checkCodeAndData(t, tt, rec)
			if tt.wantCode == http.StatusOK {
				assert.NotEmpty(t, resp.Token)
			}
		})
	}

	usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: student.ID})
	require.NoError(t, err)
	assert.False(t, usr.LastLogin.IsZero(), "last login is set")
}

func Test_userApi_query(t *testing.T) {
	db.Reset()

	path := func(search, ordering string, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/api/users?" + v.Encode()
	}

	base := time.Now().Add(-time.Hour)
	at := func(i int) time.Time { return base.Add(time.Duration(i) * time.Minute) }

	usr1 := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "", nil, true, at(0))
	usr2 := testutil.CreateUser(t, usrRepo, "King", "user02", "king@test.cd", "", nil, true, at(1))
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "user3@test.cd", "", []string{user.RoleStudent}, true, at(2))
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true, at(3))
	owner := testutil.CreateUser(t, usrRepo, "Owner", "owner", "owner@test.cd", "", []string{user.RoleAdminOwner}, true, at(4))
	instructor := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleInstructor}, true, at(5))

	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "Auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/api/users", token: getToken(t, instructor), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Get all", path: "/api/users", token: adminToken,
			wantData: marchallList(t, usr1, usr2, student, admin, owner, instructor),
		},
		// filtering
		{name: "search (unknown)", path: path("lol", ""), token: adminToken, wantData: marchallList(t)},
		{name: "search=USE", path: path("USE", ""), token: adminToken, wantData: marchallList(t, usr1, usr2, student)},
		{name: "role (unknown)", path: path("", "", "lol"), token: adminToken, wantData: marchallList(t)},
		{name: "role=admin:", path: path("", "", user.RoleAdmin), token: adminToken, wantData: marchallList(t, admin, owner)},
		{
			name: "role=instructor:,student:", path: path("", "", user.RoleInstructor, user.RoleStudent),
			token: adminToken, wantData: marchallList(t, student, instructor),
		},
		// ordering
		{
			name: "order by -created_at", path: path("", "-created_at"), token: adminToken,
			wantData: marchallList(t, instructor, owner, admin, student, usr2, usr1),
		},
		{
			name: "order by name", path: path("", "name"), token: adminToken,
			wantData: marchallList(t, admin, student, usr2, owner, instructor, usr1),
		},
		{
			name: "unknown ordering field is ignored", path: path("", "password_hash"), token: adminToken,
			wantData: marchallList(t, usr1, usr2, student, admin, owner, instructor),
		},
		// filtering & ordering
		{
			name: "filtering & ordering", path: path("", "-name", user.RoleInstructor, user.RoleStudent), token: adminToken,
			wantData: marchallList(t, instructor, student),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_create(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	adminToken := getToken(t, admin)

	newUser := func(uname, email string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name: "New", Username: uname, Email: email, Password: validPwd, PasswordConfirm: validPwd, Roles: roles,
		})
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "username taken", token: adminToken, wantCode: http.StatusBadRequest, body: newUser("hero", ""),
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{
			name: "role above own", token: adminToken, wantCode: http.StatusBadRequest, body: newUser("newbie", "", user.RoleAdminOwner),
			wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{name: "created", token: adminToken, wantCode: http.StatusCreated, body: newUser("newbie", "newbie@test.cd", user.RoleInstructor)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var usr user.User
			rec := serve(t, http.MethodPost, "/api/users/register", tt.token, tt.body, &usr)
			checkCodeAndData(t, tt, rec)
			if tt.wantCode == http.StatusCreated {
				assert.Equal(t, "newbie", usr.Username)
				assert.Equal(t, []string{user.RoleInstructor}, usr.Roles)
				assert.True(t, usr.IsActive)
			}
		})
	}
}

func Test_userApi_detail(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)

	adminToken, studentToken := getToken(t, admin), getToken(t, student)
	detail := func(usr user.User) string { return "/api/users/" + usr.ID }

	t.Run("retrieve", func(t *testing.T) {
		rec := serve(t, http.MethodGet, detail(student), studentToken, nil)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, student)}, rec)

		rec = serve(t, http.MethodGet, detail(other), studentToken, nil)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)

		rec = serve(t, http.MethodGet, detail(other), adminToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("update", func(t *testing.T) {
		rec := serve(t, http.MethodPut, detail(student), studentToken, marchallObj(t, map[string]interface{}{"roles": []string{user.RoleAdmin}}))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)

		var usr user.User
		rec = serve(t, http.MethodPut, detail(student), studentToken, marchallObj(t, map[string]string{"name": "Super Hero"}), &usr)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Super Hero", usr.Name)
		assert.Equal(t, student.Username, usr.Username)

		rec = serve(t, http.MethodPut, detail(other), adminToken, marchallObj(t, map[string]interface{}{"is_active": false}), &usr)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, usr.IsActive)
	})

	t.Run("destroy", func(t *testing.T) {
		rec := serve(t, http.MethodDelete, detail(admin), adminToken, nil)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)

		rec = serve(t, http.MethodDelete, detail(student), studentToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = serve(t, http.MethodDelete, detail(student), adminToken, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		_, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: student.ID})
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("destroy multiple", func(t *testing.T) {
		rec := serve(t, http.MethodDelete, "/api/users?id="+other.ID+"&id="+admin.ID, adminToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = serve(t, http.MethodDelete, "/api/users?id="+other.ID, adminToken, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		_, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: other.ID})
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("roles", func(t *testing.T) {
		rec := serve(t, http.MethodGet, "/api/users/roles", adminToken, nil)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)}, rec)
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	db.Reset()

	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false) // 😂
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "user3@test.cd", "", []string{user.RoleStudent}, true)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   student.ID,
			Audience:  conf.AppName,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		IsStudent:    student.IsStudent(),
		Roles:        student.Roles,
	}
	unrefreshableToken, err := echoapi.GenerateToken(conf, unrefreshableClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: getToken(t, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// cannot guess new token.. just check that it's not empty
			var resp echoapi.LoginResponse
			rec := serve(t, http.MethodPost, "/api/users/token-refresh", tt.token, tt.body, &resp)
			checkCodeAndData(t, tt, rec)
			if tt.wantCode == http.StatusOK {
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userApi_passwordReset(t *testing.T) {
	db.Reset()

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "user3@test.cd", validPwd, []string{user.RoleStudent}, true)
	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})
	pathRegex := regexp.MustCompile("/password-reset/.+/.+")

	t.Run("request", func(t *testing.T) {
		tests := []httpTest{
			{name: "required fields", wantCode: http.StatusBadRequest, wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "this field is required"})},
			{
				name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
				wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "email must be a valid email address"}),
			},
			{
				name: "unknown email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.com"}),
				wantData: successData, extra: false,
			},
			{
				name: "known email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: student.Email}),
				wantData: successData, extra: true,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				emailsvc.ResetSentMessages()

				req, rec := newRequest(http.MethodPost, "/api/users/password-reset", tt.body)
				app.ServeHTTP(rec, req)
				checkCodeAndData(t, tt, rec)

				if sent, ok := tt.extra.(bool); ok {
					msgs := emailsvc.SentMessages()
					if !sent {
						assert.Empty(t, msgs)
						return
					}
					require.Len(t, msgs, 1)
					assert.Equal(t, student.Email, msgs[0].To[0].Address)
					assert.Contains(t, msgs[0].TextContent, student.Name)
					assert.Contains(t, msgs[0].HTMLContent, student.Name)
					assert.Regexp(t, pathRegex, msgs[0].TextContent)
				}
			})
		}
	})

	t.Run("confirm", func(t *testing.T) {
		emailsvc.ResetSentMessages()
		req, rec := newRequest(http.MethodPost, "/api/users/password-reset", marchallObj(t, echoapi.PasswordResetRequest{Email: student.Email}))
		app.ServeHTTP(rec, req)
		msgs := emailsvc.SentMessages()
		require.Len(t, msgs, 1)
		data := msgs[0].TemplateData.(map[string]string)

		newPwd := "N3w-P@ss!"
		tests := []httpTest{
			{
				name: "bad token", wantCode: http.StatusBadRequest,
				body:     marchallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig-sig", UID: data["UID"], Password: newPwd, PasswordConfirm: newPwd}),
				wantData: marchallObj(t, map[string]string{"token": "invalid token"}),
			},
			{
				name: "unknown user", wantCode: http.StatusBadRequest,
				body:     marchallObj(t, user.ResetUserPassword{Token: data["Token"], UID: "bG9s", Password: newPwd, PasswordConfirm: newPwd}),
				wantData: marchallObj(t, map[string]string{"token": "invalid token"}),
			},
			{
				name: "valid token", wantCode: http.StatusOK,
				body:     marchallObj(t, user.ResetUserPassword{Token: data["Token"], UID: data["UID"], Password: newPwd, PasswordConfirm: newPwd}),
				wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
			},
			{
				name: "token used", wantCode: http.StatusBadRequest,
				body:     marchallObj(t, user.ResetUserPassword{Token: data["Token"], UID: data["UID"], Password: newPwd, PasswordConfirm: newPwd}),
				wantData: marchallObj(t, map[string]string{"token": "invalid token"}),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newRequest(http.MethodPost, "/api/users/password-reset-confirm", tt.body)
				app.ServeHTTP(rec, req)
				checkCodeAndData(t, tt, rec)
			})
		}

		refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: student.ID})
		require.NoError(t, err)
		assert.False(t, bytes.Equal(refreshed.PasswordHash, student.PasswordHash), "password updated")
		assert.NoError(t, refreshed.CheckPassword(newPwd))
	})
}
