package user_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academy/core"
	"github.com/trezcool/academy/core/user"
	"github.com/trezcool/academy/storage/database/inmem"
	"github.com/trezcool/academy/tests"
)

type mailRecorder struct {
	mu       sync.Mutex
	messages []*core.EmailMessage
}

func (r *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	r.mu.Lock()
	r.messages = append(r.messages, messages...)
	r.mu.Unlock()
}

func newService(t *testing.T) (user.Service, user.Repository, *mailRecorder) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	mails := new(mailRecorder)
	conf := &core.Config{SecretKey: "secret", PasswordResetTimeoutDelta: 24 * time.Hour}
	return user.NewService(repo, mails, conf), repo, mails
}

func TestService_Create(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	usr, err := svc.Create(ctx, user.NewUser{
		Name:     "Ada",
		Username: "ada",
		Email:    "ada@test.cd",
		Password: "Zx9#kLm2qP",
		Roles:    []string{user.RoleInstructor},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.IsActive)
	assert.True(t, usr.IsInstructor())
	assert.NoError(t, usr.CheckPassword("Zx9#kLm2qP"))

	got, err := svc.GetByUsernameOrEmail(ctx, " ADA@test.cd")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = svc.GetByID(ctx, "nope")
	assert.Equal(t, user.ErrNotFound, err)
}

func TestService_Query(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()
	now := time.Now()

	ann := testutil.CreateUser(t, repo, "Ann", "ann", "ann@test.cd", "", []string{user.RoleAdmin}, true, now.Add(-2*time.Hour))
	bob := testutil.CreateUser(t, repo, "Bob", "bob", "bob@test.cd", "", []string{user.RoleStudent}, false, now.Add(-1*time.Hour))
	cat := testutil.CreateUser(t, repo, "Cat", "cat", "cat@test.cd", "", []string{user.RoleAdminOwner}, true, now)
	bPtr := func(b bool) *bool { return &b }

	tests := []struct {
		name     string
		filter   *user.QueryFilter
		ordering []core.DBOrdering
		want     []user.User
	}{
		{"all", nil, nil, []user.User{ann, bob, cat}},
		{"ordering", nil, []core.DBOrdering{{Field: "name", Ascending: false}}, []user.User{cat, bob, ann}},
		{"unknown ordering ignored", nil, []core.DBOrdering{{Field: "password_hash"}}, []user.User{ann, bob, cat}},
		{"search", &user.QueryFilter{Search: "BO"}, nil, []user.User{bob}},
		{"role prefix", &user.QueryFilter{Roles: []string{user.RoleAdmin}}, nil, []user.User{ann, cat}},
		{"inactive", &user.QueryFilter{IsActive: bPtr(false)}, nil, []user.User{bob}},
		{"created from", &user.QueryFilter{CreatedFrom: now.Add(-90 * time.Minute)}, nil, []user.User{bob, cat}},
		{"created to", &user.QueryFilter{CreatedTo: now.Add(-90 * time.Minute)}, nil, []user.User{ann}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Query(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_Update(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Ann", "ann", "ann@test.cd", "Zx9#kLm2qP", []string{user.RoleStudent}, true)

	inactive := false
	updated, err := svc.Update(ctx, usr, user.UpdateUser{
		Name:     "Anne",
		Username: usr.Username,
		Email:    usr.Email,
		IsActive: &inactive,
		Password: "Qw3$rTy7uI",
	})
	require.NoError(t, err)
	assert.Equal(t, "Anne", updated.Name)
	assert.False(t, updated.IsActive)
	assert.Equal(t, []string{user.RoleStudent}, updated.Roles)
	assert.NoError(t, updated.CheckPassword("Qw3$rTy7uI"))

	updated, err = svc.SetLastLogin(ctx, updated)
	require.NoError(t, err)
	assert.False(t, updated.LastLogin.IsZero())

	require.NoError(t, svc.Delete(ctx, usr.ID))
	_, err = svc.GetByID(ctx, usr.ID)
	assert.Equal(t, user.ErrNotFound, err)
}

func TestService_PasswordReset(t *testing.T) {
	svc, repo, mails := newService(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Ann", "ann", "ann@test.cd", "Zx9#kLm2qP", nil, true)
	_ = testutil.CreateUser(t, repo, "Bob", "bob", "bob@test.cd", "Zx9#kLm2qP", nil, false)

	assert.Equal(t, user.ErrNotFound, svc.RequestPasswordReset(ctx, "nobody@test.cd"))
	assert.Equal(t, user.ErrNotFound, svc.RequestPasswordReset(ctx, "bob@test.cd"))
	assert.Empty(t, mails.messages)

	require.NoError(t, svc.RequestPasswordReset(ctx, "ANN@test.cd"))
	require.Len(t, mails.messages, 1)
	msg := mails.messages[0]
	assert.Equal(t, "password_reset", msg.TemplateName)
	assert.Equal(t, "ann@test.cd", msg.To[0].Address)
	data := msg.TemplateData.(map[string]string)
	assert.Equal(t, user.EncodeUID(usr), data["UID"])

	err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: data["UID"], Token: "bad-token", Password: "Qw3$rTy7uI"})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "token", vErr.Fields[0].Field)

	err = svc.ResetPassword(ctx, user.ResetUserPassword{UID: "!!", Token: data["Token"], Password: "Qw3$rTy7uI"})
	require.ErrorAs(t, err, &vErr)

	require.NoError(t, svc.ResetPassword(ctx, user.ResetUserPassword{UID: data["UID"], Token: data["Token"], Password: "Qw3$rTy7uI"}))
	usr, err = svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("Qw3$rTy7uI"))

	// the token is single use: the password hash changed
	err = svc.ResetPassword(ctx, user.ResetUserPassword{UID: data["UID"], Token: data["Token"], Password: "Zx9#kLm2qP"})
	assert.Error(t, err)
}
