package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/academy/core"
)

// Roles. The part before the colon names the role group.
const (
	RoleAdmin      = "admin:"
	RoleAdminOwner = "admin:owner"
	RoleInstructor = "instructor:"
	RoleStudent    = "student:"
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// roleRanks lists the roles from the least to the most privileged.
// Students rank 1-10, instructors 11-20 & admins 21-30.
var roleRanks = []struct {
	role Role
	rank int
}{
	{Role{Name: "Student", Value: RoleStudent}, 1},
	{Role{Name: "Instructor", Value: RoleInstructor}, 11},
	{Role{Name: "Admin", Value: RoleAdmin}, 21},
	{Role{Name: "Admin Owner", Value: RoleAdminOwner}, 30},
}

var (
	AdminRoles      = []string{RoleAdmin, RoleAdminOwner}
	InstructorRoles = []string{RoleInstructor}
	StudentRoles    = []string{RoleStudent}
	AllRoles        = append(append(append([]string{}, AdminRoles...), InstructorRoles...), StudentRoles...)

	Roles = rankedRoles()
)

func rankedRoles() []Role {
	roles := make([]Role, 0, len(roleRanks))
	for _, rr := range roleRanks {
		roles = append(roles, rr.role)
	}
	return roles
}

// RolePriority returns the rank of role, 0 when it is unknown.
func RolePriority(role string) int {
	for _, rr := range roleRanks {
		if rr.role.Value == role {
			return rr.rank
		}
	}
	return 0
}

func MaxRolePriority(roles []string) int {
	var top int
	for _, role := range roles {
		if rank := RolePriority(role); rank > top {
			top = rank
		}
	}
	return top
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// InRoleGroup reports whether one of the user roles starts with group, e.g. "admin:".
func (u *User) InRoleGroup(group string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, group) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool      { return u.InRoleGroup(RoleAdmin) }
func (u *User) IsInstructor() bool { return u.InRoleGroup(RoleInstructor) }
func (u *User) IsStudent() bool    { return u.InRoleGroup(RoleStudent) }

// IsStaff reports whether the user may author courses & bypass enrollments.
func (u *User) IsStaff() bool {
	return u.IsAdmin() || u.IsInstructor()
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

// Validate cleans uu, keeping the original values for the blank fields.
func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	uu.Name = cleanOr(uu.Name, origUsr.Name, false)
	uu.Username = cleanOr(uu.Username, origUsr.Username, true)
	uu.Email = cleanOr(uu.Email, origUsr.Email, true)

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

func cleanOr(s, orig string, lower bool) string {
	if s = core.CleanString(s, lower); s == "" {
		return orig
	}
	return s
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single User; the first non-empty field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}
