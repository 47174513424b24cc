package user

import "testing"

func TestMaxRolePriority(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  int
	}{
		{name: "no roles", want: 0},
		{name: "unknown role", roles: []string{"lol"}, want: 0},
		{name: "student", roles: StudentRoles, want: 1},
		{name: "instructor & student", roles: []string{RoleStudent, RoleInstructor}, want: 11},
		{name: "all roles", roles: AllRoles, want: 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxRolePriority(tt.roles); got != tt.want {
				t.Errorf("MaxRolePriority() = %d, want %d", got, tt.want)
			}
		})
	}

	if len(Roles) != len(AllRoles) {
		t.Errorf("len(Roles) = %d, want %d", len(Roles), len(AllRoles))
	}
}

func TestUser_InRoleGroup(t *testing.T) {
	owner := User{Roles: []string{RoleAdminOwner}}
	if !owner.IsAdmin() || owner.IsInstructor() || !owner.IsStaff() {
		t.Errorf("owner: IsAdmin() = %v, IsInstructor() = %v, IsStaff() = %v", owner.IsAdmin(), owner.IsInstructor(), owner.IsStaff())
	}
	student := User{Roles: StudentRoles}
	if !student.IsStudent() || student.IsStaff() {
		t.Errorf("student: IsStudent() = %v, IsStaff() = %v", student.IsStudent(), student.IsStaff())
	}
}
