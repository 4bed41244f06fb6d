package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleValid(t *testing.T) {
	for _, r := range AllRoles {
		assert.True(t, r.Valid(), "role %q", r)
	}
	assert.False(t, Role("").Valid())
	assert.False(t, Role("superuser").Valid())
}

func TestRolePermissions(t *testing.T) {
	tests := []struct {
		role    Role
		granted []Permission
		denied  []Permission
	}{
		{
			role:    RolePromoter,
			granted: []Permission{PermManageSchool, PermSubmitKYC, PermManageSubscription},
			denied:  []Permission{PermReviewKYC, PermManagePlans},
		},
		{
			role:    RoleAdmin,
			granted: []Permission{PermReviewKYC, PermManagePlans},
			denied:  []Permission{PermManageSchool, PermSubmitKYC},
		},
		{
			role:    RoleTeacher,
			granted: []Permission{PermManageGrades, PermViewGrades},
			denied:  []Permission{PermManageSchool, PermReviewKYC},
		},
		{
			role:    RoleStudent,
			granted: []Permission{PermViewGrades, PermViewDashboard},
			denied:  []Permission{PermManageGrades},
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			for _, p := range tt.granted {
				assert.True(t, tt.role.HasPermission(p), "%s should have %s", tt.role, p)
			}
			for _, p := range tt.denied {
				assert.False(t, tt.role.HasPermission(p), "%s should not have %s", tt.role, p)
			}
			assert.ElementsMatch(t, rolePermissions[tt.role], tt.role.Permissions())
		})
	}

	assert.True(t, RoleAdmin.HasAnyPermission(PermManageSchool, PermReviewKYC))
	assert.False(t, RoleStudent.HasAnyPermission(PermManageSchool, PermReviewKYC))
	assert.True(t, RolePromoter.HasAllPermissions(PermManageSchool, PermManageUsers))
	assert.False(t, RolePromoter.HasAllPermissions(PermManageSchool, PermReviewKYC))
}

func TestUserPassword(t *testing.T) {
	usr := User{}
	assert.NoError(t, usr.SetPassword("s3cr3t-pass"))
	assert.NotEmpty(t, usr.PasswordHash)

	assert.NoError(t, usr.CheckPassword("s3cr3t-pass"))
	assert.Error(t, usr.CheckPassword("wrong-pass"))
}
