package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/academiahub/backend/core"
)

// Role is the closed set of account roles. Permissions are a pure function of
// the role (see rolePermissions); they are never persisted per user.
type Role string

const (
	RolePromoter Role = "promoter"
	RoleAdmin    Role = "admin" // platform admin; has no tenant
	RoleTeacher  Role = "teacher"
	RoleStudent  Role = "student"
	RoleParent   Role = "parent"
	RoleStaff    Role = "staff"
)

var AllRoles = []Role{RolePromoter, RoleAdmin, RoleTeacher, RoleStudent, RoleParent, RoleStaff}

func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Permission is a named capability granted by a role.
type Permission string

const (
	PermManageSchool       Permission = "school:manage"
	PermManageUsers        Permission = "users:manage"
	PermSubmitKYC          Permission = "kyc:submit"
	PermReviewKYC          Permission = "kyc:review"
	PermManageSubscription Permission = "subscription:manage"
	PermManagePlans        Permission = "plans:manage"
	PermManageExams        Permission = "exams:manage"
	PermManageGrades       Permission = "grades:manage"
	PermViewGrades         Permission = "grades:view"
	PermManageDocuments    Permission = "documents:manage"
	PermViewDashboard      Permission = "dashboard:view"
)

var rolePermissions = map[Role][]Permission{
	RolePromoter: {
		PermManageSchool, PermManageUsers, PermSubmitKYC, PermManageSubscription,
		PermManageExams, PermManageGrades, PermViewGrades, PermManageDocuments, PermViewDashboard,
	},
	RoleAdmin: {
		PermReviewKYC, PermManagePlans, PermViewDashboard,
	},
	RoleTeacher: {
		PermManageExams, PermManageGrades, PermViewGrades, PermManageDocuments, PermViewDashboard,
	},
	RoleStudent: {PermViewGrades, PermViewDashboard},
	RoleParent:  {PermViewGrades, PermViewDashboard},
	RoleStaff:   {PermManageDocuments, PermViewDashboard},
}

// Permissions returns the role's permission set.
func (r Role) Permissions() []Permission {
	perms := rolePermissions[r]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

func (r Role) HasPermission(p Permission) bool {
	for _, perm := range rolePermissions[r] {
		if perm == p {
			return true
		}
	}
	return false
}

func (r Role) HasAnyPermission(perms ...Permission) bool {
	for _, p := range perms {
		if r.HasPermission(p) {
			return true
		}
	}
	return false
}

func (r Role) HasAllPermissions(perms ...Permission) bool {
	for _, p := range perms {
		if !r.HasPermission(p) {
			return false
		}
	}
	return true
}

// Status is the lifecycle status of an account.
type Status string

const (
	StatusPending   Status = "pending" // created; first successful login activates
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

type User struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"school_id,omitempty"` // empty for platform admins
	Email        string    `json:"email"`               // globally unique
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         Role      `json:"role"`
	Status       Status    `json:"status"`
	KYCVerified  bool      `json:"kyc_verified"` // per-user flag, distinct from tenant KYC
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

func (u *User) IsPromoter() bool { return u.Role == RolePromoter }
func (u *User) IsAdmin() bool    { return u.Role == RoleAdmin }

// NewUser contains information needed to create a new User.
type NewUser struct {
	TenantID  string `json:"school_id"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Role      Role   `json:"role" validate:"required"`
	Password  string `json:"password" validate:"required,min=8"`
}

func (nu *NewUser) Validate(svc *Service) error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	if !nu.Role.Valid() {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "unknown role"})
	}
	return svc.checkUniqueness(nu.Email)
}
