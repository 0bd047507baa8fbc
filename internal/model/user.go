package model

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Account roles
const (
	RoleRoot   = "root"
	RoleSub    = "sub"
	RoleClient = "client"
)

// User represents any principal in the directory: the root admin, a
// branch-scoped sub-admin, or a client created by a sub-admin.
type User struct {
	ID uint `json:"id" gorm:"primaryKey"`

	// Public identifier used for directory lookups
	UserID   string  `json:"user_id" gorm:"type:varchar(100);uniqueIndex;not null"`
	Username *string `json:"username,omitempty" gorm:"type:varchar(100);uniqueIndex"`
	Email    *string `json:"email,omitempty" gorm:"type:varchar(100);uniqueIndex"`
	Name     string  `json:"name" gorm:"type:varchar(200)"`
	Phone    *string `json:"phone,omitempty" gorm:"type:varchar(30);index"`

	PasswordHash string `json:"-" gorm:"type:varchar(255)"`
	Role         string `json:"role" gorm:"type:varchar(10);index;default:'sub'"`
	IsActive     bool   `json:"is_active" gorm:"index;default:true"`

	// Every issued access token embeds the version at issuance time;
	// incrementing it invalidates all outstanding tokens at once.
	TokenVersion int `json:"-" gorm:"default:0"`

	// Branch reference plus a denormalized snapshot taken at creation time.
	// The snapshot survives later branch edits.
	BranchID     *uint  `json:"branch_id,omitempty" gorm:"index"`
	BranchName   string `json:"branch_name,omitempty" gorm:"type:varchar(100)"`
	BranchWaLink string `json:"branch_wa_link,omitempty" gorm:"type:varchar(255)"`

	// For clients: the sub-admin that created this client
	ParentSubAdmin *uint `json:"parent_sub_admin,omitempty" gorm:"index"`
	CreatedBy      *uint `json:"created_by,omitempty"`

	MustChangePassword bool       `json:"must_change_password" gorm:"default:false"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	LastLogoutAt       *time.Time `json:"-"`

	// Password reset fields; the token is stored as a sha256 hex digest
	ResetPasswordToken   string     `json:"-" gorm:"type:varchar(64);index"`
	ResetPasswordExpires *time.Time `json:"-"`

	Branch *Branch `json:"branch,omitempty" gorm:"foreignKey:BranchID"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

var (
	ErrMissingBranch = errors.New("sub-admin or client requires a branch reference or snapshot")
	ErrMissingParent = errors.New("client requires a parent sub-admin")
	ErrParentNotSet  = errors.New("only clients may carry a parent sub-admin")
)

// NormalizeIdentifier lowercases and trims a username or email
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone strips all whitespace from a phone number. Comparison of
// phone numbers is exact string equality after this normalization.
func NormalizePhone(phone string) string {
	return strings.Join(strings.Fields(phone), "")
}

// Validate enforces the role-specific shape of an account before it is saved
func (u *User) Validate() error {
	switch u.Role {
	case RoleClient:
		if u.ParentSubAdmin == nil {
			return ErrMissingParent
		}
		if u.BranchID == nil && u.BranchWaLink == "" {
			return ErrMissingBranch
		}
	case RoleSub:
		if u.ParentSubAdmin != nil {
			return ErrParentNotSet
		}
		if u.BranchID == nil && u.BranchWaLink == "" {
			return ErrMissingBranch
		}
	default:
		if u.ParentSubAdmin != nil {
			return ErrParentNotSet
		}
	}
	return nil
}

// NewSubAdmin builds a sub-admin account with a branch snapshot
func NewSubAdmin(userID, username, passwordHash string, branch *Branch, waLink string, createdBy uint) (*User, error) {
	normalized := NormalizeIdentifier(username)
	u := &User{
		UserID:             userID,
		Username:           &normalized,
		PasswordHash:       passwordHash,
		Role:               RoleSub,
		IsActive:           true,
		CreatedBy:          &createdBy,
		MustChangePassword: true,
	}
	if branch != nil {
		u.BranchID = &branch.ID
		u.BranchName = branch.BranchName
		u.BranchWaLink = branch.WaLink
	}
	if waLink != "" {
		// A direct link overrides the branch snapshot link
		u.BranchWaLink = waLink
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// NewClient builds a client account inheriting the creating sub-admin's branch
func NewClient(userID, name string, phone string, parent *User) (*User, error) {
	u := &User{
		UserID:         userID,
		Name:           name,
		Role:           RoleClient,
		IsActive:       true,
		ParentSubAdmin: &parent.ID,
		CreatedBy:      &parent.ID,
		BranchID:       parent.BranchID,
		BranchName:     parent.BranchName,
		BranchWaLink:   parent.BranchWaLink,
	}
	if phone != "" {
		normalized := NormalizePhone(phone)
		u.Phone = &normalized
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}
