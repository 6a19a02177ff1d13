package community

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleMember is a regular community member
	RoleMember UserRole = "member"
	// RoleAdmin is an administrator (i.e. can invite users)
	RoleAdmin UserRole = "admin"
)

// User is the user model. PasswordHash is empty for invited accounts that
// have not joined yet; Confirmed transitions false to true exactly once.
// TokenVersion is bumped every time a sensitive token (password reset,
// email change) is consumed, which invalidates any token of that class
// issued before the bump.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID         `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole          `bun:"role,notnull" json:"role,omitempty"`
	FirstName      string            `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string            `bun:"last_name,notnull" json:"last_name,omitempty"`
	Email          string            `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string            `bun:"password_hash,nullzero" json:"-"`
	Confirmed      bool              `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	TokenVersion   int               `bun:"token_version,notnull,default:0" json:"-"`
	ZIPCode        string            `bun:"zip_code" json:"zip_code,omitempty"`
	Bio            string            `bun:"bio" json:"bio,omitempty"`
	Birthday       *time.Time        `bun:"birthday,nullzero" json:"birthday,omitempty"`
	LoginAttempts  int               `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time        `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time        `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Tags           []*AffiliationTag `bun:"m2m:user_tags,join:User=Tag" json:"tags,omitempty"`
	CreatedAt      *time.Time        `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time        `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time        `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasPassword reports whether the account ever had a password set. Invited
// accounts stay password-less until the invite is accepted.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// FullName joins the user's names for display purposes
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// AffiliationTag is a community affiliation a user can attach to their profile
type AffiliationTag struct {
	bun.BaseModel `bun:"table:affiliation_tags,alias:tag"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string    `bun:"name,notnull,unique" json:"name,omitempty"`
}

// UserTag is the join model between users and affiliation tags
type UserTag struct {
	bun.BaseModel `bun:"table:user_tags,alias:ut"`
	UserID        uuid.UUID       `bun:"user_id,pk,type:uuid" json:"user_id,omitempty"`
	User          *User           `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	TagID         uuid.UUID       `bun:"tag_id,pk,type:uuid" json:"tag_id,omitempty"`
	Tag           *AffiliationTag `bun:"rel:belongs-to,join:tag_id=id" json:"tag,omitempty"`
}
