package community

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionObject is the concrete session decoded from a session token.
type SessionObject struct {
	UserID    string         `json:"user_id,omitempty"`
	Email     string         `json:"email,omitempty"`
	Confirmed bool           `json:"confirmed,omitempty"`
	Issuer    string         `json:"issuer,omitempty"`
	IssuedAt  *time.Time     `json:"issued_at,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetEmail() string {
	return s.Email
}

func (s *SessionObject) IsConfirmed() bool {
	return s.Confirmed
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetData() map[string]any {
	return s.Data
}

// Role reads the role claim stashed in the session data.
func (s *SessionObject) Role() UserRole {
	if s.Data != nil {
		if roleData, exists := s.Data["role"]; exists {
			if roleStr, ok := roleData.(string); ok {
				return UserRole(roleStr)
			}
		}
	}
	return RoleMember
}

// TODO: enable only in development!
func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s email=%s confirmed=%t iss=%s iat=%s data=%v",
		s.UserID,
		s.Email,
		s.Confirmed,
		s.Issuer,
		issuedAt,
		s.Data,
	)
}

// sessionFromClaims builds a SessionObject out of decoded session token
// claims.
func sessionFromClaims(claims *ActionClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToMapClaims
	}

	data := make(map[string]any)
	if claims.Role != "" {
		data["role"] = claims.Role
	}

	var issuedAt *time.Time
	if claims.IssuedAt != nil {
		t := claims.IssuedAt.Time
		issuedAt = &t
	}

	return &SessionObject{
		UserID:    claims.Subject,
		Email:     claims.TargetEmail,
		Confirmed: claims.Confirmed,
		Issuer:    claims.Issuer,
		IssuedAt:  issuedAt,
		Data:      data,
	}, nil
}
