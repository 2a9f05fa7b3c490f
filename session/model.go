package session

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRole is returned when a role string is outside the closed role set.
var ErrInvalidRole = errors.New("invalid role")

// Role selects which protected views a session may reach.
type Role string

const (
	// RoleParent is a guardian account.
	RoleParent Role = "parent"
	// RoleStaff is a childcare staff account.
	RoleStaff Role = "staff"
)

// Roles lists every valid role in a stable order.
var Roles = []Role{RoleParent, RoleStaff}

// ParseRole maps a string onto the closed role set.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleParent:
		return RoleParent, nil
	case RoleStaff:
		return RoleStaff, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether r is a member of the role set.
func (r Role) Valid() bool {
	return r == RoleParent || r == RoleStaff
}

// Profile holds the server-refreshable identity fields of a session.
type Profile struct {
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Dependent summarizes a child linked to the account.
type Dependent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BirthDate string `json:"birthDate,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Classroom string `json:"classroom,omitempty"`
}

// Session is the authenticated identity bound to this device.
//
// The bearer credential is deliberately not a field: it is persisted under its
// own key and only handed out through the Manager.
type Session struct {
	UserID     string      `json:"userId"`
	Role       Role        `json:"role"`
	Profile    Profile     `json:"profile"`
	Dependents []Dependent `json:"dependents"`
	IssuedAt   time.Time   `json:"issuedAt"`
}

// Validate checks the immutable identity fields.
func (s *Session) Validate() error {
	if s == nil {
		return errors.New("nil session")
	}
	if strings.TrimSpace(s.UserID) == "" {
		return errors.New("empty user id")
	}
	if !s.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// Clone returns a deep copy so callers can never alias Manager state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Dependents != nil {
		out.Dependents = make([]Dependent, len(s.Dependents))
		copy(out.Dependents, s.Dependents)
	}
	return &out
}

// ProfilePatch is a partial update. Nil fields are left unchanged; the user id
// is immutable and therefore not patchable.
type ProfilePatch struct {
	Role      *Role   `json:"role,omitempty"`
	Name      *string `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Role == nil && p.Name == nil && p.Email == nil && p.Phone == nil && p.AvatarURL == nil
}

// Apply merges p into a copy of s and returns the copy.
func (p ProfilePatch) Apply(s *Session) (*Session, error) {
	out := s.Clone()
	if out == nil {
		return nil, errors.New("nil session")
	}
	if p.Role != nil {
		if !p.Role.Valid() {
			return nil, ErrInvalidRole
		}
		out.Role = *p.Role
	}
	if p.Name != nil {
		out.Profile.Name = *p.Name
	}
	if p.Email != nil {
		out.Profile.Email = *p.Email
	}
	if p.Phone != nil {
		out.Profile.Phone = *p.Phone
	}
	if p.AvatarURL != nil {
		out.Profile.AvatarURL = *p.AvatarURL
	}
	return out, nil
}

// Redact shortens a credential for logs: a short prefix and the length.
func Redact(credential string) string {
	if credential == "" {
		return "<none>"
	}
	const keep = 4
	if len(credential) <= keep*2 {
		return "****"
	}
	return credential[:keep] + "…(" + strconv.Itoa(len(credential)) + ")"
}
