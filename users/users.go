package users

import (
	"time"

	"github.com/sigea-app/sigea/auth"
)

// UserType is the institutional classification stored on a profile row
type UserType string

const (
	UserTypeStudent           UserType = "aluno"              // Enrolled student
	UserTypeStaff             UserType = "servidor"           // Institutional staff member
	UserTypeExternalCommunity UserType = "comunidade_externa" // Member of the external community
	UserTypeManager           UserType = "gestor"             // Manager, approves affiliations and reviews reports
	UserTypeAdmin             UserType = "admin"              // System administrator
)

// Valid reports whether t is one of the closed set of user types.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeStudent, UserTypeStaff, UserTypeExternalCommunity, UserTypeManager, UserTypeAdmin:
		return true
	}
	return false
}

// Profile is the access classification the rest of the application uses
type Profile string

const (
	ProfileExternalCommunity Profile = "comunidade_externa"
	ProfileManager           Profile = "gestor"
	ProfileAdmin             Profile = "admin"
)

// UserProfile is the application owned record keyed 1:1 by the auth identity id.
// It is created by the registration flow and only read by the session layer.
type UserProfile struct {
	ID                 string    `json:"id"`
	FullName           string    `json:"full_name"`
	AvatarURL          string    `json:"avatar_url,omitempty"`
	UserType           UserType  `json:"user_type,omitempty"`
	Institution        string    `json:"institution,omitempty"`
	RegistrationNumber string    `json:"registration_number,omitempty"`
	UpdatedAt          time.Time `json:"updated_at,omitempty"`
}

// ProfileUpdate holds the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	FullName           *string `json:"full_name,omitempty"`
	AvatarURL          *string `json:"avatar_url,omitempty"`
	Institution        *string `json:"institution,omitempty"`
	RegistrationNumber *string `json:"registration_number,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.FullName == nil && u.AvatarURL == nil && u.Institution == nil && u.RegistrationNumber == nil
}

// Apply copies the set fields of u onto p.
func (u ProfileUpdate) Apply(p *UserProfile) {
	if u.FullName != nil {
		p.FullName = *u.FullName
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
	if u.Institution != nil {
		p.Institution = *u.Institution
	}
	if u.RegistrationNumber != nil {
		p.RegistrationNumber = *u.RegistrationNumber
	}
}

// ResolvedUser is the in-memory merge of an auth identity and its profile.
// It is never persisted.
type ResolvedUser struct {
	ID                 string   `json:"id"`
	Email              string   `json:"email,omitempty"`
	Name               string   `json:"nome"`
	AvatarURL          string   `json:"avatar_url,omitempty"`
	Profile            Profile  `json:"perfil"`
	InstitutionalType  UserType `json:"tipo_vinculo"`
	Institution        string   `json:"instituicao,omitempty"`
	RegistrationNumber string   `json:"matricula,omitempty"`
}

// HasProfile reports whether the user's access profile is one of profiles.
// An empty list matches any user.
func (u *ResolvedUser) HasProfile(profiles ...Profile) bool {
	if u == nil {
		return false
	}
	if len(profiles) == 0 {
		return true
	}
	for _, p := range profiles {
		if u.Profile == p {
			return true
		}
	}
	return false
}

// Resolve builds the ResolvedUser for identity from its profile row.
// Managers and admins keep their classification, every other type is mapped
// to the external community profile. An unset user type is reported as
// external community.
func Resolve(identity auth.Identity, p *UserProfile) *ResolvedUser {
	if p == nil {
		return nil
	}

	institutionalType := p.UserType
	if institutionalType == "" || !institutionalType.Valid() {
		institutionalType = UserTypeExternalCommunity
	}

	return &ResolvedUser{
		ID:                 identity.ID,
		Email:              identity.Email,
		Name:               p.FullName,
		AvatarURL:          p.AvatarURL,
		Profile:            profileFor(p.UserType),
		InstitutionalType:  institutionalType,
		Institution:        p.Institution,
		RegistrationNumber: p.RegistrationNumber,
	}
}

func profileFor(t UserType) Profile {
	switch t {
	case UserTypeManager:
		return ProfileManager
	case UserTypeAdmin:
		return ProfileAdmin
	default:
		return ProfileExternalCommunity
	}
}
