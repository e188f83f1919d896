package models

import "time"

// UserProfile is the persisted, mutable record of a student's personal and
// internship data. Exactly one row exists per authenticated identity; it is
// provisioned lazily on first login.
type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`

	Name   string `json:"name"`
	NIS    string `json:"nis"`
	Class  string `json:"class"`
	Phone  string `json:"phone"`
	School string `json:"school"`
	Major  string `json:"major"`

	InternshipCompany  string `json:"internship_company"`
	InternshipPosition string `json:"internship_position"`
	InternshipDuration string `json:"internship_duration"`

	Address   string `json:"address"`
	BirthDate string `json:"birth_date"`
	Gender    string `json:"gender"`
	Religion  string `json:"religion"`

	Skills       string `json:"skills"`
	Achievements string `json:"achievements"`
	Description  string `json:"description"`

	PhotoURL     string `json:"photo_url"`
	InstagramURL string `json:"instagram_url"`
	LinkedInURL  string `json:"linkedin_url"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the profile. Subscribers receive copies so
// they can never mutate the state owned by the session manager.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// UpdateProfileRequest is a partial profile update. Nil fields are left
// untouched in the store.
type UpdateProfileRequest struct {
	Name   *string `json:"name,omitempty"`
	NIS    *string `json:"nis,omitempty"`
	Class  *string `json:"class,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	School *string `json:"school,omitempty"`
	Major  *string `json:"major,omitempty"`

	InternshipCompany  *string `json:"internship_company,omitempty"`
	InternshipPosition *string `json:"internship_position,omitempty"`
	InternshipDuration *string `json:"internship_duration,omitempty"`

	Address   *string `json:"address,omitempty"`
	BirthDate *string `json:"birth_date,omitempty"`
	Gender    *string `json:"gender,omitempty"`
	Religion  *string `json:"religion,omitempty"`

	Skills       *string `json:"skills,omitempty"`
	Achievements *string `json:"achievements,omitempty"`
	Description  *string `json:"description,omitempty"`

	PhotoURL     *string `json:"photo_url,omitempty"`
	InstagramURL *string `json:"instagram_url,omitempty"`
	LinkedInURL  *string `json:"linkedin_url,omitempty"`
}

// Updates converts the request to a column/value map containing only the
// fields that were actually set.
func (r *UpdateProfileRequest) Updates() map[string]interface{} {
	updates := make(map[string]interface{})
	set := func(column string, value *string) {
		if value != nil {
			updates[column] = *value
		}
	}

	set("name", r.Name)
	set("nis", r.NIS)
	set("class", r.Class)
	set("phone", r.Phone)
	set("school", r.School)
	set("major", r.Major)
	set("internship_company", r.InternshipCompany)
	set("internship_position", r.InternshipPosition)
	set("internship_duration", r.InternshipDuration)
	set("address", r.Address)
	set("birth_date", r.BirthDate)
	set("gender", r.Gender)
	set("religion", r.Religion)
	set("skills", r.Skills)
	set("achievements", r.Achievements)
	set("description", r.Description)
	set("photo_url", r.PhotoURL)
	set("instagram_url", r.InstagramURL)
	set("linkedin_url", r.LinkedInURL)

	return updates
}
