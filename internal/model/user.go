// Package model contains domain types for the ghsearch application.
// These types are independent of any external GitHub library.
package model

// UserType is the kind of GitHub account a search hit refers to.
type UserType string

const (
	UserTypeUser         UserType = "User"
	UserTypeOrganization UserType = "Organization"
)

// ParseUserType maps an upstream account type to a UserType.
// Unrecognized or empty values are treated as a regular user.
func ParseUserType(s string) UserType {
	if UserType(s) == UserTypeOrganization {
		return UserTypeOrganization
	}
	return UserTypeUser
}

// UserStats holds the numeric profile data shown for a user.
type UserStats struct {
	Repositories int    `json:"repositories"`
	Followers    int    `json:"followers"`
	Joined       string `json:"joined"`
}

// UserRecord is the normalized shape of one search result.
type UserRecord struct {
	Login     string   `json:"login"`
	Name      *string  `json:"name,omitempty"`
	AvatarURL *string  `json:"avatarUrl,omitempty"`
	Type      UserType `json:"type"`

	// Sponsorable is not derivable from the users endpoints and is always false.
	Sponsorable bool `json:"sponsorable"`

	Stats    UserStats `json:"stats"`
	Location *string   `json:"location,omitempty"`
	Bio      *string   `json:"bio,omitempty"`
	URL      string    `json:"url"`

	// Languages requires per-repository fetches and is always empty.
	Languages []string `json:"languages"`
}
