package domain

// User is a broadcast viewer. Hash is derived once from ID under the
// session seed and never recomputed.
type User struct {
	ID              string `json:"id"`
	Username        string `json:"username,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
	Hash            int32  `json:"hash"`
}

// Backfill copies username and avatar from other where u lacks them.
// It reports whether anything changed. Existing values are never replaced.
func (u *User) Backfill(other User) bool {
	changed := false
	if u.Username == "" && other.Username != "" {
		u.Username = other.Username
		changed = true
	}
	if u.ProfileImageURL == "" && other.ProfileImageURL != "" {
		u.ProfileImageURL = other.ProfileImageURL
		changed = true
	}
	return changed
}

// Mention returns the "@username " prefix used for member-addressed
// messages, or an empty string when the username is unknown.
func (u User) Mention() string {
	if u.Username == "" {
		return ""
	}
	return "@" + u.Username + " "
}
