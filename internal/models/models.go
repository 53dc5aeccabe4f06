package models

import "time"

// Role describes what an account is allowed to do on the platform.
type Role string

const (
	RoleCreator  Role = "creator"
	RoleConsumer Role = "consumer"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleCreator || r == RoleConsumer
}

// Visibility controls who may read a video.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// Valid reports whether the visibility is one of the known tiers.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityUnlisted || v == VisibilityPrivate
}

// User represents an account within the ClipVault catalog.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public projects the user into the shape safe to return to clients.
// The password hash never leaves the persistence layer.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Role: u.Role}
}

// PublicUser is the client-facing projection of a User.
type PublicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Session binds a hashed refresh secret to a user together with its
// expiry and revocation state. The plaintext secret is never stored.
type Session struct {
	ID                int64
	UserID            int64
	RefreshSecretHash string
	UserAgent         string
	IP                string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	RevokedAt         *time.Time
}

// Active reports whether the session can still authenticate a refresh.
// Expiry is derived at lookup time, never stored.
func (s Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Video stores catalog metadata for an uploaded video asset.
type Video struct {
	ID          int64
	Title       string
	Description string
	Genre       string
	Producer    string
	AgeRating   string
	Visibility  Visibility
	DurationS   int64
	SizeBytes   int64
	UploaderID  int64
	BlobName    string
	BlobURL     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AvgRating   float64
	RatingCount int64
}

// VideoPatch carries the mutable video fields for partial updates.
// Nil fields are left untouched.
type VideoPatch struct {
	Title       *string
	Description *string
	Genre       *string
	Producer    *string
	AgeRating   *string
	Visibility  *Visibility
}

// Comment is a viewer remark attached to a video.
type Comment struct {
	ID        int64
	VideoID   int64
	UserID    int64
	Username  string
	Comment   string
	CreatedAt time.Time
}

// RatingSummary aggregates the ratings submitted for a video.
type RatingSummary struct {
	Average float64
	Count   int64
}
