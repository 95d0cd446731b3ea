package model

import "time"

// MediaType classifies the file attached to a post.
type MediaType string

const (
	MediaNone  MediaType = "none"
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// PostStatus is the lifecycle state of a post. The only transition is
// draft → published.
type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPublished PostStatus = "published"
)

// Valid reports whether s is one of the two known statuses.
func (s PostStatus) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Post is a piece of content owned by a single user.
//
// UserID is set on creation and never changes. MediaType is MediaNone
// exactly when MediaURL is empty.
type Post struct {
	ID        string     `json:"id"                 db:"id"`
	UserID    string     `json:"userId"             db:"user_id"`
	UserName  string     `json:"userName,omitempty" db:"-"` // filled in by List
	Caption   string     `json:"caption"            db:"caption"`
	MediaType MediaType  `json:"mediaType"          db:"media_type"`
	MediaURL  string     `json:"mediaUrl"           db:"media_url"`
	Status    PostStatus `json:"status"             db:"status"`
	CreatedAt time.Time  `json:"createdAt"          db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt"          db:"updated_at"`
}

// Media is a stored upload as recorded on a post.
type Media struct {
	Type MediaType
	URL  string
}
