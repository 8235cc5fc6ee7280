package models

import "time"

// User identifies a remote account
type User struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl"`
}

// Asset is an image referenced by a post. PendingCDN marks an asset
// whose bytes are still client-held: the remote URL is not yet
// retrievable and metadata embedding it must not be treated as final.
type Asset struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	URL        string `json:"url"`
	PendingCDN bool   `json:"pendingCDN"`
}

// CommentPin binds a comment to a point on an image, with normalized
// coordinates in [0,1].
type CommentPin struct {
	CommentLocalID string  `json:"commentLocalID"`
	ImageID        string  `json:"imageID"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
}

// PostMetadata is the structured record embedded in the remote body
// text. LocalID is minted before any remote identifier exists and is
// the only reliable join key between local and remote representations.
type PostMetadata struct {
	LocalID       string       `json:"localID"`
	VersionID     string       `json:"versionID"`
	Authors       []string     `json:"authors"`
	Collaborators []string     `json:"collaborators"`
	Title         string       `json:"title"`
	Tags          []string     `json:"tags"`
	Team          string       `json:"team"`
	Project       string       `json:"project"`
	URLs          []string     `json:"urls"`
	Assets        []Asset      `json:"assets"`
	CommentPins   []CommentPin `json:"commentPins"`
}

// Comment is a reply-like child document of a post
type Comment struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Author    User      `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Replies   []Comment `json:"replies,omitempty"`
}

// ReactionGroup tallies one reaction kind on a post or comment
type ReactionGroup struct {
	Content string `json:"content"`
	Count   int    `json:"count"`
}

// Post is the canonical entity. ID is the remote identifier and is
// empty until the post is confirmed; for an unconfirmed local-only
// post the merged feed uses the localID in its place.
type Post struct {
	ID               string           `json:"id"`
	Number           int              `json:"number,omitempty"`
	Metadata         PostMetadata     `json:"metadata"`
	Body             string           `json:"body"`
	Author           User             `json:"author"`
	CreatedAt        time.Time        `json:"createdAt"`
	CommentCount     int              `json:"commentCount"`
	Comments         []Comment        `json:"comments,omitempty"`
	Reactions        []ReactionGroup  `json:"reactions,omitempty"`
	OptimisticStatus OptimisticStatus `json:"optimisticStatus,omitempty"`
}
