package store

import (
	"time"

	"github.com/google/uuid"
)

// Service identifies a connected external service.
type Service string

const (
	Facebook Service = "facebook"
	YouTube  Service = "youtube"
)

// Display returns the reader-facing name of the service.
func (s Service) Display() string {
	switch s {
	case Facebook:
		return "Facebook"
	case YouTube:
		return "YouTube"
	}
	return string(s)
}

// Post is one normalized content item pulled from a service. Once committed
// it is owned by the batch that contains it.
type Post struct {
	Service           Service   `json:"service"`
	Title             string    `json:"title"`
	ActionDescription string    `json:"actionDescription"`
	Content           string    `json:"content"`
	Timestamp         time.Time `json:"timestamp"`
	Permalink         string    `json:"permalink"`
	Picture           string    `json:"picture"`
	URL               string    `json:"url"`
	PostType          string    `json:"postType"`
}

// Batch is one committed group of newly synced posts. Batches are append-only
// and never created empty.
type Batch struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	UpdateTime  time.Time `json:"updateTime"`
	Posts       []Post    `json:"posts"`
}

// Source is a single externally tracked feed (a Facebook page or group, a
// YouTube channel) the user selected for syncing.
type Source struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Connection holds a user's identifiers, tokens, and selected sources for
// one service. Sources are only meaningful while the connection exists.
type Connection struct {
	ProfileID     string `json:"profileId"`
	AccessToken   string `json:"accessToken"`
	RefreshToken  string `json:"refreshToken"`
	AcceptUpdates bool   `json:"acceptUpdates"`

	// Facebook source kinds
	Pages  []Source `json:"pages,omitempty"`
	Groups []Source `json:"groups,omitempty"`

	// YouTube source kind
	Subscriptions []Source `json:"subscriptions,omitempty"`
}

// User is the persisted user document. It exclusively owns its connections,
// batches, and watermarks.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`

	Batches []Batch `json:"batches"`

	// Last time data was pulled from each service, keyed by service.
	LastUpdateTime map[Service]time.Time `json:"lastUpdateTime"`

	Facebook *Connection `json:"facebook,omitempty"`
	YouTube  *Connection `json:"youtube,omitempty"`
}

// Connection returns the user's connection for the service, or nil.
func (u *User) Connection(s Service) *Connection {
	switch s {
	case Facebook:
		return u.Facebook
	case YouTube:
		return u.YouTube
	}
	return nil
}

// SetConnection replaces the user's connection for the service.
func (u *User) SetConnection(s Service, c *Connection) {
	switch s {
	case Facebook:
		u.Facebook = c
	case YouTube:
		u.YouTube = c
	}
}

// Connected reports whether the user has an active connection for the
// service. Derived at read time, never stored.
func (u *User) Connected(s Service) bool {
	c := u.Connection(s)
	return c != nil && c.ProfileID != ""
}

// Watermark returns the last update time recorded for the service and
// whether one was set.
func (u *User) Watermark(s Service) (time.Time, bool) {
	t, ok := u.LastUpdateTime[s]
	return t, ok
}

// SetWatermark records the last update time for the service.
func (u *User) SetWatermark(s Service, t time.Time) {
	if u.LastUpdateTime == nil {
		u.LastUpdateTime = make(map[Service]time.Time)
	}
	u.LastUpdateTime[s] = t
}

// ClearWatermark removes the service's watermark, used on deauthorization.
func (u *User) ClearWatermark(s Service) {
	delete(u.LastUpdateTime, s)
}

// AppendBatch commits a group of posts as a new batch with a synthetic id.
// Empty post lists are rejected by returning the zero id; a cycle with no
// new posts updates watermarks only.
func (u *User) AppendBatch(description string, updateTime time.Time, posts []Post) string {
	if len(posts) == 0 {
		return ""
	}
	b := Batch{
		ID:          uuid.NewString(),
		Description: description,
		UpdateTime:  updateTime,
		Posts:       posts,
	}
	u.Batches = append(u.Batches, b)
	return b.ID
}

// RemoveBatch deletes the batch with the given id, reporting whether it was
// present.
func (u *User) RemoveBatch(id string) bool {
	for i, b := range u.Batches {
		if b.ID == id {
			u.Batches = append(u.Batches[:i], u.Batches[i+1:]...)
			return true
		}
	}
	return false
}

// RemovePosts strips one service's posts from every batch and drops batches
// that end up empty, returning how many posts were removed. The connection
// itself is untouched.
func (u *User) RemovePosts(s Service) int {
	removed := 0
	kept := u.Batches[:0]
	for _, b := range u.Batches {
		posts := b.Posts[:0]
		for _, p := range b.Posts {
			if p.Service == s {
				removed++
				continue
			}
			posts = append(posts, p)
		}
		b.Posts = posts
		if len(b.Posts) > 0 {
			kept = append(kept, b)
		}
	}
	u.Batches = kept
	return removed
}

// TotalPosts counts posts across all committed batches.
func (u *User) TotalPosts() int {
	n := 0
	for _, b := range u.Batches {
		n += len(b.Posts)
	}
	return n
}
