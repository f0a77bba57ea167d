package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dash/internal/store"
)

// Overridable so tests can point the Data API calls at a stub.
var (
	youtubeAPI       = "https://www.googleapis.com/youtube/v3"
	youtubeRevokeURL = "https://accounts.google.com/o/oauth2/revoke?token="
)

const (
	youtubePageSize  = 50
	descriptionLimit = 200 // words kept before truncation
)

type youtubeEnvelope[T any] struct {
	Items         []T           `json:"items"`
	NextPageToken string        `json:"nextPageToken"`
	Error         *youtubeError `json:"error"`
}

type youtubeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// check maps the Data API error object onto the sync error taxonomy.
// Google signals a stale token as 401 "Invalid Credentials" or a bare 403.
func (e *youtubeError) check() error {
	if e == nil {
		return nil
	}
	if (e.Code == 401 && e.Message == "Invalid Credentials") || e.Code == 403 {
		return ErrAuthExpired
	}
	return fmt.Errorf("youtube api error %d: %s", e.Code, e.Message)
}

type youtubeThumbnail struct {
	URL string `json:"url"`
}

type youtubeThumbnails struct {
	Default  youtubeThumbnail `json:"default"`
	High     youtubeThumbnail `json:"high"`
	Standard youtubeThumbnail `json:"standard"`
	Maxres   youtubeThumbnail `json:"maxres"`
}

type youtubeActivity struct {
	Snippet *struct {
		Type         string            `json:"type"`
		Title        string            `json:"title"`
		Description  string            `json:"description"`
		ChannelID    string            `json:"channelId"`
		ChannelTitle string            `json:"channelTitle"`
		PublishedAt  time.Time         `json:"publishedAt"`
		Thumbnails   youtubeThumbnails `json:"thumbnails"`
	} `json:"snippet"`
	ContentDetails *struct {
		Upload struct {
			VideoID string `json:"videoId"`
		} `json:"upload"`
	} `json:"contentDetails"`
}

type youtubeSubscription struct {
	Snippet *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		ResourceID  struct {
			ChannelID string `json:"channelId"`
		} `json:"resourceId"`
		Thumbnails youtubeThumbnails `json:"thumbnails"`
	} `json:"snippet"`
}

func youtubeActivitiesURL(channelID string, since time.Time, accessToken string) string {
	return fmt.Sprintf(
		"%s/activities?part=snippet%%2CcontentDetails&channelId=%s&maxResults=%d&publishedAfter=%s&access_token=%s",
		youtubeAPI, channelID, youtubePageSize, since.UTC().Format(time.RFC3339), accessToken,
	)
}

func youtubeSubscriptionsURL(accessToken string) string {
	return fmt.Sprintf(
		"%s/subscriptions?part=snippet&maxResults=%d&mine=true&order=alphabetical&access_token=%s",
		youtubeAPI, youtubePageSize, accessToken,
	)
}

// withPageToken swaps the continuation token on an activities or
// subscriptions URL. The token is always the last parameter we append, so
// stripping any previous one keeps the base URL stable across pages.
func withPageToken(pageURL, token string) string {
	if i := strings.Index(pageURL, "&pageToken="); i >= 0 {
		pageURL = pageURL[:i]
	}
	return pageURL + "&pageToken=" + token
}

// youtubeDescription prepares a video description for the dashboard: the
// first paragraph break becomes a visible gap and anything past the word
// limit is cut.
func youtubeDescription(raw string) string {
	desc := strings.Replace(raw, "\n", "<br /><br />", 1)
	words := strings.Fields(desc)
	if len(words) >= descriptionLimit {
		return strings.Join(words[:descriptionLimit], " ") + "..."
	}
	return strings.Join(words, " ")
}

func bestThumbnail(t youtubeThumbnails) string {
	switch {
	case t.Maxres.URL != "":
		return t.Maxres.URL
	case t.Standard.URL != "":
		return t.Standard.URL
	default:
		return t.High.URL
	}
}

// normalizeYouTubeUpload maps one activity into a canonical post. The
// activities endpoint mixes uploads with likes and playlist items; only
// uploads carry a video worth surfacing. Uploads whose description comes out
// empty have no body to show and are dropped.
func normalizeYouTubeUpload(item youtubeActivity) (store.Post, bool) {
	sn := item.Snippet
	if sn == nil || sn.Type != "upload" {
		return store.Post{}, false
	}

	desc := youtubeDescription(sn.Description)
	if desc == "" {
		return store.Post{}, false
	}

	var videoID string
	if item.ContentDetails != nil {
		videoID = item.ContentDetails.Upload.VideoID
	}

	return store.Post{
		Service:           store.YouTube,
		Title:             sn.Title,
		ActionDescription: sn.ChannelTitle + " uploaded a new video!",
		Content:           desc,
		Timestamp:         sn.PublishedAt,
		Permalink:         "https://www.youtube.com/channel/" + sn.ChannelID,
		Picture:           bestThumbnail(sn.Thumbnails),
		URL:               "https://www.youtube.com/watch?v=" + videoID,
		PostType:          sn.Type,
	}, true
}

func youtubeUploadsParser() parsePage[store.Post] {
	return func(resp *Response, pageURL string) (page[store.Post], error) {
		var env youtubeEnvelope[youtubeActivity]
		if err := json.Unmarshal(resp.Body, &env); err != nil {
			return page[store.Post]{}, fmt.Errorf("error decoding youtube response: %w", err)
		}
		if err := env.Error.check(); err != nil {
			return page[store.Post]{}, err
		}

		var pg page[store.Post]
		for _, item := range env.Items {
			if post, ok := normalizeYouTubeUpload(item); ok {
				pg.items = append(pg.items, post)
			}
		}
		if env.NextPageToken != "" {
			pg.next = withPageToken(pageURL, env.NextPageToken)
		}
		return pg, nil
	}
}

func youtubeSubscriptionsParser() parsePage[SetupItem] {
	return func(resp *Response, pageURL string) (page[SetupItem], error) {
		var env youtubeEnvelope[youtubeSubscription]
		if err := json.Unmarshal(resp.Body, &env); err != nil {
			return page[SetupItem]{}, fmt.Errorf("error decoding youtube response: %w", err)
		}
		if err := env.Error.check(); err != nil {
			return page[SetupItem]{}, err
		}

		var pg page[SetupItem]
		for _, item := range env.Items {
			sn := item.Snippet
			if sn == nil {
				continue
			}
			thumb := sn.Thumbnails.High.URL
			if thumb == "" {
				thumb = sn.Thumbnails.Default.URL
			}
			desc := sn.Description
			if desc == "" {
				desc = "No description provided."
			}
			pg.items = append(pg.items, SetupItem{
				ID:          sn.ResourceID.ChannelID,
				Name:        sn.Title,
				Thumbnail:   thumb,
				Description: desc,
				Link:        "https://www.youtube.com/channel/" + sn.ResourceID.ChannelID,
			})
		}
		if env.NextPageToken != "" {
			pg.next = withPageToken(pageURL, env.NextPageToken)
		}
		return pg, nil
	}
}

// deauthorizeYouTube revokes the Google token. A 400 invalid_token reply
// means the token is already dead, which the caller treats the same as an
// expired one.
func deauthorizeYouTube(ctx context.Context, f *Fetcher, c *store.Connection) error {
	resp, err := f.Get(ctx, youtubeRevokeURL+c.AccessToken)
	if err != nil {
		return err
	}
	if resp.Status == 200 {
		return nil
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fmt.Errorf("error decoding revoke response: %w", err)
	}
	if resp.Status == 400 && body.Error == "invalid_token" {
		return ErrAuthExpired
	}
	return fmt.Errorf("google revoke failed with status %d: %s", resp.Status, body.Error)
}

// newYouTubeDescriptor wires the YouTube Data API endpoints into the
// generic engine. A single kind: channel subscriptions.
func newYouTubeDescriptor() descriptor {
	subscriptionKind := sourceKind{
		name:       "subscription",
		plural:     "subscriptions",
		sources:    func(c *store.Connection) []store.Source { return c.Subscriptions },
		setSources: func(c *store.Connection, srcs []store.Source) { c.Subscriptions = srcs },
		feedRequest: func(c *store.Connection, src store.Source, since time.Time) (string, parsePage[store.Post]) {
			return youtubeActivitiesURL(src.ID, since, c.AccessToken), youtubeUploadsParser()
		},
		setupRequest: func(c *store.Connection) (string, parsePage[SetupItem]) {
			return youtubeSubscriptionsURL(c.AccessToken), youtubeSubscriptionsParser()
		},
	}

	return descriptor{
		service:     store.YouTube,
		kinds:       []sourceKind{subscriptionKind},
		deauthorize: deauthorizeYouTube,
	}
}
