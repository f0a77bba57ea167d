package feed

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"dash/internal/store"
)

// Overridable so tests can point the Graph calls at a stub.
var facebookAPI = "https://graph.facebook.com/v2.5"

// Graph API timestamps come back as ISO 8601 with a numeric zone and no
// colon ("2016-03-01T12:00:00+0000").
const facebookTimeLayout = "2006-01-02T15:04:05-0700"

var trailingPunctuation = regexp.MustCompile(`[.?!,:;]$`)

type facebookEnvelope[T any] struct {
	Data   []T `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
	Error *facebookError `json:"error"`
}

type facebookError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// check maps the Graph API error object onto the sync error taxonomy.
// Code 190 is Facebook's invalid/expired access token signature.
func (e *facebookError) check() error {
	if e == nil {
		return nil
	}
	if e.Code == 190 {
		return ErrAuthExpired
	}
	return fmt.Errorf("facebook api error %d: %s", e.Code, e.Message)
}

type facebookPost struct {
	ID          string `json:"id"`
	Story       string `json:"story"`
	Message     string `json:"message"`
	Link        string `json:"link"`
	FullPicture string `json:"full_picture"`
	CreatedTime string `json:"created_time"`
}

type facebookPage struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Link        string          `json:"link"`
	Description string          `json:"description"`
	About       string          `json:"about"`
	IsVerified  bool            `json:"is_verified"`
	BestPage    json.RawMessage `json:"best_page"`
	Cover       *struct {
		Source string `json:"source"`
	} `json:"cover"`
}

// appSecretProof computes the &appsecret_proof= suffix Facebook requires on
// server-side Graph calls: an HMAC-SHA256 of the access token keyed by the
// app secret.
func appSecretProof(secret, accessToken string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(accessToken))
	return "&appsecret_proof=" + hex.EncodeToString(mac.Sum(nil))
}

func facebookFeedURL(route, sourceID string, since time.Time, accessToken string) string {
	return fmt.Sprintf(
		"%s/%s/%s?fields=id,story,message,link,full_picture,created_time&since=%d&access_token=%s",
		facebookAPI, sourceID, route, since.Unix(), accessToken,
	)
}

func facebookSetupURL(route, profileID, accessToken string) string {
	return fmt.Sprintf(
		"%s/%s/%s?fields=cover,name,id,description,is_verified,best_page,about&access_token=%s",
		facebookAPI, profileID, route, accessToken,
	)
}

// normalizeFacebookPost maps one raw Graph item into a canonical post.
// Items without a message have no body to show and are dropped.
func normalizeFacebookPost(item facebookPost, sourceName, postType string) (store.Post, bool) {
	if item.Message == "" {
		return store.Post{}, false
	}

	ts, err := time.Parse(facebookTimeLayout, item.CreatedTime)
	if err != nil {
		if ts, err = time.Parse(time.RFC3339, item.CreatedTime); err != nil {
			return store.Post{}, false
		}
	}

	var permalink string
	if parts := strings.SplitN(item.ID, "_", 2); len(parts) == 2 {
		if postType == "page" {
			permalink = "https://www.facebook.com/" + parts[0] + "/posts/" + parts[1]
		} else {
			permalink = "https://www.facebook.com/groups/" + parts[0] + "/permalink/" + parts[1]
		}
	} else {
		permalink = "https://www.facebook.com/" + item.ID
	}

	// The story repeats the source name ("Page shared a link."); strip the
	// name and any trailing punctuation so it reads as an annotation.
	story := item.Story
	if story != "" && strings.Contains(story, sourceName) {
		story = strings.TrimSpace(strings.Replace(story, sourceName, "", 1))
		story = trailingPunctuation.ReplaceAllString(story, "")
	}

	return store.Post{
		Service:           store.Facebook,
		Title:             sourceName,
		ActionDescription: story,
		Content:           item.Message,
		Timestamp:         ts,
		Permalink:         permalink,
		Picture:           item.FullPicture,
		URL:               item.Link,
		PostType:          postType,
	}, true
}

// facebookPostsParser decodes one page of a posts/feed endpoint. The
// appsecret proof is re-appended to continuation URLs, which already carry
// the access token.
func facebookPostsParser(sourceName, postType, proof string) parsePage[store.Post] {
	return func(resp *Response, pageURL string) (page[store.Post], error) {
		var env facebookEnvelope[facebookPost]
		if err := json.Unmarshal(resp.Body, &env); err != nil {
			return page[store.Post]{}, fmt.Errorf("error decoding facebook response: %w", err)
		}
		if err := env.Error.check(); err != nil {
			return page[store.Post]{}, err
		}

		var pg page[store.Post]
		for _, item := range env.Data {
			if post, ok := normalizeFacebookPost(item, sourceName, postType); ok {
				pg.items = append(pg.items, post)
			}
		}
		if env.Paging.Next != "" {
			pg.next = env.Paging.Next + proof
		}
		return pg, nil
	}
}

// facebookSetupParser decodes one page of the likes/groups listing used on
// the setup screens.
func facebookSetupParser(proof string) parsePage[SetupItem] {
	return func(resp *Response, pageURL string) (page[SetupItem], error) {
		var env facebookEnvelope[facebookPage]
		if err := json.Unmarshal(resp.Body, &env); err != nil {
			return page[SetupItem]{}, fmt.Errorf("error decoding facebook response: %w", err)
		}
		if err := env.Error.check(); err != nil {
			return page[SetupItem]{}, err
		}

		var pg page[SetupItem]
		for _, item := range env.Data {
			// Skip non-Facebook pages and merged pages
			if item.Link != "" && !strings.Contains(item.Link, "https://www.facebook.com") {
				continue
			}
			if len(item.BestPage) > 0 && string(item.BestPage) != "null" {
				continue
			}

			cover := "/static/img/no-image.png"
			if item.Cover != nil && item.Cover.Source != "" {
				cover = item.Cover.Source
			}
			desc := item.Description
			if desc == "" {
				desc = item.About
			}
			if desc == "" {
				desc = "No description provided."
			}
			link := item.Link
			if link == "" {
				link = "https://www.facebook.com/groups/" + item.ID
			}

			pg.items = append(pg.items, SetupItem{
				ID:          item.ID,
				Name:        item.Name,
				Thumbnail:   cover,
				Description: desc,
				Verified:    item.IsVerified,
				Link:        link,
			})
		}
		if env.Paging.Next != "" {
			pg.next = env.Paging.Next + proof
		}
		return pg, nil
	}
}

// deauthorizeFacebook revokes the app's permissions on the user's account.
func deauthorizeFacebook(ctx context.Context, f *Fetcher, c *store.Connection, secret string) error {
	url := fmt.Sprintf("%s/%s/permissions?access_token=%s%s",
		facebookAPI, c.ProfileID, c.AccessToken, appSecretProof(secret, c.AccessToken))

	resp, err := f.Delete(ctx, url)
	if err != nil {
		return err
	}

	var body struct {
		Success bool           `json:"success"`
		Error   *facebookError `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fmt.Errorf("error decoding facebook response: %w", err)
	}
	if err := body.Error.check(); err != nil {
		return err
	}
	if !body.Success {
		return fmt.Errorf("facebook did not confirm deauthorization")
	}
	return nil
}

// newFacebookDescriptor wires the Facebook endpoints and normalizers into
// the generic engine. Pages and groups differ only in their routes and
// permalink shapes.
func newFacebookDescriptor(keys OAuthKeys) descriptor {
	pageKind := sourceKind{
		name:       "page",
		plural:     "pages",
		sources:    func(c *store.Connection) []store.Source { return c.Pages },
		setSources: func(c *store.Connection, srcs []store.Source) { c.Pages = srcs },
		feedRequest: func(c *store.Connection, src store.Source, since time.Time) (string, parsePage[store.Post]) {
			proof := appSecretProof(keys.Secret, c.AccessToken)
			return facebookFeedURL("posts", src.ID, since, c.AccessToken) + proof,
				facebookPostsParser(src.Name, "page", proof)
		},
		setupRequest: func(c *store.Connection) (string, parsePage[SetupItem]) {
			proof := appSecretProof(keys.Secret, c.AccessToken)
			return facebookSetupURL("likes", c.ProfileID, c.AccessToken) + proof,
				facebookSetupParser(proof)
		},
	}

	groupKind := sourceKind{
		name:       "group",
		plural:     "groups",
		sources:    func(c *store.Connection) []store.Source { return c.Groups },
		setSources: func(c *store.Connection, srcs []store.Source) { c.Groups = srcs },
		feedRequest: func(c *store.Connection, src store.Source, since time.Time) (string, parsePage[store.Post]) {
			proof := appSecretProof(keys.Secret, c.AccessToken)
			return facebookFeedURL("feed", src.ID, since, c.AccessToken) + proof,
				facebookPostsParser(src.Name, "group", proof)
		},
		setupRequest: func(c *store.Connection) (string, parsePage[SetupItem]) {
			proof := appSecretProof(keys.Secret, c.AccessToken)
			return facebookSetupURL("groups", c.ProfileID, c.AccessToken) + proof,
				facebookSetupParser(proof)
		},
	}

	return descriptor{
		service: store.Facebook,
		kinds:   []sourceKind{pageKind, groupKind},
		deauthorize: func(ctx context.Context, f *Fetcher, c *store.Connection) error {
			return deauthorizeFacebook(ctx, f, c, keys.Secret)
		},
	}
}
