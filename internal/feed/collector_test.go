package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testFetcher() *Fetcher {
	return NewFetcher(testLogger(), 5*time.Second, true)
}

type testPage struct {
	Items []string `json:"items"`
	Next  string   `json:"next,omitempty"`
}

func parseTestPage(resp *Response, pageURL string) (page[string], error) {
	var body testPage
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return page[string]{}, err
	}
	return page[string]{items: body.Items, next: body.Next}, nil
}

func TestCollectFollowsCursorToExhaustion(t *testing.T) {
	var srv *httptest.Server
	var requests int
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprintf(w, `{"items":["a","b"],"next":"%s/page?cursor=2"}`, srv.URL)
		case "2":
			fmt.Fprintf(w, `{"items":["c"],"next":"%s/page?cursor=3"}`, srv.URL)
		case "3":
			fmt.Fprint(w, `{"items":["d"]}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	items, err := collect(context.Background(), testFetcher(), srv.URL+"/page", parseTestPage)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := []string{"a", "b", "c", "d"}
	if len(items) != len(want) {
		t.Fatalf("collected %d items, want %d", len(items), len(want))
	}
	for i, w := range want {
		if items[i] != w {
			t.Errorf("items[%d] = %q, want %q", i, items[i], w)
		}
	}
	if requests != 3 {
		t.Errorf("expected 3 page fetches, got %d", requests)
	}
}

func TestCollectSinglePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":["only"]}`)
	}))
	defer srv.Close()

	items, err := collect(context.Background(), testFetcher(), srv.URL, parseTestPage)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(items) != 1 || items[0] != "only" {
		t.Errorf("items = %v, want [only]", items)
	}
}

func TestCollectAbortsWithoutPartialResults(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			fmt.Fprintf(w, `{"items":["a"],"next":"%s/page?cursor=2"}`, srv.URL)
			return
		}
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	items, err := collect(context.Background(), testFetcher(), srv.URL+"/page", parseTestPage)
	if err == nil {
		t.Fatal("expected an error from the second page")
	}
	if items != nil {
		t.Errorf("expected no partial results, got %v", items)
	}
}

func TestCollectSurfacesAuthSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":190,"message":"Error validating access token"}}`)
	}))
	defer srv.Close()

	parse := func(resp *Response, pageURL string) (page[string], error) {
		var env facebookEnvelope[string]
		if err := json.Unmarshal(resp.Body, &env); err != nil {
			return page[string]{}, err
		}
		if err := env.Error.check(); err != nil {
			return page[string]{}, err
		}
		return page[string]{}, nil
	}

	_, err := collect(context.Background(), testFetcher(), srv.URL, parse)
	if !errors.Is(err, ErrAuthExpired) {
		t.Errorf("expected ErrAuthExpired, got %v", err)
	}
}
