package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"dash/internal/feed"
	"dash/internal/messages"
	"dash/internal/store"
)

// stubEngine lets handler tests script cycle results without upstreams.
type stubEngine struct {
	batch   *store.Batch
	err     error
	items   []feed.SetupItem
	toggled bool
	renewed bool

	lastDescription string
	lastService     store.Service
}

func (s *stubEngine) RefreshAll(ctx context.Context, userID, description string) (*store.Batch, error) {
	s.lastDescription = description
	return s.batch, s.err
}

func (s *stubEngine) RefreshOne(ctx context.Context, userID string, service store.Service, description string) (*store.Batch, error) {
	s.lastService = service
	s.lastDescription = description
	return s.batch, s.err
}

func (s *stubEngine) SetupContent(ctx context.Context, userID string, service store.Service, kind string) ([]feed.SetupItem, error) {
	return s.items, s.err
}

func (s *stubEngine) SaveSources(ctx context.Context, userID string, service store.Service, kind string, sources []store.Source) error {
	return s.err
}

func (s *stubEngine) ToggleUpdates(ctx context.Context, userID string, service store.Service) (bool, error) {
	return s.toggled, s.err
}

func (s *stubEngine) Deauthorize(ctx context.Context, userID string, service store.Service) error {
	return s.err
}

func (s *stubEngine) Connect(ctx context.Context, userID string, service store.Service, conn store.Connection) (bool, error) {
	return s.renewed, s.err
}

func (s *stubEngine) ResetService(ctx context.Context, userID string, service store.Service) error {
	s.lastService = service
	return s.err
}

func (s *stubEngine) DismissBatch(ctx context.Context, userID, batchID string) error {
	return s.err
}

func newTestServer(t *testing.T, engine SyncEngine) (*httptest.Server, *store.DB) {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"), store.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := NewServer(db, log.New(io.Discard, "", 0), engine, messages.Default(), Config{})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, db
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar}
}

// csrfToken primes the jar with a token cookie via a safe request.
func csrfToken(t *testing.T, c *http.Client, ts *httptest.Server) string {
	t.Helper()
	resp, err := c.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("priming request: %v", err)
	}
	resp.Body.Close()

	u, _ := url.Parse(ts.URL)
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == "csrf_token" {
			return ck.Value
		}
	}
	t.Fatal("no csrf cookie issued")
	return ""
}

func doJSON(t *testing.T, c *http.Client, method, target, token string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, target, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-CSRF-Token", token)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	return resp
}

func decodeOutcome(t *testing.T, resp *http.Response) outcome {
	t.Helper()
	defer resp.Body.Close()
	var out outcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	return out
}

// register creates an account and leaves its session in the jar.
func register(t *testing.T, c *http.Client, ts *httptest.Server, email string) string {
	t.Helper()
	token := csrfToken(t, c, ts)
	resp := doJSON(t, c, http.MethodPost, ts.URL+"/register", token, registerRequest{
		Email: email, Password: "a strong password", DisplayName: "Tester",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	return token
}

func TestRefreshOutcomes(t *testing.T) {
	catalog := messages.Default()

	cases := []struct {
		name        string
		batch       *store.Batch
		err         error
		wantStatus  int
		wantMessage string
		wantRefresh bool
	}{
		{
			name:        "new posts",
			batch:       &store.Batch{ID: "b1", Posts: []store.Post{{Title: "p"}}},
			wantStatus:  http.StatusOK,
			wantMessage: catalog.NewPosts,
			wantRefresh: true,
		},
		{
			name:        "no new posts",
			wantStatus:  http.StatusOK,
			wantMessage: catalog.NoPosts,
		},
		{
			name:        "expired access",
			err:         &feed.ServiceError{Service: store.Facebook, Err: feed.ErrRefreshFailed},
			wantStatus:  http.StatusInternalServerError,
			wantMessage: catalog.Service(store.Facebook).AccessPrivileges,
			wantRefresh: true,
		},
		{
			name:        "generic failure",
			err:         errors.New("boom"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: catalog.GeneralError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &stubEngine{batch: tc.batch, err: tc.err}
			ts, _ := newTestServer(t, engine)
			c := newClient(t)
			token := register(t, c, ts, "a@example.com")

			resp := doJSON(t, c, http.MethodPost, ts.URL+"/refresh", token, nil)
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			out := decodeOutcome(t, resp)
			if out.Message != tc.wantMessage {
				t.Errorf("message = %q, want %q", out.Message, tc.wantMessage)
			}
			if out.Refresh != tc.wantRefresh {
				t.Errorf("refresh = %v, want %v", out.Refresh, tc.wantRefresh)
			}
		})
	}
}

func TestRefreshOneSetsDescription(t *testing.T) {
	engine := &stubEngine{batch: &store.Batch{ID: "b1", Posts: []store.Post{{}}}}
	ts, _ := newTestServer(t, engine)
	c := newClient(t)
	token := register(t, c, ts, "a@example.com")

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/refresh/youtube", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if engine.lastService != store.YouTube {
		t.Errorf("service = %q, want youtube", engine.lastService)
	}
	if engine.lastDescription != "Checking in with YouTube for updates!" {
		t.Errorf("description = %q", engine.lastDescription)
	}
}

func TestRefreshUnknownService(t *testing.T) {
	ts, _ := newTestServer(t, &stubEngine{})
	c := newClient(t)
	token := register(t, c, ts, "a@example.com")

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/refresh/myspace", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRefreshRequiresSession(t *testing.T) {
	ts, _ := newTestServer(t, &stubEngine{})
	c := newClient(t)
	token := csrfToken(t, c, ts)

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/refresh", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	ts, _ := newTestServer(t, &stubEngine{})
	c := newClient(t)
	register(t, c, ts, "a@example.com")

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/refresh", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestLoginFlow(t *testing.T) {
	ts, _ := newTestServer(t, &stubEngine{})
	c := newClient(t)
	token := register(t, c, ts, "a@example.com")

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/logout", token, nil)
	resp.Body.Close()

	resp = doJSON(t, c, http.MethodPost, ts.URL+"/login", token, loginRequest{
		Email: "a@example.com", Password: "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, c, http.MethodPost, ts.URL+"/login", token, loginRequest{
		Email: "a@example.com", Password: "a strong password",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, c, http.MethodGet, ts.URL+"/dashboard", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("dashboard status = %d, want 200", resp.StatusCode)
	}
}

func TestDashboardPagination(t *testing.T) {
	ts, db := newTestServer(t, &stubEngine{})
	c := newClient(t)
	register(t, c, ts, "a@example.com")

	user, err := db.FindByEmail(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	for i := 0; i < 25; i++ {
		user.AppendBatch(fmt.Sprintf("batch %d", i), time.Now(), []store.Post{{Title: "p"}})
	}
	if err := db.Save(context.Background(), user); err != nil {
		t.Fatalf("Save: %v", err)
	}

	resp := doJSON(t, c, http.MethodGet, ts.URL+"/dashboard?page=2", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body dashboardResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Batches) != 10 {
		t.Errorf("page 2 batches = %d, want 10", len(body.Batches))
	}
	if body.Pagination.TotalPages != 3 || body.Pagination.Page != 2 {
		t.Errorf("pagination = %+v", body.Pagination)
	}
	// Newest first: page 2 starts at the 11th newest, "batch 14"
	if body.Batches[0].Description != "batch 14" {
		t.Errorf("first batch on page 2 = %q, want batch 14", body.Batches[0].Description)
	}
	if body.User.TotalPosts != 25 {
		t.Errorf("totalPosts = %d, want 25", body.User.TotalPosts)
	}
}

func TestToggleUpdatesMessages(t *testing.T) {
	engine := &stubEngine{toggled: true}
	ts, _ := newTestServer(t, engine)
	c := newClient(t)
	token := register(t, c, ts, "a@example.com")

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/services/facebook/toggle", token, nil)
	out := decodeOutcome(t, resp)
	if out.Message != messages.Default().Service(store.Facebook).UpdatesEnabled {
		t.Errorf("message = %q", out.Message)
	}

	engine.toggled = false
	resp = doJSON(t, c, http.MethodPost, ts.URL+"/services/facebook/toggle", token, nil)
	out = decodeOutcome(t, resp)
	if out.Message != messages.Default().Service(store.Facebook).UpdatesDisabled {
		t.Errorf("message = %q", out.Message)
	}
}

func TestToggleNotConnected(t *testing.T) {
	engine := &stubEngine{err: feed.ErrNotConnected}
	ts, _ := newTestServer(t, engine)
	c := newClient(t)
	token := register(t, c, ts, "a@example.com")

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/services/youtube/toggle", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	out := decodeOutcome(t, resp)
	if out.Message != messages.Default().Service(store.YouTube).NotConfigured {
		t.Errorf("message = %q", out.Message)
	}
}

func TestResetService(t *testing.T) {
	engine := &stubEngine{}
	ts, _ := newTestServer(t, engine)
	c := newClient(t)
	token := register(t, c, ts, "a@example.com")

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/services/facebook/reset", token, nil)
	out := decodeOutcome(t, resp)
	if out.Message != messages.Default().Service(store.Facebook).Reset || !out.Refresh {
		t.Errorf("outcome = %+v", out)
	}
	if engine.lastService != store.Facebook {
		t.Errorf("service = %q, want facebook", engine.lastService)
	}
}

func TestConnectOutcomes(t *testing.T) {
	engine := &stubEngine{}
	ts, _ := newTestServer(t, engine)
	c := newClient(t)
	token := register(t, c, ts, "a@example.com")

	body := connectRequest{ProfileID: "p1", AccessToken: "t1"}

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/services/facebook/connect", token, body)
	out := decodeOutcome(t, resp)
	if out.Message != messages.Default().Service(store.Facebook).Connected {
		t.Errorf("message = %q", out.Message)
	}

	engine.renewed = true
	resp = doJSON(t, c, http.MethodPost, ts.URL+"/services/facebook/connect", token, body)
	out = decodeOutcome(t, resp)
	if out.Message != messages.Default().Service(store.Facebook).Renewed {
		t.Errorf("message = %q", out.Message)
	}

	engine.renewed = false
	engine.err = feed.ErrAlreadyConnected
	resp = doJSON(t, c, http.MethodPost, ts.URL+"/services/facebook/connect", token, body)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDeleteAccount(t *testing.T) {
	ts, db := newTestServer(t, &stubEngine{})
	c := newClient(t)
	token := register(t, c, ts, "a@example.com")
	ctx := context.Background()

	user, err := db.FindByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	user.YouTube = &store.Connection{ProfileID: "p1", AccessToken: "tok"}
	if err := db.Save(ctx, user); err != nil {
		t.Fatalf("Save: %v", err)
	}

	resp := doJSON(t, c, http.MethodDelete, ts.URL+"/account", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 while a service is connected", resp.StatusCode)
	}
	out := decodeOutcome(t, resp)
	if out.Message != messages.Default().ServicesActive {
		t.Errorf("message = %q", out.Message)
	}

	user.YouTube = nil
	if err := db.Save(ctx, user); err != nil {
		t.Fatalf("Save: %v", err)
	}

	resp = doJSON(t, c, http.MethodDelete, ts.URL+"/account", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	out = decodeOutcome(t, resp)
	if out.Message != messages.Default().AccountDeleted || !out.Refresh {
		t.Errorf("outcome = %+v", out)
	}

	resp, err = c.Get(ts.URL + "/dashboard")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("dashboard status = %d, want 401 after deletion", resp.StatusCode)
	}
}

func TestDismissBatchNotFound(t *testing.T) {
	engine := &stubEngine{err: store.ErrNotFound}
	ts, _ := newTestServer(t, engine)
	c := newClient(t)
	token := register(t, c, ts, "a@example.com")

	resp := doJSON(t, c, http.MethodDelete, ts.URL+"/batches/ghost", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
