package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"dash/internal/store"
)

// defaultLookback bounds the first sync of a freshly connected service.
const defaultLookback = 24 * time.Hour

// OAuthKeys holds one provider's application credentials.
type OAuthKeys struct {
	ID     string
	Secret string
}

// Config carries what the engine needs to talk to the upstream APIs.
type Config struct {
	FetchTimeout time.Duration
	Facebook     OAuthKeys
	YouTube      OAuthKeys

	// Exchanger overrides the OAuth token exchange when set, for tests.
	Exchanger TokenExchanger

	// AllowPrivateHosts disables the private-address dial guard, for tests
	// against local stubs.
	AllowPrivateHosts bool
}

// Engine runs sync cycles against the connected services. Cycles for the
// same user are serialized, and identical concurrent requests are collapsed
// into one cycle, so two browser tabs hitting refresh cannot clobber each
// other's document writes.
type Engine struct {
	users       store.UserStore
	fetcher     *Fetcher
	refresher   *Refresher
	logger      *log.Logger
	descriptors []descriptor

	group     singleflight.Group
	locks     sync.Map // userID -> *sync.Mutex
	refreshMu sync.Mutex

	now func() time.Time
}

func NewEngine(users store.UserStore, logger *log.Logger, cfg Config) *Engine {
	exchanger := cfg.Exchanger
	if exchanger == nil {
		exchanger = newOAuthExchanger(cfg.Facebook, cfg.YouTube)
	}
	return &Engine{
		users:     users,
		fetcher:   NewFetcher(logger, cfg.FetchTimeout, cfg.AllowPrivateHosts),
		refresher: NewRefresher(users, exchanger, logger),
		logger:    logger,
		descriptors: []descriptor{
			newFacebookDescriptor(cfg.Facebook),
			newYouTubeDescriptor(),
		},
		now: time.Now,
	}
}

func (e *Engine) descriptor(service store.Service) (descriptor, bool) {
	for _, d := range e.descriptors {
		if d.service == service {
			return d, true
		}
	}
	return descriptor{}, false
}

// active returns the descriptors for services that are connected and have
// updates enabled.
func (e *Engine) active(user *store.User) []descriptor {
	var ds []descriptor
	for _, d := range e.descriptors {
		if c := user.Connection(d.service); c != nil && c.AcceptUpdates {
			ds = append(ds, d)
		}
	}
	return ds
}

// RefreshAll syncs every active service for the user and commits the merged
// results as one batch. A nil batch with a nil error means no new posts.
func (e *Engine) RefreshAll(ctx context.Context, userID, description string) (*store.Batch, error) {
	return e.run(ctx, userID, "all", func(ctx context.Context, user *store.User) (*store.Batch, error) {
		return e.refresh(ctx, user, e.active(user), description)
	})
}

// RefreshOne syncs a single service. A service with updates toggled off is a
// no-op, same as in the aggregate cycle: nothing is fetched and the watermark
// stays put.
func (e *Engine) RefreshOne(ctx context.Context, userID string, service store.Service, description string) (*store.Batch, error) {
	return e.run(ctx, userID, string(service), func(ctx context.Context, user *store.User) (*store.Batch, error) {
		d, ok := e.descriptor(service)
		if !ok {
			return nil, ErrUnknownService
		}
		conn := user.Connection(service)
		if conn == nil {
			return nil, &ServiceError{Service: service, Err: ErrNotConnected}
		}
		if !conn.AcceptUpdates {
			return nil, nil
		}
		return e.refresh(ctx, user, []descriptor{d}, description)
	})
}

// run loads the user and executes one cycle under the user's lock. The
// singleflight key includes the operation, so a duplicate click joins the
// in-flight cycle while distinct operations queue behind the lock.
func (e *Engine) run(ctx context.Context, userID, op string, fn func(context.Context, *store.User) (*store.Batch, error)) (*store.Batch, error) {
	v, err, _ := e.group.Do(userID+"|"+op, func() (interface{}, error) {
		mu := e.userLock(userID)
		mu.Lock()
		defer mu.Unlock()

		user, err := e.users.FindByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		return fn(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	batch, _ := v.(*store.Batch)
	return batch, nil
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// refresh is one sync cycle: fetch all services in parallel, merge, advance
// watermarks, commit in a single save. All document mutation is buffered
// until every fetch has finished; a failed cycle leaves watermarks and
// batches untouched.
func (e *Engine) refresh(ctx context.Context, user *store.User, ds []descriptor, description string) (*store.Batch, error) {
	if len(ds) == 0 {
		return nil, nil
	}
	start := e.now()

	type result struct {
		posts []store.Post
		err   error
	}
	results := make([]result, len(ds))

	var wg sync.WaitGroup
	for i, d := range ds {
		wg.Add(1)
		go func(i int, d descriptor) {
			defer wg.Done()
			posts, err := e.syncService(ctx, user, d, start)
			results[i] = result{posts: posts, err: err}
		}(i, d)
	}
	wg.Wait()

	// Results are merged in descriptor order, not completion order, so the
	// committed post order is stable across runs.
	var posts []store.Post
	for i, d := range ds {
		if results[i].err != nil {
			return nil, &ServiceError{Service: d.service, Err: results[i].err}
		}
		posts = append(posts, results[i].posts...)
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Timestamp.Before(posts[j].Timestamp)
	})

	// The watermark advances to the cycle start even for services that
	// returned nothing, so quiet sources are not re-scanned forever.
	for _, d := range ds {
		user.SetWatermark(d.service, start)
	}

	var batch *store.Batch
	if id := user.AppendBatch(description, e.now(), posts); id != "" {
		for i := range user.Batches {
			if user.Batches[i].ID == id {
				batch = &user.Batches[i]
			}
		}
	}

	if err := e.users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("error saving sync results: %w", err)
	}

	if batch != nil {
		e.logger.Printf("Synced %d new posts for user %s", len(batch.Posts), user.ID)
	}
	return batch, nil
}

// syncService pulls one service's new posts since its watermark. On an
// expired token it renews once and retries the whole round with the same
// watermark; a second rejection means the credentials are beyond saving.
func (e *Engine) syncService(ctx context.Context, user *store.User, d descriptor, start time.Time) ([]store.Post, error) {
	conn := user.Connection(d.service)
	if conn == nil {
		return nil, ErrNotConnected
	}

	since, ok := user.Watermark(d.service)
	if !ok {
		since = start.Add(-defaultLookback)
	}

	posts, err := e.fetchRound(ctx, conn, d, since)
	if errors.Is(err, ErrAuthExpired) {
		e.refreshMu.Lock()
		rerr := e.refresher.Refresh(ctx, user, d.service)
		e.refreshMu.Unlock()
		if rerr != nil {
			return nil, rerr
		}

		posts, err = e.fetchRound(ctx, conn, d, since)
		if errors.Is(err, ErrAuthExpired) {
			return nil, fmt.Errorf("%w: token rejected after renewal", ErrRefreshFailed)
		}
	}
	return posts, err
}

// fetchRound collects every selected source of every kind in parallel and
// flattens the results in source order. When sources fail, an expired-token
// signature takes precedence over transport errors, so the caller renews
// instead of reporting a generic failure.
func (e *Engine) fetchRound(ctx context.Context, conn *store.Connection, d descriptor, since time.Time) ([]store.Post, error) {
	type job struct {
		url   string
		parse parsePage[store.Post]
	}
	var jobs []job
	for _, k := range d.kinds {
		for _, src := range k.sources(conn) {
			url, parse := k.feedRequest(conn, src, since)
			jobs = append(jobs, job{url: url, parse: parse})
		}
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	collected := make([][]store.Post, len(jobs))
	errs := make([]error, len(jobs))

	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			collected[i], errs[i] = collect(ctx, e.fetcher, j.url, j.parse)
		}(i, j)
	}
	wg.Wait()

	var firstErr error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, ErrAuthExpired) {
			return nil, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	var posts []store.Post
	for _, c := range collected {
		posts = append(posts, c...)
	}
	return posts, nil
}
