package feed

import (
	"context"
	"errors"
	"fmt"

	"dash/internal/store"
)

// withUser loads the user and runs fn under the user's lock, so management
// operations cannot interleave with a running sync cycle.
func (e *Engine) withUser(ctx context.Context, userID string, fn func(*store.User) error) error {
	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return fn(user)
}

// SetupContent lists the sources available for selection on a service's
// setup screen, with the already selected ones marked. An expired token is
// renewed once before giving up.
func (e *Engine) SetupContent(ctx context.Context, userID string, service store.Service, kindName string) ([]SetupItem, error) {
	var items []SetupItem
	err := e.withUser(ctx, userID, func(user *store.User) error {
		d, ok := e.descriptor(service)
		if !ok {
			return ErrUnknownService
		}
		k, ok := d.kind(kindName)
		if !ok {
			return ErrUnknownSourceKind
		}
		conn := user.Connection(service)
		if conn == nil {
			return ErrNotConnected
		}

		url, parse := k.setupRequest(conn)
		list, err := collect(ctx, e.fetcher, url, parse)
		if errors.Is(err, ErrAuthExpired) {
			if rerr := e.refresher.Refresh(ctx, user, service); rerr != nil {
				return rerr
			}
			url, parse = k.setupRequest(conn)
			list, err = collect(ctx, e.fetcher, url, parse)
			if errors.Is(err, ErrAuthExpired) {
				return fmt.Errorf("%w: token rejected after renewal", ErrRefreshFailed)
			}
		}
		if err != nil {
			return err
		}

		selected := make(map[string]bool)
		for _, s := range k.sources(conn) {
			selected[s.ID] = true
		}
		for i := range list {
			list[i].Checked = selected[list[i].ID]
		}
		items = list
		return nil
	})
	return items, err
}

// SaveSources replaces the selected sources of one kind.
func (e *Engine) SaveSources(ctx context.Context, userID string, service store.Service, kindName string, sources []store.Source) error {
	return e.withUser(ctx, userID, func(user *store.User) error {
		d, ok := e.descriptor(service)
		if !ok {
			return ErrUnknownService
		}
		k, ok := d.kind(kindName)
		if !ok {
			return ErrUnknownSourceKind
		}
		conn := user.Connection(service)
		if conn == nil {
			return ErrNotConnected
		}

		k.setSources(conn, sources)
		return e.users.Save(ctx, user)
	})
}

// ToggleUpdates flips whether the service participates in full refreshes
// and returns the new state.
func (e *Engine) ToggleUpdates(ctx context.Context, userID string, service store.Service) (bool, error) {
	var enabled bool
	err := e.withUser(ctx, userID, func(user *store.User) error {
		if _, ok := e.descriptor(service); !ok {
			return ErrUnknownService
		}
		conn := user.Connection(service)
		if conn == nil {
			return ErrNotConnected
		}

		conn.AcceptUpdates = !conn.AcceptUpdates
		enabled = conn.AcceptUpdates
		return e.users.Save(ctx, user)
	})
	return enabled, err
}

// Deauthorize revokes the service's token upstream and removes the
// connection and its watermark. A token the upstream already considers dead
// does not block the local disconnect.
func (e *Engine) Deauthorize(ctx context.Context, userID string, service store.Service) error {
	return e.withUser(ctx, userID, func(user *store.User) error {
		d, ok := e.descriptor(service)
		if !ok {
			return ErrUnknownService
		}
		conn := user.Connection(service)
		if conn == nil {
			return ErrNotConnected
		}

		if err := d.deauthorize(ctx, e.fetcher, conn); err != nil && !errors.Is(err, ErrAuthExpired) {
			return err
		}

		user.SetConnection(service, nil)
		user.ClearWatermark(service)
		if err := e.users.Save(ctx, user); err != nil {
			return err
		}
		e.logger.Printf("Disconnected %s for user %s", service.Display(), user.ID)
		return nil
	})
}

// ResetService wipes a service's synced posts and its watermark so the next
// cycle starts from the lookback window. The connection stays attached.
func (e *Engine) ResetService(ctx context.Context, userID string, service store.Service) error {
	return e.withUser(ctx, userID, func(user *store.User) error {
		if _, ok := e.descriptor(service); !ok {
			return ErrUnknownService
		}

		removed := user.RemovePosts(service)
		user.ClearWatermark(service)
		if err := e.users.Save(ctx, user); err != nil {
			return err
		}
		e.logger.Printf("Reset %s for user %s, dropped %d posts", service.Display(), user.ID, removed)
		return nil
	})
}

// DismissBatch removes one committed batch from the dashboard.
func (e *Engine) DismissBatch(ctx context.Context, userID, batchID string) error {
	return e.withUser(ctx, userID, func(user *store.User) error {
		if !user.RemoveBatch(batchID) {
			return store.ErrNotFound
		}
		return e.users.Save(ctx, user)
	})
}

// Connect installs a freshly authorized connection. Reconnecting the same
// profile replaces the tokens in place and keeps the selected sources;
// connecting a different profile while one is attached is rejected.
func (e *Engine) Connect(ctx context.Context, userID string, service store.Service, conn store.Connection) (renewed bool, err error) {
	err = e.withUser(ctx, userID, func(user *store.User) error {
		if _, ok := e.descriptor(service); !ok {
			return ErrUnknownService
		}
		if conn.ProfileID == "" || conn.AccessToken == "" {
			return ErrMissingPermissions
		}

		existing := user.Connection(service)
		switch {
		case existing == nil:
			c := conn
			c.AcceptUpdates = true
			user.SetConnection(service, &c)
		case existing.ProfileID == conn.ProfileID:
			existing.AccessToken = conn.AccessToken
			if conn.RefreshToken != "" {
				existing.RefreshToken = conn.RefreshToken
			}
			renewed = true
		default:
			return ErrAlreadyConnected
		}
		return e.users.Save(ctx, user)
	})
	return renewed, err
}
