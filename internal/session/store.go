package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/storage"
	"github.com/data-douser/swamp-go/internal/transport"
)

// Names of the persisted session objects.
const (
	CSASessionFile = "csa_session.json"
	RWSSessionFile = "rws_session.json"
	CSACookiesFile = "csa_cookies.json"
	RWSCookiesFile = "rws_cookies.json"
)

var sessionFiles = []string{CSASessionFile, RWSSessionFile, CSACookiesFile, RWSCookiesFile}

// Store persists sessions in a storage backend.
type Store struct {
	backend storage.Backend
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore creates a Store over backend.
func NewStore(backend storage.Backend, log *slog.Logger) *Store {
	return &Store{backend: backend, logger: logger(log), now: time.Now}
}

// Save writes both sub-session states and both cookie sets.
func (st *Store) Save(ctx context.Context, s *Session) error {
	if !s.Active() {
		return &errdefs.SessionSaveError{Err: errors.New("session is not logged in")}
	}
	objects := map[string]any{
		CSASessionFile: s.csa.State,
		RWSSessionFile: s.rws.State,
		CSACookiesFile: s.csa.client.Cookies(),
		RWSCookiesFile: s.rws.client.Cookies(),
	}
	for _, name := range sessionFiles {
		data, err := json.MarshalIndent(objects[name], "", "  ")
		if err != nil {
			return &errdefs.SessionSaveError{Err: fmt.Errorf("encode %s: %w", name, err)}
		}
		if err := storage.WriteAll(ctx, st.backend, name, data, "application/json"); err != nil {
			return &errdefs.SessionSaveError{Err: err}
		}
	}
	st.logger.Debug("session saved", "storage_type", st.backend.Type())
	return nil
}

// Restore loads a saved session. Every persisted object must be present.
// A single expired cookie in either cookie set invalidates the whole
// session.
func (st *Store) Restore(ctx context.Context, opts transport.Options) (*Session, error) {
	var (
		csaState, rwsState     State
		csaCookies, rwsCookies []transport.Cookie
	)
	targets := map[string]any{
		CSASessionFile: &csaState,
		RWSSessionFile: &rwsState,
		CSACookiesFile: &csaCookies,
		RWSCookiesFile: &rwsCookies,
	}
	for _, name := range sessionFiles {
		data, err := storage.ReadAll(ctx, st.backend, name)
		if err != nil {
			return nil, &errdefs.SessionRestoreError{Err: err}
		}
		if err := json.Unmarshal(data, targets[name]); err != nil {
			return nil, &errdefs.SessionRestoreError{Err: fmt.Errorf("decode %s: %w", name, err)}
		}
	}

	now := st.now()
	for _, set := range [][]transport.Cookie{csaCookies, rwsCookies} {
		for _, c := range set {
			if c.Expired(now) {
				st.logger.Debug("saved cookie expired", "cookie", c.Name, "expires", c.Expires)
				return nil, &errdefs.SessionExpiredError{}
			}
		}
	}

	if opts.Logger == nil {
		opts.Logger = st.logger
	}
	csa, err := restoreSub(csaState, csaCookies, opts)
	if err != nil {
		return nil, &errdefs.SessionRestoreError{Err: err}
	}
	rws, err := restoreSub(rwsState, rwsCookies, opts)
	if err != nil {
		return nil, &errdefs.SessionRestoreError{Err: err}
	}
	return &Session{rws: rws, csa: csa, logger: st.logger, active: true}, nil
}

func restoreSub(state State, cookies []transport.Cookie, opts transport.Options) (*Sub, error) {
	if state.Host == "" || state.UserID == "" {
		return nil, errors.New("saved session is incomplete")
	}
	client, err := transport.New(state.Host, opts)
	if err != nil {
		return nil, err
	}
	client.RestoreCookies(cookies)
	return &Sub{State: state, client: client}, nil
}

// Clear removes every persisted session object. Missing objects are
// ignored.
func (st *Store) Clear(ctx context.Context) error {
	var errs []error
	for _, name := range sessionFiles {
		if err := st.backend.Delete(ctx, name); err != nil && !storage.IsNotFound(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
