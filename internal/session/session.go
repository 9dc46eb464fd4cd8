// Package session manages authenticated sessions with a SWAMP web service.
//
// A Session holds two sub-sessions, RWS and CSA. Older deployments served
// them from separate hosts; current ones serve both from the discovered web
// service URL, but each still logs in on its own and carries its own cookies.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/codec"
	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/transport"
)

// Session cookie names. Any other cookie set on login is the session id.
const (
	RegSessionCookie = "swamp_reg_session"
	CSASessionCookie = "swamp_csa_session"
)

// destroyedMarker is how the service reports a logout of an already
// destroyed session.
const destroyedMarker = "SESSION_DESTROYED"

// Options configures Login.
type Options struct {
	// Host is the SWAMP front-end URL (e.g. https://www.mir-swamp.org).
	Host string

	Username string
	Password string

	// RequireSecureCookies aborts login when the service sets a cookie
	// without the Secure attribute.
	RequireSecureCookies bool

	Transport transport.Options
	Logger    *slog.Logger
}

// State is the persisted identity of one sub-session.
type State struct {
	Host                 string `json:"host"`
	UserID               string `json:"user_uid"`
	SessionID            string `json:"session_id,omitempty"`
	SessionKey           string `json:"session_key,omitempty"`
	CSASessionKey        string `json:"csa_session_key,omitempty"`
	RequireSecureCookies bool   `json:"require_secure_cookies"`
}

// Sub is one authenticated sub-session bound to its own client.
type Sub struct {
	State
	client *transport.Client
}

// Client returns the transport bound to this sub-session.
func (s *Sub) Client() *transport.Client { return s.client }

// Session is an authenticated pair of sub-sessions.
type Session struct {
	rws    *Sub
	csa    *Sub
	logger *slog.Logger

	mu     sync.Mutex
	active bool
}

func (s *Session) RWS() *Sub { return s.rws }

func (s *Session) CSA() *Sub { return s.csa }

// UserID returns the identifier of the logged in user, or "" after Logout.
func (s *Session) UserID() string { return s.csa.UserID }

// Host returns the web service URL the session talks to.
func (s *Session) Host() string { return s.csa.Host }

// Active reports whether the session is logged in.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Discover resolves the web service URL advertised by host in
// config/config.json. Hosts that do not publish discovery data are used
// as-is.
func Discover(ctx context.Context, host string, opts transport.Options) (string, error) {
	client, err := transport.New(host, opts)
	if err != nil {
		return "", err
	}
	resp, err := client.Get(ctx, "config/config.json", nil)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger(opts.Logger).Debug("discovery unavailable, using host", "url", client.BaseURL(), "error", err)
		return client.BaseURL(), nil
	}
	if servers, ok := resp.Object["servers"].(map[string]any); ok {
		if web, ok := servers["web"].(string); ok && web != "" {
			return web, nil
		}
	}
	return client.BaseURL(), nil
}

// Login discovers the web service and authenticates both sub-sessions.
func Login(ctx context.Context, opts Options) (*Session, error) {
	if strings.TrimSpace(opts.Host) == "" {
		return nil, &errdefs.ClientOptionError{Msg: "host is required"}
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, &errdefs.ClientOptionError{Msg: "username and password are required"}
	}
	log := logger(opts.Logger)
	if opts.Transport.Logger == nil {
		opts.Transport.Logger = log
	}

	web, err := Discover(ctx, opts.Host, opts.Transport)
	if err != nil {
		return nil, err
	}

	rws, err := loginSub(ctx, web, opts)
	if err != nil {
		return nil, fmt.Errorf("rws login: %w", err)
	}
	csa, err := loginSub(ctx, web, opts)
	if err != nil {
		return nil, fmt.Errorf("csa login: %w", err)
	}

	log.Info("logged in", "url", web, "user", csa.UserID)
	return &Session{rws: rws, csa: csa, logger: log, active: true}, nil
}

func loginSub(ctx context.Context, web string, opts Options) (*Sub, error) {
	client, err := transport.New(web, opts.Transport)
	if err != nil {
		return nil, err
	}
	resp, err := client.PostForm(ctx, "login", url.Values{
		"username": {opts.Username},
		"password": {opts.Password},
	})
	if err != nil {
		return nil, err
	}

	sub := &Sub{
		State:  State{Host: client.BaseURL(), RequireSecureCookies: opts.RequireSecureCookies},
		client: client,
	}
	for _, c := range resp.Cookies {
		if opts.RequireSecureCookies && !c.Secure {
			return nil, &errdefs.SecurityError{Cookie: c.Name}
		}
		switch c.Name {
		case RegSessionCookie:
			sub.SessionKey = c.Value
		case CSASessionCookie:
			sub.CSASessionKey = c.Value
		default:
			sub.SessionID = c.Value
		}
	}

	uid, ok := codec.DecodeValue(resp.Object[api.UserIDKey], api.KindIdentifier)
	if !ok || uid.Text() == "" {
		return nil, &errdefs.NoJSONError{URL: client.URL("login"), Body: string(resp.Body)}
	}
	sub.UserID = uid.Text()
	return sub, nil
}

// Logout ends both sub-sessions. It is a no-op on an inactive session, and
// a service answer saying the session is already destroyed counts as
// success. Afterwards the session holds no user, session keys or cookies,
// even when a logout request failed.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}

	var errs []error
	for _, sub := range []*Sub{s.rws, s.csa} {
		if _, err := sub.client.PostForm(ctx, "logout", nil); err != nil && !destroyed(err) {
			errs = append(errs, err)
		}
	}
	s.active = false
	for _, sub := range []*Sub{s.rws, s.csa} {
		sub.State = State{Host: sub.Host, RequireSecureCookies: sub.RequireSecureCookies}
		sub.client.ClearCookies()
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.logger.Info("logged out", "url", s.csa.Host)
	return nil
}

func destroyed(err error) bool {
	var noJSON *errdefs.NoJSONError
	if errors.As(err, &noJSON) && strings.Contains(noJSON.Body, destroyedMarker) {
		return true
	}
	var httpErr *errdefs.HTTPError
	if errors.As(err, &httpErr) && strings.Contains(httpErr.Body, destroyedMarker) {
		return true
	}
	return strings.Contains(err.Error(), destroyedMarker)
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
