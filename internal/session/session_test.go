package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/fakeswamp"
	"github.com/data-douser/swamp-go/internal/storage"
	"github.com/data-douser/swamp-go/internal/storage/local"
	"github.com/data-douser/swamp-go/internal/transport"
)

func newFake(t *testing.T, opts fakeswamp.Options) (*fakeswamp.Server, string) {
	t.Helper()
	fake := fakeswamp.New(opts)
	fake.AddUser("alice", "secret", fakeswamp.Object{"user_uid": "u-1", "first_name": "Alice"})
	srv := fake.Start()
	t.Cleanup(srv.Close)
	return fake, srv.URL
}

func login(t *testing.T, host string) *Session {
	t.Helper()
	s, err := Login(context.Background(), Options{Host: host, Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return s
}

func TestLogin(t *testing.T) {
	_, host := newFake(t, fakeswamp.Options{})
	s := login(t, host)

	if !s.Active() {
		t.Error("Active() = false after login")
	}
	if s.UserID() != "u-1" {
		t.Errorf("UserID() = %q, want u-1", s.UserID())
	}
	if s.Host() != host+"/" {
		t.Errorf("Host() = %q, want %q", s.Host(), host+"/")
	}
	for name, sub := range map[string]*Sub{"rws": s.RWS(), "csa": s.CSA()} {
		if sub.SessionKey == "" || sub.CSASessionKey == "" || sub.SessionID == "" {
			t.Errorf("%s cookies not bucketed: %+v", name, sub.State)
		}
	}
	if s.RWS().SessionKey == s.CSA().SessionKey {
		t.Error("sub-sessions share a session key")
	}

	resp, err := s.CSA().Client().Get(context.Background(), "users/current", nil)
	if err != nil {
		t.Fatalf("users/current error = %v", err)
	}
	if resp.Object["first_name"] != "Alice" {
		t.Errorf("users/current = %v", resp.Object)
	}
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name  string
		fake  fakeswamp.Options
		opts  Options
		check func(t *testing.T, err error)
	}{
		{
			name: "missing credentials",
			opts: Options{Username: "alice"},
			check: func(t *testing.T, err error) {
				var optErr *errdefs.ClientOptionError
				if !errors.As(err, &optErr) {
					t.Errorf("error = %v, want ClientOptionError", err)
				}
			},
		},
		{
			name: "bad password",
			opts: Options{Username: "alice", Password: "wrong"},
			check: func(t *testing.T, err error) {
				var httpErr *errdefs.HTTPError
				if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized {
					t.Errorf("error = %v, want HTTP 401", err)
				}
			},
		},
		{
			name: "insecure cookie",
			opts: Options{Username: "alice", Password: "secret", RequireSecureCookies: true},
			check: func(t *testing.T, err error) {
				var secErr *errdefs.SecurityError
				if !errors.As(err, &secErr) {
					t.Errorf("error = %v, want SecurityError", err)
				}
				if errdefs.ExitCode(err) != errdefs.ExitTransport {
					t.Errorf("ExitCode() = %d", errdefs.ExitCode(err))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, host := newFake(t, tt.fake)
			tt.opts.Host = host
			_, err := Login(context.Background(), tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestLogin_SecureCookies(t *testing.T) {
	_, host := newFake(t, fakeswamp.Options{SecureCookies: true})
	s, err := Login(context.Background(), Options{
		Host: host, Username: "alice", Password: "secret", RequireSecureCookies: true,
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !s.CSA().RequireSecureCookies {
		t.Error("RequireSecureCookies not recorded")
	}
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()

	t.Run("advertised", func(t *testing.T) {
		_, host := newFake(t, fakeswamp.Options{})
		web, err := Discover(ctx, host, transport.Options{})
		if err != nil || web != host+"/" {
			t.Errorf("Discover() = %q, %v", web, err)
		}
	})

	t.Run("fallback to host", func(t *testing.T) {
		fake, host := newFake(t, fakeswamp.Options{NoDiscovery: true})
		web, err := Discover(ctx, host, transport.Options{})
		if err != nil || web != host+"/" {
			t.Errorf("Discover() = %q, %v", web, err)
		}
		if n := fake.Requests(http.MethodGet, "/config/config.json"); n != 1 {
			t.Errorf("discovery requests = %d, want 1 (no retry on 404)", n)
		}
		if _, err := Login(ctx, Options{Host: host, Username: "alice", Password: "secret"}); err != nil {
			t.Errorf("Login() without discovery error = %v", err)
		}
	})
}

func TestLogout(t *testing.T) {
	fake, host := newFake(t, fakeswamp.Options{})
	s := login(t, host)
	ctx := context.Background()

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if s.Active() {
		t.Error("Active() = true after logout")
	}
	for name, sub := range map[string]*Sub{"rws": s.RWS(), "csa": s.CSA()} {
		if sub.UserID != "" || sub.SessionID != "" || sub.SessionKey != "" || sub.CSASessionKey != "" {
			t.Errorf("%s state after logout = %+v, want cleared", name, sub.State)
		}
		if got := sub.Client().Cookies(); len(got) != 0 {
			t.Errorf("%s cookies after logout = %v, want none", name, got)
		}
	}
	if s.Host() == "" {
		t.Error("Host() cleared by logout")
	}
	store, _ := newStore(t)
	if err := store.Save(ctx, s); !errors.As(err, new(*errdefs.SessionSaveError)) {
		t.Errorf("Save() after logout error = %v, want SessionSaveError", err)
	}
	if n := fake.Requests(http.MethodPost, "/logout"); n != 2 {
		t.Errorf("logout requests = %d, want 2", n)
	}

	if err := s.Logout(ctx); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}
	if n := fake.Requests(http.MethodPost, "/logout"); n != 2 {
		t.Errorf("inactive logout issued a request (%d)", n)
	}

	if _, err := s.CSA().Client().Get(ctx, "users/current", nil); !errors.As(err, new(*errdefs.HTTPError)) {
		t.Errorf("request after logout error = %v, want HTTP 401", err)
	}
}

func TestDestroyed(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&errdefs.NoJSONError{Body: "SESSION_DESTROYED"}, true},
		{&errdefs.HTTPError{StatusCode: 500, Body: `{"error":"SESSION_DESTROYED"}`}, true},
		{errors.New("upstream: SESSION_DESTROYED"), true},
		{&errdefs.HTTPError{StatusCode: 500, Body: "boom"}, false},
		{&errdefs.TransportError{Op: "POST", Err: errors.New("refused")}, false},
	}
	for _, tt := range tests {
		if got := destroyed(tt.err); got != tt.want {
			t.Errorf("destroyed(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func newStore(t *testing.T) (*Store, storage.Backend) {
	t.Helper()
	backend, err := local.New(local.Config{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("local.New() error = %v", err)
	}
	return NewStore(backend, nil), backend
}

func TestStore_SaveRestore(t *testing.T) {
	ctx := context.Background()
	_, host := newFake(t, fakeswamp.Options{CookieMaxAge: 3600})
	s := login(t, host)
	store, backend := newStore(t)

	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	names, err := backend.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 4 {
		t.Errorf("saved objects = %v, want 4", names)
	}

	restored, err := store.Restore(ctx, transport.Options{})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !restored.Active() || restored.UserID() != "u-1" {
		t.Errorf("restored session = active %v, user %q", restored.Active(), restored.UserID())
	}
	if restored.CSA().State != s.CSA().State {
		t.Errorf("restored CSA state = %+v, want %+v", restored.CSA().State, s.CSA().State)
	}

	// The restored cookies authenticate without a new login.
	resp, err := restored.RWS().Client().Get(ctx, "users/current", nil)
	if err != nil {
		t.Fatalf("users/current with restored cookies error = %v", err)
	}
	if resp.Object["user_uid"] != "u-1" {
		t.Errorf("users/current = %v", resp.Object)
	}
}

func TestStore_RestoreMissingObject(t *testing.T) {
	ctx := context.Background()
	_, host := newFake(t, fakeswamp.Options{})
	store, backend := newStore(t)
	if err := store.Save(ctx, login(t, host)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	for _, name := range sessionFiles {
		t.Run(name, func(t *testing.T) {
			data, err := storage.ReadAll(ctx, backend, name)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if err := backend.Delete(ctx, name); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			defer storage.WriteAll(ctx, backend, name, data, "application/json")

			_, err = store.Restore(ctx, transport.Options{})
			var restoreErr *errdefs.SessionRestoreError
			if !errors.As(err, &restoreErr) {
				t.Errorf("Restore() error = %v, want SessionRestoreError", err)
			}
		})
	}
}

func TestStore_RestoreCorrupt(t *testing.T) {
	ctx := context.Background()
	_, host := newFake(t, fakeswamp.Options{})
	store, backend := newStore(t)
	if err := store.Save(ctx, login(t, host)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := storage.WriteAll(ctx, backend, RWSSessionFile, []byte("{not json"), ""); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	if _, err := store.Restore(ctx, transport.Options{}); errdefs.ExitCode(err) != errdefs.ExitSessionRestore {
		t.Errorf("Restore() error = %v, want SessionRestoreError", err)
	}
}

func TestStore_RestoreExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("expired on issue", func(t *testing.T) {
		_, host := newFake(t, fakeswamp.Options{CookieMaxAge: -1})
		store, _ := newStore(t)
		if err := store.Save(ctx, login(t, host)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		_, err := store.Restore(ctx, transport.Options{})
		var expired *errdefs.SessionExpiredError
		if !errors.As(err, &expired) {
			t.Errorf("Restore() error = %v, want SessionExpiredError", err)
		}
	})

	t.Run("one expired among valid cookies", func(t *testing.T) {
		_, host := newFake(t, fakeswamp.Options{CookieMaxAge: 3600})
		store, backend := newStore(t)
		if err := store.Save(ctx, login(t, host)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		data, err := storage.ReadAll(ctx, backend, CSACookiesFile)
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		var cookies []transport.Cookie
		if err := json.Unmarshal(data, &cookies); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if len(cookies) < 2 {
			t.Fatalf("saved cookies = %d, want several", len(cookies))
		}
		cookies[0].Expires = time.Now().Add(-time.Minute)
		data, _ = json.Marshal(cookies)
		if err := storage.WriteAll(ctx, backend, CSACookiesFile, data, "application/json"); err != nil {
			t.Fatalf("WriteAll() error = %v", err)
		}

		if _, err := store.Restore(ctx, transport.Options{}); errdefs.ExitCode(err) != errdefs.ExitSessionExpired {
			t.Errorf("Restore() error = %v, want SessionExpiredError", err)
		}
	})

	t.Run("clock past expiry", func(t *testing.T) {
		_, host := newFake(t, fakeswamp.Options{CookieMaxAge: 60})
		store, _ := newStore(t)
		if err := store.Save(ctx, login(t, host)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		if _, err := store.Restore(ctx, transport.Options{}); errdefs.ExitCode(err) != errdefs.ExitSessionExpired {
			t.Errorf("Restore() error = %v, want SessionExpiredError", err)
		}
	})
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	_, host := newFake(t, fakeswamp.Options{})
	store, backend := newStore(t)
	if err := store.Save(ctx, login(t, host)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	names, _ := backend.List(ctx, "")
	if len(names) != 0 {
		t.Errorf("objects after Clear() = %v", names)
	}
	if err := store.Clear(ctx); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
	if _, err := store.Restore(ctx, transport.Options{}); errdefs.ExitCode(err) != errdefs.ExitSessionRestore {
		t.Errorf("Restore() after Clear() error = %v", err)
	}
}
