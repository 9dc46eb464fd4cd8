// Package fakeswamp provides an in-memory SWAMP web service for tests.
//
// The server speaks the same JSON endpoints as the real service, keeps all
// state in memory and counts requests per method and path so that callers
// can assert on caching behaviour.
package fakeswamp

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Object is a raw JSON object as stored and served by the fake.
type Object = map[string]any

// Session cookie names issued on login.
const (
	RegSessionCookie = "swamp_reg_session"
	CSASessionCookie = "swamp_csa_session"
)

// Options tune the fake's behaviour.
type Options struct {
	// SecureCookies marks issued session cookies as Secure.
	SecureCookies bool

	// CookieMaxAge sets Max-Age on issued cookies. Zero issues session
	// cookies and a negative value issues already-expired cookies.
	CookieMaxAge int

	// RejectRunRequests makes run_requests/one-time answer with a JSON
	// object instead of an array.
	RejectRunRequests bool

	// NoDiscovery makes config/config.json answer 404.
	NoDiscovery bool

	// FailPackageTypes makes packages/types answer 500.
	FailPackageTypes bool

	Logger *slog.Logger
}

type account struct {
	password string
	user     Object
}

// collection is an ordered set of objects keyed by one identity field.
type collection struct {
	idKey string
	items []Object
}

func (c *collection) find(id string) (Object, bool) {
	for _, o := range c.items {
		if fmt.Sprint(o[c.idKey]) == id {
			return o, true
		}
	}
	return nil, false
}

func (c *collection) add(o Object) Object {
	if _, ok := o[c.idKey]; !ok {
		o[c.idKey] = uuid.NewString()
	}
	c.items = append(c.items, o)
	return o
}

func (c *collection) remove(id string) (Object, bool) {
	for i, o := range c.items {
		if fmt.Sprint(o[c.idKey]) == id {
			c.items = slices.Delete(c.items, i, i+1)
			return o, true
		}
	}
	return nil, false
}

func (c *collection) all() []Object {
	return append([]Object{}, c.items...)
}

func (c *collection) where(key, value string) []Object {
	out := []Object{}
	for _, o := range c.items {
		if fmt.Sprint(o[key]) == value {
			out = append(out, o)
		}
	}
	return out
}

// Server is the in-memory service.
type Server struct {
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux

	mu       sync.Mutex
	counts   map[string]int
	accounts map[string]account
	tokens   map[string]string

	projects         *collection
	packages         *collection
	versions         *collection
	tools            *collection
	toolVersions     *collection
	platforms        *collection
	platformVersions *collection
	runs             *collection
	records          *collection
	results          *collection
	runRequests      *collection

	packageTypes    []Object
	packageProjects map[string][]string
	protectedTools  map[string][]string
	sharing         map[string][]string
	permissions     map[string]string
	uploads         map[string][]byte
	archives        map[string][]byte
	scarf           map[string]string
	dependencies    []Object
	submitted       [][]string
}

// New creates a server with no data.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		opts:             opts,
		logger:           logger,
		mux:              http.NewServeMux(),
		counts:           make(map[string]int),
		accounts:         make(map[string]account),
		tokens:           make(map[string]string),
		projects:         &collection{idKey: "project_uid"},
		packages:         &collection{idKey: "package_uuid"},
		versions:         &collection{idKey: "package_version_uuid"},
		tools:            &collection{idKey: "tool_uuid"},
		toolVersions:     &collection{idKey: "tool_version_uuid"},
		platforms:        &collection{idKey: "platform_uuid"},
		platformVersions: &collection{idKey: "platform_version_uuid"},
		runs:             &collection{idKey: "assessment_run_uuid"},
		records:          &collection{idKey: "execution_record_uuid"},
		results:          &collection{idKey: "assessment_result_uuid"},
		runRequests:      &collection{idKey: "run_request_uuid"},
		packageProjects:  make(map[string][]string),
		protectedTools:   make(map[string][]string),
		sharing:          make(map[string][]string),
		permissions:      make(map[string]string),
		uploads:          make(map[string][]byte),
		archives:         make(map[string][]byte),
		scarf:            make(map[string]string),
	}

	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.authMiddleware(s.mux))
}

// Start serves the fake on a local listener until the returned server is
// closed.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s.Handler())
}

// loggingMiddleware logs and counts all incoming HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("incoming request", "method", r.Method, "path", r.URL.Path)
		s.mu.Lock()
		s.counts[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware rejects requests that carry no live session cookie.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	open := map[string]bool{
		"/config/config.json": true,
		"/login":              true,
		"/logout":             true,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if open[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := s.sessionUser(r); !ok {
			writeJSON(w, http.StatusUnauthorized, Object{"error": "SESSION_INVALID"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sessionUser(r *http.Request) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range []string{RegSessionCookie, CSASessionCookie} {
		if c, err := r.Cookie(name); err == nil {
			if uid, ok := s.tokens[c.Value]; ok {
				return uid, true
			}
		}
	}
	return "", false
}

// Requests returns how many times method and path were requested.
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method+" "+path]
}

// ResetCounts forgets all request counts.
func (s *Server) ResetCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.counts)
}

// AddUser registers an account. The user object must carry user_uid.
func (s *Server) AddUser(username, password string, user Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := user["username"]; !ok {
		user["username"] = username
	}
	s.accounts[username] = account{password: password, user: user}
}

// AddProject stores a project and returns it with its identity assigned.
func (s *Server) AddProject(p Object) Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects.add(p)
}

// AddPackage stores a package, visible in each of projectIDs.
func (s *Server) AddPackage(p Object, projectIDs ...string) Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.packages.add(p)
	id := fmt.Sprint(p["package_uuid"])
	s.packageProjects[id] = append(s.packageProjects[id], projectIDs...)
	return p
}

// AddPackageVersion stores a package version and its archive bytes.
func (s *Server) AddPackageVersion(v Object, archive []byte) Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	v = s.versions.add(v)
	if archive != nil {
		s.archives[fmt.Sprint(v["package_version_uuid"])] = archive
	}
	return v
}

// AddPackageType registers a package type and its default platform.
func (s *Server) AddPackageType(name, typeID, defaultPlatform string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := Object{"name": name, "package_type_id": typeID}
	if defaultPlatform != "" {
		t["default_platform_uuid"] = defaultPlatform
	}
	s.packageTypes = append(s.packageTypes, t)
}

// AddTool stores a tool. Without projectIDs the tool is public; otherwise
// it is visible only to those projects.
func (s *Server) AddTool(t Object, projectIDs ...string) Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	t = s.tools.add(t)
	id := fmt.Sprint(t["tool_uuid"])
	for _, p := range projectIDs {
		s.protectedTools[p] = append(s.protectedTools[p], id)
	}
	if len(projectIDs) > 0 {
		t["tool_sharing_status"] = "PROTECTED"
	} else if _, ok := t["tool_sharing_status"]; !ok {
		t["tool_sharing_status"] = "PUBLIC"
	}
	return t
}

func (s *Server) AddToolVersion(v Object) Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolVersions.add(v)
}

// SetToolPermission fixes the answer of tools/{id}/permission.
func (s *Server) SetToolPermission(toolID, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[toolID] = answer
}

func (s *Server) AddPlatform(p Object) Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.platforms.add(p)
}

func (s *Server) AddPlatformVersion(v Object) Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.platformVersions.add(v)
}

// AddExecutionRecord stores a raw execution record as the service nests it.
func (s *Server) AddExecutionRecord(r Object) Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.add(r)
}

// AddResult stores an assessment result and its SCARF document.
func (s *Server) AddResult(r Object, scarf string) Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	r = s.results.add(r)
	s.scarf[fmt.Sprint(r["assessment_result_uuid"])] = scarf
	return r
}

// Runs returns the assessment runs created so far.
func (s *Server) Runs() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.runs.items)
}

// Versions returns the package versions stored so far.
func (s *Server) Versions() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.versions.items)
}

// Packages returns the packages stored so far.
func (s *Server) Packages() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.packages.items)
}

// Submitted returns the run identifiers of each accepted one-time request.
func (s *Server) Submitted() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.submitted)
}

// Sharing returns the projects a package version is shared with.
func (s *Server) Sharing(versionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sharing[versionID])
}

// Dependencies returns every dependency record posted so far.
func (s *Server) Dependencies() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.dependencies)
}
