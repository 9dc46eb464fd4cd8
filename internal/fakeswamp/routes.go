package fakeswamp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// registerRoutes sets up the HTTP route handlers.
func (s *Server) registerRoutes() {
	// Discovery and authentication
	s.mux.HandleFunc("GET /config/config.json", s.handleConfig)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("POST /logout", s.handleLogout)
	s.mux.HandleFunc("GET /users/current", s.handleCurrentUser)
	s.mux.HandleFunc("GET /users/{uid}/projects", s.handleUserProjects)

	s.mux.HandleFunc("POST /projects", s.handleCreate(s.projects, nil))
	s.mux.HandleFunc("GET /projects/{id}", s.handleGet(s.projects))
	s.mux.HandleFunc("PUT /projects/{id}", s.handleUpdate(s.projects))
	s.mux.HandleFunc("DELETE /projects/{id}", s.handleDelete(s.projects))
	s.mux.HandleFunc("GET /projects/{id}/assessment_runs", s.handleProjectList(s.runs))
	s.mux.HandleFunc("GET /projects/{id}/execution_records", s.handleProjectList(s.records))
	s.mux.HandleFunc("GET /projects/{id}/assessment_results", s.handleProjectList(s.results))

	s.mux.HandleFunc("GET /packages/types", s.handlePackageTypes)
	s.mux.HandleFunc("POST /packages", s.handleCreate(s.packages, s.fillPackageType))
	s.mux.HandleFunc("GET /packages/{id}", s.handleGet(s.packages))
	s.mux.HandleFunc("PUT /packages/{id}", s.handleUpdate(s.packages))
	s.mux.HandleFunc("DELETE /packages/{id}", s.handleDelete(s.packages))
	// users/{uid}, protected/{project}, versions/{id} and {id}/versions
	// overlap as patterns, so one route dispatches all four.
	s.mux.HandleFunc("GET /packages/{a}/{b}", s.handlePackagePair)
	s.mux.HandleFunc("PUT /packages/versions/{id}", s.handleUpdate(s.versions))
	s.mux.HandleFunc("DELETE /packages/versions/{id}", s.handleDelete(s.versions))
	s.mux.HandleFunc("POST /packages/versions/upload", s.handleUpload)
	s.mux.HandleFunc("POST /packages/versions/store", s.handleStoreVersion)
	s.mux.HandleFunc("POST /packages/versions/dependencies", s.handleDependencies)
	s.mux.HandleFunc("PUT /packages/versions/{id}/sharing", s.handleSharing)
	s.mux.HandleFunc("GET /packages/versions/{id}/download", s.handleDownload)

	s.mux.HandleFunc("GET /tools/public", s.handlePublicTools)
	s.mux.HandleFunc("GET /tools/{id}", s.handleGet(s.tools))
	s.mux.HandleFunc("GET /tools/{a}/{b}", s.handleToolPair)
	s.mux.HandleFunc("POST /tools/{id}/permission", s.handleToolPermission)

	s.mux.HandleFunc("GET /platforms/public", s.handlePublicPlatforms)
	s.mux.HandleFunc("GET /platforms/{id}", s.handleGet(s.platforms))
	s.mux.HandleFunc("GET /platforms/{id}/versions", s.handlePlatformVersions)

	s.mux.HandleFunc("POST /assessment_runs", s.handleCreate(s.runs, s.checkRun))
	s.mux.HandleFunc("GET /assessment_runs/{id}", s.handleGet(s.runs))
	s.mux.HandleFunc("PUT /assessment_runs/{id}", s.handleUpdate(s.runs))
	s.mux.HandleFunc("DELETE /assessment_runs/{id}", s.handleDelete(s.runs))
	s.mux.HandleFunc("DELETE /execution_records/{id}", s.handleDelete(s.records))
	s.mux.HandleFunc("GET /v1/assessment_results/{id}/scarf", s.handleScarf)

	s.mux.HandleFunc("POST /run_requests", s.handleCreate(s.runRequests, nil))
	s.mux.HandleFunc("POST /run_requests/one-time", s.handleOneTime)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // Client went away
}

func notFound(w http.ResponseWriter, what, id string) {
	writeJSON(w, http.StatusNotFound, Object{"error": fmt.Sprintf("%s %s not found", what, id)})
}

// readObject decodes a JSON or form request body into an object. Repeated
// form keys become arrays.
func readObject(r *http.Request) (Object, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		obj := Object{}
		if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
			return nil, err
		}
		return obj, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	obj := Object{}
	for k, vs := range r.PostForm {
		key := strings.TrimSuffix(k, "[]")
		if len(vs) == 1 && key == k {
			obj[key] = vs[0]
			continue
		}
		items := make([]any, len(vs))
		for i, v := range vs {
			items[i] = v
		}
		obj[key] = items
	}
	return obj, nil
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.opts.NoDiscovery {
		http.NotFound(w, r)
		return
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, http.StatusOK, Object{
		"version": "1.34.0",
		"servers": Object{"web": fmt.Sprintf("%s://%s/", scheme, r.Host)},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[r.PostForm.Get("username")]
	if !ok || acct.password != r.PostForm.Get("password") {
		writeJSON(w, http.StatusUnauthorized, Object{"error": "BAD_LOGIN"})
		return
	}
	uid := fmt.Sprint(acct.user["user_uid"])
	for _, name := range []string{RegSessionCookie, CSASessionCookie, "XSRF-TOKEN"} {
		token := uuid.NewString()
		if name != "XSRF-TOKEN" {
			s.tokens[token] = uid
		}
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    token,
			Path:     "/",
			MaxAge:   s.opts.CookieMaxAge,
			Secure:   s.opts.SecureCookies,
			HttpOnly: true,
		})
	}
	writeJSON(w, http.StatusOK, Object{"user_uid": uid})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	for _, c := range r.Cookies() {
		delete(s.tokens, c.Value)
	}
	s.mu.Unlock()

	// The service answers logout with a bare status word.
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, "SESSION_DESTROYED") //nolint:errcheck // Client went away
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	uid, _ := s.sessionUser(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if fmt.Sprint(acct.user["user_uid"]) == uid {
			writeJSON(w, http.StatusOK, acct.user)
			return
		}
	}
	notFound(w, "user", uid)
}

func (s *Server) handleUserProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.projects.where("project_owner_uid", r.PathValue("uid")))
}

// handleCreate stores the request body as a new object. check may reject
// or complete the object before it is stored.
func (s *Server) handleCreate(c *collection, check func(Object) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obj, err := readObject(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Object{"error": err.Error()})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if check != nil {
			if err := check(obj); err != nil {
				writeJSON(w, http.StatusBadRequest, Object{"error": err.Error()})
				return
			}
		}
		delete(obj, c.idKey)
		writeJSON(w, http.StatusOK, c.add(obj))
	}
}

func (s *Server) handleGet(c *collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		id := r.PathValue("id")
		obj, ok := c.find(id)
		if !ok {
			notFound(w, c.idKey, id)
			return
		}
		writeJSON(w, http.StatusOK, obj)
	}
}

func (s *Server) handleUpdate(c *collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patch, err := readObject(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Object{"error": err.Error()})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		id := r.PathValue("id")
		obj, ok := c.find(id)
		if !ok {
			notFound(w, c.idKey, id)
			return
		}
		for k, v := range patch {
			if k != c.idKey {
				obj[k] = v
			}
		}
		writeJSON(w, http.StatusOK, obj)
	}
}

func (s *Server) handleDelete(c *collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		id := r.PathValue("id")
		obj, ok := c.remove(id)
		if !ok {
			notFound(w, c.idKey, id)
			return
		}
		writeJSON(w, http.StatusOK, obj)
	}
}

func (s *Server) handleProjectList(c *collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, http.StatusOK, c.where("project_uuid", r.PathValue("id")))
	}
}

func (s *Server) handlePackageTypes(w http.ResponseWriter, r *http.Request) {
	if s.opts.FailPackageTypes {
		writeJSON(w, http.StatusInternalServerError, Object{"error": "unavailable"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.packageTypes
	if out == nil {
		out = []Object{}
	}
	writeJSON(w, http.StatusOK, out)
}

// fillPackageType resolves package_type from package_type_id.
func (s *Server) fillPackageType(obj Object) error {
	if obj["name"] == nil || obj["name"] == "" {
		return fmt.Errorf("name is required")
	}
	id := fmt.Sprint(obj["package_type_id"])
	for _, t := range s.packageTypes {
		if fmt.Sprint(t["package_type_id"]) == id {
			obj["package_type"] = t["name"]
		}
	}
	obj["is_owned"] = true
	return nil
}

func (s *Server) handlePackagePair(w http.ResponseWriter, r *http.Request) {
	a, b := r.PathValue("a"), r.PathValue("b")
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case a == "users":
		writeJSON(w, http.StatusOK, s.packages.all())
	case a == "protected":
		out := []Object{}
		for _, p := range s.packages.items {
			if slices.Contains(s.packageProjects[fmt.Sprint(p["package_uuid"])], b) {
				out = append(out, p)
			}
		}
		writeJSON(w, http.StatusOK, out)
	case a == "versions":
		v, ok := s.versions.find(b)
		if !ok {
			notFound(w, "package version", b)
			return
		}
		writeJSON(w, http.StatusOK, v)
	case b == "versions":
		writeJSON(w, http.StatusOK, s.versions.where("package_uuid", a))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, Object{"error": err.Error()})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Object{"error": "file is required"})
		return
	}
	defer func() {
		_ = file.Close() //nolint:errcheck // Best effort close in defer
	}()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Object{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packages.find(r.FormValue("package_uuid")); !ok {
		notFound(w, "package", r.FormValue("package_uuid"))
		return
	}
	dest := "incoming/" + uuid.NewString()
	s.uploads[dest+"/"+header.Filename] = data
	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	writeJSON(w, http.StatusOK, Object{
		"destination_path": dest,
		"filename":         header.Filename,
		"path":             dest + "/" + header.Filename,
		"extension":        strings.TrimPrefix(path.Ext(header.Filename), "."),
		"mime":             mime,
		"size":             len(data),
	})
}

func (s *Server) handleStoreVersion(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Object{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pkgPath := fmt.Sprint(obj["package_path"])
	data, ok := s.uploads[pkgPath]
	if !ok {
		writeJSON(w, http.StatusBadRequest, Object{"error": "no upload at " + pkgPath})
		return
	}
	if _, ok := s.packages.find(fmt.Sprint(obj["package_uuid"])); !ok {
		notFound(w, "package", fmt.Sprint(obj["package_uuid"]))
		return
	}
	delete(obj, s.versions.idKey)
	obj["filename"] = path.Base(pkgPath)
	v := s.versions.add(obj)
	s.archives[fmt.Sprint(v["package_version_uuid"])] = data
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSharing(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectUUIDs []string `json:"project_uuids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, Object{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := r.PathValue("id")
	v, ok := s.versions.find(id)
	if !ok {
		notFound(w, "package version", id)
		return
	}
	s.sharing[id] = body.ProjectUUIDs
	pkgID := fmt.Sprint(v["package_uuid"])
	for _, p := range body.ProjectUUIDs {
		if !slices.Contains(s.packageProjects[pkgID], p) {
			s.packageProjects[pkgID] = append(s.packageProjects[pkgID], p)
		}
	}
	// The service acknowledges sharing without a JSON body.
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, "OK") //nolint:errcheck // Client went away
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Object{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions.find(fmt.Sprint(obj["package_version_uuid"])); !ok {
		notFound(w, "package version", fmt.Sprint(obj["package_version_uuid"]))
		return
	}
	obj["package_version_dependency_id"] = len(s.dependencies) + 1
	s.dependencies = append(s.dependencies, obj)
	writeJSON(w, http.StatusOK, obj)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	data, ok := s.archives[id]
	if !ok {
		notFound(w, "package version", id)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data) //nolint:errcheck // Client went away
}

func (s *Server) handlePublicTools(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.tools.where("tool_sharing_status", "PUBLIC"))
}

func (s *Server) handleToolPair(w http.ResponseWriter, r *http.Request) {
	a, b := r.PathValue("a"), r.PathValue("b")
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case a == "protected":
		out := []Object{}
		for _, id := range s.protectedTools[b] {
			if t, ok := s.tools.find(id); ok {
				out = append(out, t)
			}
		}
		writeJSON(w, http.StatusOK, out)
	case b == "versions":
		writeJSON(w, http.StatusOK, s.toolVersions.where("tool_uuid", a))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleToolPermission(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	if _, ok := s.tools.find(id); !ok {
		notFound(w, "tool", id)
		return
	}
	answer, ok := s.permissions[id]
	if !ok {
		answer = "granted"
	}
	writeJSON(w, http.StatusOK, []string{answer})
}

func (s *Server) handlePublicPlatforms(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.platforms.all())
}

func (s *Server) handlePlatformVersions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.platformVersions.where("platform_uuid", r.PathValue("id")))
}

// checkRun requires the identifiers every assessment run references.
func (s *Server) checkRun(obj Object) error {
	for _, key := range []string{"project_uuid", "package_version_uuid", "tool_uuid", "platform_version_uuid"} {
		if v, ok := obj[key].(string); !ok || v == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	if pv, ok := s.versions.find(obj["package_version_uuid"].(string)); ok {
		obj["package_name"] = s.nameOf(s.packages, pv["package_uuid"])
		obj["package_version_string"] = pv["version_string"]
	}
	obj["tool_name"] = s.nameOf(s.tools, obj["tool_uuid"])
	if pv, ok := s.platformVersions.find(obj["platform_version_uuid"].(string)); ok {
		obj["platform_name"] = s.nameOf(s.platforms, pv["platform_uuid"])
		obj["platform_version_string"] = pv["version_string"]
	}
	return nil
}

func (s *Server) nameOf(c *collection, id any) any {
	if o, ok := c.find(fmt.Sprint(id)); ok {
		return o["name"]
	}
	return nil
}

func (s *Server) handleOneTime(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notify string   `json:"notify-when-done"`
		Runs   []string `json:"assessment-run-uuids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, Object{"error": err.Error()})
		return
	}
	if s.opts.RejectRunRequests {
		writeJSON(w, http.StatusOK, Object{"error": "run request rejected"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range body.Runs {
		if _, ok := s.runs.find(id); !ok {
			notFound(w, "assessment run", id)
			return
		}
	}
	s.submitted = append(s.submitted, body.Runs)
	writeJSON(w, http.StatusOK, body.Runs)
}

func (s *Server) handleScarf(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	doc, ok := s.scarf[id]
	if !ok {
		notFound(w, "assessment result", id)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = io.WriteString(w, doc) //nolint:errcheck // Client went away
}
