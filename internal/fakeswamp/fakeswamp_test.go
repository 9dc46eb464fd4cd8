package fakeswamp

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
)

func TestServer_Routes(t *testing.T) {
	s := New(Options{})
	s.AddUser("alice", "secret", Object{"user_uid": "u-1"})
	s.AddProject(Object{"project_uid": "p-1", "full_name": "Alpha", "project_owner_uid": "u-1"})
	srv := s.Start()
	defer srv.Close()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := client.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, _ := get("/users/u-1/projects"); code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", code)
	}

	code, body := get("/config/config.json")
	if code != http.StatusOK || !strings.Contains(body, srv.URL+"/") {
		t.Errorf("config.json = %d %s", code, body)
	}

	resp, err := client.PostForm(srv.URL+"/login", url.Values{"username": {"alice"}, "password": {"secret"}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	var login struct {
		UserUID string `json:"user_uid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	resp.Body.Close()
	if login.UserUID != "u-1" {
		t.Errorf("user_uid = %q", login.UserUID)
	}

	code, body = get("/users/u-1/projects")
	if code != http.StatusOK || !strings.Contains(body, "Alpha") {
		t.Errorf("projects = %d %s", code, body)
	}
	if n := s.Requests(http.MethodGet, "/users/u-1/projects"); n != 2 {
		t.Errorf("Requests() = %d, want 2", n)
	}

	if code, _ := get("/packages/versions/missing"); code != http.StatusNotFound {
		t.Errorf("missing version status = %d, want 404", code)
	}
	if code, body := get("/packages/users/u-1"); code != http.StatusOK || strings.TrimSpace(body) != "[]" {
		t.Errorf("empty package list = %d %q", code, body)
	}
}

func TestServer_BadLogin(t *testing.T) {
	s := New(Options{})
	s.AddUser("alice", "secret", Object{"user_uid": "u-1"})
	srv := s.Start()
	defer srv.Close()

	resp, err := http.PostForm(srv.URL+"/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if len(resp.Cookies()) != 0 {
		t.Errorf("cookies issued on failed login: %v", resp.Cookies())
	}
}
