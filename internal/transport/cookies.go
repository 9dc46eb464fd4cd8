package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// Cookie is the persisted form of a cookie received from the service.
// A zero Expires marks a session cookie.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"http_only"`
}

// Expired reports whether the cookie carries an expiry at or before now.
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// FromHTTP converts a response cookie. Max-Age takes precedence over
// Expires; a negative Max-Age marks the cookie as already expired.
func FromHTTP(hc *http.Cookie, now time.Time) Cookie {
	c := Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Domain:   hc.Domain,
		Path:     hc.Path,
		Expires:  hc.Expires,
		Secure:   hc.Secure,
		HTTPOnly: hc.HttpOnly,
	}
	switch {
	case hc.MaxAge > 0:
		c.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second)
	case hc.MaxAge < 0:
		c.Expires = time.Unix(0, 0).UTC()
	}
	if !c.Expires.IsZero() {
		c.Expires = c.Expires.UTC()
	}
	return c
}

func (c Cookie) key() string {
	return fmt.Sprintf("%s;%s;%s", c.Domain, c.Path, c.Name)
}

func (c *Client) recordCookies(received []*http.Cookie) {
	if len(received) == 0 {
		return
	}
	now := time.Now()
	c.cookieMu.Lock()
	defer c.cookieMu.Unlock()
	for _, hc := range received {
		ck := FromHTTP(hc, now)
		c.cookies[ck.key()] = ck
	}
}

// Cookies returns every cookie received so far, ordered by name.
func (c *Client) Cookies() []Cookie {
	c.cookieMu.Lock()
	out := make([]Cookie, 0, len(c.cookies))
	for _, ck := range c.cookies {
		out = append(out, ck)
	}
	c.cookieMu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].key() < out[j].key()
	})
	return out
}

// RestoreCookies loads previously persisted cookies into the jar so that
// subsequent requests carry them.
func (c *Client) RestoreCookies(cookies []Cookie) {
	byURL := make(map[string][]*http.Cookie)
	c.cookieMu.Lock()
	for _, ck := range cookies {
		c.cookies[ck.key()] = ck
		u := *c.base
		if ck.Path != "" {
			u.Path = ck.Path
		}
		byURL[u.String()] = append(byURL[u.String()], &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			Secure:   ck.Secure,
			HttpOnly: ck.HTTPOnly,
		})
	}
	c.cookieMu.Unlock()

	c.mu.Lock()
	jar := c.jar
	c.mu.Unlock()
	for raw, hcs := range byURL {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		jar.SetCookies(u, hcs)
	}
}

// ClearCookies forgets every received cookie. Pooled HTTP clients are
// dropped so no later request carries the old jar.
func (c *Client) ClearCookies() {
	jar, _ := newJar()
	c.mu.Lock()
	c.jar = jar
	c.pool = nil
	c.mu.Unlock()

	c.cookieMu.Lock()
	c.cookies = make(map[string]Cookie)
	c.cookieMu.Unlock()
}
