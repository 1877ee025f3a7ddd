// Package cookies captures, clears and restores the cookies that belong to a
// site domain across every cookie store of the browser.
package cookies

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

const maxParallelRemovals = 8

// SetRequest describes one cookie write. Empty Domain means host-only; zero
// ExpirationDate means a session cookie.
type SetRequest struct {
	StoreID        string
	URL            string
	Name           string
	Value          string
	Domain         string
	Path           string
	Secure         bool
	HTTPOnly       bool
	SameSite       snapshot.SameSite
	ExpirationDate float64
	PartitionKey   *snapshot.PartitionKey
}

// RemoveRequest identifies a cookie by store, name and origin URL.
type RemoveRequest struct {
	StoreID string
	URL     string
	Name    string
	Domain  string
	Path    string
}

// Jar is the browser cookie API.
type Jar interface {
	Stores(ctx context.Context) ([]string, error)
	Cookies(ctx context.Context, storeID string) ([]snapshot.Cookie, error)
	Set(ctx context.Context, req SetRequest) error
	Remove(ctx context.Context, req RemoveRequest) error
}

type ClearResult struct {
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

type RestoreResult struct {
	Restored int `json:"restored"`
	Failed   int `json:"failed"`
}

// Manager applies site-scoped cookie operations over a Jar.
type Manager struct {
	jar Jar
}

func NewManager(jar Jar) *Manager {
	return &Manager{jar: jar}
}

// StripPort removes a trailing ":port" from a domain.
func StripPort(domain string) string {
	if i := strings.LastIndex(domain, ":"); i >= 0 && !strings.Contains(domain[i+1:], "]") {
		return domain[:i]
	}
	return domain
}

// Matches reports whether a cookie domain applies to the given site domain:
// equal, a dot-suffix of it, or both localhost.
func Matches(cookieDomain, domain string) bool {
	cd := strings.ToLower(cookieDomain)
	d := strings.ToLower(StripPort(domain))
	if d == "" {
		return false
	}
	if cd == d || strings.HasSuffix(cd, "."+d) {
		return true
	}
	return d == "localhost" && strings.TrimPrefix(cd, ".") == "localhost"
}

// OriginURL builds the URL the cookie API uses to address a cookie.
func OriginURL(c snapshot.Cookie, fallbackDomain string) string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	host := strings.TrimPrefix(c.Domain, ".")
	if host == "" {
		host = StripPort(fallbackDomain)
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// BuildSetRequest converts a captured cookie into a write. Host-only cookies
// never carry a domain so the browser keeps them host-only.
func BuildSetRequest(c snapshot.Cookie, fallbackDomain string) SetRequest {
	req := SetRequest{
		StoreID:  c.StoreID,
		URL:      OriginURL(c, fallbackDomain),
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	if req.Path == "" {
		req.Path = "/"
	}
	if !c.HostOnly && c.Domain != "" {
		req.Domain = c.Domain
	}
	if !c.Session && c.ExpirationDate > 0 {
		req.ExpirationDate = c.ExpirationDate
	}
	if c.SameSite != "" && c.SameSite != snapshot.SameSiteUnspecified {
		req.SameSite = c.SameSite
	}
	if c.PartitionKey != nil {
		pk := *c.PartitionKey
		req.PartitionKey = &pk
	}
	return req
}

// ForDomain returns every cookie for the domain across all stores. It never
// fails: enumeration errors yield an empty list.
func (m *Manager) ForDomain(ctx context.Context, domain string) []snapshot.Cookie {
	out := []snapshot.Cookie{}
	if strings.TrimSpace(domain) == "" {
		slog.Warn("cookies capture skipped", "reason", "empty domain")
		return out
	}

	stores, err := m.jar.Stores(ctx)
	if err != nil {
		slog.Warn("cookies store enumeration failed", "domain", domain, "error", err)
		return out
	}

	for _, store := range stores {
		all, err := m.jar.Cookies(ctx, store)
		if err != nil {
			slog.Warn("cookies store read failed", "domain", domain, "store_id", store, "error", err)
			continue
		}
		for _, c := range all {
			if !Matches(c.Domain, domain) {
				continue
			}
			if c.StoreID == "" {
				c.StoreID = store
			}
			out = append(out, c)
		}
	}
	slog.Debug("cookies captured", "domain", domain, "count", len(out), "stores", len(stores))
	return out
}

// Clear removes every cookie of the domain. Removals run in parallel and the
// call returns once all of them have settled.
func (m *Manager) Clear(ctx context.Context, domain string) ClearResult {
	targets := m.ForDomain(ctx, domain)
	results := make([]bool, len(targets))

	var g errgroup.Group
	g.SetLimit(maxParallelRemovals)
	for i, c := range targets {
		g.Go(func() error {
			req := RemoveRequest{
				StoreID: c.StoreID,
				URL:     OriginURL(c, domain),
				Name:    c.Name,
				Domain:  c.Domain,
				Path:    c.Path,
			}
			if err := m.jar.Remove(ctx, req); err != nil {
				slog.Warn("cookie remove failed", "domain", domain, "name", c.Name, "url", req.URL, "error", err)
				return nil
			}
			results[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var res ClearResult
	for _, ok := range results {
		if ok {
			res.Removed++
		} else {
			res.Failed++
		}
	}
	slog.Info("cookies cleared", "domain", domain, "removed", res.Removed, "failed", res.Failed)
	return res
}

// Restore writes cookies one at a time. Individual failures are counted and
// logged; they never stop the remaining writes.
func (m *Manager) Restore(ctx context.Context, cookies []snapshot.Cookie, domain string) RestoreResult {
	var res RestoreResult
	if strings.TrimSpace(domain) == "" {
		slog.Warn("cookies restore skipped", "reason", "empty domain", "count", len(cookies))
		return res
	}

	for i, c := range cookies {
		if err := ctx.Err(); err != nil {
			res.Failed += len(cookies) - i
			slog.Warn("cookies restore interrupted", "domain", domain, "remaining", len(cookies)-i, "error", err)
			break
		}
		if err := validate(c); err != nil {
			res.Failed++
			slog.Warn("cookie skipped", "domain", domain, "index", i, "error", err)
			continue
		}
		req := BuildSetRequest(c, domain)
		if err := m.jar.Set(ctx, req); err != nil {
			res.Failed++
			slog.Warn("cookie restore failed", "domain", domain, "name", c.Name, "url", req.URL, "error", err)
			continue
		}
		res.Restored++
	}
	slog.Info("cookies restored", "domain", domain, "restored", res.Restored, "failed", res.Failed)
	return res
}

func validate(c snapshot.Cookie) error {
	if c.Name == "" {
		return fmt.Errorf("cookie has no name")
	}
	return nil
}
