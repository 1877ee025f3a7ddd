package cdpcontrol

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/sessionvault/internal/cookies"
	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

// wireCookie is a cookie as returned by Storage.getCookies. partitionKey is
// a string on older browsers and an object on newer ones.
type wireCookie struct {
	Name         string          `json:"name"`
	Value        string          `json:"value"`
	Domain       string          `json:"domain"`
	Path         string          `json:"path"`
	Expires      float64         `json:"expires"`
	HTTPOnly     bool            `json:"httpOnly"`
	Secure       bool            `json:"secure"`
	Session      bool            `json:"session"`
	SameSite     string          `json:"sameSite,omitempty"`
	PartitionKey json.RawMessage `json:"partitionKey,omitempty"`
}

type wirePartitionKey struct {
	TopLevelSite         string `json:"topLevelSite"`
	HasCrossSiteAncestor bool   `json:"hasCrossSiteAncestor"`
}

// wireCookieParam is the Storage.setCookies input.
type wireCookieParam struct {
	Name         string            `json:"name"`
	Value        string            `json:"value"`
	URL          string            `json:"url,omitempty"`
	Domain       string            `json:"domain,omitempty"`
	Path         string            `json:"path,omitempty"`
	Secure       bool              `json:"secure,omitempty"`
	HTTPOnly     bool              `json:"httpOnly,omitempty"`
	SameSite     string            `json:"sameSite,omitempty"`
	Expires      float64           `json:"expires,omitempty"`
	PartitionKey *wirePartitionKey `json:"partitionKey,omitempty"`
}

func sameSiteFromWire(v string) snapshot.SameSite {
	switch network.CookieSameSite(v) {
	case network.CookieSameSiteStrict:
		return snapshot.SameSiteStrict
	case network.CookieSameSiteLax:
		return snapshot.SameSiteLax
	case network.CookieSameSiteNone:
		return snapshot.SameSiteNoRestriction
	}
	return snapshot.SameSiteUnspecified
}

func sameSiteToWire(v snapshot.SameSite) string {
	switch v {
	case snapshot.SameSiteStrict:
		return network.CookieSameSiteStrict.String()
	case snapshot.SameSiteLax:
		return network.CookieSameSiteLax.String()
	case snapshot.SameSiteNoRestriction:
		return network.CookieSameSiteNone.String()
	}
	return ""
}

func parsePartitionKey(raw json.RawMessage) *snapshot.PartitionKey {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var site string
	if json.Unmarshal(raw, &site) == nil {
		if site == "" {
			return nil
		}
		return &snapshot.PartitionKey{TopLevelSite: site}
	}
	var pk wirePartitionKey
	if err := json.Unmarshal(raw, &pk); err != nil || pk.TopLevelSite == "" {
		return nil
	}
	return &snapshot.PartitionKey{TopLevelSite: pk.TopLevelSite, HasCrossSiteAncestor: pk.HasCrossSiteAncestor}
}

func (w wireCookie) toSnapshot(storeID string) snapshot.Cookie {
	c := snapshot.Cookie{
		Name:         w.Name,
		Value:        w.Value,
		Domain:       w.Domain,
		HostOnly:     !strings.HasPrefix(w.Domain, "."),
		Path:         w.Path,
		Secure:       w.Secure,
		HTTPOnly:     w.HTTPOnly,
		Session:      w.Session,
		SameSite:     sameSiteFromWire(w.SameSite),
		StoreID:      storeID,
		PartitionKey: parsePartitionKey(w.PartitionKey),
	}
	if !w.Session && w.Expires > 0 {
		c.ExpirationDate = w.Expires
	}
	return c
}

func cookieParam(req cookies.SetRequest) wireCookieParam {
	p := wireCookieParam{
		Name:     req.Name,
		Value:    req.Value,
		URL:      req.URL,
		Domain:   req.Domain,
		Path:     req.Path,
		Secure:   req.Secure,
		HTTPOnly: req.HTTPOnly,
		SameSite: sameSiteToWire(req.SameSite),
		Expires:  req.ExpirationDate,
	}
	if req.PartitionKey != nil {
		p.PartitionKey = &wirePartitionKey{
			TopLevelSite:         req.PartitionKey.TopLevelSite,
			HasCrossSiteAncestor: req.PartitionKey.HasCrossSiteAncestor,
		}
	}
	return p
}

// Stores returns the browser contexts that own at least one page. The
// default context is reported as "" when no page carries a context id.
func (c *Client) Stores(ctx context.Context) ([]string, error) {
	tabs, err := c.ListTabs(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, t := range tabs {
		seen[t.StoreID] = true
	}
	if len(seen) == 0 {
		return []string{""}, nil
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Client) Cookies(ctx context.Context, storeID string) ([]snapshot.Cookie, error) {
	r, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := r.getCookies(ctx, cdp.BrowserContextID(storeID))
	if err != nil {
		return nil, newError(CodeCDPUnavailable, "read cookies failed", err)
	}
	out := make([]snapshot.Cookie, 0, len(raw))
	for _, w := range raw {
		out = append(out, w.toSnapshot(storeID))
	}
	return out, nil
}

func (c *Client) Set(ctx context.Context, req cookies.SetRequest) error {
	r, err := c.conn(ctx)
	if err != nil {
		return err
	}
	if err := r.setCookies(ctx, cdp.BrowserContextID(req.StoreID), []wireCookieParam{cookieParam(req)}); err != nil {
		return newError(CodeEvalFailure, "set cookie failed", err)
	}
	return nil
}

// Remove deletes a cookie through a page of the same store when one exists.
// Without such a page the cookie is overwritten with an expired copy.
func (c *Client) Remove(ctx context.Context, req cookies.RemoveRequest) error {
	r, err := c.conn(ctx)
	if err != nil {
		return err
	}

	if session, info, ok := c.tabInStore(req.StoreID); ok {
		sid, err := c.ensureSession(ctx, r, session, info.TabID)
		if err == nil {
			if err := r.deleteCookies(ctx, sid, req.Name, req.URL, req.Domain, req.Path); err == nil {
				return nil
			}
			slog.Debug("cdpcontrol delete cookies failed, expiring instead", "name", req.Name, "tab_id", info.TabID, "error", err)
		}
	}

	expired := wireCookieParam{
		Name:    req.Name,
		URL:     req.URL,
		Domain:  req.Domain,
		Path:    req.Path,
		Expires: 1,
	}
	if !strings.HasPrefix(req.Domain, ".") {
		expired.Domain = ""
	}
	if err := r.setCookies(ctx, cdp.BrowserContextID(req.StoreID), []wireCookieParam{expired}); err != nil {
		return newError(CodeEvalFailure, "remove cookie failed", err)
	}
	return nil
}

func (c *Client) tabInStore(storeID string) (*tabSession, TabInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.tabs))
	for id, s := range c.tabs {
		if s != nil && s.info.StoreID == storeID {
			ids = append(ids, string(id))
		}
	}
	if len(ids) == 0 {
		return nil, TabInfo{}, false
	}
	sort.Strings(ids)
	s := c.tabs[target.ID(ids[0])]
	return s, s.info, true
}
