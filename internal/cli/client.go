package cli

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dgnsrekt/sessionvault/internal/catalog"
	"github.com/dgnsrekt/sessionvault/internal/cdpcontrol"
	"github.com/dgnsrekt/sessionvault/internal/controller"
)

// APIError is the problem document sessiond answers with on failure.
type APIError struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

// Client talks to a running sessiond over its REST surface.
type Client struct {
	http *resty.Client
}

func NewClient(server string, timeout time.Duration) *Client {
	r := resty.New().
		SetBaseURL(server).
		SetTimeout(timeout).
		SetHeader("User-Agent", "sessionctl/1.0").
		SetHeader("Accept", "application/json")
	return &Client{http: r}
}

func (c *Client) request(ctx context.Context, out any) *resty.Request {
	req := c.http.R().SetContext(ctx).SetError(&APIError{})
	if out != nil {
		req.SetResult(out)
	}
	return req
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	if e, ok := resp.Error().(*APIError); ok && (e.Title != "" || e.Detail != "") {
		e.Status = resp.StatusCode()
		return e
	}
	return &APIError{Status: resp.StatusCode(), Title: http.StatusText(resp.StatusCode())}
}

func (c *Client) ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error) {
	var out struct {
		Tabs []cdpcontrol.TabInfo `json:"tabs"`
	}
	if err := check(c.request(ctx, &out).Get("/api/v1/tabs")); err != nil {
		return nil, err
	}
	return out.Tabs, nil
}

func (c *Client) ListSessions(ctx context.Context, domain string) ([]catalog.Session, error) {
	var out struct {
		Sessions []catalog.Session `json:"sessions"`
	}
	req := c.request(ctx, &out)
	if domain != "" {
		req.SetQueryParam("domain", domain)
	}
	if err := check(req.Get("/api/v1/sessions")); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// ActiveSession returns "" when the domain has no active session.
func (c *Client) ActiveSession(ctx context.Context, domain string) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	err := check(c.request(ctx, &out).SetQueryParam("domain", domain).Get("/api/v1/active"))
	return out.SessionID, err
}

func (c *Client) SaveSession(ctx context.Context, tabID, name string, order *int) (catalog.Session, error) {
	var out catalog.Session
	body := map[string]any{"tab_id": tabID, "name": name}
	if order != nil {
		body["order"] = *order
	}
	err := check(c.request(ctx, &out).SetBody(body).Post("/api/v1/sessions"))
	return out, err
}

// UpdateSession sends only the fields that are set.
func (c *Client) UpdateSession(ctx context.Context, id string, name *string, order *int) (catalog.Session, error) {
	var out catalog.Session
	body := map[string]any{}
	if name != nil {
		body["name"] = *name
	}
	if order != nil {
		body["order"] = *order
	}
	err := check(c.request(ctx, &out).SetPathParam("id", id).SetBody(body).Patch("/api/v1/sessions/{id}"))
	return out, err
}

func (c *Client) ReplaceSession(ctx context.Context, id, tabID string) (catalog.Session, error) {
	var out catalog.Session
	err := check(c.request(ctx, &out).SetPathParam("id", id).
		SetBody(map[string]string{"tab_id": tabID}).Put("/api/v1/sessions/{id}/snapshot"))
	return out, err
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return check(c.request(ctx, nil).SetPathParam("id", id).Delete("/api/v1/sessions/{id}"))
}

func (c *Client) SwitchSession(ctx context.Context, id, tabID string) (controller.SwitchResult, error) {
	var out controller.SwitchResult
	err := check(c.request(ctx, &out).SetPathParam("id", id).
		SetBody(map[string]string{"tab_id": tabID}).Post("/api/v1/sessions/{id}/switch"))
	return out, err
}

func (c *Client) ClearSessions(ctx context.Context, scope, tabID, domain string) (controller.ClearSummary, error) {
	var out controller.ClearSummary
	body := map[string]string{"scope": scope, "tab_id": tabID, "domain": domain}
	err := check(c.request(ctx, &out).SetBody(body).Post("/api/v1/sessions/clear"))
	return out, err
}

// Export returns the export document exactly as served.
func (c *Client) Export(ctx context.Context, scope, domain string) ([]byte, error) {
	req := c.request(ctx, nil).SetQueryParam("scope", scope)
	if domain != "" {
		req.SetQueryParam("domain", domain)
	}
	resp, err := req.Get("/api/v1/export")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *Client) Import(ctx context.Context, doc []byte) (controller.ImportSummary, error) {
	var out controller.ImportSummary
	err := check(c.request(ctx, &out).SetHeader("Content-Type", "application/json").
		SetBody(doc).Post("/api/v1/import"))
	return out, err
}

// Command posts one raw protocol message. Protocol failures come back in
// the response, not as an error.
func (c *Client) Command(ctx context.Context, msg []byte) (controller.Response, error) {
	var out controller.Response
	err := check(c.request(ctx, &out).SetHeader("Content-Type", "application/json").
		SetBody(msg).Post("/api/v1/command"))
	return out, err
}

// Watch streams activity events until ctx ends, calling fn for each one.
func (c *Client) Watch(ctx context.Context, feeds string, fn func(feed, data string)) error {
	req := c.http.R().SetContext(ctx).SetDoNotParseResponse(true).SetHeader("Accept", "text/event-stream")
	if feeds != "" {
		req.SetQueryParam("feeds", feeds)
	}
	resp, err := req.Get("/api/v1/events")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Title: http.StatusText(resp.StatusCode())}
	}

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var feed string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			feed = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			fn(feed, strings.TrimPrefix(line, "data: "))
			feed = ""
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}
