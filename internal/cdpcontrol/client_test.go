package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/sessionvault/internal/binenc"
	"github.com/dgnsrekt/sessionvault/internal/cookies"
	"github.com/dgnsrekt/sessionvault/internal/pagestore"
	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

func twoTabs(method string, _ json.RawMessage) (any, string) {
	switch method {
	case "Target.getTargets":
		return pageTargets(
			map[string]any{"targetId": "t1", "type": "page", "url": "https://app.example.com/", "title": "App", "browserContextId": "ctx-a"},
			map[string]any{"targetId": "t2", "type": "page", "url": "https://other.test/", "browserContextId": "ctx-b"},
			map[string]any{"targetId": "sw", "type": "service_worker", "url": "https://app.example.com/sw.js"},
			map[string]any{"targetId": "dt", "type": "page", "url": "devtools://devtools/bundled/inspector.html"},
		), ""
	case "Target.attachToTarget":
		return map[string]any{"sessionId": "s1"}, ""
	}
	return nil, ""
}

func TestSyncTabsWrapsGetTargetsError(t *testing.T) {
	f := newFakeCDP(t, func(method string, _ json.RawMessage) (any, string) {
		if method == "Target.getTargets" {
			return nil, "boom"
		}
		return nil, ""
	})

	err := f.client(t).Connect(context.Background())
	if err == nil {
		t.Fatal("expected Connect() to fail")
	}
	var codedErr *CodedError
	if !errors.As(err, &codedErr) {
		t.Fatalf("expected *CodedError, got %T", err)
	}
	if codedErr.Code != CodeCDPUnavailable {
		t.Fatalf("error code = %s; want %s", codedErr.Code, CodeCDPUnavailable)
	}
	if !strings.Contains(codedErr.Message, "failed to list targets") {
		t.Fatalf("error message = %q; want to contain %q", codedErr.Message, "failed to list targets")
	}
}

func TestListTabsKeepsWebPages(t *testing.T) {
	f := newFakeCDP(t, twoTabs)
	c := f.client(t)

	tabs, err := c.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("ListTabs() error = %v", err)
	}
	if len(tabs) != 2 {
		t.Fatalf("ListTabs() = %+v; want 2 pages", tabs)
	}
	if tabs[0].TabID != "t1" || tabs[0].StoreID != "ctx-a" || tabs[0].Title != "App" {
		t.Fatalf("tabs[0] = %+v", tabs[0])
	}

	stores, err := c.Stores(context.Background())
	if err != nil {
		t.Fatalf("Stores() error = %v", err)
	}
	if strings.Join(stores, ",") != "ctx-a,ctx-b" {
		t.Fatalf("Stores() = %v; want [ctx-a ctx-b]", stores)
	}
}

func TestTabFilterNarrowsTargets(t *testing.T) {
	f := newFakeCDP(t, twoTabs)
	c := NewClient(f.srv.URL, "other.test", time.Second)
	t.Cleanup(func() { _ = c.Close() })

	tabs, err := c.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("ListTabs() error = %v", err)
	}
	if len(tabs) != 1 || tabs[0].TabID != "t2" {
		t.Fatalf("ListTabs() = %+v; want only t2", tabs)
	}

	_, err = c.Tab(context.Background(), "t1")
	var codedErr *CodedError
	if !errors.As(err, &codedErr) || codedErr.Code != CodeTabNotFound {
		t.Fatalf("Tab(t1) error = %v; want %s", err, CodeTabNotFound)
	}
}

func TestCookiesConvertWireFormat(t *testing.T) {
	f := newFakeCDP(t, func(method string, params json.RawMessage) (any, string) {
		if method == "Storage.getCookies" {
			return map[string]any{"cookies": []map[string]any{
				{"name": "host", "value": "1", "domain": "app.example.com", "path": "/", "expires": -1, "session": true, "sameSite": "Lax"},
				{"name": "dom", "value": "2", "domain": ".example.com", "path": "/x", "expires": 1900000000.5, "secure": true, "httpOnly": true, "sameSite": "None", "partitionKey": "https://example.com"},
				{"name": "chips", "value": "3", "domain": ".example.com", "path": "/", "expires": 1900000000, "partitionKey": map[string]any{"topLevelSite": "https://top.test", "hasCrossSiteAncestor": true}},
			}}, ""
		}
		return twoTabs(method, params)
	})
	c := f.client(t)

	got, err := c.Cookies(context.Background(), "ctx-a")
	if err != nil {
		t.Fatalf("Cookies() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Cookies() returned %d cookies; want 3", len(got))
	}

	host := got[0]
	if !host.HostOnly || !host.Session || host.ExpirationDate != 0 || host.SameSite != snapshot.SameSiteLax || host.StoreID != "ctx-a" {
		t.Fatalf("host-only cookie = %+v", host)
	}
	dom := got[1]
	if dom.HostOnly || dom.ExpirationDate != 1900000000.5 || dom.SameSite != snapshot.SameSiteNoRestriction || !dom.Secure || !dom.HTTPOnly {
		t.Fatalf("domain cookie = %+v", dom)
	}
	if dom.PartitionKey == nil || dom.PartitionKey.TopLevelSite != "https://example.com" {
		t.Fatalf("string partition key = %+v", dom.PartitionKey)
	}
	chips := got[2]
	if chips.SameSite != snapshot.SameSiteUnspecified {
		t.Fatalf("missing sameSite = %q; want unspecified", chips.SameSite)
	}
	if chips.PartitionKey == nil || !chips.PartitionKey.HasCrossSiteAncestor || chips.PartitionKey.TopLevelSite != "https://top.test" {
		t.Fatalf("object partition key = %+v", chips.PartitionKey)
	}

	calls := f.callsTo("Storage.getCookies")
	if len(calls) != 1 || !strings.Contains(string(calls[0].Params), `"browserContextId":"ctx-a"`) {
		t.Fatalf("getCookies calls = %+v", calls)
	}
}

func TestSetCookieKeepsHostOnly(t *testing.T) {
	f := newFakeCDP(t, twoTabs)
	c := f.client(t)

	req := cookies.BuildSetRequest(snapshot.Cookie{
		Name: "sid", Value: "v", Domain: "app.example.com", HostOnly: true, Path: "/",
		Secure: true, SameSite: snapshot.SameSiteStrict, ExpirationDate: 1900000000,
		StoreID: "ctx-a",
	}, "app.example.com")
	if err := c.Set(context.Background(), req); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	calls := f.callsTo("Storage.setCookies")
	if len(calls) != 1 {
		t.Fatalf("setCookies calls = %d; want 1", len(calls))
	}
	var params struct {
		Cookies          []map[string]any `json:"cookies"`
		BrowserContextID string           `json:"browserContextId"`
	}
	if err := json.Unmarshal(calls[0].Params, &params); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	ck := params.Cookies[0]
	if _, ok := ck["domain"]; ok {
		t.Fatalf("host-only cookie sent with domain: %v", ck)
	}
	if ck["url"] != "https://app.example.com/" || ck["sameSite"] != "Strict" || ck["expires"] != 1900000000.0 {
		t.Fatalf("cookie param = %v", ck)
	}
	if params.BrowserContextID != "ctx-a" {
		t.Fatalf("browserContextId = %q; want ctx-a", params.BrowserContextID)
	}
}

func TestRemoveUsesPageSessionOfStore(t *testing.T) {
	f := newFakeCDP(t, twoTabs)
	c := f.client(t)
	if _, err := c.ListTabs(context.Background()); err != nil {
		t.Fatalf("ListTabs() error = %v", err)
	}

	err := c.Remove(context.Background(), cookies.RemoveRequest{StoreID: "ctx-b", URL: "https://other.test/", Name: "sid", Domain: ".other.test", Path: "/"})
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	calls := f.callsTo("Network.deleteCookies")
	if len(calls) != 1 || calls[0].SessionID != "s1" {
		t.Fatalf("deleteCookies calls = %+v", calls)
	}
	if len(f.callsTo("Storage.setCookies")) != 0 {
		t.Fatal("Remove() fell back to expiring a cookie that was deleted")
	}
}

func TestRemoveWithoutPageExpiresCookie(t *testing.T) {
	f := newFakeCDP(t, twoTabs)
	c := f.client(t)

	err := c.Remove(context.Background(), cookies.RemoveRequest{StoreID: "ctx-none", URL: "https://host.test/", Name: "sid", Domain: "host.test", Path: "/"})
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	calls := f.callsTo("Storage.setCookies")
	if len(calls) != 1 {
		t.Fatalf("setCookies calls = %d; want 1", len(calls))
	}
	if !strings.Contains(string(calls[0].Params), `"expires":1`) || strings.Contains(string(calls[0].Params), `"domain"`) {
		t.Fatalf("expired cookie params = %s", calls[0].Params)
	}
}

func TestPageProgramsDecodeEnvelopes(t *testing.T) {
	f := newFakeCDP(t, func(method string, params json.RawMessage) (any, string) {
		if method != "Runtime.evaluate" {
			return twoTabs(method, params)
		}
		js := expression(params)
		switch {
		case strings.Contains(js, "location.href"):
			return evalValue(map[string]any{"ok": true, "data": map[string]any{"url": "https://app.example.com/home"}}), ""
		case strings.Contains(js, `"readonly"`):
			return evalValue(map[string]any{"ok": true, "data": map[string]any{
				"version": 3,
				"stores": map[string]any{
					"files": map[string]any{
						"schema": map[string]any{"keyPath": nil, "autoIncrement": false, "indexes": []any{}},
						"keys":   []any{"k1"},
						"values": []any{map[string]any{"blob": map[string]any{"__type": "Blob", "data": "aGk=", "type": "text/plain"}, "n": 12345678901234567}},
					},
				},
			}}), ""
		}
		return evalValue(map[string]any{"ok": false, "error_code": CodeEvalFailure, "error_message": "unexpected program"}), ""
	})
	page := f.client(t).Page("t1")

	loc, err := page.Location(context.Background())
	if err != nil || loc != "https://app.example.com/home" {
		t.Fatalf("Location() = %q, %v", loc, err)
	}

	exp, err := page.ExportDatabase(context.Background(), "app", pagestore.ExportOptions{})
	if err != nil {
		t.Fatalf("ExportDatabase() error = %v", err)
	}
	if exp.Version != 3 {
		t.Fatalf("version = %d; want 3", exp.Version)
	}
	st := exp.Stores["files"]
	if st.Schema.KeyPath.Inline() || len(st.Keys) != 1 || st.Keys[0] != "k1" {
		t.Fatalf("store export = %+v", st)
	}
	rec := st.Values[0].(map[string]any)
	blob, ok := rec["blob"].(binenc.Value)
	if !ok || blob.Kind() != binenc.Blob || string(blob.Bytes()) != "hi" || blob.MimeType() != "text/plain" {
		t.Fatalf("blob leaf = %#v", rec["blob"])
	}
	if n, ok := rec["n"].(json.Number); !ok || n.String() != "12345678901234567" {
		t.Fatalf("number leaf = %#v; want exact json.Number", rec["n"])
	}
}

func TestEnvelopeErrorKeepsCode(t *testing.T) {
	f := newFakeCDP(t, func(method string, params json.RawMessage) (any, string) {
		if method == "Runtime.evaluate" {
			return evalValue(map[string]any{"ok": false, "error_code": CodeEvalFailure, "error_message": "SecurityError"}), ""
		}
		return twoTabs(method, params)
	})

	_, err := f.client(t).Page("t1").ReadWebStorage(context.Background())
	var codedErr *CodedError
	if !errors.As(err, &codedErr) || codedErr.Code != CodeEvalFailure || codedErr.Message != "SecurityError" {
		t.Fatalf("ReadWebStorage() error = %v", err)
	}
}

func TestOnlyReadProgramsAreRetried(t *testing.T) {
	var evals atomic.Int32
	f := newFakeCDP(t, func(method string, params json.RawMessage) (any, string) {
		if method == "Runtime.evaluate" {
			evals.Add(1)
			return nil, "target closed"
		}
		return twoTabs(method, params)
	})
	page := f.client(t).Page("t1")

	if _, err := page.DatabaseNames(context.Background()); err == nil {
		t.Fatal("DatabaseNames() = nil error; want failure")
	}
	if got := evals.Load(); got != 2 {
		t.Fatalf("read program evaluated %d times; want 2", got)
	}

	evals.Store(0)
	if err := page.ClearWebStorage(context.Background()); err == nil {
		t.Fatal("ClearWebStorage() = nil error; want failure")
	}
	if got := evals.Load(); got != 1 {
		t.Fatalf("write program evaluated %d times; want 1", got)
	}
}

func TestImportPlanCarriesTaggedBinary(t *testing.T) {
	f := newFakeCDP(t, func(method string, params json.RawMessage) (any, string) {
		if method == "Runtime.evaluate" {
			return evalValue(map[string]any{"ok": true, "data": map[string]any{"outcome": "ok", "puts": 1, "failed_puts": 0}}), ""
		}
		return twoTabs(method, params)
	})
	page := f.client(t).Page("t1")

	res, err := page.ImportDatabase(context.Background(), pagestore.DatabaseImport{
		Name:    "app",
		Version: 2,
		Stores: map[string]pagestore.StorePlan{
			"files": {Records: []pagestore.PlanRecord{{Key: "k", HasKey: true, Value: binenc.ArrayBufferValue([]byte{1, 2})}}},
		},
	})
	if err != nil {
		t.Fatalf("ImportDatabase() error = %v", err)
	}
	if res.Outcome != pagestore.OutcomeOK || res.Puts != 1 {
		t.Fatalf("ImportDatabase() = %+v", res)
	}

	calls := f.callsTo("Runtime.evaluate")
	js := expression(calls[len(calls)-1].Params)
	if !strings.Contains(js, `"__type":"ArrayBuffer"`) || !strings.Contains(js, `"data":"AQI="`) {
		t.Fatalf("import program does not carry the tagged value")
	}
}

func TestReloadUsesTabSession(t *testing.T) {
	f := newFakeCDP(t, twoTabs)
	if err := f.client(t).Reload(context.Background(), "t1"); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	calls := f.callsTo("Page.reload")
	if len(calls) != 1 || calls[0].SessionID != "s1" {
		t.Fatalf("Page.reload calls = %+v", calls)
	}
}
