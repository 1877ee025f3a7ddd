package cdpcontrol

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type fakeCall struct {
	Method    string
	SessionID string
	Params    json.RawMessage
}

// fakeCDP is a browser endpoint that answers every command through handle.
// A non-empty error string becomes a protocol error response.
type fakeCDP struct {
	srv    *httptest.Server
	handle func(method string, params json.RawMessage) (any, string)

	mu    sync.Mutex
	calls []fakeCall
}

func newFakeCDP(t *testing.T, handle func(method string, params json.RawMessage) (any, string)) *fakeCDP {
	t.Helper()
	f := &fakeCDP{handle: handle}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/browser/fake",
		})
	})
	mux.HandleFunc("/devtools/browser/fake", f.serveWS)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCDP) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req struct {
			ID        int64           `json:"id"`
			Method    string          `json:"method"`
			SessionID string          `json:"sessionId"`
			Params    json.RawMessage `json:"params"`
		}
		if json.Unmarshal(data, &req) != nil {
			continue
		}
		f.mu.Lock()
		f.calls = append(f.calls, fakeCall{Method: req.Method, SessionID: req.SessionID, Params: req.Params})
		f.mu.Unlock()

		result, errMsg := f.handle(req.Method, req.Params)
		resp := map[string]any{"id": req.ID}
		if errMsg != "" {
			resp["error"] = map[string]any{"code": -32000, "message": errMsg}
		} else {
			if result == nil {
				result = map[string]any{}
			}
			resp["result"] = result
		}
		out, _ := json.Marshal(resp)
		if err := wsutil.WriteServerText(conn, out); err != nil {
			return
		}
	}
}

func (f *fakeCDP) callsTo(method string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeCDP) client(t *testing.T) *Client {
	t.Helper()
	c := NewClient(f.srv.URL, "", 2*time.Second)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// evalValue wraps a page envelope the way Runtime.evaluate returns a string.
func evalValue(envelope any) any {
	b, _ := json.Marshal(envelope)
	return map[string]any{"result": map[string]any{"type": "string", "value": string(b)}}
}

func pageTargets(targets ...map[string]any) any {
	return map[string]any{"targetInfos": targets}
}

func expression(params json.RawMessage) string {
	var p struct {
		Expression string `json:"expression"`
	}
	_ = json.Unmarshal(params, &p)
	return p.Expression
}
