package cdpcontrol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/sessionvault/internal/binenc"
	"github.com/dgnsrekt/sessionvault/internal/pagestore"
	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

// tabPage runs storage programs in one tab.
type tabPage struct {
	c     *Client
	tabID string
}

// Page returns the storage view of a tab. The tab is resolved lazily on the
// first program.
func (c *Client) Page(tabID string) pagestore.Page {
	return &tabPage{c: c, tabID: tabID}
}

func (p *tabPage) Location(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := p.c.evalOnTab(ctx, p.tabID, jsLocation(), evalRead, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (p *tabPage) ReadWebStorage(ctx context.Context) (pagestore.WebStorage, error) {
	var out pagestore.WebStorage
	if err := p.c.evalOnTab(ctx, p.tabID, jsReadWebStorage(), evalRead, &out); err != nil {
		return pagestore.WebStorage{}, err
	}
	if out.Local == nil {
		out.Local = map[string]string{}
	}
	if out.Session == nil {
		out.Session = map[string]string{}
	}
	return out, nil
}

func (p *tabPage) WriteWebStorage(ctx context.Context, ws pagestore.WebStorage) error {
	var out struct {
		Written int `json:"written"`
		Failed  int `json:"failed"`
	}
	if err := p.c.evalOnTab(ctx, p.tabID, jsWriteWebStorage(ws.Local, ws.Session), evalWrite, &out); err != nil {
		return err
	}
	if out.Failed > 0 {
		slog.Warn("cdpcontrol web storage keys not written", "tab_id", p.tabID, "written", out.Written, "failed", out.Failed)
	}
	return nil
}

func (p *tabPage) ClearWebStorage(ctx context.Context) error {
	return p.c.evalOnTab(ctx, p.tabID, jsClearWebStorage(), evalWrite, nil)
}

func (p *tabPage) ClearSiteData(ctx context.Context) error {
	var out struct {
		Workers int `json:"workers"`
		Caches  int `json:"caches"`
	}
	if err := p.c.evalOnTab(ctx, p.tabID, jsClearSiteData(), evalWrite, &out); err != nil {
		return err
	}
	slog.Debug("cdpcontrol site data cleared", "tab_id", p.tabID, "workers", out.Workers, "caches", out.Caches)
	return nil
}

func (p *tabPage) DatabaseNames(ctx context.Context) ([]string, error) {
	var out struct {
		Names []string `json:"names"`
	}
	if err := p.c.evalOnTab(ctx, p.tabID, jsDatabaseNames(), evalRead, &out); err != nil {
		return nil, err
	}
	if out.Names == nil {
		return []string{}, nil
	}
	return out.Names, nil
}

func (p *tabPage) ExportDatabase(ctx context.Context, name string, opts pagestore.ExportOptions) (pagestore.DatabaseExport, error) {
	timeout := opts.OpenTimeout
	if timeout <= 0 {
		timeout = pagestore.DefaultOpenTimeout
	}

	var out struct {
		Version int64 `json:"version"`
		Stores  map[string]struct {
			Schema snapshot.Schema `json:"schema"`
			Keys   json.RawMessage `json:"keys"`
			Values json.RawMessage `json:"values"`
		} `json:"stores"`
	}
	js := jsExportDatabase(name, opts.SkipStores, timeout.Milliseconds())
	if err := p.c.evalOnTab(ctx, p.tabID, js, evalRead, &out); err != nil {
		return pagestore.DatabaseExport{}, err
	}

	exp := pagestore.DatabaseExport{Version: out.Version, Stores: make(map[string]pagestore.StoreExport, len(out.Stores))}
	for storeName, st := range out.Stores {
		values, err := decodeList(st.Values)
		if err != nil {
			return pagestore.DatabaseExport{}, fmt.Errorf("store %q values: %w", storeName, err)
		}
		var keys []any
		if len(st.Keys) > 0 && string(st.Keys) != "null" {
			keys, err = decodeList(st.Keys)
			if err != nil {
				return pagestore.DatabaseExport{}, fmt.Errorf("store %q keys: %w", storeName, err)
			}
		}
		exp.Stores[storeName] = pagestore.StoreExport{Schema: st.Schema, Keys: keys, Values: values}
	}
	return exp, nil
}

func (p *tabPage) DeleteDatabase(ctx context.Context, name string) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := p.c.evalOnTab(ctx, p.tabID, jsDeleteDatabase(name), evalWrite, &out); err != nil {
		return err
	}
	if out.Status != "deleted" {
		slog.Debug("cdpcontrol database delete not confirmed", "tab_id", p.tabID, "database", name, "status", out.Status)
	}
	return nil
}

type wireRecord struct {
	HasKey bool `json:"has_key"`
	Key    any  `json:"key,omitempty"`
	Value  any  `json:"value"`
}

type wireStorePlan struct {
	Schema  snapshot.Schema `json:"schema"`
	Records []wireRecord    `json:"records"`
}

type wirePlan struct {
	Name    string                   `json:"name"`
	Version int64                    `json:"version"`
	Stores  map[string]wireStorePlan `json:"stores"`
}

func (p *tabPage) ImportDatabase(ctx context.Context, plan pagestore.DatabaseImport) (pagestore.ImportResult, error) {
	wp := wirePlan{Name: plan.Name, Version: plan.Version, Stores: make(map[string]wireStorePlan, len(plan.Stores))}
	for storeName, sp := range plan.Stores {
		recs := make([]wireRecord, 0, len(sp.Records))
		for _, r := range sp.Records {
			recs = append(recs, wireRecord{HasKey: r.HasKey, Key: r.Key, Value: r.Value})
		}
		wp.Stores[storeName] = wireStorePlan{Schema: sp.Schema, Records: recs}
	}
	// binenc.Value leaves marshal to their tagged wire form here.
	raw, err := json.Marshal(wp)
	if err != nil {
		return pagestore.ImportResult{}, newError(CodeInjectFailed, "encode import plan", err)
	}

	var out pagestore.ImportResult
	if err := p.c.evalOnTab(ctx, p.tabID, jsImportDatabase(raw), evalWrite, &out); err != nil {
		return pagestore.ImportResult{}, err
	}
	return out, nil
}

// decodeList parses a JSON array of page values, keeping numbers exact and
// turning tagged binary records into binenc.Values.
func decodeList(raw json.RawMessage) ([]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var list []any
	if err := dec.Decode(&list); err != nil {
		return nil, err
	}
	out := make([]any, len(list))
	for i, v := range list {
		d, err := binenc.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}
