package pagestore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/sessionvault/internal/binenc"
	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

const (
	DefaultOpenTimeout   = 3000 * time.Millisecond
	maxParallelDatabases = 4
)

// Guard lists sites whose storage is too large to capture.
type Guard struct {
	// ExcludedHosts skip extraction entirely.
	ExcludedHosts []string
	// HeavyStores are object stores skipped on HeavyStoreHosts.
	HeavyStoreHosts []string
	HeavyStores     []string
}

func DefaultGuard() Guard {
	return Guard{
		ExcludedHosts:   []string{"whatsapp.com"},
		HeavyStoreHosts: []string{"whatsapp.com"},
		HeavyStores:     []string{"msgs", "message", "chat", "model-storage"},
	}
}

func (g Guard) Excluded(host string) bool {
	return hostListed(g.ExcludedHosts, host)
}

func (g Guard) SkipStores(host string) []string {
	if !hostListed(g.HeavyStoreHosts, host) {
		return nil
	}
	return append([]string(nil), g.HeavyStores...)
}

func hostListed(list []string, host string) bool {
	host = strings.ToLower(host)
	for _, h := range list {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Extractor reads a page's storage into a snapshot.
type Extractor struct {
	guard       Guard
	openTimeout time.Duration
}

func NewExtractor(guard Guard, openTimeout time.Duration) *Extractor {
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}
	return &Extractor{guard: guard, openTimeout: openTimeout}
}

// Extract never fails. A failing database is left out, a failing database
// listing leaves IndexedDB empty, and any other failure yields empty storage.
func (e *Extractor) Extract(ctx context.Context, page Page) snapshot.Storage {
	out := snapshot.EmptyStorage()

	loc, err := page.Location(ctx)
	if err != nil {
		slog.Warn("storage extract failed", "stage", "location", "error", err)
		return out
	}
	host := hostname(loc)
	if e.guard.Excluded(host) {
		slog.Info("storage extract skipped for heavy site", "host", host)
		return out
	}

	ws, err := page.ReadWebStorage(ctx)
	if err != nil {
		slog.Warn("storage extract failed", "stage", "web storage", "host", host, "error", err)
		return out
	}
	for k, v := range ws.Local {
		out.LocalStorage[k] = v
	}
	for k, v := range ws.Session {
		out.SessionStorage[k] = v
	}

	names, err := page.DatabaseNames(ctx)
	if err != nil {
		slog.Warn("indexeddb listing failed", "host", host, "error", err)
		return out
	}

	opts := ExportOptions{SkipStores: e.guard.SkipStores(host), OpenTimeout: e.openTimeout}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxParallelDatabases)
	for _, name := range names {
		g.Go(func() error {
			db, err := e.exportDatabase(ctx, page, name, opts)
			if err != nil {
				slog.Warn("indexeddb export failed", "host", host, "database", name, "error", err)
				return nil
			}
			mu.Lock()
			out.IndexedDB[name] = db
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slog.Debug("storage extracted",
		"host", host,
		"local_keys", len(out.LocalStorage),
		"session_keys", len(out.SessionStorage),
		"databases", len(out.IndexedDB),
		"records", out.RecordCount(),
	)
	return out
}

func (e *Extractor) exportDatabase(ctx context.Context, page Page, name string, opts ExportOptions) (snapshot.Database, error) {
	exp, err := page.ExportDatabase(ctx, name, opts)
	if err != nil {
		return snapshot.Database{}, err
	}

	db := snapshot.Database{Version: exp.Version, Stores: make(map[string]snapshot.ObjectStore, len(exp.Stores))}
	for storeName, st := range exp.Stores {
		records, err := encodeRecords(st)
		if err != nil {
			return snapshot.Database{}, fmt.Errorf("store %q: %w", storeName, err)
		}
		db.Stores[storeName] = snapshot.ObjectStore{Schema: st.Schema, Records: records}
	}
	return db, nil
}

func encodeRecords(st StoreExport) ([]snapshot.Record, error) {
	withKeys := !st.Schema.KeyPath.Inline()
	if withKeys && st.Keys != nil && len(st.Keys) != len(st.Values) {
		return nil, fmt.Errorf("key count %d does not match value count %d", len(st.Keys), len(st.Values))
	}

	records := make([]snapshot.Record, 0, len(st.Values))
	for i, v := range st.Values {
		val, err := binenc.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("record %d value: %w", i, err)
		}
		rec := snapshot.Record{Value: val}
		if withKeys && st.Keys != nil {
			key, err := binenc.Encode(st.Keys[i])
			if err != nil {
				return nil, fmt.Errorf("record %d key: %w", i, err)
			}
			rec.Key = key
		}
		records = append(records, rec)
	}
	return records, nil
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
