package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/sessionvault/internal/catalog"
	"github.com/dgnsrekt/sessionvault/internal/cdpcontrol"
	"github.com/dgnsrekt/sessionvault/internal/cookies"
	"github.com/dgnsrekt/sessionvault/internal/events"
	"github.com/dgnsrekt/sessionvault/internal/metrics"
	"github.com/dgnsrekt/sessionvault/internal/pagestore"
	"github.com/dgnsrekt/sessionvault/internal/snapshot"
	"github.com/dgnsrekt/sessionvault/internal/storage"
)

// fakeBrowser is one cookie store plus tabs whose pages only hold web
// storage.
type fakeBrowser struct {
	mu       sync.Mutex
	tabs     map[string]cdpcontrol.TabInfo
	pages    map[string]*fakePage
	jar      []snapshot.Cookie
	reloads  []string
	clearErr error
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{tabs: map[string]cdpcontrol.TabInfo{}, pages: map[string]*fakePage{}}
}

func (b *fakeBrowser) addTab(id, url string) *fakePage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tabs[id] = cdpcontrol.TabInfo{TabID: id, URL: url}
	p := &fakePage{browser: b, url: url, local: map[string]string{}, session: map[string]string{}}
	b.pages[id] = p
	return p
}

func (b *fakeBrowser) ListTabs(context.Context) ([]cdpcontrol.TabInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]cdpcontrol.TabInfo, 0, len(b.tabs))
	for _, t := range b.tabs {
		out = append(out, t)
	}
	return out, nil
}

func (b *fakeBrowser) Tab(_ context.Context, tabID string) (cdpcontrol.TabInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[tabID]
	if !ok {
		return cdpcontrol.TabInfo{}, cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, "tab not found: "+tabID, nil)
	}
	return t, nil
}

func (b *fakeBrowser) Page(tabID string) pagestore.Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pages[tabID]
}

func (b *fakeBrowser) Reload(_ context.Context, tabID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloads = append(b.reloads, tabID)
	return nil
}

func (b *fakeBrowser) Stores(context.Context) ([]string, error) { return []string{""}, nil }

func (b *fakeBrowser) Cookies(context.Context, string) ([]snapshot.Cookie, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]snapshot.Cookie(nil), b.jar...), nil
}

func (b *fakeBrowser) Set(_ context.Context, req cookies.SetRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := snapshot.Cookie{Name: req.Name, Value: req.Value, Domain: req.Domain, Path: req.Path}
	if c.Domain == "" {
		c.Domain = strings.SplitN(strings.TrimPrefix(strings.TrimPrefix(req.URL, "https://"), "http://"), "/", 2)[0]
		c.HostOnly = true
	}
	b.jar = append(b.jar, c)
	return nil
}

func (b *fakeBrowser) Remove(_ context.Context, req cookies.RemoveRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.jar[:0]
	for _, c := range b.jar {
		if c.Name == req.Name && c.Domain == req.Domain {
			continue
		}
		kept = append(kept, c)
	}
	b.jar = kept
	return nil
}

type fakePage struct {
	browser *fakeBrowser
	url     string
	local   map[string]string
	session map[string]string
}

func (p *fakePage) Location(context.Context) (string, error) { return p.url, nil }

func (p *fakePage) ReadWebStorage(context.Context) (pagestore.WebStorage, error) {
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	return pagestore.WebStorage{Local: copyMap(p.local), Session: copyMap(p.session)}, nil
}

func (p *fakePage) WriteWebStorage(_ context.Context, ws pagestore.WebStorage) error {
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	p.local, p.session = copyMap(ws.Local), copyMap(ws.Session)
	return nil
}

func (p *fakePage) ClearWebStorage(context.Context) error {
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	if p.browser.clearErr != nil {
		return p.browser.clearErr
	}
	p.local, p.session = map[string]string{}, map[string]string{}
	return nil
}

func (p *fakePage) ClearSiteData(context.Context) error { return nil }

func (p *fakePage) DatabaseNames(context.Context) ([]string, error) { return nil, nil }

func (p *fakePage) ExportDatabase(context.Context, string, pagestore.ExportOptions) (pagestore.DatabaseExport, error) {
	return pagestore.DatabaseExport{}, errors.New("no databases")
}

func (p *fakePage) DeleteDatabase(context.Context, string) error { return nil }

func (p *fakePage) ImportDatabase(_ context.Context, plan pagestore.DatabaseImport) (pagestore.ImportResult, error) {
	return pagestore.ImportResult{Outcome: pagestore.OutcomeOK}, nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type memJournal struct {
	mu      sync.Mutex
	entries []storage.Entry
}

func (j *memJournal) Record(e storage.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) actions() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	for i, e := range j.entries {
		out[i] = e.Action + ":" + e.Outcome
	}
	return out
}

type memArchive struct {
	saved map[string][]byte
}

func (a *memArchive) Save(name string, data []byte) (string, error) {
	if a.saved == nil {
		a.saved = map[string][]byte{}
	}
	a.saved[name] = data
	return "/archive/" + name + ".json", nil
}

type harness struct {
	svc     *Service
	browser *fakeBrowser
	catalog *catalog.Catalog
	journal *memJournal
	archive *memArchive
	metrics *metrics.Metrics
	events  *events.Broker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := catalog.NewStore(t.TempDir())
	require.NoError(t, err)
	h := &harness{
		browser: newFakeBrowser(),
		catalog: catalog.New(store),
		journal: &memJournal{},
		archive: &memArchive{},
		metrics: metrics.New(),
		events:  events.NewBroker(),
	}
	h.svc = NewService(h.browser, h.catalog, Options{
		Guard:   pagestore.DefaultGuard(),
		Metrics: h.metrics,
		Journal: h.journal,
		Archive: h.archive,
		Events:  h.events,
	})
	return h
}
