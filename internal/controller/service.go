package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/sessionvault/internal/catalog"
	"github.com/dgnsrekt/sessionvault/internal/cdpcontrol"
	"github.com/dgnsrekt/sessionvault/internal/cookies"
	"github.com/dgnsrekt/sessionvault/internal/events"
	"github.com/dgnsrekt/sessionvault/internal/metrics"
	"github.com/dgnsrekt/sessionvault/internal/pagestore"
	"github.com/dgnsrekt/sessionvault/internal/snapshot"
	"github.com/dgnsrekt/sessionvault/internal/storage"
	"github.com/dgnsrekt/sessionvault/internal/switcher"
)

// Browser is what the service needs from the CDP client.
type Browser interface {
	cookies.Jar
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	Tab(ctx context.Context, tabID string) (cdpcontrol.TabInfo, error)
	Page(tabID string) pagestore.Page
	Reload(ctx context.Context, tabID string) error
}

type Recorder interface {
	Record(e storage.Entry) error
}

type Archiver interface {
	Save(name string, data []byte) (string, error)
}

// Publisher receives every activity record for live subscribers.
type Publisher interface {
	Publish(evt events.Event)
}

type Options struct {
	RestoreDeadline time.Duration
	ReloadTimeout   time.Duration
	OpenTimeout     time.Duration
	Guard           pagestore.Guard
	Metrics         *metrics.Metrics
	Journal         Recorder
	Archive         Archiver
	Events          Publisher
}

// Service implements session capture, switching and catalog management for
// browser tabs.
type Service struct {
	browser   Browser
	catalog   *catalog.Catalog
	cookies   *cookies.Manager
	extractor *pagestore.Extractor
	injector  *pagestore.Injector
	switcher  *switcher.Coordinator
	metrics   *metrics.Metrics
	journal   Recorder
	archive   Archiver
	events    Publisher
}

func NewService(browser Browser, cat *catalog.Catalog, opts Options) *Service {
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = pagestore.DefaultOpenTimeout
	}
	s := &Service{
		browser:   browser,
		catalog:   cat,
		cookies:   cookies.NewManager(browser),
		extractor: pagestore.NewExtractor(opts.Guard, opts.OpenTimeout),
		injector:  pagestore.NewInjector(),
		metrics:   opts.Metrics,
		journal:   opts.Journal,
		archive:   opts.Archive,
		events:    opts.Events,
	}
	s.switcher = switcher.New(
		cookieStage{m: s.cookies, metrics: s.metrics},
		storageStage{browser: browser, injector: s.injector, metrics: s.metrics},
		browser,
		switcher.Options{RestoreDeadline: opts.RestoreDeadline, ReloadTimeout: opts.ReloadTimeout},
	)
	return s
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error) {
	return s.browser.ListTabs(ctx)
}

// resolveTab looks the tab up and derives the domain from its URL when none
// is given.
func (s *Service) resolveTab(ctx context.Context, tabID, domain string) (cdpcontrol.TabInfo, string, error) {
	if err := s.requireNonEmpty(tabID, "tab id"); err != nil {
		return cdpcontrol.TabInfo{}, "", err
	}
	tab, err := s.browser.Tab(ctx, strings.TrimSpace(tabID))
	if err != nil {
		return cdpcontrol.TabInfo{}, "", err
	}
	domain = strings.TrimSpace(domain)
	if domain != "" {
		return tab, domain, nil
	}
	domain, err = catalog.DomainFromURL(tab.URL)
	if err != nil {
		return tab, "", &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fmt.Sprintf("cannot determine domain of tab %s", tab.TabID), Cause: err}
	}
	return tab, domain, nil
}

// CurrentSnapshot captures the live cookies and storage of a tab. Capture
// problems degrade to empty sections instead of failing.
func (s *Service) CurrentSnapshot(ctx context.Context, tabID, domain string) (snapshot.Snapshot, string, error) {
	tab, domain, err := s.resolveTab(ctx, tabID, domain)
	if err != nil {
		return snapshot.Snapshot{}, "", err
	}
	return s.capture(ctx, tab.TabID, domain), domain, nil
}

func (s *Service) capture(ctx context.Context, tabID, domain string) snapshot.Snapshot {
	var snap snapshot.Snapshot
	var g errgroup.Group
	g.Go(func() error {
		snap.Cookies = s.cookies.ForDomain(ctx, domain)
		return nil
	})
	g.Go(func() error {
		snap.Storage = s.extractor.Extract(ctx, s.browser.Page(tabID))
		return nil
	})
	_ = g.Wait()
	snap.Normalize()
	return snap
}

// SaveCurrentSession stores the tab's live state as a new session.
func (s *Service) SaveCurrentSession(ctx context.Context, tabID, name string, order *int) (catalog.Session, error) {
	snap, domain, err := s.CurrentSnapshot(ctx, tabID, "")
	if err != nil {
		return catalog.Session{}, err
	}
	sess, err := s.catalog.Create(domain, name, order, snap)
	s.record("save", domain, sess.ID, tabID, err, nil)
	if err != nil {
		return catalog.Session{}, catalogError(err)
	}
	s.refreshGauge()
	slog.Info("session saved", "session_id", sess.ID, "domain", domain, "cookies", len(sess.Cookies), "records", sess.Storage.RecordCount())
	return sess, nil
}

// ReplaceSession overwrites a saved session with the tab's live state.
func (s *Service) ReplaceSession(ctx context.Context, sessionID, tabID string) (catalog.Session, error) {
	if err := s.requireNonEmpty(sessionID, "session id"); err != nil {
		return catalog.Session{}, err
	}
	existing, err := s.catalog.Get(strings.TrimSpace(sessionID))
	if err != nil {
		return catalog.Session{}, catalogError(err)
	}
	snap, _, err := s.CurrentSnapshot(ctx, tabID, existing.Domain)
	if err != nil {
		return catalog.Session{}, err
	}
	sess, err := s.catalog.Replace(existing.ID, snap)
	s.record("replace", existing.Domain, existing.ID, tabID, err, nil)
	if err != nil {
		return catalog.Session{}, catalogError(err)
	}
	return sess, nil
}

func (s *Service) RenameSession(ctx context.Context, sessionID, name string, order *int) (catalog.Session, error) {
	if err := s.requireNonEmpty(sessionID, "session id"); err != nil {
		return catalog.Session{}, err
	}
	sess, err := s.catalog.Rename(strings.TrimSpace(sessionID), name, order)
	if err != nil {
		return catalog.Session{}, catalogError(err)
	}
	return sess, nil
}

func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.requireNonEmpty(sessionID, "session id"); err != nil {
		return err
	}
	err := s.catalog.Delete(strings.TrimSpace(sessionID))
	s.record("delete", "", sessionID, "", err, nil)
	if err != nil {
		return catalogError(err)
	}
	s.refreshGauge()
	return nil
}

func (s *Service) ListSessions(ctx context.Context, domain string) ([]catalog.Session, error) {
	list, err := s.catalog.List(strings.TrimSpace(domain))
	if err != nil {
		return nil, catalogError(err)
	}
	return list, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (catalog.Session, error) {
	if err := s.requireNonEmpty(sessionID, "session id"); err != nil {
		return catalog.Session{}, err
	}
	sess, err := s.catalog.Get(strings.TrimSpace(sessionID))
	if err != nil {
		return catalog.Session{}, catalogError(err)
	}
	return sess, nil
}

// ActiveSession returns the active session id of a domain, or "" when none.
func (s *Service) ActiveSession(ctx context.Context, domain string) (string, error) {
	if err := s.requireNonEmpty(domain, "domain"); err != nil {
		return "", err
	}
	id, _, err := s.catalog.Active(strings.TrimSpace(domain))
	if err != nil {
		return "", catalogError(err)
	}
	return id, nil
}

func (s *Service) ViewMode(ctx context.Context) (string, error) {
	mode, err := s.catalog.ViewMode()
	if err != nil {
		return "", catalogError(err)
	}
	return mode, nil
}

func (s *Service) SetViewMode(ctx context.Context, mode string) (string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != "list" && mode != "grid" {
		return "", &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "view mode must be \"list\" or \"grid\""}
	}
	if err := s.catalog.SetViewMode(mode); err != nil {
		return "", catalogError(err)
	}
	return mode, nil
}

// SwitchResult reports a completed switch. Restore and reload problems are
// informational; the target tab has been reloaded either way.
type SwitchResult struct {
	SessionID    string `json:"session_id,omitempty"`
	Domain       string `json:"domain"`
	TabID        string `json:"tab_id"`
	TimedOut     bool   `json:"timed_out"`
	RestoreError string `json:"restore_error,omitempty"`
	ReloadError  string `json:"reload_error,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
}

// SwitchSession moves the tab to a saved session. When sessionID is not in
// the catalog, data (if given) is switched to directly.
func (s *Service) SwitchSession(ctx context.Context, tabID, sessionID string, data *catalog.Session) (SwitchResult, error) {
	if err := s.requireNonEmpty(tabID, "tab id"); err != nil {
		return SwitchResult{}, err
	}
	sessionID = strings.TrimSpace(sessionID)

	var sess catalog.Session
	stored := false
	if sessionID != "" {
		got, err := s.catalog.Get(sessionID)
		switch {
		case err == nil:
			sess, stored = got, true
		case errors.Is(err, catalog.ErrNotFound) && data != nil:
		default:
			return SwitchResult{}, catalogError(err)
		}
	}
	if !stored {
		if data == nil {
			return SwitchResult{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "session id or session data is required"}
		}
		sess = data.Clone()
	}

	tab, domain, err := s.resolveTab(ctx, tabID, sess.Domain)
	if err != nil {
		return SwitchResult{}, err
	}

	out, err := s.switcher.Switch(ctx, switcher.Target{TabID: tab.TabID, Domain: domain, Snapshot: sess.Snapshot})
	res := SwitchResult{
		SessionID:  sess.ID,
		Domain:     domain,
		TabID:      tab.TabID,
		TimedOut:   out.TimedOut,
		DurationMS: out.Duration.Milliseconds(),
	}
	if out.RestoreErr != nil {
		res.RestoreError = out.RestoreErr.Error()
	}
	if out.ReloadErr != nil {
		res.ReloadError = out.ReloadErr.Error()
	}
	s.observeSwitch(out, err)
	s.record("switch", domain, sess.ID, tab.TabID, err, res)
	if err != nil {
		return res, &cdpcontrol.CodedError{Code: cdpcontrol.CodeSwitchFailed, Message: "Failed to switch session: " + err.Error(), Cause: err}
	}

	if stored {
		if _, err := s.catalog.MarkSwitched(sess.ID); err != nil {
			slog.Warn("session switch bookkeeping failed", "session_id", sess.ID, "error", err)
		}
	}
	return res, nil
}

func (s *Service) observeSwitch(out switcher.Outcome, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "failed"
	case out.RestoreErr != nil:
		outcome = "restore_degraded"
	}
	s.metrics.Switches.WithLabelValues(outcome).Inc()
	s.metrics.SwitchDuration.Observe(out.Duration.Seconds())
	if out.TimedOut {
		s.metrics.RestoreTimeouts.Inc()
	}
}

// ClearSession wipes the tab's live state for the domain, reloads it and
// drops the domain's active mapping.
func (s *Service) ClearSession(ctx context.Context, tabID, domain string) (string, error) {
	tab, domain, err := s.resolveTab(ctx, tabID, domain)
	if err != nil {
		return "", err
	}
	err = s.switcher.Clear(ctx, domain, tab.TabID)
	s.record("clear", domain, "", tab.TabID, err, nil)
	if err != nil {
		return domain, &cdpcontrol.CodedError{Code: cdpcontrol.CodeClearFailed, Message: err.Error(), Cause: err}
	}
	if err := s.catalog.ClearActive(domain); err != nil {
		return domain, catalogError(err)
	}
	return domain, nil
}

// RestoreStorage injects a saved session's storage into a tab without
// touching cookies or reloading. Injection failures are reported.
func (s *Service) RestoreStorage(ctx context.Context, sessionID, tabID string) (pagestore.Report, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return pagestore.Report{}, err
	}
	tab, _, err := s.resolveTab(ctx, tabID, sess.Domain)
	if err != nil {
		return pagestore.Report{}, err
	}
	rep, err := s.injector.Inject(ctx, s.browser.Page(tab.TabID), sess.Storage)
	countImports(s.metrics, rep)
	s.record("restore_storage", sess.Domain, sess.ID, tab.TabID, err, rep)
	if err != nil {
		return rep, &cdpcontrol.CodedError{Code: cdpcontrol.CodeInjectFailed, Message: err.Error(), Cause: err}
	}
	return rep, nil
}

func (s *Service) refreshGauge() {
	if s.metrics == nil {
		return
	}
	all, err := s.catalog.List("")
	if err != nil {
		return
	}
	s.metrics.SessionsStored.Set(float64(len(all)))
}

func (s *Service) record(action, domain, sessionID, tabID string, err error, detail any) {
	if s.journal == nil && s.events == nil {
		return
	}
	e := storage.Entry{
		Time:      time.Now().UTC(),
		Action:    action,
		Domain:    domain,
		SessionID: strings.TrimSpace(sessionID),
		TabID:     tabID,
		Outcome:   "ok",
		Detail:    detail,
	}
	if err != nil {
		e.Outcome = "error"
		e.Error = err.Error()
	}
	if s.journal != nil {
		_ = s.journal.Record(e)
	}
	if s.events != nil {
		payload, mErr := json.Marshal(e)
		if mErr != nil {
			slog.Debug("activity event encode failed", "action", action, "error", mErr)
			return
		}
		s.events.Publish(events.Event{Feed: action, Payload: string(payload)})
	}
}

// catalogError maps catalog failures onto coded errors.
func catalogError(err error) error {
	var coded *cdpcontrol.CodedError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &coded):
		return err
	case errors.Is(err, catalog.ErrNotFound):
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeSessionNotFound, Message: err.Error(), Cause: err}
	case errors.Is(err, catalog.ErrInvalidDomain):
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: err.Error(), Cause: err}
	default:
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeStoreFailure, Message: "session catalog unavailable", Cause: err}
	}
}
