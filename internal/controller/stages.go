package controller

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/sessionvault/internal/cookies"
	"github.com/dgnsrekt/sessionvault/internal/metrics"
	"github.com/dgnsrekt/sessionvault/internal/pagestore"
	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

// cookieStage feeds the switcher. Per-cookie failures are soft and only
// counted.
type cookieStage struct {
	m       *cookies.Manager
	metrics *metrics.Metrics
}

func (c cookieStage) Clear(ctx context.Context, domain string) error {
	res := c.m.Clear(ctx, domain)
	if c.metrics != nil && res.Failed > 0 {
		c.metrics.CookieRemoveFailures.Add(float64(res.Failed))
	}
	return nil
}

func (c cookieStage) Restore(ctx context.Context, list []snapshot.Cookie, domain string) error {
	res := c.m.Restore(ctx, list, domain)
	if c.metrics != nil && res.Failed > 0 {
		c.metrics.CookieRestoreFailures.Add(float64(res.Failed))
	}
	return nil
}

type storageStage struct {
	browser  Browser
	injector *pagestore.Injector
	metrics  *metrics.Metrics
}

func (s storageStage) Clear(ctx context.Context, tabID string) error {
	return s.injector.Clear(ctx, s.browser.Page(tabID))
}

func (s storageStage) Restore(ctx context.Context, tabID string, st snapshot.Storage) error {
	rep, err := s.injector.Inject(ctx, s.browser.Page(tabID), st)
	countImports(s.metrics, rep)
	if err != nil {
		return fmt.Errorf("restore storage: %w", err)
	}
	return nil
}

func countImports(m *metrics.Metrics, rep pagestore.Report) {
	if m == nil {
		return
	}
	for _, res := range rep.Databases {
		m.IDBImports.WithLabelValues(string(res.Outcome)).Inc()
		if res.FailedPuts > 0 {
			m.IDBPutFailures.Add(float64(res.FailedPuts))
		}
	}
}
