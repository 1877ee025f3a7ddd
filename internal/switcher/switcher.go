// Package switcher moves a tab from its current site state to a saved
// snapshot: clear, restore under a deadline, then always reload.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

const (
	DefaultRestoreDeadline = 2000 * time.Millisecond
	DefaultReloadTimeout   = 10 * time.Second
)

var (
	ErrInvalidTarget  = errors.New("switcher: tab id and domain are required")
	ErrRestoreTimeout = errors.New("switcher: restore deadline exceeded")
)

type State int32

const (
	Idle State = iota
	Clearing
	Restoring
	Reloading
)

func (s State) String() string {
	switch s {
	case Clearing:
		return "clearing"
	case Restoring:
		return "restoring"
	case Reloading:
		return "reloading"
	default:
		return "idle"
	}
}

type CookieManager interface {
	Clear(ctx context.Context, domain string) error
	Restore(ctx context.Context, cookies []snapshot.Cookie, domain string) error
}

type StorageManager interface {
	Clear(ctx context.Context, tabID string) error
	Restore(ctx context.Context, tabID string, storage snapshot.Storage) error
}

type Reloader interface {
	Reload(ctx context.Context, tabID string) error
}

// Observer is notified of every state change.
type Observer func(tabID string, from, to State)

type Options struct {
	RestoreDeadline time.Duration
	ReloadTimeout   time.Duration
	Observer        Observer
}

type Target struct {
	TabID    string
	Domain   string
	Snapshot snapshot.Snapshot
}

// Outcome describes a switch whose clearing phase succeeded. Restore and
// reload problems land here instead of in the returned error.
type Outcome struct {
	TimedOut   bool          `json:"timed_out"`
	RestoreErr error         `json:"-"`
	ReloadErr  error         `json:"-"`
	Duration   time.Duration `json:"duration"`
}

type Coordinator struct {
	cookies  CookieManager
	storage  StorageManager
	reloader Reloader
	opts     Options
	state    atomic.Int32
}

func New(cookies CookieManager, storage StorageManager, reloader Reloader, opts Options) *Coordinator {
	if opts.RestoreDeadline <= 0 {
		opts.RestoreDeadline = DefaultRestoreDeadline
	}
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = DefaultReloadTimeout
	}
	return &Coordinator{cookies: cookies, storage: storage, reloader: reloader, opts: opts}
}

func (c *Coordinator) State() State { return State(c.state.Load()) }

func (c *Coordinator) transition(tabID string, to State) {
	from := State(c.state.Swap(int32(to)))
	slog.Debug("switch state", "tab_id", tabID, "from", from.String(), "to", to.String())
	if c.opts.Observer != nil {
		c.opts.Observer(tabID, from, to)
	}
}

// reloadGuard reloads its tab exactly once when released.
type reloadGuard struct {
	c     *Coordinator
	ctx   context.Context
	tabID string
	err   error
	done  bool
}

func (c *Coordinator) acquireReload(ctx context.Context, tabID string) *reloadGuard {
	return &reloadGuard{c: c, ctx: context.WithoutCancel(ctx), tabID: tabID}
}

func (g *reloadGuard) release() {
	if g.done {
		return
	}
	g.done = true
	g.c.transition(g.tabID, Reloading)
	ctx, cancel := context.WithTimeout(g.ctx, g.c.opts.ReloadTimeout)
	defer cancel()
	if err := g.c.reloader.Reload(ctx, g.tabID); err != nil {
		g.err = err
		slog.Warn("tab reload failed", "tab_id", g.tabID, "error", err)
	}
	g.c.transition(g.tabID, Idle)
}

// Switch clears the domain's live state, restores the target snapshot and
// reloads the tab. The reload happens on every path once the target is
// valid. Only a clearing failure is returned.
func (c *Coordinator) Switch(ctx context.Context, t Target) (out Outcome, err error) {
	if strings.TrimSpace(t.TabID) == "" || strings.TrimSpace(t.Domain) == "" {
		return Outcome{}, ErrInvalidTarget
	}
	start := time.Now()
	slog.Info("session switch start", "tab_id", t.TabID, "domain", t.Domain, "cookies", len(t.Snapshot.Cookies))

	guard := c.acquireReload(ctx, t.TabID)
	defer func() {
		guard.release()
		out.ReloadErr = guard.err
		out.Duration = time.Since(start)
		slog.Info("session switch done",
			"tab_id", t.TabID,
			"domain", t.Domain,
			"timed_out", out.TimedOut,
			"duration", out.Duration,
			"failed", err != nil,
		)
	}()

	c.transition(t.TabID, Clearing)
	if err := c.clearSequential(ctx, t); err != nil {
		return out, fmt.Errorf("switch failed: %w", err)
	}

	c.transition(t.TabID, Restoring)
	out.TimedOut, out.RestoreErr = c.restore(ctx, t)
	if out.RestoreErr != nil {
		slog.Warn("session restore incomplete", "tab_id", t.TabID, "domain", t.Domain, "timed_out", out.TimedOut, "error", out.RestoreErr)
	}
	return out, nil
}

func (c *Coordinator) clearSequential(ctx context.Context, t Target) error {
	if err := c.cookies.Clear(ctx, t.Domain); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	if err := c.storage.Clear(ctx, t.TabID); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}
	return nil
}

// restore runs cookie and storage restoration concurrently under the restore
// deadline. On expiry the work is cancelled and abandoned.
func (c *Coordinator) restore(ctx context.Context, t Target) (bool, error) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snap := t.Snapshot.Clone()
	done := make(chan error, 1)
	go func() {
		var g errgroup.Group
		g.Go(func() error { return c.cookies.Restore(rctx, snap.Cookies, t.Domain) })
		g.Go(func() error { return c.storage.Restore(rctx, t.TabID, snap.Storage) })
		done <- g.Wait()
	}()

	timer := time.NewTimer(c.opts.RestoreDeadline)
	defer timer.Stop()

	select {
	case err := <-done:
		return false, err
	case <-timer.C:
		return true, ErrRestoreTimeout
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Clear wipes the domain's cookies and the tab's storage, then reloads.
func (c *Coordinator) Clear(ctx context.Context, domain, tabID string) (err error) {
	if strings.TrimSpace(tabID) == "" || strings.TrimSpace(domain) == "" {
		return ErrInvalidTarget
	}
	slog.Info("session clear start", "tab_id", tabID, "domain", domain)

	guard := c.acquireReload(ctx, tabID)
	defer func() {
		guard.release()
		if err == nil && guard.err != nil {
			err = fmt.Errorf("failed to clear session: reload: %w", guard.err)
		}
	}()

	c.transition(tabID, Clearing)
	var g errgroup.Group
	g.Go(func() error {
		if err := c.cookies.Clear(ctx, domain); err != nil {
			return fmt.Errorf("clear cookies: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := c.storage.Clear(ctx, tabID); err != nil {
			return fmt.Errorf("clear storage: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
