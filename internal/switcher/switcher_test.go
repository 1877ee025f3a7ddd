package switcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeCookies struct {
	rec        *recorder
	clearErr   error
	restoreErr error
}

func (f *fakeCookies) Clear(context.Context, string) error {
	f.rec.add("cookies.clear")
	return f.clearErr
}

func (f *fakeCookies) Restore(context.Context, []snapshot.Cookie, string) error {
	f.rec.add("cookies.restore")
	return f.restoreErr
}

type fakeStorage struct {
	rec        *recorder
	clearErr   error
	restoreErr error
	delay      time.Duration
	cancelled  chan struct{}
}

func (f *fakeStorage) Clear(context.Context, string) error {
	f.rec.add("storage.clear")
	return f.clearErr
}

func (f *fakeStorage) Restore(ctx context.Context, _ string, _ snapshot.Storage) error {
	f.rec.add("storage.restore")
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			if f.cancelled != nil {
				close(f.cancelled)
			}
			return ctx.Err()
		}
	}
	return f.restoreErr
}

type fakeReloader struct {
	rec    *recorder
	err    error
	ctxErr error
}

func (f *fakeReloader) Reload(ctx context.Context, _ string) error {
	f.rec.add("reload")
	f.ctxErr = ctx.Err()
	return f.err
}

func newFixture(opts Options) (*Coordinator, *recorder, *fakeCookies, *fakeStorage, *fakeReloader) {
	rec := &recorder{}
	ck := &fakeCookies{rec: rec}
	st := &fakeStorage{rec: rec}
	rl := &fakeReloader{rec: rec}
	return New(ck, st, rl, opts), rec, ck, st, rl
}

func target() Target {
	return Target{TabID: "tab-1", Domain: "example.com", Snapshot: snapshot.Snapshot{Cookies: []snapshot.Cookie{{Name: "sid"}}}}
}

func TestSwitchOrdersPhases(t *testing.T) {
	var transitions []string
	c, rec, _, _, _ := newFixture(Options{Observer: func(_ string, from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	}})

	out, err := c.Switch(context.Background(), target())
	require.NoError(t, err)
	assert.False(t, out.TimedOut)
	assert.NoError(t, out.RestoreErr)

	calls := rec.list()
	require.Len(t, calls, 5)
	assert.Equal(t, []string{"cookies.clear", "storage.clear"}, calls[:2])
	assert.ElementsMatch(t, []string{"cookies.restore", "storage.restore"}, calls[2:4])
	assert.Equal(t, "reload", calls[4])
	assert.Equal(t, []string{"idle>clearing", "clearing>restoring", "restoring>reloading", "reloading>idle"}, transitions)
	assert.Equal(t, Idle, c.State())
}

func TestSwitchClearFailurePropagatesAndStillReloads(t *testing.T) {
	c, rec, _, st, _ := newFixture(Options{})
	st.clearErr = errors.New("script injection refused")

	_, err := c.Switch(context.Background(), target())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "switch failed"), "error = %v", err)
	assert.NotContains(t, rec.list(), "cookies.restore")
	assert.Equal(t, "reload", rec.list()[len(rec.list())-1])
}

func TestSwitchRestoreFailureIsSwallowed(t *testing.T) {
	c, rec, ck, _, _ := newFixture(Options{})
	ck.restoreErr = errors.New("cookie rejected")

	out, err := c.Switch(context.Background(), target())
	require.NoError(t, err)
	assert.Error(t, out.RestoreErr)
	assert.Contains(t, rec.list(), "reload")
}

func TestSwitchDeadlineStillReloads(t *testing.T) {
	c, rec, _, st, _ := newFixture(Options{RestoreDeadline: time.Millisecond})
	st.delay = 5 * time.Second
	st.cancelled = make(chan struct{})

	big := target()
	big.Snapshot.LocalStorage = map[string]string{"blob": strings.Repeat("x", 5<<20)}

	start := time.Now()
	out, err := c.Switch(context.Background(), big)
	require.NoError(t, err)
	assert.True(t, out.TimedOut)
	assert.ErrorIs(t, out.RestoreErr, ErrRestoreTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, rec.list(), "reload")

	select {
	case <-st.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned restore was not cancelled")
	}
}

func TestSwitchReloadIgnoresCallerCancellation(t *testing.T) {
	c, _, ck, _, rl := newFixture(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	ck.clearErr = errors.New("boom")
	cancel()

	_, err := c.Switch(ctx, target())
	require.Error(t, err)
	assert.NoError(t, rl.ctxErr, "reload context must not inherit caller cancellation")
}

func TestSwitchReloadFailureIsReportedInOutcome(t *testing.T) {
	c, _, _, _, rl := newFixture(Options{})
	rl.err = errors.New("tab closed")

	out, err := c.Switch(context.Background(), target())
	require.NoError(t, err)
	assert.EqualError(t, out.ReloadErr, "tab closed")
}

func TestSwitchReloadsOnPanic(t *testing.T) {
	rec := &recorder{}
	rl := &fakeReloader{rec: rec}
	c := New(panicCookies{}, &fakeStorage{rec: rec}, rl, Options{})

	assert.Panics(t, func() { _, _ = c.Switch(context.Background(), target()) })
	assert.Equal(t, []string{"reload"}, rec.list())
}

type panicCookies struct{}

func (panicCookies) Clear(context.Context, string) error { panic("cookie api crashed") }
func (panicCookies) Restore(context.Context, []snapshot.Cookie, string) error {
	return nil
}

func TestSwitchInvalidTarget(t *testing.T) {
	c, rec, _, _, _ := newFixture(Options{})
	_, err := c.Switch(context.Background(), Target{Domain: "example.com"})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Empty(t, rec.list())
}

func TestClearReloadsAndWrapsErrors(t *testing.T) {
	c, rec, ck, _, _ := newFixture(Options{})
	ck.clearErr = errors.New("denied")

	err := c.Clear(context.Background(), "example.com", "tab-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to clear session")
	assert.Contains(t, rec.list(), "storage.clear")
	assert.Equal(t, "reload", rec.list()[len(rec.list())-1])
}

func TestClearSuccess(t *testing.T) {
	c, rec, _, _, _ := newFixture(Options{})
	require.NoError(t, c.Clear(context.Background(), "example.com", "tab-1"))
	assert.ElementsMatch(t, []string{"cookies.clear", "storage.clear", "reload"}, rec.list())
}
