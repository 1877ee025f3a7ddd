package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

func newTestCatalog(t *testing.T) (*Catalog, *Store) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	c := New(store)
	clock := time.UnixMilli(1_700_000_000_000)
	c.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return c, store
}

func sampleSnapshot(value string) snapshot.Snapshot {
	return snapshot.Snapshot{
		Cookies: []snapshot.Cookie{{Name: "sid", Value: value, Domain: ".example.com", Path: "/"}},
		Storage: snapshot.Storage{LocalStorage: map[string]string{"user": value}},
	}
}

func TestDomainFromURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://www.example.com/path", want: "example.com"},
		{in: "https://app.example.com", want: "app.example.com"},
		{in: "http://localhost:3000/x", want: "localhost:3000"},
		{in: "http://127.0.0.1:8080", want: "127.0.0.1:8080"},
		{in: "http://localhost/", want: "localhost"},
		{in: "https://Example.COM:8443/", want: "example.com"},
		{in: "about:blank", wantErr: true},
	}
	for _, tt := range tests {
		got, err := DomainFromURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("DomainFromURL(%q) = %q; want error", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("DomainFromURL(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, DefaultName, NormalizeName("   "))
	assert.Equal(t, "Work", NormalizeName("  Work "))
}

func TestCreateAssignsOrderAndActive(t *testing.T) {
	c, _ := newTestCatalog(t)

	a, err := c.Create("example.com", "A", nil, sampleSnapshot("a"))
	require.NoError(t, err)
	b, err := c.Create("example.com", "", nil, sampleSnapshot("b"))
	require.NoError(t, err)
	other, err := c.Create("other.test", "O", nil, sampleSnapshot("o"))
	require.NoError(t, err)

	assert.Equal(t, 1, a.Order)
	assert.Equal(t, 2, b.Order)
	assert.Equal(t, 1, other.Order)
	assert.Equal(t, DefaultName, b.Name)
	assert.NotEqual(t, a.ID, b.ID)

	active, ok, err := c.Active("example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, b.ID, active)
}

func TestCreateAtExplicitOrderShiftsSiblings(t *testing.T) {
	c, _ := newTestCatalog(t)
	a, _ := c.Create("d", "a", nil, snapshot.Snapshot{})
	b, _ := c.Create("d", "b", nil, snapshot.Snapshot{})
	first := 1
	n, err := c.Create("d", "new", &first, snapshot.Snapshot{})
	require.NoError(t, err)

	list, err := c.List("d")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{n.ID, a.ID, b.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestDeleteClosesGapAndClearsActive(t *testing.T) {
	c, _ := newTestCatalog(t)
	var ids []string
	for i := 0; i < 4; i++ {
		s, err := c.Create("d", fmt.Sprint(i), nil, snapshot.Snapshot{})
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	require.NoError(t, c.Delete(ids[1]))
	require.NoError(t, c.Delete(ids[3]))

	list, _ := c.List("d")
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Order)
	assert.Equal(t, 2, list[1].Order)

	_, ok, _ := c.Active("d")
	assert.False(t, ok, "active mapping must be cleared with its session")

	assert.True(t, errors.Is(c.Delete("missing"), ErrNotFound))
}

func TestRenameMovesSession(t *testing.T) {
	c, _ := newTestCatalog(t)
	a, _ := c.Create("d", "a", nil, snapshot.Snapshot{})
	c.Create("d", "b", nil, snapshot.Snapshot{})
	c.Create("d", "c", nil, snapshot.Snapshot{})

	three := 3
	moved, err := c.Rename(a.ID, " renamed ", &three)
	require.NoError(t, err)
	assert.Equal(t, "renamed", moved.Name)
	assert.Equal(t, 3, moved.Order)

	list, _ := c.List("d")
	assert.Equal(t, []string{"b", "c", "renamed"}, []string{list[0].Name, list[1].Name, list[2].Name})
}

func TestReplaceAndMarkSwitchedUpdateLastUsed(t *testing.T) {
	c, _ := newTestCatalog(t)
	s, _ := c.Create("example.com", "a", nil, sampleSnapshot("old"))
	c.Create("example.com", "b", nil, sampleSnapshot("b"))

	replaced, err := c.Replace(s.ID, sampleSnapshot("new"))
	require.NoError(t, err)
	assert.Equal(t, "new", replaced.LocalStorage["user"])
	assert.Greater(t, replaced.LastUsed, s.LastUsed)

	active, _, _ := c.Active("example.com")
	assert.Equal(t, s.ID, active)

	switched, err := c.MarkSwitched(s.ID)
	require.NoError(t, err)
	assert.Greater(t, switched.LastUsed, replaced.LastUsed)
}

func TestGetReturnsCopies(t *testing.T) {
	c, _ := newTestCatalog(t)
	s, _ := c.Create("example.com", "a", nil, sampleSnapshot("v"))

	got, err := c.Get(s.ID)
	require.NoError(t, err)
	got.LocalStorage["user"] = "mutated"

	again, _ := c.Get(s.ID)
	assert.Equal(t, "v", again.LocalStorage["user"])
}

func TestImportNeverCollides(t *testing.T) {
	c, _ := newTestCatalog(t)
	existing, _ := c.Create("example.com", "mine", nil, sampleSnapshot("mine"))

	incoming := existing.Clone()
	incoming.Name = "theirs"
	incoming.Snapshot = sampleSnapshot("theirs")
	imported, err := c.Import([]Session{incoming})
	require.NoError(t, err)
	require.Len(t, imported, 1)

	assert.NotEqual(t, existing.ID, imported[0].ID)
	assert.Equal(t, "theirs", imported[0].Name)
	assert.Equal(t, "theirs", imported[0].LocalStorage["user"])
	assert.Equal(t, existing.CreatedAt, imported[0].CreatedAt)
	assert.Equal(t, 2, imported[0].Order)

	all, _ := c.List("")
	assert.Len(t, all, 2)
}

func TestImportRejectsMissingDomain(t *testing.T) {
	c, _ := newTestCatalog(t)
	_, err := c.Import([]Session{{Name: "x"}})
	assert.ErrorIs(t, err, ErrInvalidDomain)
}

func TestClearDomainAndAll(t *testing.T) {
	c, _ := newTestCatalog(t)
	c.Create("a.test", "1", nil, snapshot.Snapshot{})
	c.Create("a.test", "2", nil, snapshot.Snapshot{})
	c.Create("b.test", "3", nil, snapshot.Snapshot{})
	require.NoError(t, c.SetViewMode("grid"))

	removed, err := c.ClearDomain("a.test")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	_, ok, _ := c.Active("a.test")
	assert.False(t, ok)
	rest, _ := c.List("")
	assert.Len(t, rest, 1)

	removed, err = c.ClearAll()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, ok, _ = c.Active("b.test")
	assert.False(t, ok)

	mode, _ := c.ViewMode()
	assert.Equal(t, "grid", mode)
}

func TestStatePersistsAcrossInstances(t *testing.T) {
	c, store := newTestCatalog(t)
	s, err := c.Create("example.com", "persist", nil, sampleSnapshot("p"))
	require.NoError(t, err)

	reopened := New(store)
	got, err := reopened.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "persist", got.Name)
	assert.Equal(t, "p", got.Cookies[0].Value)
}

func TestStoreMissingFileIsEmpty(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Sessions)
	assert.NotNil(t, st.ActiveSessions)
	assert.Equal(t, DefaultViewMode, st.ViewMode)
}

func TestStoreCorruptFileIsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFile), []byte("{not json"), 0o644))
	store, err := NewStore(dir)
	require.NoError(t, err)

	_, err = store.Load()
	assert.Error(t, err)

	c := New(store)
	_, err = c.Create("d", "x", nil, snapshot.Snapshot{})
	assert.Error(t, err, "a corrupt catalog must not be overwritten")
	data, _ := os.ReadFile(filepath.Join(dir, stateFile))
	assert.Equal(t, "{not json", string(data))
}

func TestStoreRepairsBrokenOrders(t *testing.T) {
	dir := t.TempDir()
	doc := `{"sessions":[{"id":"a","domain":"d","order":5},{"id":"b","domain":"d","order":5}],"activeSessions":{}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFile), []byte(doc), 0o644))
	store, _ := NewStore(dir)

	st, err := store.Load()
	require.NoError(t, err)
	assert.True(t, orderValid(st.Sessions))
}
