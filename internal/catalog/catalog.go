// Package catalog keeps the saved sessions of every site, their per-domain
// ordering and which session is active for each domain.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

const (
	DefaultName     = "Unnamed Session"
	DefaultViewMode = "list"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrInvalidDomain = errors.New("invalid domain")
)

// Session is a named snapshot of one domain.
type Session struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
	Name   string `json:"name"`
	Order  int    `json:"order"`
	snapshot.Snapshot
	CreatedAt int64 `json:"createdAt"`
	LastUsed  int64 `json:"lastUsed"`
}

func (s Session) Clone() Session {
	out := s
	out.Snapshot = s.Snapshot.Clone()
	return out
}

// State is the persisted document.
type State struct {
	Sessions       []Session         `json:"sessions"`
	ActiveSessions map[string]string `json:"activeSessions"`
	ViewMode       string            `json:"viewMode,omitempty"`
}

func emptyState() State {
	return State{Sessions: []Session{}, ActiveSessions: map[string]string{}, ViewMode: DefaultViewMode}
}

func (st *State) index(id string) int {
	for i := range st.Sessions {
		if st.Sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// NormalizeName trims a session name and falls back to DefaultName.
func NormalizeName(name string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return DefaultName
}

// DomainFromURL derives the catalog domain of a page URL: the hostname
// without a leading "www.", plus the port for localhost and 127.* hosts.
func DomainFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: no host in %q", ErrInvalidDomain, raw)
	}
	domain := strings.TrimPrefix(host, "www.")
	if (host == "localhost" || strings.HasPrefix(host, "127.")) && u.Port() != "" {
		domain += ":" + u.Port()
	}
	return domain, nil
}

// Catalog applies read-modify-write cycles to the Store. Updates are
// serialized within one process; separate processes sharing a data dir
// overwrite each other (last write wins).
type Catalog struct {
	store *Store
	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

func New(store *Store) *Catalog {
	return &Catalog{store: store, now: time.Now, newID: uuid.NewString}
}

func (c *Catalog) stamp() int64 { return c.now().UnixMilli() }

func (c *Catalog) read() (State, error) {
	st, err := c.store.Load()
	if err != nil {
		return State{}, err
	}
	return st, nil
}

func (c *Catalog) update(fn func(*State) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.store.Load()
	if err != nil {
		return err
	}
	if err := fn(&st); err != nil {
		return err
	}
	return c.store.Save(st)
}

// List returns the sessions of a domain sorted by order, or every session
// sorted by domain then order when domain is empty.
func (c *Catalog) List(domain string) ([]Session, error) {
	st, err := c.read()
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(st.Sessions))
	for _, s := range st.Sessions {
		if domain == "" || s.Domain == domain {
			out = append(out, s.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Order < out[j].Order
	})
	return out, nil
}

func (c *Catalog) Get(id string) (Session, error) {
	st, err := c.read()
	if err != nil {
		return Session{}, err
	}
	i := st.index(id)
	if i < 0 {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return st.Sessions[i].Clone(), nil
}

// Create saves a new session and makes it the domain's active one. A nil
// order appends after the existing sessions.
func (c *Catalog) Create(domain, name string, order *int, snap snapshot.Snapshot) (Session, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return Session{}, fmt.Errorf("%w: empty", ErrInvalidDomain)
	}
	now := c.stamp()
	s := Session{
		ID:        c.newID(),
		Domain:    domain,
		Name:      NormalizeName(name),
		Snapshot:  snap.Clone(),
		CreatedAt: now,
		LastUsed:  now,
	}
	s.Snapshot.Normalize()

	var created Session
	err := c.update(func(st *State) error {
		st.Sessions = insertAt(st.Sessions, s, order)
		created = st.Sessions[len(st.Sessions)-1].Clone()
		st.ActiveSessions[domain] = s.ID
		return nil
	})
	return created, err
}

// Rename changes the name and, when order is non-nil, the position.
func (c *Catalog) Rename(id, name string, order *int) (Session, error) {
	var out Session
	err := c.update(func(st *State) error {
		i := st.index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		st.Sessions[i].Name = NormalizeName(name)
		if order != nil {
			moveTo(st.Sessions, i, *order)
		}
		out = st.Sessions[i].Clone()
		return nil
	})
	return out, err
}

// Replace overwrites the stored snapshot and marks the session used.
func (c *Catalog) Replace(id string, snap snapshot.Snapshot) (Session, error) {
	var out Session
	err := c.update(func(st *State) error {
		i := st.index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		s := &st.Sessions[i]
		s.Snapshot = snap.Clone()
		s.Snapshot.Normalize()
		s.LastUsed = c.stamp()
		st.ActiveSessions[s.Domain] = s.ID
		out = s.Clone()
		return nil
	})
	return out, err
}

// MarkSwitched records a successful switch to the session.
func (c *Catalog) MarkSwitched(id string) (Session, error) {
	var out Session
	err := c.update(func(st *State) error {
		i := st.index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		s := &st.Sessions[i]
		s.LastUsed = c.stamp()
		st.ActiveSessions[s.Domain] = s.ID
		out = s.Clone()
		return nil
	})
	return out, err
}

func (c *Catalog) Delete(id string) error {
	return c.update(func(st *State) error {
		i := st.index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		var gone Session
		st.Sessions, gone = removeAt(st.Sessions, i)
		if st.ActiveSessions[gone.Domain] == gone.ID {
			delete(st.ActiveSessions, gone.Domain)
		}
		return nil
	})
}

// Active returns the active session id of a domain; ok is false when none is
// set or it points at a session that no longer exists.
func (c *Catalog) Active(domain string) (string, bool, error) {
	st, err := c.read()
	if err != nil {
		return "", false, err
	}
	id, ok := st.ActiveSessions[domain]
	if !ok || st.index(id) < 0 {
		return "", false, nil
	}
	return id, true, nil
}

func (c *Catalog) ClearActive(domain string) error {
	return c.update(func(st *State) error {
		delete(st.ActiveSessions, domain)
		return nil
	})
}

// ClearDomain removes every session of the domain and its active mapping.
func (c *Catalog) ClearDomain(domain string) (int, error) {
	removed := 0
	err := c.update(func(st *State) error {
		kept := st.Sessions[:0:0]
		for _, s := range st.Sessions {
			if s.Domain == domain {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		st.Sessions = kept
		delete(st.ActiveSessions, domain)
		return nil
	})
	return removed, err
}

// ClearAll empties the catalog and the active map. The view mode survives.
func (c *Catalog) ClearAll() (int, error) {
	removed := 0
	err := c.update(func(st *State) error {
		removed = len(st.Sessions)
		st.Sessions = []Session{}
		st.ActiveSessions = map[string]string{}
		return nil
	})
	return removed, err
}

// Import merges sessions under fresh ids. Each one is placed after the
// existing sessions of its domain; incoming relative order is kept.
func (c *Catalog) Import(sessions []Session) ([]Session, error) {
	batch := make([]Session, 0, len(sessions))
	now := c.stamp()
	for _, s := range sessions {
		s = s.Clone()
		s.ID = c.newID()
		s.Domain = strings.TrimSpace(s.Domain)
		if s.Domain == "" {
			return nil, fmt.Errorf("%w: imported session %q has no domain", ErrInvalidDomain, s.Name)
		}
		s.Name = NormalizeName(s.Name)
		s.Snapshot.Normalize()
		if s.CreatedAt == 0 {
			s.CreatedAt = now
		}
		if s.LastUsed == 0 {
			s.LastUsed = s.CreatedAt
		}
		batch = append(batch, s)
	}

	var out []Session
	err := c.update(func(st *State) error {
		start := len(st.Sessions)
		st.Sessions = appendBatch(st.Sessions, batch)
		for _, s := range st.Sessions[start:] {
			out = append(out, s.Clone())
		}
		return nil
	})
	return out, err
}

// Export returns the sessions of a domain, or all when domain is empty.
func (c *Catalog) Export(domain string) ([]Session, error) {
	return c.List(domain)
}

func (c *Catalog) ViewMode() (string, error) {
	st, err := c.read()
	if err != nil {
		return "", err
	}
	if st.ViewMode == "" {
		return DefaultViewMode, nil
	}
	return st.ViewMode, nil
}

func (c *Catalog) SetViewMode(mode string) error {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		mode = DefaultViewMode
	}
	return c.update(func(st *State) error {
		st.ViewMode = mode
		return nil
	})
}
