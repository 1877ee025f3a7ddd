// Package snapshot defines the serializable client-side state of a website:
// cookies, web storage and IndexedDB contents. JSON field names follow the
// export format of the browser extension so exported files stay portable.
package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgnsrekt/sessionvault/internal/binenc"
)

// SameSite values as reported by the extension cookie API.
type SameSite string

const (
	SameSiteNoRestriction SameSite = "no_restriction"
	SameSiteLax           SameSite = "lax"
	SameSiteStrict        SameSite = "strict"
	SameSiteUnspecified   SameSite = "unspecified"
)

// PartitionKey identifies a partitioned (CHIPS) cookie jar.
type PartitionKey struct {
	TopLevelSite         string `json:"topLevelSite,omitempty"`
	HasCrossSiteAncestor bool   `json:"hasCrossSiteAncestor,omitempty"`
}

// Cookie is one captured cookie. A Domain without a leading dot together with
// HostOnly means the cookie applies to exactly that host.
type Cookie struct {
	Name           string        `json:"name"`
	Value          string        `json:"value"`
	Domain         string        `json:"domain"`
	HostOnly       bool          `json:"hostOnly"`
	Path           string        `json:"path"`
	Secure         bool          `json:"secure"`
	HTTPOnly       bool          `json:"httpOnly"`
	Session        bool          `json:"session"`
	ExpirationDate float64       `json:"expirationDate,omitempty"`
	SameSite       SameSite      `json:"sameSite,omitempty"`
	StoreID        string        `json:"storeId,omitempty"`
	PartitionKey   *PartitionKey `json:"partitionKey,omitempty"`
}

// KeyPath mirrors an IndexedDB key path: absent, a single path, or an array
// of paths.
type KeyPath struct {
	Paths []string
	Array bool
}

func SingleKeyPath(p string) KeyPath      { return KeyPath{Paths: []string{p}} }
func CompoundKeyPath(p ...string) KeyPath { return KeyPath{Paths: p, Array: true} }

// Inline reports whether records carry their key inside the value.
func (k KeyPath) Inline() bool { return k.Array || len(k.Paths) > 0 }

func (k KeyPath) MarshalJSON() ([]byte, error) {
	switch {
	case k.Array:
		paths := k.Paths
		if paths == nil {
			paths = []string{}
		}
		return json.Marshal(paths)
	case len(k.Paths) == 0:
		return []byte("null"), nil
	default:
		return json.Marshal(k.Paths[0])
	}
}

func (k *KeyPath) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*k = KeyPath{}
	case string:
		*k = SingleKeyPath(v)
	case []any:
		paths := make([]string, 0, len(v))
		for _, p := range v {
			s, ok := p.(string)
			if !ok {
				return fmt.Errorf("snapshot: key path element %v is not a string", p)
			}
			paths = append(paths, s)
		}
		*k = KeyPath{Paths: paths, Array: true}
	default:
		return fmt.Errorf("snapshot: unsupported key path %s", string(data))
	}
	return nil
}

func (k KeyPath) clone() KeyPath {
	if k.Paths == nil {
		return KeyPath{Array: k.Array}
	}
	return KeyPath{Paths: append([]string(nil), k.Paths...), Array: k.Array}
}

type Index struct {
	Name       string  `json:"name"`
	KeyPath    KeyPath `json:"keyPath"`
	Unique     bool    `json:"unique"`
	MultiEntry bool    `json:"multiEntry"`
}

type Schema struct {
	KeyPath       KeyPath `json:"keyPath"`
	AutoIncrement bool    `json:"autoIncrement"`
	Indexes       []Index `json:"indexes"`
}

// Record holds one stored value in transport-safe encoding. Key is set only
// for stores without an inline key path.
type Record struct {
	Key   any `json:"key,omitempty"`
	Value any `json:"value"`
}

type ObjectStore struct {
	Schema  Schema   `json:"schema"`
	Records []Record `json:"records"`
}

type Database struct {
	Version int64                  `json:"version"`
	Stores  map[string]ObjectStore `json:"stores"`
}

// Storage is the page-side half of a snapshot.
type Storage struct {
	LocalStorage   map[string]string   `json:"localStorage"`
	SessionStorage map[string]string   `json:"sessionStorage"`
	IndexedDB      map[string]Database `json:"indexedDB"`
}

// EmptyStorage returns a Storage with every section present and empty.
func EmptyStorage() Storage {
	return Storage{
		LocalStorage:   map[string]string{},
		SessionStorage: map[string]string{},
		IndexedDB:      map[string]Database{},
	}
}

// Snapshot is the full captured state of one site.
type Snapshot struct {
	Cookies []Cookie `json:"cookies"`
	Storage
}

// Normalize replaces nil sections with empty ones so the JSON form always
// carries every key.
func (s *Snapshot) Normalize() {
	if s.Cookies == nil {
		s.Cookies = []Cookie{}
	}
	s.Storage.Normalize()
}

func (s *Storage) Normalize() {
	if s.LocalStorage == nil {
		s.LocalStorage = map[string]string{}
	}
	if s.SessionStorage == nil {
		s.SessionStorage = map[string]string{}
	}
	if s.IndexedDB == nil {
		s.IndexedDB = map[string]Database{}
	}
}

// DatabaseNames returns IndexedDB names in sorted order.
func (s Storage) DatabaseNames() []string {
	names := make([]string, 0, len(s.IndexedDB))
	for name := range s.IndexedDB {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RecordCount is the number of IndexedDB records across all databases.
func (s Storage) RecordCount() int {
	n := 0
	for _, db := range s.IndexedDB {
		for _, st := range db.Stores {
			n += len(st.Records)
		}
	}
	return n
}

func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Storage: s.Storage.Clone()}
	if s.Cookies != nil {
		out.Cookies = make([]Cookie, len(s.Cookies))
		for i, c := range s.Cookies {
			if c.PartitionKey != nil {
				pk := *c.PartitionKey
				c.PartitionKey = &pk
			}
			out.Cookies[i] = c
		}
	}
	return out
}

func (s Storage) Clone() Storage {
	out := Storage{
		LocalStorage:   cloneStrings(s.LocalStorage),
		SessionStorage: cloneStrings(s.SessionStorage),
	}
	if s.IndexedDB != nil {
		out.IndexedDB = make(map[string]Database, len(s.IndexedDB))
		for name, db := range s.IndexedDB {
			out.IndexedDB[name] = db.Clone()
		}
	}
	return out
}

func (d Database) Clone() Database {
	out := Database{Version: d.Version}
	if d.Stores != nil {
		out.Stores = make(map[string]ObjectStore, len(d.Stores))
		for name, st := range d.Stores {
			out.Stores[name] = st.Clone()
		}
	}
	return out
}

func (o ObjectStore) Clone() ObjectStore {
	out := ObjectStore{Schema: o.Schema.Clone()}
	if o.Records != nil {
		out.Records = make([]Record, len(o.Records))
		for i, r := range o.Records {
			out.Records[i] = Record{Key: binenc.Clone(r.Key), Value: binenc.Clone(r.Value)}
		}
	}
	return out
}

func (s Schema) Clone() Schema {
	out := Schema{KeyPath: s.KeyPath.clone(), AutoIncrement: s.AutoIncrement}
	if s.Indexes != nil {
		out.Indexes = make([]Index, len(s.Indexes))
		for i, idx := range s.Indexes {
			idx.KeyPath = idx.KeyPath.clone()
			out.Indexes[i] = idx
		}
	}
	return out
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
