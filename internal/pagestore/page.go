// Package pagestore captures and rebuilds the storage of a live page:
// localStorage, sessionStorage and IndexedDB.
//
// The page itself is reached through Page, a set of one-shot page-context
// programs. Orchestration, failure isolation and value encoding live here.
package pagestore

import (
	"context"
	"time"

	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

// WebStorage holds both key/value storage areas of a page.
type WebStorage struct {
	Local   map[string]string `json:"localStorage"`
	Session map[string]string `json:"sessionStorage"`
}

type ExportOptions struct {
	SkipStores  []string
	OpenTimeout time.Duration
}

// StoreExport is one object store as read from the page. Values and Keys
// hold native trees with binenc.Value leaves. Keys is nil for stores with an
// inline key path.
type StoreExport struct {
	Schema snapshot.Schema
	Keys   []any
	Values []any
}

type DatabaseExport struct {
	Version int64
	Stores  map[string]StoreExport
}

// PlanRecord is a decoded record ready to be written.
type PlanRecord struct {
	Key    any
	HasKey bool
	Value  any
}

type StorePlan struct {
	Schema  snapshot.Schema
	Records []PlanRecord
}

// DatabaseImport is the fully decoded content of one database. The page
// program writes it inside a single transaction without awaiting anything
// else.
type DatabaseImport struct {
	Name    string
	Version int64
	Stores  map[string]StorePlan
}

type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeStoreError Outcome = "storeError"
	OutcomeOpenError  Outcome = "openError"
)

type ImportResult struct {
	Outcome    Outcome `json:"outcome"`
	Puts       int     `json:"puts"`
	FailedPuts int     `json:"failed_puts"`
	Detail     string  `json:"detail,omitempty"`
}

// Page runs storage programs inside one browser tab.
type Page interface {
	Location(ctx context.Context) (string, error)
	ReadWebStorage(ctx context.Context) (WebStorage, error)
	// WriteWebStorage clears both areas and then repopulates them.
	WriteWebStorage(ctx context.Context, ws WebStorage) error
	ClearWebStorage(ctx context.Context) error
	// ClearSiteData unregisters service workers and deletes Cache Storage.
	ClearSiteData(ctx context.Context) error
	DatabaseNames(ctx context.Context) ([]string, error)
	ExportDatabase(ctx context.Context, name string, opts ExportOptions) (DatabaseExport, error)
	// DeleteDatabase treats a blocked or failed deletion as done.
	DeleteDatabase(ctx context.Context, name string) error
	ImportDatabase(ctx context.Context, plan DatabaseImport) (ImportResult, error)
}
