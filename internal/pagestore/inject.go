package pagestore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dgnsrekt/sessionvault/internal/binenc"
	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

// Report summarises one injection.
type Report struct {
	Databases      map[string]ImportResult `json:"databases"`
	DroppedRecords int                     `json:"dropped_records"`
}

// Injector writes a captured snapshot back into a page.
type Injector struct{}

func NewInjector() *Injector { return &Injector{} }

// Inject replaces web storage and rebuilds every database. Only a failure to
// write web storage is returned; database problems are recorded in the
// report and never stop sibling databases.
func (in *Injector) Inject(ctx context.Context, page Page, storage snapshot.Storage) (Report, error) {
	rep := Report{Databases: map[string]ImportResult{}}

	ws := WebStorage{Local: storage.LocalStorage, Session: storage.SessionStorage}
	if ws.Local == nil {
		ws.Local = map[string]string{}
	}
	if ws.Session == nil {
		ws.Session = map[string]string{}
	}
	if err := page.WriteWebStorage(ctx, ws); err != nil {
		return rep, fmt.Errorf("failed to inject storage data into the page: %w", err)
	}

	for _, name := range storage.DatabaseNames() {
		db := storage.IndexedDB[name]

		if err := page.DeleteDatabase(ctx, name); err != nil {
			slog.Warn("indexeddb delete failed", "database", name, "error", err)
		}
		if len(db.Stores) == 0 {
			continue
		}

		plan, dropped := buildPlan(name, db)
		rep.DroppedRecords += dropped

		res, err := page.ImportDatabase(ctx, plan)
		if err != nil {
			res = ImportResult{Outcome: OutcomeOpenError, Detail: err.Error()}
		}
		rep.Databases[name] = res

		switch res.Outcome {
		case OutcomeOK:
			if res.FailedPuts > 0 {
				slog.Warn("indexeddb import had failed puts", "database", name, "puts", res.Puts, "failed_puts", res.FailedPuts)
			} else {
				slog.Debug("indexeddb imported", "database", name, "puts", res.Puts)
			}
		default:
			slog.Warn("indexeddb import failed", "database", name, "outcome", res.Outcome, "detail", res.Detail)
		}
	}
	return rep, nil
}

// Clear empties web storage and then, best effort, removes service workers,
// caches and every database.
func (in *Injector) Clear(ctx context.Context, page Page) error {
	if err := page.ClearWebStorage(ctx); err != nil {
		return fmt.Errorf("clear web storage: %w", err)
	}
	if err := page.ClearSiteData(ctx); err != nil {
		slog.Warn("site data clear failed", "error", err)
	}
	names, err := page.DatabaseNames(ctx)
	if err != nil {
		slog.Warn("indexeddb listing failed during clear", "error", err)
		return nil
	}
	for _, name := range names {
		if err := page.DeleteDatabase(ctx, name); err != nil {
			slog.Warn("indexeddb delete failed", "database", name, "error", err)
		}
	}
	return nil
}

// buildPlan decodes every record before anything is written. Records that
// fail to decode are dropped.
func buildPlan(name string, db snapshot.Database) (DatabaseImport, int) {
	plan := DatabaseImport{Name: name, Version: db.Version, Stores: make(map[string]StorePlan, len(db.Stores))}
	if plan.Version < 1 {
		plan.Version = 1
	}

	storeNames := make([]string, 0, len(db.Stores))
	for s := range db.Stores {
		storeNames = append(storeNames, s)
	}
	sort.Strings(storeNames)

	dropped := 0
	for _, storeName := range storeNames {
		st := db.Stores[storeName]
		inline := st.Schema.KeyPath.Inline()
		sp := StorePlan{Schema: st.Schema, Records: make([]PlanRecord, 0, len(st.Records))}
		for i, rec := range st.Records {
			val, err := binenc.Decode(rec.Value)
			if err != nil {
				dropped++
				slog.Warn("indexeddb record dropped", "database", name, "store", storeName, "index", i, "error", err)
				continue
			}
			pr := PlanRecord{Value: val}
			if !inline && rec.Key != nil {
				key, err := binenc.Decode(rec.Key)
				if err != nil {
					dropped++
					slog.Warn("indexeddb record dropped", "database", name, "store", storeName, "index", i, "error", err)
					continue
				}
				pr.Key, pr.HasKey = key, true
			}
			sp.Records = append(sp.Records, pr)
		}
		plan.Stores[storeName] = sp
	}
	return plan, dropped
}
