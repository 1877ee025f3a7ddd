package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/sessionvault/internal/catalog"
	"github.com/dgnsrekt/sessionvault/internal/cdpcontrol"
)

const ExportVersion = "1.0"

const (
	ScopeCurrent = "current"
	ScopeAll     = "all"
)

// ExportDocument is the portable catalog file.
type ExportDocument struct {
	Version    string            `json:"version"`
	ExportDate string            `json:"exportDate"`
	Sessions   []catalog.Session `json:"sessions"`
}

// Marshal renders the document with two-space indentation.
func (d ExportDocument) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

type ClearSummary struct {
	Scope   string `json:"scope"`
	Domain  string `json:"domain,omitempty"`
	Removed int    `json:"removed"`
	Archive string `json:"archive,omitempty"`
}

type ImportSummary struct {
	Imported int               `json:"imported"`
	Sessions []catalog.Session `json:"sessions"`
}

func normalizeScope(scope string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "", ScopeCurrent:
		return ScopeCurrent, nil
	case ScopeAll:
		return ScopeAll, nil
	default:
		return "", &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "scope must be \"current\" or \"all\""}
	}
}

// ExportSessions builds an export of one domain (scope current) or of the
// whole catalog.
func (s *Service) ExportSessions(ctx context.Context, scope, domain string) (ExportDocument, error) {
	if strings.TrimSpace(scope) == "" {
		scope = ScopeAll
	}
	scope, err := normalizeScope(scope)
	if err != nil {
		return ExportDocument{}, err
	}
	domain = strings.TrimSpace(domain)
	if scope == ScopeCurrent {
		if err := s.requireNonEmpty(domain, "domain"); err != nil {
			return ExportDocument{}, err
		}
	} else {
		domain = ""
	}

	list, err := s.catalog.Export(domain)
	if err != nil {
		return ExportDocument{}, catalogError(err)
	}
	return ExportDocument{
		Version:    ExportVersion,
		ExportDate: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Sessions:   list,
	}, nil
}

// ImportSessions merges an export document into the catalog. raw may be
// the document itself or a JSON string holding it.
func (s *Service) ImportSessions(ctx context.Context, raw []byte) (ImportSummary, error) {
	doc, err := parseExport(raw)
	if err != nil {
		return ImportSummary{}, err
	}
	imported, err := s.catalog.Import(doc.Sessions)
	s.record("import", "", "", "", err, map[string]int{"sessions": len(doc.Sessions)})
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidDomain) {
			return ImportSummary{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeImportFormat, Message: "Invalid import data format", Cause: err}
		}
		return ImportSummary{}, catalogError(err)
	}
	s.refreshGauge()
	if imported == nil {
		imported = []catalog.Session{}
	}
	slog.Info("sessions imported", "count", len(imported))
	return ImportSummary{Imported: len(imported), Sessions: imported}, nil
}

func invalidImport(cause error) error {
	return &cdpcontrol.CodedError{Code: cdpcontrol.CodeImportFormat, Message: "Invalid import data format", Cause: cause}
}

func parseExport(raw []byte) (ExportDocument, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return ExportDocument{}, invalidImport(err)
		}
		raw = bytes.TrimSpace([]byte(text))
	}

	var shape struct {
		Version  *string         `json:"version"`
		Sessions json.RawMessage `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return ExportDocument{}, invalidImport(err)
	}
	if len(shape.Sessions) == 0 || shape.Sessions[0] != '[' {
		return ExportDocument{}, invalidImport(nil)
	}
	if shape.Version != nil {
		switch *shape.Version {
		case "1.0", "1.0.0":
		default:
			return ExportDocument{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeImportFormat, Message: "Invalid import data format: unsupported version " + *shape.Version}
		}
	}

	var doc ExportDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ExportDocument{}, invalidImport(err)
	}
	return doc, nil
}

// ClearSessions removes saved sessions. Scope current clears the live tab
// (when given) and drops the domain's sessions; scope all archives and then
// empties the whole catalog.
func (s *Service) ClearSessions(ctx context.Context, scope, tabID, domain string) (ClearSummary, error) {
	scope, err := normalizeScope(scope)
	if err != nil {
		return ClearSummary{}, err
	}
	tabID = strings.TrimSpace(tabID)
	domain = strings.TrimSpace(domain)
	sum := ClearSummary{Scope: scope}

	switch scope {
	case ScopeCurrent:
		if tabID != "" {
			if domain, err = s.ClearSession(ctx, tabID, domain); err != nil {
				return sum, err
			}
		}
		if err := s.requireNonEmpty(domain, "domain"); err != nil {
			return sum, err
		}
		sum.Domain = domain
		sum.Removed, err = s.catalog.ClearDomain(domain)
	case ScopeAll:
		sum.Archive = s.archiveAll(ctx)
		if tabID != "" {
			if _, err := s.ClearSession(ctx, tabID, domain); err != nil {
				return sum, err
			}
		}
		sum.Removed, err = s.catalog.ClearAll()
	}
	s.record("clear_sessions", sum.Domain, "", tabID, err, sum)
	if err != nil {
		return sum, catalogError(err)
	}
	s.refreshGauge()
	return sum, nil
}

// archiveAll keeps a copy of the catalog before it is wiped. It returns the
// archive path, or "" when archiving is off or failed.
func (s *Service) archiveAll(ctx context.Context) string {
	if s.archive == nil {
		return ""
	}
	doc, err := s.ExportSessions(ctx, ScopeAll, "")
	if err != nil {
		slog.Warn("catalog archive skipped", "error", err)
		return ""
	}
	if len(doc.Sessions) == 0 {
		return ""
	}
	data, err := doc.Marshal()
	if err != nil {
		slog.Warn("catalog archive marshal failed", "error", err)
		return ""
	}
	path, err := s.archive.Save("all", data)
	if err != nil {
		slog.Warn("catalog archive failed", "error", err)
		return ""
	}
	slog.Info("catalog archived", "path", path, "sessions", len(doc.Sessions))
	return path
}
