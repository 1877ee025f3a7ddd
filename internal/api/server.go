package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/sessionvault/internal/catalog"
	"github.com/dgnsrekt/sessionvault/internal/cdpcontrol"
	"github.com/dgnsrekt/sessionvault/internal/controller"
	"github.com/dgnsrekt/sessionvault/internal/events"
	"github.com/dgnsrekt/sessionvault/internal/metrics"
	"github.com/dgnsrekt/sessionvault/internal/pagestore"
	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

type Service interface {
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	CurrentSnapshot(ctx context.Context, tabID, domain string) (snapshot.Snapshot, string, error)
	ClearSession(ctx context.Context, tabID, domain string) (string, error)
	ListSessions(ctx context.Context, domain string) ([]catalog.Session, error)
	GetSession(ctx context.Context, sessionID string) (catalog.Session, error)
	SaveCurrentSession(ctx context.Context, tabID, name string, order *int) (catalog.Session, error)
	RenameSession(ctx context.Context, sessionID, name string, order *int) (catalog.Session, error)
	ReplaceSession(ctx context.Context, sessionID, tabID string) (catalog.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	SwitchSession(ctx context.Context, tabID, sessionID string, data *catalog.Session) (controller.SwitchResult, error)
	RestoreStorage(ctx context.Context, sessionID, tabID string) (pagestore.Report, error)
	ActiveSession(ctx context.Context, domain string) (string, error)
	ViewMode(ctx context.Context) (string, error)
	SetViewMode(ctx context.Context, mode string) (string, error)
	ExportSessions(ctx context.Context, scope, domain string) (controller.ExportDocument, error)
	ImportSessions(ctx context.Context, raw []byte) (controller.ImportSummary, error)
	ClearSessions(ctx context.Context, scope, tabID, domain string) (controller.ClearSummary, error)
	Dispatch(ctx context.Context, cmd controller.Command) controller.Response
}

// ServerOptions carries the optional collaborators of the HTTP surface.
// A nil Metrics disables /metrics, a nil Events disables /api/v1/events.
type ServerOptions struct {
	Metrics   *metrics.Metrics
	Events    *events.Broker
	KeepAlive time.Duration
}

func NewServer(svc Service, opts ServerOptions) http.Handler {
	m := opts.Metrics
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(m))
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("sessionvault API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}
	if opts.Events != nil {
		keepAlive := opts.KeepAlive
		if keepAlive == 0 {
			keepAlive = 15 * time.Second
		}
		router.Get("/api/v1/events", events.SSEHandler(opts.Events, keepAlive))
	}

	registerHealthHandlers(api, svc)
	registerTabHandlers(api, svc)
	registerSessionHandlers(api, svc)
	registerTransferHandlers(api, svc)
	registerCommandHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeTabNotFound, cdpcontrol.CodeSessionNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeImportFormat:
			return huma.Error422UnprocessableEntity(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
