package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/sessionvault/internal/controller"
)

func registerTransferHandlers(api huma.API, svc Service) {
	type exportOutput struct {
		ContentDisposition string `header:"Content-Disposition"`
		Body               controller.ExportDocument
	}

	huma.Register(api, huma.Operation{OperationID: "export-sessions", Method: http.MethodGet, Path: "/api/v1/export", Summary: "Export saved sessions", Tags: []string{"Transfer"}},
		func(ctx context.Context, input *struct {
			Scope  string `query:"scope" enum:"current,all" default:"all"`
			Domain string `query:"domain" doc:"Required with scope=current"`
		}) (*exportOutput, error) {
			doc, err := svc.ExportSessions(ctx, input.Scope, input.Domain)
			if err != nil {
				return nil, mapErr(err)
			}
			name := fmt.Sprintf("sessions-%s.json", time.Now().UTC().Format("2006-01-02"))
			return &exportOutput{ContentDisposition: `attachment; filename="` + name + `"`, Body: doc}, nil
		})

	type importOutput struct {
		Body controller.ImportSummary
	}

	huma.Register(api, huma.Operation{OperationID: "import-sessions", Method: http.MethodPost, Path: "/api/v1/import", Summary: "Import an export document", Description: "Accepts the document produced by the export operation. Sessions get fresh ids and are appended after existing ones.", Tags: []string{"Transfer"}},
		func(ctx context.Context, input *struct {
			RawBody []byte `contentType:"application/json"`
		}) (*importOutput, error) {
			sum, err := svc.ImportSessions(ctx, input.RawBody)
			if err != nil {
				return nil, mapErr(err)
			}
			return &importOutput{Body: sum}, nil
		})

	type clearOutput struct {
		Body controller.ClearSummary
	}

	huma.Register(api, huma.Operation{OperationID: "clear-sessions", Method: http.MethodPost, Path: "/api/v1/sessions/clear", Summary: "Remove saved sessions of a domain or all of them", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Scope  string `json:"scope" enum:"current,all" doc:"current: one domain; all: the whole catalog"`
				TabID  string `json:"tab_id,omitempty" doc:"Also clear the live state of this tab"`
				Domain string `json:"domain,omitempty"`
			}
		}) (*clearOutput, error) {
			sum, err := svc.ClearSessions(ctx, input.Body.Scope, input.Body.TabID, input.Body.Domain)
			if err != nil {
				return nil, mapErr(err)
			}
			return &clearOutput{Body: sum}, nil
		})
}
