package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/sessionvault/internal/cdpcontrol"
	"github.com/dgnsrekt/sessionvault/internal/snapshot"
)

func registerHealthHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
			CDP    string `json:"cdp"`
			Tabs   int    `json:"tabs"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/healthz", Summary: "Daemon and browser connection status", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				out.Body.CDP = "unavailable"
				return out, nil
			}
			out.Body.CDP = "ok"
			out.Body.Tabs = len(tabs)
			return out, nil
		})
}

func registerTabHandlers(api huma.API, svc Service) {
	type tabIDInput struct {
		TabID  string `path:"tab_id"`
		Domain string `query:"domain" doc:"Site domain. Derived from the tab URL when omitted."`
	}

	type listTabsOutput struct {
		Body struct {
			Tabs []cdpcontrol.TabInfo `json:"tabs"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List page tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*listTabsOutput, error) {
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listTabsOutput{}
			out.Body.Tabs = tabs
			return out, nil
		})

	type snapshotOutput struct {
		Body struct {
			TabID    string            `json:"tab_id"`
			Domain   string            `json:"domain"`
			Snapshot snapshot.Snapshot `json:"snapshot"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "get-tab-snapshot", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}/snapshot", Summary: "Capture the live cookies and storage of a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*snapshotOutput, error) {
			snap, domain, err := svc.CurrentSnapshot(ctx, input.TabID, input.Domain)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &snapshotOutput{}
			out.Body.TabID = input.TabID
			out.Body.Domain = domain
			out.Body.Snapshot = snap
			return out, nil
		})

	type clearOutput struct {
		Body struct {
			TabID  string `json:"tab_id"`
			Domain string `json:"domain"`
			Status string `json:"status"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "clear-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/clear", Summary: "Clear the site state of a tab and reload it", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*clearOutput, error) {
			domain, err := svc.ClearSession(ctx, input.TabID, input.Domain)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &clearOutput{}
			out.Body.TabID = input.TabID
			out.Body.Domain = domain
			out.Body.Status = "cleared"
			return out, nil
		})
}
