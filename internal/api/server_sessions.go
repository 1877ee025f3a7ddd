package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/sessionvault/internal/catalog"
	"github.com/dgnsrekt/sessionvault/internal/controller"
	"github.com/dgnsrekt/sessionvault/internal/pagestore"
)

func registerSessionHandlers(api huma.API, svc Service) {
	type sessionOutput struct {
		Body catalog.Session
	}

	type listSessionsOutput struct {
		Body struct {
			Sessions []catalog.Session `json:"sessions"`
		}
	}

	type sessionIDInput struct {
		SessionID string `path:"session_id"`
	}

	type statusOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}

	type sessionTabInput struct {
		SessionID string `path:"session_id"`
		Body      struct {
			TabID string `json:"tab_id" required:"true" doc:"Target tab"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "list-sessions", Method: http.MethodGet, Path: "/api/v1/sessions", Summary: "List saved sessions", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct {
			Domain string `query:"domain" doc:"Only sessions of this domain"`
		}) (*listSessionsOutput, error) {
			list, err := svc.ListSessions(ctx, input.Domain)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listSessionsOutput{}
			out.Body.Sessions = list
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-session", Method: http.MethodGet, Path: "/api/v1/sessions/{session_id}", Summary: "Get one saved session", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionIDInput) (*sessionOutput, error) {
			sess, err := svc.GetSession(ctx, input.SessionID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: sess}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "save-session", Method: http.MethodPost, Path: "/api/v1/sessions", Summary: "Save the live state of a tab as a new session", Tags: []string{"Sessions"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct {
			Body struct {
				TabID string `json:"tab_id" required:"true" doc:"Tab to capture"`
				Name  string `json:"name,omitempty" doc:"Session name; blank means \"Unnamed Session\""`
				Order *int   `json:"order,omitempty" doc:"1-based position within the domain; appended when omitted"`
			}
		}) (*sessionOutput, error) {
			sess, err := svc.SaveCurrentSession(ctx, input.Body.TabID, input.Body.Name, input.Body.Order)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: sess}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "update-session", Method: http.MethodPatch, Path: "/api/v1/sessions/{session_id}", Summary: "Rename or reorder a session", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct {
			SessionID string `path:"session_id"`
			Body      struct {
				Name  *string `json:"name,omitempty" doc:"New name; unchanged when omitted"`
				Order *int    `json:"order,omitempty" doc:"New 1-based position; unchanged when omitted"`
			}
		}) (*sessionOutput, error) {
			var name string
			if input.Body.Name != nil {
				name = *input.Body.Name
			} else {
				current, err := svc.GetSession(ctx, input.SessionID)
				if err != nil {
					return nil, mapErr(err)
				}
				name = current.Name
			}
			sess, err := svc.RenameSession(ctx, input.SessionID, name, input.Body.Order)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: sess}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "replace-session-snapshot", Method: http.MethodPut, Path: "/api/v1/sessions/{session_id}/snapshot", Summary: "Overwrite a session with the live state of a tab", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionTabInput) (*sessionOutput, error) {
			sess, err := svc.ReplaceSession(ctx, input.SessionID, input.Body.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: sess}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-session", Method: http.MethodDelete, Path: "/api/v1/sessions/{session_id}", Summary: "Delete a saved session", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionIDInput) (*statusOutput, error) {
			if err := svc.DeleteSession(ctx, input.SessionID); err != nil {
				return nil, mapErr(err)
			}
			out := &statusOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})

	type switchOutput struct {
		Body controller.SwitchResult
	}

	huma.Register(api, huma.Operation{OperationID: "switch-session", Method: http.MethodPost, Path: "/api/v1/sessions/{session_id}/switch", Summary: "Switch a tab to a saved session", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionTabInput) (*switchOutput, error) {
			res, err := svc.SwitchSession(ctx, input.Body.TabID, input.SessionID, nil)
			if err != nil {
				return nil, mapErr(err)
			}
			return &switchOutput{Body: res}, nil
		})

	type restoreOutput struct {
		Body pagestore.Report
	}

	huma.Register(api, huma.Operation{OperationID: "restore-session-storage", Method: http.MethodPost, Path: "/api/v1/sessions/{session_id}/restore-storage", Summary: "Inject a session's storage into a tab without reloading", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionTabInput) (*restoreOutput, error) {
			rep, err := svc.RestoreStorage(ctx, input.SessionID, input.Body.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &restoreOutput{Body: rep}, nil
		})

	type activeOutput struct {
		Body struct {
			Domain    string `json:"domain"`
			SessionID string `json:"session_id,omitempty"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "get-active-session", Method: http.MethodGet, Path: "/api/v1/active", Summary: "Active session of a domain", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct {
			Domain string `query:"domain" required:"true"`
		}) (*activeOutput, error) {
			id, err := svc.ActiveSession(ctx, input.Domain)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &activeOutput{}
			out.Body.Domain = input.Domain
			out.Body.SessionID = id
			return out, nil
		})

	type viewModeOutput struct {
		Body struct {
			ViewMode string `json:"view_mode"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "get-view-mode", Method: http.MethodGet, Path: "/api/v1/view-mode", Summary: "Preferred session list layout", Tags: []string{"Preferences"}},
		func(ctx context.Context, input *struct{}) (*viewModeOutput, error) {
			mode, err := svc.ViewMode(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &viewModeOutput{}
			out.Body.ViewMode = mode
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-view-mode", Method: http.MethodPut, Path: "/api/v1/view-mode", Summary: "Set the session list layout", Tags: []string{"Preferences"}},
		func(ctx context.Context, input *struct {
			Body struct {
				ViewMode string `json:"view_mode" required:"true" enum:"list,grid"`
			}
		}) (*viewModeOutput, error) {
			mode, err := svc.SetViewMode(ctx, input.Body.ViewMode)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &viewModeOutput{}
			out.Body.ViewMode = mode
			return out, nil
		})
}
