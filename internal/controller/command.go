package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/sessionvault/internal/catalog"
	"github.com/dgnsrekt/sessionvault/internal/cdpcontrol"
)

const (
	ActionGetCurrentSession = "getCurrentSession"
	ActionSwitchSession     = "switchSession"
	ActionClearSession      = "clearSession"
	ActionClearSessions     = "clearSessions"
	ActionExportSessions    = "exportSessions"
	ActionImportSessions    = "importSessions"
	ActionSaveSession       = "saveSession"
)

var actions = map[string]string{}

func init() {
	for _, a := range []string{
		ActionGetCurrentSession, ActionSwitchSession, ActionClearSession,
		ActionClearSessions, ActionExportSessions, ActionImportSessions, ActionSaveSession,
	} {
		actions[strings.ToLower(a)] = a
	}
}

// TabRef is a tab id sent either as a JSON string or a number.
type TabRef string

func (t *TabRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TabRef(s)
		return nil
	}
	if string(data) == "null" {
		*t = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = TabRef(n.String())
	return nil
}

// Command is one request of the command protocol.
type Command struct {
	Action       string           `json:"action"`
	TabID        TabRef           `json:"tabId,omitempty"`
	Domain       string           `json:"domain,omitempty"`
	SessionID    string           `json:"sessionId,omitempty"`
	SessionData  *catalog.Session `json:"sessionData,omitempty"`
	Scope        string           `json:"scope,omitempty"`
	ClearOption  string           `json:"clearOption,omitempty"`
	ExportOption string           `json:"exportOption,omitempty"`
	Data         json.RawMessage  `json:"data,omitempty"`
	Name         string           `json:"name,omitempty"`
	Order        *int             `json:"order,omitempty"`
}

func (c Command) scope(alias string) string {
	if strings.TrimSpace(c.Scope) != "" {
		return c.Scope
	}
	return alias
}

// Response is always delivered with success set; failures carry the error
// text instead of data.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func fail(err error) Response {
	msg := err.Error()
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		msg = coded.Message
	}
	return Response{Success: false, Error: msg}
}

// DecodeCommand parses a raw request body. Anything that is not an object
// with an action is reported as an invalid message.
func DecodeCommand(body []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil || strings.TrimSpace(cmd.Action) == "" {
		return Command{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "Invalid message format", Cause: err}
	}
	return cmd, nil
}

// Dispatch runs one command. Action names are matched case-insensitively.
func (s *Service) Dispatch(ctx context.Context, cmd Command) Response {
	raw := strings.TrimSpace(cmd.Action)
	if raw == "" {
		return Response{Success: false, Error: "Invalid message format"}
	}
	action, ok := actions[strings.ToLower(raw)]
	if !ok {
		return Response{Success: false, Error: "Unknown action: " + raw}
	}

	data, err := s.dispatch(ctx, action, cmd)
	if err != nil {
		slog.Error("command failed", "action", action, "tab_id", string(cmd.TabID), "error", err)
		return fail(err)
	}
	return Response{Success: true, Data: data}
}

func (s *Service) dispatch(ctx context.Context, action string, cmd Command) (any, error) {
	tabID := string(cmd.TabID)
	switch action {
	case ActionGetCurrentSession:
		snap, _, err := s.CurrentSnapshot(ctx, tabID, cmd.Domain)
		return snap, err
	case ActionSwitchSession:
		id := cmd.SessionID
		if id == "" && cmd.SessionData != nil {
			id = cmd.SessionData.ID
		}
		return s.SwitchSession(ctx, tabID, id, cmd.SessionData)
	case ActionClearSession:
		_, err := s.ClearSession(ctx, tabID, cmd.Domain)
		return nil, err
	case ActionClearSessions:
		return s.ClearSessions(ctx, cmd.scope(cmd.ClearOption), tabID, cmd.Domain)
	case ActionExportSessions:
		doc, err := s.ExportSessions(ctx, cmd.scope(cmd.ExportOption), cmd.Domain)
		if err != nil {
			return nil, err
		}
		text, err := doc.Marshal()
		if err != nil {
			return nil, err
		}
		return string(text), nil
	case ActionImportSessions:
		if len(cmd.Data) == 0 {
			return nil, invalidImport(nil)
		}
		return s.ImportSessions(ctx, cmd.Data)
	case ActionSaveSession:
		return s.SaveCurrentSession(ctx, tabID, cmd.Name, cmd.Order)
	}
	return nil, errors.New("unreachable action " + action)
}
