package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/sessionvault/internal/controller"
)

func registerCommandHandlers(api huma.API, svc Service) {
	type commandOutput struct {
		Body controller.Response
	}

	huma.Register(api, huma.Operation{OperationID: "command", Method: http.MethodPost, Path: "/api/v1/command", Summary: "Run one command of the message protocol", Description: "Always answers 200 with {success, data?, error?}.", Tags: []string{"Command"}},
		func(ctx context.Context, input *struct {
			RawBody []byte `contentType:"application/json"`
		}) (*commandOutput, error) {
			cmd, err := controller.DecodeCommand(input.RawBody)
			if err != nil {
				return &commandOutput{Body: controller.Response{Success: false, Error: "Invalid message format"}}, nil
			}
			return &commandOutput{Body: svc.Dispatch(ctx, cmd)}, nil
		})
}
