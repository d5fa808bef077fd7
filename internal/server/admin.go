package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"smsmock/internal/domain"
)

type pageQuery struct {
	Limit  int `query:"limit" default:"100" minimum:"1" maximum:"500"`
	Offset int `query:"offset" default:"0" minimum:"0"`
}

func registerHealth(api huma.API, s *server) {
	type healthBody struct {
		Status     string            `json:"status"`
		Version    string            `json:"version"`
		Provider   string            `json:"provider"`
		Timestamp  string            `json:"timestamp"`
		Statistics domain.Statistics `json:"statistics"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body healthBody `json:"body"`
	}, error) {
		stats, err := s.repo.Statistics(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body healthBody `json:"body"`
		}{Body: healthBody{
			Status:     "healthy",
			Version:    "1.0.0",
			Provider:   s.cfg.Provider,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Statistics: stats,
		}}, nil
	})
}

func registerStats(api huma.API, s *server) {
	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Row counts by table",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Statistics `json:"body"`
	}, error) {
		stats, err := s.repo.Statistics(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Statistics `json:"body"`
		}{Body: stats}, nil
	})
}

func registerMessages(api huma.API, s *server) {
	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/messages",
		Summary:     "List messages",
	}, func(ctx context.Context, input *pageQuery) (*struct {
		Body []domain.Message `json:"body"`
	}, error) {
		items, err := s.repo.ListMessages(ctx, input.Limit, input.Offset)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Message `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-message-events",
		Method:      http.MethodGet,
		Path:        "/messages/{sid}/events",
		Summary:     "Delivery events for a message",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Sid string `path:"sid"`
	}) (*struct {
		Body []domain.DeliveryEvent `json:"body"`
	}, error) {
		if _, err := s.repo.GetMessage(ctx, input.Sid); err != nil {
			return nil, handleError(err)
		}
		events, err := s.repo.ListDeliveryEvents(ctx, input.Sid, "", 0)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.DeliveryEvent `json:"body"`
		}{Body: events}, nil
	})
}

func registerCalls(api huma.API, s *server) {
	huma.Register(api, huma.Operation{
		OperationID: "list-calls",
		Method:      http.MethodGet,
		Path:        "/calls",
		Summary:     "List calls",
	}, func(ctx context.Context, input *pageQuery) (*struct {
		Body []domain.Call `json:"body"`
	}, error) {
		items, err := s.repo.ListCalls(ctx, input.Limit, input.Offset)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Call `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-call-events",
		Method:      http.MethodGet,
		Path:        "/calls/{sid}/events",
		Summary:     "Delivery events for a call",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Sid string `path:"sid"`
	}) (*struct {
		Body []domain.DeliveryEvent `json:"body"`
	}, error) {
		if _, err := s.repo.GetCall(ctx, input.Sid); err != nil {
			return nil, handleError(err)
		}
		events, err := s.repo.ListDeliveryEvents(ctx, "", input.Sid, 0)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.DeliveryEvent `json:"body"`
		}{Body: events}, nil
	})
}

func registerCallbacks(api huma.API, s *server) {
	huma.Register(api, huma.Operation{
		OperationID: "list-callbacks",
		Method:      http.MethodGet,
		Path:        "/callbacks",
		Summary:     "List callback delivery attempts",
	}, func(ctx context.Context, input *pageQuery) (*struct {
		Body []domain.CallbackLog `json:"body"`
	}, error) {
		items, err := s.repo.ListCallbackLogs(ctx, input.Limit, input.Offset)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.CallbackLog `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-callback",
		Method:      http.MethodGet,
		Path:        "/callbacks/{id}",
		Summary:     "Get one callback attempt",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.CallbackLog `json:"body"`
	}, error) {
		item, err := s.repo.GetCallbackLog(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CallbackLog `json:"body"`
		}{Body: item}, nil
	})
}

type clearResponse struct {
	Deleted any    `json:"deleted"`
	Type    string `json:"type"`
}

func registerClear(api huma.API, s *server) {
	clear := func(id, path, kind string, fn func(context.Context) (int, error)) {
		huma.Register(api, huma.Operation{
			OperationID: id,
			Method:      http.MethodPost,
			Path:        path,
			Summary:     "Clear " + kind,
		}, func(ctx context.Context, _ *struct{}) (*struct {
			Body clearResponse `json:"body"`
		}, error) {
			count, err := fn(ctx)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body clearResponse `json:"body"`
			}{Body: clearResponse{Deleted: count, Type: kind}}, nil
		})
	}
	clear("clear-messages", "/clear/messages", "messages", s.repo.ClearMessages)
	clear("clear-calls", "/clear/calls", "calls", s.repo.ClearCalls)
	clear("clear-callbacks", "/clear/callbacks", "callbacks", s.repo.ClearCallbacks)

	huma.Register(api, huma.Operation{
		OperationID: "clear-all",
		Method:      http.MethodPost,
		Path:        "/clear/all",
		Summary:     "Clear all data",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body clearResponse `json:"body"`
	}, error) {
		counts, err := s.repo.ClearAll(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body clearResponse `json:"body"`
		}{Body: clearResponse{Deleted: counts, Type: "all"}}, nil
	})
}
