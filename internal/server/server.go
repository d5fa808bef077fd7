package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"smsmock/internal/config"
	"smsmock/internal/dispatch"
	"smsmock/internal/provider"
	"smsmock/internal/render"
	"smsmock/internal/repo"
)

const adminBasePath = "/admin/v1"

// Config for the HTTP handler.
type Config struct {
	Cfg        *config.Config
	Repo       repo.Repo
	Provider   provider.Provider
	Render     *render.Engine
	Dispatcher *dispatch.Dispatcher

	// AdminJWTSecret gates the admin API with bearer auth when set.
	AdminJWTSecret string
}

type server struct {
	cfg        *config.Config
	repo       repo.Repo
	provider   provider.Provider
	render     *render.Engine
	dispatcher *dispatch.Dispatcher
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"callback log not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the admin API error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns the HTTP handler exposing the provider-compatible API,
// the admin API and the dashboard.
func New(cfg Config) (http.Handler, error) {
	s := &server{
		cfg:        cfg.Cfg,
		repo:       cfg.Repo,
		provider:   cfg.Provider,
		render:     cfg.Render,
		dispatcher: cfg.Dispatcher,
	}

	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAdminAuthMiddleware(adminBasePath, cfg.AdminJWTSecret))

	// Provider-compatible surface.
	router.Post("/2010-04-01/Accounts/{account_sid}/Messages.json", s.sendMessage)
	router.Post("/2010-04-01/Accounts/{account_sid}/Calls.json", s.makeCall)
	router.Get("/2010-04-01/Accounts/{account_sid}/Messages/{sid}.json", s.getMessage)
	router.Get("/2010-04-01/Accounts/{account_sid}/Calls/{sid}.json", s.getCall)
	router.Post("/callback-test", s.callbackTest)

	// Dashboard.
	if err := s.registerDashboard(router); err != nil {
		return nil, err
	}

	// Admin API.
	hcfg := huma.DefaultConfig("SMS Mock Admin API", "1.0.0")
	hcfg.OpenAPIPath = "/admin/openapi"
	hcfg.DocsPath = "/admin/docs"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, adminBasePath)
	registerHealth(group, s)
	registerStats(group, s)
	registerMessages(group, s)
	registerCalls(group, s)
	registerCallbacks(group, s)
	registerClear(group, s)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if err == repo.ErrNotFound {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
