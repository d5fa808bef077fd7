package provider

import (
	"net/http"

	"github.com/nyaruka/phonenumbers"

	"smsmock/internal/config"
)

// Provider validates incoming requests and resolves entity outcomes
// against the configured number lists. New providers supply new
// configuration, not new code paths.
type Provider struct {
	Config config.TwilioConfig
}

func New(cfg config.TwilioConfig) Provider {
	return Provider{Config: cfg}
}

// ValidationError carries the data needed to render a provider error
// template and pick the HTTP status.
type ValidationError struct {
	Type       string
	HTTPStatus int
	Field      string
	Number     string
	Parameter  string
}

func (e *ValidationError) Error() string { return e.Type }

// Error types, matched to error template names.
const (
	ErrAuthFailed         = "auth_failed"
	ErrMissingParameter   = "missing_parameter"
	ErrInvalidPhoneNumber = "invalid_phone_number"
	ErrInvalidFromNumber  = "invalid_from_number"
)

// ValidateAuth checks Basic Auth credentials against the configured
// account SID and auth token.
func (p Provider) ValidateAuth(username, password string) *ValidationError {
	if !p.Config.Validation.RequireAuthEnabled() {
		return nil
	}
	if username == "" || password == "" {
		return &ValidationError{Type: ErrAuthFailed, HTTPStatus: http.StatusUnauthorized}
	}
	if username != p.Config.AccountSid || password != p.Config.AuthToken {
		return &ValidationError{Type: ErrAuthFailed, HTTPStatus: http.StatusUnauthorized}
	}
	return nil
}

// ValidateParameters checks that every required form parameter is
// present and non-empty.
func (p Provider) ValidateParameters(params map[string]string, required []string) *ValidationError {
	if !p.Config.Validation.RequireParametersEnabled() {
		return nil
	}
	for _, name := range required {
		if params[name] == "" {
			return &ValidationError{Type: ErrMissingParameter, HTTPStatus: http.StatusBadRequest, Parameter: name}
		}
	}
	return nil
}

// ValidatePhoneNumber checks E.164 format.
func (p Provider) ValidatePhoneNumber(number, field string) *ValidationError {
	if !p.Config.Validation.ValidatePhoneFormatEnabled() {
		return nil
	}
	parsed, err := phonenumbers.Parse(number, "")
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return &ValidationError{Type: ErrInvalidPhoneNumber, HTTPStatus: http.StatusBadRequest, Field: field, Number: number}
	}
	return nil
}

// ValidateFromNumber checks the From number against the allow-list.
func (p Provider) ValidateFromNumber(number string) *ValidationError {
	if !p.Config.Validation.CheckFromNumbersEnabled() {
		return nil
	}
	if !contains(p.Config.AllowedFromNumbers, number) {
		return &ValidationError{Type: ErrInvalidFromNumber, HTTPStatus: http.StatusBadRequest, Number: number}
	}
	return nil
}

// ShouldSucceed resolves the final outcome for a destination number.
func (p Provider) ShouldSucceed(toNumber string) bool {
	return ShouldSucceed(toNumber, p.Config.FailureNumbers, p.Config.RegisteredNumbers, p.Config.DefaultBehavior)
}

// ShouldSucceed is the pure outcome resolver. The failure list wins
// over the registered list; numbers in neither follow defaultBehavior.
func ShouldSucceed(toNumber string, failureNumbers, registeredNumbers []string, defaultBehavior string) bool {
	if contains(failureNumbers, toNumber) {
		return false
	}
	if contains(registeredNumbers, toNumber) {
		return true
	}
	return defaultBehavior == "success"
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ResponseTemplate returns the template name for an action response.
func (p Provider) ResponseTemplate(action string, success bool) string {
	status := "failure"
	if success {
		status = "success"
	}
	return action + "_" + status + ".json"
}

// ErrorTemplate returns the template name for an error response.
func (p Provider) ErrorTemplate(errorType string) string {
	return errorType + ".json"
}
