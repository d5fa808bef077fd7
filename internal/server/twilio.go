package server

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"smsmock/internal/domain"
	"smsmock/internal/provider"
	"smsmock/internal/render"
	"smsmock/internal/repo"
)

// notFoundBody is the provider-shaped 404 for fetch endpoints.
func notFoundBody(uri string) map[string]any {
	return map[string]any{
		"code":      20404,
		"message":   "The requested resource " + uri + " was not found",
		"more_info": "https://www.twilio.com/docs/errors/20404",
		"status":    404,
	}
}

func (s *server) renderValidationError(w http.ResponseWriter, verr *provider.ValidationError) {
	body, err := s.render.RenderError(s.provider.ErrorTemplate(verr.Type), render.ErrorContext{
		Field:     verr.Field,
		Number:    verr.Number,
		Parameter: verr.Parameter,
	})
	if err != nil {
		log.Printf("server: render error template: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
		return
	}
	writeJSON(w, verr.HTTPStatus, body)
}

// formParams flattens the POST form into the first value per key.
func formParams(r *http.Request) map[string]string {
	_ = r.ParseForm()
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	return params
}

// validateRequest runs the shared auth and parameter checks for both
// creation endpoints.
func (s *server) validateRequest(r *http.Request, params map[string]string, required []string) *provider.ValidationError {
	username, password, _ := r.BasicAuth()
	if verr := s.provider.ValidateAuth(username, password); verr != nil {
		return verr
	}
	if verr := s.provider.ValidateParameters(params, required); verr != nil {
		return verr
	}
	for _, field := range []string{"From", "To"} {
		if verr := s.provider.ValidatePhoneNumber(params[field], field); verr != nil {
			return verr
		}
	}
	return s.provider.ValidateFromNumber(params["From"])
}

func optionalURL(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *server) sendMessage(w http.ResponseWriter, r *http.Request) {
	params := formParams(r)
	if verr := s.validateRequest(r, params, []string{"From", "To", "Body"}); verr != nil {
		s.renderValidationError(w, verr)
		return
	}

	willSucceed := s.provider.ShouldSucceed(params["To"])
	sid := provider.GenerateSid(provider.SidPrefixMessage)

	ctx := s.render.NewMessageContext(sid, s.cfg.Twilio.AccountSid, params["From"], params["To"], params["Body"], domain.StatusQueued)
	body, err := s.render.RenderResponse(s.provider.ResponseTemplate("send_sms", true), ctx)
	if err != nil {
		log.Printf("server: render message response: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
		return
	}

	callbackURL := optionalURL(params["StatusCallback"])
	now := time.Now().UTC().Format(time.RFC3339)
	msg := domain.Message{
		MessageSid:  sid,
		Provider:    s.cfg.Provider,
		FromNumber:  params["From"],
		ToNumber:    params["To"],
		Body:        params["Body"],
		Status:      domain.StatusQueued,
		CallbackURL: callbackURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertMessage(r.Context(), msg); err != nil {
		log.Printf("server: insert message: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
		return
	}
	log.Printf("server: message created: %s from %s to %s (will_succeed=%v)", sid, params["From"], params["To"], willSucceed)

	s.dispatcher.Start(domain.KindMessage, sid, params["From"], params["To"], callbackURL, willSucceed)
	writeJSON(w, http.StatusCreated, body)
}

func (s *server) makeCall(w http.ResponseWriter, r *http.Request) {
	params := formParams(r)
	if verr := s.validateRequest(r, params, []string{"From", "To", "Url"}); verr != nil {
		s.renderValidationError(w, verr)
		return
	}

	willSucceed := s.provider.ShouldSucceed(params["To"])
	sid := provider.GenerateSid(provider.SidPrefixCall)

	ctx := s.render.NewCallContext(sid, s.cfg.Twilio.AccountSid, params["From"], params["To"], domain.StatusQueued)
	body, err := s.render.RenderResponse(s.provider.ResponseTemplate("make_call", true), ctx)
	if err != nil {
		log.Printf("server: render call response: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
		return
	}

	callbackURL := optionalURL(params["StatusCallback"])
	now := time.Now().UTC().Format(time.RFC3339)
	call := domain.Call{
		CallSid:     sid,
		Provider:    s.cfg.Provider,
		FromNumber:  params["From"],
		ToNumber:    params["To"],
		Status:      domain.StatusQueued,
		CallbackURL: callbackURL,
		TwimlURL:    optionalURL(params["Url"]),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertCall(r.Context(), call); err != nil {
		log.Printf("server: insert call: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
		return
	}
	log.Printf("server: call created: %s from %s to %s (will_succeed=%v)", sid, params["From"], params["To"], willSucceed)

	s.dispatcher.Start(domain.KindCall, sid, params["From"], params["To"], callbackURL, willSucceed)
	writeJSON(w, http.StatusCreated, body)
}

func (s *server) getMessage(w http.ResponseWriter, r *http.Request) {
	username, password, _ := r.BasicAuth()
	if verr := s.provider.ValidateAuth(username, password); verr != nil {
		s.renderValidationError(w, verr)
		return
	}
	sid := chi.URLParam(r, "sid")
	msg, err := s.repo.GetMessage(r.Context(), sid)
	if err == repo.ErrNotFound {
		writeJSON(w, http.StatusNotFound, notFoundBody(r.URL.Path))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
		return
	}
	ctx := s.render.NewMessageContext(msg.MessageSid, s.cfg.Twilio.AccountSid, msg.FromNumber, msg.ToNumber, msg.Body, msg.Status)
	// Fetches report the stored timestamps, not the render time.
	ctx.DateCreated = render.RFC2822(msg.CreatedAt)
	ctx.DateUpdated = render.RFC2822(msg.UpdatedAt)
	body, err := s.render.RenderResponse(s.provider.ResponseTemplate("send_sms", true), ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) getCall(w http.ResponseWriter, r *http.Request) {
	username, password, _ := r.BasicAuth()
	if verr := s.provider.ValidateAuth(username, password); verr != nil {
		s.renderValidationError(w, verr)
		return
	}
	sid := chi.URLParam(r, "sid")
	call, err := s.repo.GetCall(r.Context(), sid)
	if err == repo.ErrNotFound {
		writeJSON(w, http.StatusNotFound, notFoundBody(r.URL.Path))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
		return
	}
	ctx := s.render.NewCallContext(call.CallSid, s.cfg.Twilio.AccountSid, call.FromNumber, call.ToNumber, call.Status)
	ctx.DateCreated = render.RFC2822(call.CreatedAt)
	ctx.DateUpdated = render.RFC2822(call.UpdatedAt)
	body, err := s.render.RenderResponse(s.provider.ResponseTemplate("make_call", true), ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// callbackTest accepts any POST and echoes the received form fields,
// for pointing StatusCallback at the mock itself.
func (s *server) callbackTest(w http.ResponseWriter, r *http.Request) {
	params := formParams(r)
	log.Printf("server: callback test received: %v", params)
	writeJSON(w, http.StatusOK, map[string]any{"status": "received", "data": params})
}
