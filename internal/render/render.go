package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"text/template"
	"time"
	"unicode/utf8"
)

//go:embed templates
var templatesFS embed.FS

// Engine renders provider response and error bodies from embedded JSON
// templates. Rendered output is parsed back into a map so handlers can
// return it as a JSON document.
type Engine struct {
	provider  string
	responses *template.Template
	errors    *template.Template
	Now       func() time.Time
}

func funcs() template.FuncMap {
	return template.FuncMap{
		// json marshals a value including surrounding quotes for strings,
		// so templates can embed user-supplied text safely.
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
	}
}

// New builds an Engine for the given provider name.
func New(provider string) (*Engine, error) {
	responses, err := template.New("responses").Funcs(funcs()).
		ParseFS(templatesFS, "templates/"+provider+"/responses/*.json")
	if err != nil {
		return nil, fmt.Errorf("parse response templates: %w", err)
	}
	errorTemplates, err := template.New("errors").Funcs(funcs()).
		ParseFS(templatesFS, "templates/"+provider+"/errors/*.json")
	if err != nil {
		return nil, fmt.Errorf("parse error templates: %w", err)
	}
	return &Engine{
		provider:  provider,
		responses: responses,
		errors:    errorTemplates,
		Now:       time.Now,
	}, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

const rfc2822 = "Mon, 02 Jan 2006 15:04:05 +0000"

// Timestamp returns the current time in RFC 2822 format, the format
// Twilio uses for date_created/date_updated.
func (e *Engine) Timestamp() string {
	return e.now().UTC().Format(rfc2822)
}

// RFC2822 converts a stored RFC 3339 timestamp into the RFC 2822 form
// used in response bodies. Unparseable input is returned as-is.
func RFC2822(stored string) string {
	t, err := time.Parse(time.RFC3339, stored)
	if err != nil {
		return stored
	}
	return t.UTC().Format(rfc2822)
}

// ISOTimestamp returns the current time in ISO 8601 format.
func (e *Engine) ISOTimestamp() string {
	return e.now().UTC().Format("2006-01-02T15:04:05Z")
}

// SmsSegments calculates the number of SMS segments for a body.
// GSM-7 bodies fit 160 characters in one segment, 153 per segment for
// multi-part; UCS-2 bodies fit 70 and 67.
func SmsSegments(body string) int {
	if body == "" {
		return 1
	}
	isUnicode := false
	for _, r := range body {
		if r > 127 {
			isUnicode = true
			break
		}
	}
	singleLimit, multiLimit := 160, 153
	if isUnicode {
		singleLimit, multiLimit = 70, 67
	}
	length := utf8.RuneCountInString(body)
	if length <= singleLimit {
		return 1
	}
	return (length + multiLimit - 1) / multiLimit
}

func (e *Engine) execute(t *template.Template, name string, ctx any) (map[string]any, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, ctx); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("template %s produced invalid JSON: %w", name, err)
	}
	return out, nil
}

// RenderResponse renders a response template.
func (e *Engine) RenderResponse(name string, ctx any) (map[string]any, error) {
	return e.execute(e.responses, name, ctx)
}

// RenderError renders an error template.
func (e *Engine) RenderError(name string, ctx any) (map[string]any, error) {
	return e.execute(e.errors, name, ctx)
}

// MessageContext carries the variables for message response templates.
type MessageContext struct {
	MessageSid  string
	AccountSid  string
	From        string
	To          string
	Body        string
	Status      string
	NumSegments string
	DateCreated string
	DateUpdated string
	URI         string
}

// NewMessageContext assembles a MessageContext for a fresh message.
func (e *Engine) NewMessageContext(messageSid, accountSid, from, to, body, status string) MessageContext {
	ts := e.Timestamp()
	return MessageContext{
		MessageSid:  messageSid,
		AccountSid:  accountSid,
		From:        from,
		To:          to,
		Body:        body,
		Status:      status,
		NumSegments: fmt.Sprintf("%d", SmsSegments(body)),
		DateCreated: ts,
		DateUpdated: ts,
		URI:         fmt.Sprintf("/2010-04-01/Accounts/%s/Messages/%s.json", accountSid, messageSid),
	}
}

// CallContext carries the variables for call response templates.
type CallContext struct {
	CallSid     string
	AccountSid  string
	From        string
	To          string
	Status      string
	DateCreated string
	DateUpdated string
	URI         string
}

// NewCallContext assembles a CallContext for a fresh call.
func (e *Engine) NewCallContext(callSid, accountSid, from, to, status string) CallContext {
	ts := e.Timestamp()
	return CallContext{
		CallSid:     callSid,
		AccountSid:  accountSid,
		From:        from,
		To:          to,
		Status:      status,
		DateCreated: ts,
		DateUpdated: ts,
		URI:         fmt.Sprintf("/2010-04-01/Accounts/%s/Calls/%s.json", accountSid, callSid),
	}
}

// ErrorContext carries the variables for error templates.
type ErrorContext struct {
	Field     string
	Number    string
	Parameter string
}
