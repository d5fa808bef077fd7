package server

import (
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"smsmock/internal/domain"
)

//go:embed templates/*.html
var dashboardFS embed.FS

const dashboardPageSize = 50

type dashboard struct {
	tmpl *template.Template
	s    *server
}

func (s *server) registerDashboard(router chi.Router) error {
	loc, err := time.LoadLocation(s.cfg.Server.Timezone)
	if err != nil {
		return err
	}
	funcs := template.FuncMap{
		"localtime": func(value string) string {
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return value
			}
			return t.In(loc).Format("2006-01-02 15:04:05")
		},
		"deref": func(v *string) string {
			if v == nil {
				return ""
			}
			return *v
		},
		"derefInt": func(v *int) string {
			if v == nil {
				return "-"
			}
			return strconv.Itoa(*v)
		},
		"truncate": func(v string, n int) string {
			if len(v) <= n {
				return v
			}
			return v[:n] + "…"
		},
	}
	tmpl, err := template.New("dashboard").Funcs(funcs).ParseFS(dashboardFS, "templates/*.html")
	if err != nil {
		return err
	}
	d := &dashboard{tmpl: tmpl, s: s}

	router.Get("/", d.index)
	router.Get("/ui/messages", d.messages)
	router.Get("/ui/calls", d.calls)
	router.Get("/ui/callbacks", d.callbacks)
	return nil
}

type pageData struct {
	Title     string
	Active    string
	Stats     domain.Statistics
	Messages  []domain.Message
	Calls     []domain.Call
	Callbacks []domain.CallbackLog
	Page      int
	PrevPage  int
	NextPage  int
	HasPrev   bool
	HasNext   bool
}

func pageParam(r *http.Request) (page, offset int) {
	page = 1
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	return page, (page - 1) * dashboardPageSize
}

func (d *dashboard) render(w http.ResponseWriter, name string, data pageData) {
	data.PrevPage = data.Page - 1
	data.NextPage = data.Page + 1
	data.HasPrev = data.Page > 1
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := d.tmpl.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (d *dashboard) index(w http.ResponseWriter, r *http.Request) {
	stats, err := d.s.repo.Statistics(r.Context())
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	d.render(w, "index.html", pageData{Title: "Overview", Active: "index", Stats: stats, Page: 1})
}

func (d *dashboard) messages(w http.ResponseWriter, r *http.Request) {
	page, offset := pageParam(r)
	items, err := d.s.repo.ListMessages(r.Context(), dashboardPageSize, offset)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	d.render(w, "messages.html", pageData{
		Title:    "Messages",
		Active:   "messages",
		Messages: items,
		Page:     page,
		HasNext:  len(items) == dashboardPageSize,
	})
}

func (d *dashboard) calls(w http.ResponseWriter, r *http.Request) {
	page, offset := pageParam(r)
	items, err := d.s.repo.ListCalls(r.Context(), dashboardPageSize, offset)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	d.render(w, "calls.html", pageData{
		Title:   "Calls",
		Active:  "calls",
		Calls:   items,
		Page:    page,
		HasNext: len(items) == dashboardPageSize,
	})
}

func (d *dashboard) callbacks(w http.ResponseWriter, r *http.Request) {
	page, offset := pageParam(r)
	items, err := d.s.repo.ListCallbackLogs(r.Context(), dashboardPageSize, offset)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	d.render(w, "callbacks.html", pageData{
		Title:     "Callbacks",
		Active:    "callbacks",
		Callbacks: items,
		Page:      page,
		HasNext:   len(items) == dashboardPageSize,
	})
}
