package audithttp

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/guardpost/guardpost/internal/audit"
	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/view"
)

const dateLayout = "2006-01-02"

// ListingService defines the read side used by the handler.
type ListingService interface {
	List(ctx context.Context, filters audit.Filters) (audit.Result, error)
	Export(ctx context.Context, filters audit.Filters) ([]audit.Entry, error)
}

// Handler serves the audit log page and its exports.
type Handler struct {
	logger    *slog.Logger
	service   ListingService
	exporter  *audit.Exporter
	templates *view.Engine
	csrf      *shared.CSRFManager
	auditor   shared.Auditor
	guard     rbac.Guard
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service ListingService, exporter *audit.Exporter, templates *view.Engine, csrf *shared.CSRFManager, auditor shared.Auditor, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = audit.NewExporter(nil)
	}
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	return &Handler{
		logger:    logger,
		service:   service,
		exporter:  exporter,
		templates: templates,
		csrf:      csrf,
		auditor:   auditor,
		guard:     guard,
	}
}

type filterForm struct {
	Actor     string
	Operation string
	From      string
	To        string
}

// query re-encodes the filters for pager and export links.
func (f filterForm) query() template.URL {
	v := url.Values{}
	if f.Actor != "" {
		v.Set("actor", f.Actor)
	}
	if f.Operation != "" {
		v.Set("operation", f.Operation)
	}
	if f.From != "" {
		v.Set("from", f.From)
	}
	if f.To != "" {
		v.Set("to", f.To)
	}
	return template.URL(v.Encode())
}

type entryRow struct {
	audit.Entry
	When string
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, form, ok := h.parseFilters(r)
	if !ok {
		h.flash(r, "warning", "Datas inválidas. O filtro de data foi ignorado.")
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	filters.Page = page

	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list audit entries", slog.Any("error", err))
		h.render(w, r, "pages/error.html", map[string]any{"Message": shared.UserSafeMessage(err)}, http.StatusInternalServerError)
		return
	}
	rows := make([]entryRow, 0, len(result.Entries))
	for _, entry := range result.Entries {
		rows = append(rows, entryRow{Entry: entry, When: h.exporter.FormatTime(entry.At)})
	}
	h.render(w, r, "pages/audit_list.html", map[string]any{
		"Rows":   rows,
		"Paging": result.Paging,
		"Form":   form,
		"Query":  form.query(),
	}, http.StatusOK)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv")
}

func (h *Handler) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "json")
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, format string) {
	filters, form, _ := h.parseFilters(r)
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit entries", slog.String("format", format), slog.Any("error", err))
		h.render(w, r, "pages/error.html", map[string]any{"Message": shared.UserSafeMessage(err)}, http.StatusInternalServerError)
		return
	}

	var (
		body        []byte
		contentType string
	)
	switch format {
	case "json":
		body, err = h.exporter.WriteJSON(entries)
		contentType = "application/json; charset=utf-8"
	default:
		body, err = h.exporter.WriteCSV(entries)
		contentType = "text/csv; charset=utf-8"
	}
	if err != nil {
		h.logger.Error("encode audit export", slog.String("format", format), slog.Any("error", err))
		h.render(w, r, "pages/error.html", map[string]any{"Message": shared.UserSafeMessage(err)}, http.StatusInternalServerError)
		return
	}

	h.auditor.Record(r.Context(), shared.OpExportLogs, shared.EntityLog,
		fmt.Sprintf("Exportação de %d registros de log em %s.", len(entries), strings.ToUpper(format)),
		map[string]any{"filtros": form, "formato": format})

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"logs-%s.%s\"", time.Now().In(h.exporter.Location()).Format("20060102-150405"), format))
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write audit export", slog.Any("error", err))
	}
}

// parseFilters reads the query string. ok is false when a date could not be
// parsed; the date bounds are then dropped while the text filters remain.
func (h *Handler) parseFilters(r *http.Request) (audit.Filters, filterForm, bool) {
	q := r.URL.Query()
	form := filterForm{
		Actor:     strings.TrimSpace(q.Get("actor")),
		Operation: strings.TrimSpace(q.Get("operation")),
		From:      strings.TrimSpace(q.Get("from")),
		To:        strings.TrimSpace(q.Get("to")),
	}
	filters := audit.Filters{Actor: form.Actor, Operation: form.Operation}

	loc := h.exporter.Location()
	var from, to time.Time
	var err error
	if form.From != "" {
		if from, err = time.ParseInLocation(dateLayout, form.From, loc); err != nil {
			return filters, form, false
		}
	}
	if form.To != "" {
		if to, err = time.ParseInLocation(dateLayout, form.To, loc); err != nil {
			return filters, form, false
		}
		to = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return filters, form, false
	}
	filters.From = from
	filters.To = to
	return filters, form, true
}

func (h *Handler) flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	viewData := view.Page(r, h.csrf, "Logs de auditoria", data)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}
