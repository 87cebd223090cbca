package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/yurifrl/budgetu/pkg/csv"
	"github.com/yurifrl/budgetu/pkg/executors"
	"github.com/yurifrl/budgetu/pkg/importer"
	"github.com/yurifrl/budgetu/pkg/models"
	"github.com/yurifrl/budgetu/pkg/normalize"
	"github.com/yurifrl/budgetu/pkg/session"
	"github.com/yurifrl/budgetu/pkg/store"
)

// Ledger is the store surface the API reads and edits directly.
type Ledger interface {
	List(ctx context.Context, f models.Filter) ([]models.Transaction, error)
	Reset(ctx context.Context) (int64, error)
	CategoryMappings(ctx context.Context) ([]models.CategoryMapping, error)
	PutCategoryMapping(ctx context.Context, m models.CategoryMapping) error
	DeleteCategoryMapping(ctx context.Context, pattern string) error
}

// errTooManyPending is returned when maxPending previews are still waiting.
var errTooManyPending = errors.New("too many pending imports; confirm or discard one first")

// Server exposes the preview, confirm or discard import flow over HTTP.
// Previews wait in memory until they are confirmed, discarded or expire.
type Server struct {
	logger     *log.Logger
	exec       *executors.Executor
	ledger     Ledger
	session    *session.State
	mux        *http.ServeMux
	pending    sync.Map // id -> *pendingImport
	addMu      sync.Mutex
	pendingTTL time.Duration
	maxPending int
	maxUpload  int64
	now        func() time.Time
}

type pendingImport struct {
	preview *executors.Preview
	expires time.Time
}

type Option func(*Server)

// WithPendingTTL sets how long an unconfirmed preview is kept.
func WithPendingTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pendingTTL = d
		}
	}
}

// WithMaxPending caps the number of previews waiting for confirmation.
func WithMaxPending(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPending = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithMaxUploadMB caps the size of an uploaded statement.
func WithMaxUploadMB(mb int64) Option {
	return func(s *Server) {
		if mb > 0 {
			s.maxUpload = mb << 20
		}
	}
}

// New creates a new HTTP server. state must be the same one the executor
// checks on confirm.
func New(logger *log.Logger, exec *executors.Executor, ledger Ledger, state *session.State, opts ...Option) *Server {
	if state == nil {
		state = session.New()
	}
	s := &Server{
		logger:    logger,
		exec:      exec,
		ledger:    ledger,
		session:   state,
		mux:        http.NewServeMux(),
		pendingTTL: 30 * time.Minute,
		maxPending: 64,
		maxUpload:  10 << 20,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /api/import", s.withLogging(s.handleImport))
	s.mux.HandleFunc("POST /api/import/{id}/confirm", s.withLogging(s.handleConfirm))
	s.mux.HandleFunc("DELETE /api/import/{id}", s.withLogging(s.handleDiscard))
	s.mux.HandleFunc("GET /api/files/{id}", s.withLogging(s.handleFiles))

	s.mux.HandleFunc("GET /api/transactions", s.withLogging(s.handleTransactions))
	s.mux.HandleFunc("DELETE /api/transactions", s.withLogging(s.handleReset))

	s.mux.HandleFunc("GET /api/category-mappings", s.withLogging(s.handleListMappings))
	s.mux.HandleFunc("PUT /api/category-mappings", s.withLogging(s.handlePutMapping))
	s.mux.HandleFunc("DELETE /api/category-mappings/{pattern}", s.withLogging(s.handleDeleteMapping))

	s.mux.HandleFunc("GET /api/session", s.withLogging(s.handleSession))
	s.mux.HandleFunc("PUT /api/session", s.withLogging(s.handleUpdateSession))
}

// ---------------- import flow ----------------

// Entry is one accepted row of a preview with its reconciliation status.
type Entry struct {
	models.ImportedTransaction
	Reconcile string `json:"reconcile"`
}

type importResponse struct {
	Status     string               `json:"status"`
	ID         string               `json:"id"`
	Source     string               `json:"source"`
	Mapping    models.FieldMapping  `json:"mapping"`
	Entries    []Entry              `json:"entries"`
	Rejected   []importer.Rejection `json:"rejected"`
	Warnings   []importer.Warning   `json:"warnings"`
	ToAdd      int                  `json:"to_add"`
	InSync     int                  `json:"in_sync"`
	Duplicates int                  `json:"duplicates"`
	Totals     importer.Totals      `json:"totals"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := s.session.CanImport(s.now()); err != nil {
		s.respondError(w, r, http.StatusConflict, err.Error(), err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("statement")
	if err != nil {
		s.respondError(w, r, importStatus(err), "statement file required", err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to read file", err)
		return
	}

	mapping := formMapping(r)
	pv, err := s.exec.PreviewBytes(r.Context(), data, header.Filename, r.FormValue("source"), mapping)
	if err != nil {
		s.respondError(w, r, importStatus(err), err.Error(), err)
		return
	}

	id, err := s.addPending(pv)
	if err != nil {
		s.respondError(w, r, http.StatusTooManyRequests, err.Error(), err)
		return
	}
	s.logger.Info("import previewed", "id", id, "file", header.Filename, "to_add", pv.Report.MissingCount(), "skipped", pv.Result.Skipped())

	entries := make([]Entry, len(pv.Report.Items))
	for i, item := range pv.Report.Items {
		entries[i] = Entry{ImportedTransaction: item.Local, Reconcile: item.Status.String()}
	}
	if err := s.writeJSON(w, http.StatusOK, importResponse{
		Status:     "success",
		ID:         id,
		Source:     pv.Source,
		Mapping:    pv.Result.Mapping,
		Entries:    entries,
		Rejected:   pv.Result.Rejected,
		Warnings:   pv.Result.Warnings,
		ToAdd:      pv.Report.MissingCount(),
		InSync:     pv.Report.InSyncCount(),
		Duplicates: pv.Report.DuplicateCount(),
		Totals:     pv.Result.Totals(),
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// formMapping reads mapping_<field> form values. No values means the columns
// are resolved from aliases.
func formMapping(r *http.Request) models.FieldMapping {
	var m models.FieldMapping
	for _, f := range models.Fields {
		header := strings.TrimSpace(r.FormValue("mapping_" + string(f)))
		if header == "" {
			continue
		}
		if m == nil {
			m = models.FieldMapping{}
		}
		m[f] = header
	}
	return m
}

// importStatus maps upload and preview errors to a status code. Unsupported
// or empty files are plain bad requests.
func importStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, normalize.ErrMissingColumn):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// addPending stores pv under a new id after dropping expired previews.
func (s *Server) addPending(pv *executors.Preview) (string, error) {
	s.addMu.Lock()
	defer s.addMu.Unlock()

	now := s.now()
	n := 0
	s.pending.Range(func(key, value any) bool {
		if p, ok := value.(*pendingImport); !ok || now.After(p.expires) {
			s.pending.Delete(key)
		} else {
			n++
		}
		return true
	})
	if n >= s.maxPending {
		return "", errTooManyPending
	}

	id := uuid.NewString()
	s.pending.Store(id, &pendingImport{preview: pv, expires: now.Add(s.pendingTTL)})
	return id, nil
}

// loadPending looks up a live preview. With take set the preview is removed,
// so only one caller ever holds it.
func (s *Server) loadPending(w http.ResponseWriter, r *http.Request, take bool) (*pendingImport, bool) {
	id := r.PathValue("id")
	var (
		value any
		ok    bool
	)
	if take {
		value, ok = s.pending.LoadAndDelete(id)
	} else {
		value, ok = s.pending.Load(id)
	}
	p, _ := value.(*pendingImport)
	if !ok || p == nil || s.now().After(p.expires) {
		if ok && !take {
			s.pending.Delete(id)
		}
		s.respondError(w, r, http.StatusNotFound, "import not found", nil)
		return nil, false
	}
	return p, true
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPending(w, r, true)
	if !ok {
		return
	}
	allowDuplicates, _ := strconv.ParseBool(r.URL.Query().Get("allow_duplicates"))

	out, err := s.exec.Confirm(r.Context(), p.preview, allowDuplicates)
	if out == nil && err != nil && !errors.Is(err, session.ErrResetInProgress) {
		// Nothing was written; the preview can be confirmed again later.
		s.pending.Store(r.PathValue("id"), p)
	}
	switch {
	case errors.Is(err, session.ErrImportBlocked), errors.Is(err, session.ErrResetInProgress):
		s.respondError(w, r, http.StatusConflict, err.Error(), err)
		return
	case err != nil && out == nil:
		s.respondError(w, r, http.StatusInternalServerError, "merge failed", err)
		return
	case err != nil:
		s.respondError(w, r, http.StatusBadGateway, err.Error(), err)
		return
	}
	if err := s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "applied",
		"merged": len(out.Merged),
		"pushed": out.Pushed,
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.pending.LoadAndDelete(r.PathValue("id")); !ok {
		s.respondError(w, r, http.StatusNotFound, "import not found", nil)
		return
	}
	if err := s.writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// handleFiles serves the accepted rows of a pending import as CSV.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPending(w, r, false)
	if !ok {
		return
	}
	pv := p.preview

	data, err := csv.Create(models.ExportHeader, pv.Result.Accepted, nil)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to encode csv", err)
		return
	}

	name := filepath.Base(pv.Source)
	filename := strings.TrimSuffix(name, filepath.Ext(name)) + "-budgetu.csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write csv response", "err", err)
	}
}

// ---------------- ledger ----------------

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.Filter{
		From:     q.Get("from"),
		To:       q.Get("to"),
		Category: models.Category(q.Get("category")),
		Type:     models.Type(q.Get("type")),
		Query:    q.Get("q"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.respondError(w, r, http.StatusBadRequest, "invalid limit", err)
			return
		}
		f.Limit = limit
	}
	for param, dst := range map[string]*float64{"min": &f.MinAmount, "max": &f.MaxAmount} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			s.respondError(w, r, http.StatusBadRequest, "invalid "+param, err)
			return
		}
		*dst = v
	}

	txs, err := s.ledger.List(r.Context(), f)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to list transactions", err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	if err := s.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"transactions": txs,
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// handleReset empties the ledger and drops every pending import. Imports are
// refused until it finishes.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	done, err := s.session.BeginReset()
	if err != nil {
		s.respondError(w, r, http.StatusConflict, err.Error(), err)
		return
	}
	defer done()

	n, err := s.ledger.Reset(r.Context())
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "reset failed", err)
		return
	}
	s.pending.Clear()

	if err := s.writeJSON(w, http.StatusOK, map[string]any{"status": "reset", "deleted": n}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// ---------------- category mappings ----------------

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.ledger.CategoryMappings(r.Context())
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to list category mappings", err)
		return
	}
	if mappings == nil {
		mappings = []models.CategoryMapping{}
	}
	if err := s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"mappings": mappings,
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func (s *Server) handlePutMapping(w http.ResponseWriter, r *http.Request) {
	var m models.CategoryMapping
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&m); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid json body", err)
		return
	}
	if err := s.ledger.PutCategoryMapping(r.Context(), m); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrInvalidMapping) {
			status = http.StatusBadRequest
		}
		s.respondError(w, r, status, err.Error(), err)
		return
	}
	if err := s.writeJSON(w, http.StatusOK, map[string]any{"status": "saved", "mapping": m}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.DeleteCategoryMapping(r.Context(), r.PathValue("pattern"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.respondError(w, r, http.StatusNotFound, "category mapping not found", nil)
		return
	case err != nil:
		s.respondError(w, r, http.StatusInternalServerError, "failed to delete category mapping", err)
		return
	}
	if err := s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// ---------------- session ----------------

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if err := s.writeJSON(w, http.StatusOK, s.session.Snapshot()); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

type sessionUpdate struct {
	SkipImport         *bool      `json:"skip_import"`
	ImportBlockedUntil *time.Time `json:"import_blocked_until"`
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var u sessionUpdate
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&u); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid json body", err)
		return
	}
	if u.SkipImport != nil {
		s.session.SetSkipImport(*u.SkipImport)
	}
	if u.ImportBlockedUntil != nil {
		s.session.BlockImportsUntil(*u.ImportBlockedUntil)
	}
	if err := s.writeJSON(w, http.StatusOK, s.session.Snapshot()); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// --- helpers ---

// writeJSON encodes v as JSON with the given status and writes headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// respondError logs the error and returns a minimal JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		s.logger.Warn("request error", "status", status, "msg", message, "err", err, "method", r.Method, "path", r.URL.Path)
	} else {
		s.logger.Warn("request error", "status", status, "msg", message, "method", r.Method, "path", r.URL.Path)
	}
	_ = s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// withLogging wraps a handler to log requests and recover panics.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path)
				s.respondError(w, r, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
			}
		}()
		next(w, r)
	}
}
