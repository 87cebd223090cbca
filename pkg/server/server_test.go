package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/budgetu/pkg/executors"
	"github.com/yurifrl/budgetu/pkg/importer"
	"github.com/yurifrl/budgetu/pkg/models"
	"github.com/yurifrl/budgetu/pkg/parser"
	"github.com/yurifrl/budgetu/pkg/session"
	"github.com/yurifrl/budgetu/pkg/store"
)

const statement = "date,amount,description,type\n" +
	"01/06/23,-150,fuel,\n" +
	"02/06/23,9000,Salary,income\n" +
	"bad-date,abc,,\n"

type testEnv struct {
	srv   *Server
	store *store.Store
	state *session.State
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	return newTestEnvWithLedger(t, nil, opts...)
}

// newTestEnvWithLedger lets wrap replace the ledger the executor merges into.
func newTestEnvWithLedger(t *testing.T, wrap func(*store.Store) executors.Ledger, opts ...Option) *testEnv {
	t.Helper()
	logger := log.New(io.Discard)

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), logger)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	var ledger executors.Ledger = st
	if wrap != nil {
		ledger = wrap(st)
	}

	state := session.New()
	exec := executors.New(logger, parser.New(logger), importer.New(logger), ledger,
		executors.WithSession(state),
		executors.WithCategorySource(st, nil),
		executors.WithOutput(io.Discard),
	)
	return &testEnv{srv: New(logger, exec, st, state, opts...), store: st, state: state}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("statement", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func importOK(t *testing.T, e *testEnv, content string) importResponse {
	t.Helper()
	rec := e.do(t, uploadRequest(t, "statement.csv", content, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[importResponse](t, rec)
}

func TestImportConfirmFlow(t *testing.T) {
	e := newTestEnv(t)

	resp := importOK(t, e, statement)
	if resp.ID == "" || len(resp.Entries) != 2 || resp.ToAdd != 2 {
		t.Fatalf("unexpected preview %+v", resp)
	}
	if first := resp.Entries[0]; first.Type != models.TypeExpense || first.Amount != 150 || first.Reconcile != "to add" {
		t.Errorf("first entry = %+v", first)
	}
	if len(resp.Rejected) != 1 || resp.Rejected[0] != (importer.Rejection{Row: 2, Reason: importer.ReasonInvalidAmount}) {
		t.Errorf("rejected = %+v", resp.Rejected)
	}
	if resp.Totals.Net.String() != "8850" {
		t.Errorf("net total = %s", resp.Totals.Net)
	}

	// Nothing is written before confirmation.
	if txs, _ := e.store.List(context.Background(), models.Filter{}); len(txs) != 0 {
		t.Fatalf("preview wrote %d transactions", len(txs))
	}

	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/import/"+resp.ID+"/confirm", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]any](t, rec); got["merged"] != float64(2) {
		t.Errorf("confirm response = %v", got)
	}

	rec = e.do(t, httptest.NewRequest(http.MethodPost, "/api/import/"+resp.ID+"/confirm", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second confirm status = %d, want 404", rec.Code)
	}

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/transactions?type=income", nil))
	listed := decode[struct {
		Transactions []models.Transaction `json:"transactions"`
	}](t, rec)
	if len(listed.Transactions) != 1 || listed.Transactions[0].Description != "Salary" {
		t.Errorf("income transactions = %+v", listed.Transactions)
	}

	again := importOK(t, e, statement)
	if again.ToAdd != 0 || again.InSync != 2 {
		t.Errorf("re-import should be in sync, got to_add=%d in_sync=%d", again.ToAdd, again.InSync)
	}
}

// slowLedger delays every merge so concurrent confirmations overlap.
type slowLedger struct {
	*store.Store
	delay  time.Duration
	merges atomic.Int32
}

func (l *slowLedger) Merge(ctx context.Context, batch []models.ImportedTransaction, source string) ([]models.Transaction, error) {
	l.merges.Add(1)
	time.Sleep(l.delay)
	return l.Store.Merge(ctx, batch, source)
}

func TestConfirm_ConcurrentMergesOnce(t *testing.T) {
	var ledger *slowLedger
	e := newTestEnvWithLedger(t, func(st *store.Store) executors.Ledger {
		ledger = &slowLedger{Store: st, delay: 100 * time.Millisecond}
		return ledger
	})
	resp := importOK(t, e, statement)

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			e.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import/"+resp.ID+"/confirm", nil))
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	ok, notFound := 0, 0
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusNotFound:
			notFound++
		}
	}
	if ok != 1 || notFound != 1 {
		t.Errorf("codes = %v, want one 200 and one 404", codes)
	}
	if got := ledger.merges.Load(); got != 1 {
		t.Errorf("merges = %d, want 1", got)
	}
	if txs, _ := e.store.List(context.Background(), models.Filter{}); len(txs) != 2 {
		t.Errorf("ledger holds %d transactions, want 2", len(txs))
	}
}

// failingLedger refuses every merge.
type failingLedger struct {
	*store.Store
}

func (failingLedger) Merge(context.Context, []models.ImportedTransaction, string) ([]models.Transaction, error) {
	return nil, errors.New("disk full")
}

func TestConfirm_MergeFailureKeepsPreview(t *testing.T) {
	e := newTestEnvWithLedger(t, func(st *store.Store) executors.Ledger { return failingLedger{st} })
	resp := importOK(t, e, statement)

	if rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/import/"+resp.ID+"/confirm", nil)); rec.Code != http.StatusInternalServerError {
		t.Errorf("confirm status = %d, want 500", rec.Code)
	}
	if rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/files/"+resp.ID, nil)); rec.Code != http.StatusOK {
		t.Errorf("preview should survive a failed merge, files status = %d", rec.Code)
	}
}

func TestPending_Expiry(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	e := newTestEnv(t, WithClock(clock), WithPendingTTL(time.Minute))

	resp := importOK(t, e, statement)
	if rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/files/"+resp.ID, nil)); rec.Code != http.StatusOK {
		t.Fatalf("files status = %d before expiry", rec.Code)
	}

	now = now.Add(2 * time.Minute)
	if rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/import/"+resp.ID+"/confirm", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("confirm of an expired preview status = %d, want 404", rec.Code)
	}
	if txs, _ := e.store.List(context.Background(), models.Filter{}); len(txs) != 0 {
		t.Errorf("expired preview wrote %d transactions", len(txs))
	}
}

func TestPending_Cap(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	e := newTestEnv(t, WithClock(clock), WithPendingTTL(time.Minute), WithMaxPending(1))

	first := importOK(t, e, statement)
	if rec := e.do(t, uploadRequest(t, "statement.csv", statement, nil)); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second pending import status = %d, want 429", rec.Code)
	}

	// Discarding frees the slot.
	e.do(t, httptest.NewRequest(http.MethodDelete, "/api/import/"+first.ID, nil))
	second := importOK(t, e, statement)

	// So does expiry.
	now = now.Add(2 * time.Minute)
	importOK(t, e, statement)
	if rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/files/"+second.ID, nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expired preview files status = %d, want 404", rec.Code)
	}
}

func TestImport_Discard(t *testing.T) {
	e := newTestEnv(t)
	resp := importOK(t, e, statement)

	rec := e.do(t, httptest.NewRequest(http.MethodDelete, "/api/import/"+resp.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("discard status = %d", rec.Code)
	}
	rec = e.do(t, httptest.NewRequest(http.MethodPost, "/api/import/"+resp.ID+"/confirm", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("confirm after discard status = %d, want 404", rec.Code)
	}
	rec = e.do(t, httptest.NewRequest(http.MethodDelete, "/api/import/"+resp.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second discard status = %d, want 404", rec.Code)
	}
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		fields   map[string]string
		want     int
	}{
		{"unsupported format", "statement.pdf", "%PDF", nil, http.StatusBadRequest},
		{"empty file", "statement.csv", "  \n", nil, http.StatusBadRequest},
		{"missing column", "statement.csv", "foo,bar\n1,2\n", nil, http.StatusUnprocessableEntity},
		{"incomplete mapping", "statement.csv", statement, map[string]string{"mapping_date": "date"}, http.StatusUnprocessableEntity},
		{"mapping to unknown header", "statement.csv", statement, map[string]string{
			"mapping_date": "date", "mapping_amount": "Charge", "mapping_description": "description",
		}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newTestEnv(t).do(t, uploadRequest(t, tt.filename, tt.content, tt.fields))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestImport_ExplicitMapping(t *testing.T) {
	e := newTestEnv(t)
	content := "Transaction Date;Charge;Merchant\n2024-04-02;-35.50;Wolt\n"

	rec := e.do(t, uploadRequest(t, "visa.csv", content, map[string]string{
		"mapping_date":        "Transaction Date",
		"mapping_amount":      "Charge",
		"mapping_description": "Merchant",
		"source":              "visa",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[importResponse](t, rec)
	if resp.Source != "visa" || len(resp.Entries) != 1 || resp.Entries[0].Amount != 35.5 {
		t.Errorf("unexpected preview %+v", resp)
	}
}

func TestImport_TooLarge(t *testing.T) {
	e := newTestEnv(t, WithMaxUploadMB(1))
	big := "date,amount,description\n" + strings.Repeat("2024-01-01,-1,x\n", 80000)

	rec := e.do(t, uploadRequest(t, "big.csv", big, nil))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestImport_Blocked(t *testing.T) {
	e := newTestEnv(t)
	resp := importOK(t, e, statement)

	e.state.SetSkipImport(true)
	if rec := e.do(t, uploadRequest(t, "statement.csv", statement, nil)); rec.Code != http.StatusConflict {
		t.Errorf("import status = %d, want 409", rec.Code)
	}
	if rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/import/"+resp.ID+"/confirm", nil)); rec.Code != http.StatusConflict {
		t.Errorf("confirm status = %d, want 409", rec.Code)
	}

	// The preview survives a refused confirmation.
	e.state.SetSkipImport(false)
	if rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/import/"+resp.ID+"/confirm", nil)); rec.Code != http.StatusOK {
		t.Errorf("confirm after unblock status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestFiles(t *testing.T) {
	e := newTestEnv(t)
	resp := importOK(t, e, statement)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/files/"+resp.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "statement-budgetu.csv") {
		t.Errorf("Content-Disposition = %q", got)
	}
	want := "Date,Description,Category,Type,Status,Amount,Notes\n" +
		"2023-06-01,fuel,other,expense,completed,150.00,\n" +
		"2023-06-02,Salary,other,income,completed,9000.00,\n"
	if rec.Body.String() != want {
		t.Errorf("csv = %q, want %q", rec.Body.String(), want)
	}

	if rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/files/nope", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("unknown file status = %d, want 404", rec.Code)
	}
}

func TestTransactions_InvalidParams(t *testing.T) {
	for _, query := range []string{"limit=-3", "min=abc", "max=-1"} {
		rec := newTestEnv(t).do(t, httptest.NewRequest(http.MethodGet, "/api/transactions?"+query, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", query, rec.Code)
		}
	}
}

func TestTransactions_AmountRange(t *testing.T) {
	e := newTestEnv(t)
	resp := importOK(t, e, statement)
	e.do(t, httptest.NewRequest(http.MethodPost, "/api/import/"+resp.ID+"/confirm", nil))

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/transactions?min=100&max=1000", nil))
	listed := decode[struct {
		Transactions []models.Transaction `json:"transactions"`
	}](t, rec)
	if len(listed.Transactions) != 1 || listed.Transactions[0].Description != "fuel" {
		t.Errorf("transactions = %+v", listed.Transactions)
	}
}

func TestReset(t *testing.T) {
	e := newTestEnv(t)
	resp := importOK(t, e, statement)
	e.do(t, httptest.NewRequest(http.MethodPost, "/api/import/"+resp.ID+"/confirm", nil))
	pending := importOK(t, e, statement)

	rec := e.do(t, httptest.NewRequest(http.MethodDelete, "/api/transactions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if got := decode[map[string]any](t, rec); got["deleted"] != float64(2) {
		t.Errorf("reset response = %v", got)
	}
	if rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/files/"+pending.ID, nil)); rec.Code != http.StatusNotFound {
		t.Errorf("pending import should be dropped by reset, status = %d", rec.Code)
	}

	importing, err := e.state.BeginImport(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if rec := e.do(t, httptest.NewRequest(http.MethodDelete, "/api/transactions", nil)); rec.Code != http.StatusConflict {
		t.Errorf("reset during an import status = %d, want 409", rec.Code)
	}
	importing()

	done, err := e.state.BeginReset()
	if err != nil {
		t.Fatal(err)
	}
	defer done()
	if rec := e.do(t, httptest.NewRequest(http.MethodDelete, "/api/transactions", nil)); rec.Code != http.StatusConflict {
		t.Errorf("concurrent reset status = %d, want 409", rec.Code)
	}
}

func TestCategoryMappings(t *testing.T) {
	e := newTestEnv(t)

	put := func(body string) int {
		req := httptest.NewRequest(http.MethodPut, "/api/category-mappings", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return e.do(t, req).Code
	}

	if code := put(`{"pattern":"wolt","category":"food"}`); code != http.StatusOK {
		t.Fatalf("put status = %d", code)
	}
	if code := put(`{"pattern":"wolt","category":"toys"}`); code != http.StatusBadRequest {
		t.Errorf("invalid category status = %d, want 400", code)
	}
	if code := put(`{`); code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", code)
	}

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/category-mappings", nil))
	listed := decode[struct {
		Mappings []models.CategoryMapping `json:"mappings"`
	}](t, rec)
	if len(listed.Mappings) != 1 || listed.Mappings[0].Category != models.CategoryFood {
		t.Errorf("mappings = %+v", listed.Mappings)
	}

	// New previews pick up the stored mapping.
	resp := importOK(t, e, "date,amount,description\n2024-04-02,-35,WOLT TLV\n")
	if resp.Entries[0].Category != models.CategoryFood {
		t.Errorf("category = %q, want food", resp.Entries[0].Category)
	}

	if rec := e.do(t, httptest.NewRequest(http.MethodDelete, "/api/category-mappings/wolt", nil)); rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := e.do(t, httptest.NewRequest(http.MethodDelete, "/api/category-mappings/wolt", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestSession(t *testing.T) {
	e := newTestEnv(t)
	until := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	req := httptest.NewRequest(http.MethodPut, "/api/session", strings.NewReader(`{"skip_import":true,"import_blocked_until":"2030-01-01T00:00:00Z"}`))
	if rec := e.do(t, req); rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	snap := decode[session.Snapshot](t, rec)
	if !snap.SkipImport || !snap.ImportBlockedUntil.Equal(until) {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestWithLogging_RecoversPanic(t *testing.T) {
	e := newTestEnv(t)
	h := e.srv.withLogging(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
