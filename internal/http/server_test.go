package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dobkap/internal/calendar"
	"dobkap/internal/core"
	"dobkap/internal/jobs"
	"dobkap/internal/storage"
)

type fakeSyncer struct {
	jobs    *jobs.Store
	current *jobs.Job
}

func (f *fakeSyncer) StartSync(ctx context.Context) (*jobs.Job, bool) {
	if f.current != nil && !f.current.Completed() {
		return f.current, false
	}
	f.current = f.jobs.Spawn(context.WithoutCancel(ctx), func(ctx context.Context, job *jobs.Job) {
		<-ctx.Done()
		job.Error("cancelled")
	})
	return f.current, true
}

type testEnv struct {
	srv  *Server
	repo *storage.SQLiteRepository
	jobs *jobs.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "dobkap.db"))
	require.NoError(t, err)

	jobStore := jobs.NewStore(time.Hour)
	srv := NewServer(":0", Deps{
		Store: repo,
		Sync:  &fakeSyncer{jobs: jobStore},
		Jobs:  jobStore,
	})
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		jobStore.Wait()
		repo.Close()
	})
	return &testEnv{srv: srv, repo: repo, jobs: jobStore}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

const mailboxBody = `{"emailAddress":"me@example.com","password":"secret","imapHost":"imap.example.com","imapPort":993,"syncFrom":"2023-01-01"}`

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/filings", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
}

func TestMailbox(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/mailbox", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/mailbox", mailboxBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	created := decode[mailboxResponse](t, rr)
	assert.NotZero(t, created.ID)
	assert.True(t, created.PasswordSet)
	assert.Equal(t, "date,2023-01-01", created.Cursor)
	assert.NotContains(t, rr.Body.String(), "secret")

	// An empty password keeps the stored one and the cursor survives.
	rr = env.do(t, http.MethodPut, "/api/mailbox", `{"emailAddress":"other@example.com","imapHost":"imap.example.com","imapPort":143}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[mailboxResponse](t, rr)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "date,2023-01-01", updated.Cursor)

	mb, err := env.repo.GetMailbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret", mb.Password)
	assert.Equal(t, "other@example.com", mb.EmailAddress)
	assert.Equal(t, 143, mb.IMAPPort)
}

func TestMailboxValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing host", body: `{"emailAddress":"me@example.com","imapPort":993}`, want: http.StatusBadRequest},
		{name: "bad port", body: `{"emailAddress":"me@example.com","imapHost":"h","imapPort":0}`, want: http.StatusBadRequest},
		{name: "bad sync date", body: `{"emailAddress":"me@example.com","imapHost":"h","imapPort":993,"syncFrom":"01/01/2023"}`, want: http.StatusBadRequest},
		{name: "unknown field", body: `{"email":"me@example.com"}`, want: http.StatusBadRequest},
		{name: "not json", body: `nope`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rr := env.do(t, http.MethodPut, "/api/mailbox", tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestImporters(t *testing.T) {
	env := newTestEnv(t)
	const importer = `{"name":"IBKR","format":"ibkr","fromFilter":"donotreply@interactivebrokers.com","attachmentRegex":"\\.csv$","paymentNotes":"IBKR account"}`

	rr := env.do(t, http.MethodPost, "/api/importers", importer)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "importer needs a mailbox")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/mailbox", mailboxBody).Code)

	rr = env.do(t, http.MethodPost, "/api/importers", importer)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[importerDTO](t, rr)
	assert.NotZero(t, created.ID)
	assert.NotZero(t, created.MailboxID)
	assert.Equal(t, core.FormatIBKR, created.Format)

	rr = env.do(t, http.MethodPost, "/api/importers", `{"name":"bad","format":"ibkr","attachmentRegex":"("}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/importers", `{"name":"bad","format":"pdf"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	path := fmt.Sprintf("/api/importers/%d", created.ID)
	rr = env.do(t, http.MethodPut, path, `{"name":"IBKR main","format":"ibkr","attachmentRegex":"\\.csv$"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, created.MailboxID, decode[importerDTO](t, rr).MailboxID)

	rr = env.do(t, http.MethodGet, "/api/importers", "")
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]importerDTO](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "IBKR main", list[0].Name)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/api/importers/999", `{"name":"x","format":"ibkr"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, "/api/importers/abc", "").Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, "").Code)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/profile", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, profileDTO{}, decode[profileDTO](t, rr))

	body := `{"jmbg":"0101990710000","fullName":"Petar Petrović","streetAddress":"Knez Mihailova 1","opstinaCode":"013","phoneNumber":"0601234567","emailAddress":"petar@example.com"}`
	rr = env.do(t, http.MethodPut, "/api/profile", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/api/profile", "")
	got := decode[profileDTO](t, rr)
	assert.Equal(t, "Petar Petrović", got.FullName)
	assert.Equal(t, "013", got.OpstinaCode)

	rr = env.do(t, http.MethodPut, "/api/profile", `{"jmbg":"12ab"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHolidays(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/holidays", "")
	require.Equal(t, http.StatusOK, rr.Code)
	def := decode[calendar.HolidayConf](t, rr)
	assert.NotEmpty(t, def.HolidayRangeStart)

	rr = env.do(t, http.MethodPut, "/api/holidays", `{"holidayRangeStart":"2024-12-31","holidayRangeEnd":"2024-01-01","holidays":[]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body := `{"holidayRangeStart":"2024-01-01","holidayRangeEnd":"2024-12-31","holidays":["2024-01-01","2024-01-02"]}`
	rr = env.do(t, http.MethodPut, "/api/holidays", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	conf, err := env.repo.GetHolidayConf(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, conf.Holidays)
}

func TestManualReports(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/reports/manual", `[{"type":"rent","payingEntity":"X","incomeDate":"2024-01-01","incomeCurrencyCode":"USD","incomeCurrencyAmount":"1"}]`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

	rr = env.do(t, http.MethodPost, "/api/reports/manual", `[]`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	body := `[{"type":"dividend","payingEntity":"Apple Inc","incomeDate":"2024-02-15","incomeCurrencyCode":"USD","incomeCurrencyAmount":"24.00","whtCurrencyCode":"USD","whtCurrencyAmount":"3.60"}]`
	rr = env.do(t, http.MethodPost, "/api/reports/manual", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[reportDTO](t, rr)
	assert.Equal(t, core.ManualReportName, created.Name)
	assert.Equal(t, core.FormatNativeJSON, created.Format)
	assert.Equal(t, core.ReportInit, created.Status)
	assert.Nil(t, created.ImporterID)
	assert.Nil(t, created.MailboxID)

	content, err := env.repo.GetReportContent(context.Background(), created.ID)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(content))

	rr = env.do(t, http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]reportDTO](t, rr), 1)

	path := fmt.Sprintf("/api/reports/%d", created.ID)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, "").Code)
}

func seedFiling(t *testing.T, repo *storage.SQLiteRepository) core.Filing {
	t.Helper()
	ctx := context.Background()
	report, err := repo.CreateManualReport(ctx, []byte(`[]`))
	require.NoError(t, err)
	f, err := repo.CreateFiling(ctx, core.Filing{
		ReportID:       report.ID,
		Kind:           core.KindDividend,
		PayingEntity:   "Apple Inc",
		IncomeDate:     time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		FilingDeadline: time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC),
		TaxPayable:     core.Money{Cents: 58585},
	})
	require.NoError(t, err)
	require.NoError(t, repo.SaveFilingContent(ctx, f.ID, []byte(`<?xml version="1.0" encoding="UTF-8"?><ns1:PodaciPoreskeDeklaracije/>`)))
	return f
}

func TestFilings(t *testing.T) {
	env := newTestEnv(t)
	f := seedFiling(t, env.repo)

	rr := env.do(t, http.MethodGet, "/api/filings", "")
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]filingDTO](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "585.85", list[0].TaxPayable)
	assert.Equal(t, "2024-03-18", list[0].FilingDeadline)
	assert.Equal(t, core.FilingInit, list[0].Status)

	path := fmt.Sprintf("/api/filings/%d", f.ID)
	rr = env.do(t, http.MethodPatch, path, `{"status":"filed","paymentReference":" 97-123 "}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[filingDTO](t, rr)
	assert.Equal(t, core.FilingFiled, updated.Status)
	assert.Equal(t, "97-123", updated.PaymentReference)

	// Absent fields keep their value.
	rr = env.do(t, http.MethodPatch, path, `{"status":"paid"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "97-123", decode[filingDTO](t, rr).PaymentReference)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, path, `{"status":"lost"}`).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPatch, "/api/filings/999", `{"status":"paid"}`).Code)

	rr = env.do(t, http.MethodGet, path+"/form", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/xml")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), fmt.Sprintf("opo-%d.xml", f.ID))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("<?xml")))

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/filings/999/form", "").Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, "").Code)
}

func TestJobs(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/jobs", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	started := decode[jobStartResponse](t, rr)
	assert.True(t, started.Started)
	assert.Equal(t, "/api/jobs/"+started.ID, rr.Header().Get("Location"))

	rr = env.do(t, http.MethodPost, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rr.Code)
	again := decode[jobStartResponse](t, rr)
	assert.False(t, again.Started)
	assert.Equal(t, started.ID, again.ID)

	rr = env.do(t, http.MethodGet, "/api/jobs/"+started.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	snap := decode[jobs.Snapshot](t, rr)
	assert.Equal(t, started.ID, snap.ID)
	assert.False(t, snap.Completed)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/api/jobs/"+started.ID+"/cancel", "").Code)
	env.jobs.Wait()

	rr = env.do(t, http.MethodGet, "/api/jobs/"+started.ID, "")
	snap = decode[jobs.Snapshot](t, rr)
	assert.True(t, snap.Completed)
	assert.True(t, snap.Canceled)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "cancelled", snap.Messages[0].Text)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/jobs/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/jobs/missing/cancel", "").Code)
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(3)
	defer rl.stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"), "clients are limited independently")

	rl.cleanupStaleEntries(time.Now().Add(11 * time.Minute))
	rl.mu.Lock()
	assert.Empty(t, rl.clients)
	rl.mu.Unlock()
}

func TestRateLimitMiddleware(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "dobkap.db"))
	require.NoError(t, err)
	defer repo.Close()
	srv := NewServer(":0", Deps{Store: repo, RequestsPerMinute: 1})
	defer srv.Shutdown(context.Background())

	put := func() int {
		req := httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		return rr.Code
	}
	assert.Equal(t, http.StatusOK, put())
	assert.Equal(t, http.StatusTooManyRequests, put())

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code, "reads are not limited")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("get filing 1: %w", core.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("record: %w", core.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: %q", core.ErrInvalidStatus, "x"), http.StatusBadRequest},
		{core.NewFormatError("bad row", nil), http.StatusUnprocessableEntity},
		{badRequest("nope"), http.StatusBadRequest},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
