package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/pivolan/textile_dashboard/analysis"
	"github.com/pivolan/textile_dashboard/dataset"
	"github.com/pivolan/textile_dashboard/domain/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountsCSV = `Name,AccountType,Classification,Active,current_balance
Cotton Twill,Bank,Asset,true,120.50
Silk Charmeuse,Expense,Expense,false,0
`

type stream struct {
	frags []string
	err   error
}

func (s *stream) Next() (string, error) {
	if len(s.frags) > 0 {
		f := s.frags[0]
		s.frags = s.frags[1:]
		return f, nil
	}
	return "", s.err
}

func (s *stream) Close() error { return nil }

type fakeService struct {
	mu     sync.Mutex
	calls  int
	stream func() *stream
}

func (f *fakeService) count() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeService) Upload(ctx context.Context, name string, data []byte) (string, error) {
	f.count()
	return "file-" + name, nil
}

func (f *fakeService) CreateConversation(ctx context.Context, fileIDs []string) (analysis.Handle, error) {
	f.count()
	return analysis.Handle{AssistantID: "a", ThreadID: "t"}, nil
}

func (f *fakeService) Post(ctx context.Context, h analysis.Handle, question string) error {
	f.count()
	return nil
}

func (f *fakeService) Run(ctx context.Context, h analysis.Handle) (analysis.Stream, error) {
	f.count()
	return f.stream(), nil
}

func (f *fakeService) Release(ctx context.Context, h analysis.Handle, fileIDs []string) error {
	f.count()
	return nil
}

func newTestServer(t *testing.T, svc *fakeService) *Server {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "accounts.csv", []byte(accountsCSV), 0o644))
	loader := dataset.NewLoader(dataset.NewCache(), dataset.NewFileSource(fs))
	return NewServer(loader, analysis.NewAnalyst(svc, loader, 0), analysis.NewStates())
}

func do(srv http.Handler, method, target string, body io.Reader, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func form(question string) io.Reader {
	return strings.NewReader(url.Values{"question": {question}}.Encode())
}

func TestHealth(t *testing.T) {
	rec := do(newTestServer(t, &fakeService{}), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHomeSetsSessionCookie(t *testing.T) {
	rec := do(newTestServer(t, &fakeService{}), http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No active session")
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.Len(t, cookies[0].Value, 36)
}

func TestPageSearch(t *testing.T) {
	rec := do(newTestServer(t, &fakeService{}), http.MethodGet, "/page/accounts?q=silk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Silk Charmeuse")
	assert.NotContains(t, body, "Cotton Twill")
	assert.Contains(t, body, "1 of 1 matching rows (2 total)")
}

func TestPageMissingDataset(t *testing.T) {
	rec := do(newTestServer(t, &fakeService{}), http.MethodGet, "/page/invoices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "was not found")
	assert.Contains(t, rec.Body.String(), "N/A")
}

func TestUnknownPage(t *testing.T) {
	srv := newTestServer(t, &fakeService{})
	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, "/page/payroll", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, "/api/page/payroll", nil).Code)
}

func TestPageJSON(t *testing.T) {
	rec := do(newTestServer(t, &fakeService{}), http.MethodGet, "/api/page/accounts?q=silk", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "accounts", resp.Page)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Matched)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "Silk Charmeuse", resp.Rows[0]["Name"])
	require.Len(t, resp.Metrics, 3)
	assert.Equal(t, MetricResponse{Name: "Total Accounts", Kind: "count", Value: 1, Applicable: true, Display: "1"}, resp.Metrics[0])
	require.NotNil(t, resp.Stats)
	assert.Equal(t, 1, resp.Stats.Count)
	assert.Contains(t, resp.Stats.Quantiles, "25%")
}

func TestChartPNG(t *testing.T) {
	srv := newTestServer(t, &fakeService{})
	rec := do(srv, http.MethodGet, "/page/accounts/chart.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = do(srv, http.MethodGet, "/page/accounts/chart.png?column=current_balance&kind=histogram", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(srv, http.MethodGet, "/page/accounts/chart.png?column=Nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsChart(t *testing.T) {
	rec := do(newTestServer(t, &fakeService{}), http.MethodGet, "/page/accounts/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echarts")
	assert.Contains(t, rec.Body.String(), "Total Balance")
}

func TestAskWithoutSession(t *testing.T) {
	svc := &fakeService{}
	rec := do(newTestServer(t, svc), http.MethodPost, "/analysis/ask", form("total?"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), noSessionText)
	assert.Zero(t, svc.calls)
}

func startSession(t *testing.T, srv http.Handler) *http.Cookie {
	rec := do(srv, http.MethodPost, "/analysis/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestAskStreams(t *testing.T) {
	svc := &fakeService{stream: func() *stream {
		return &stream{frags: []string{"Total ", "is 120.50"}, err: io.EOF}
	}}
	srv := newTestServer(t, svc)
	cookie := startSession(t, srv)

	rec := do(srv, http.MethodPost, "/analysis/ask", form("total?"), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Total is 120.50", rec.Body.String())
	assert.True(t, rec.Flushed)

	rec = do(srv, http.MethodPost, "/analysis/ask", form("  "), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(srv, http.MethodPost, "/analysis/stop", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(srv, http.MethodPost, "/analysis/ask", form("total?"), cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAskPartialFailure(t *testing.T) {
	svc := &fakeService{stream: func() *stream {
		return &stream{frags: []string{"Half an answer"}, err: &models.RemoteError{Op: "run", Message: "stream dropped"}}
	}}
	srv := newTestServer(t, svc)
	cookie := startSession(t, srv)

	rec := do(srv, http.MethodPost, "/analysis/ask", form("total?"), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Half an answer\n\n[error] run: stream dropped\n", rec.Body.String())
}

func TestAskFailsBeforeOutput(t *testing.T) {
	svc := &fakeService{stream: func() *stream {
		return &stream{err: &models.RemoteError{Op: "run", Status: 500, Message: "server error"}}
	}}
	srv := newTestServer(t, svc)
	cookie := startSession(t, srv)

	rec := do(srv, http.MethodPost, "/analysis/ask", form("total?"), cookie)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "run: status 500: server error")
}
