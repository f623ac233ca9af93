package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pivolan/textile_dashboard/analysis"
	"github.com/pivolan/textile_dashboard/core"
	"github.com/pivolan/textile_dashboard/pages"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// maxRows caps the rows rendered into an HTML page.
const maxRows = 500

var reqId int32

// Server is the HTTP dashboard.
type Server struct {
	loader  pages.TableLoader
	analyst *analysis.Analyst
	states  *analysis.States
	mux     *http.ServeMux
}

func NewServer(loader pages.TableLoader, analyst *analysis.Analyst, states *analysis.States) *Server {
	if states == nil {
		states = analysis.NewStates()
	}
	s := &Server{
		loader:  loader,
		analyst: analyst,
		states:  states,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /page/{name}", s.handlePage)
	s.mux.HandleFunc("GET /api/page/{name}", s.handlePageJSON)
	s.mux.HandleFunc("GET /page/{name}/chart.png", s.handleChart)
	s.mux.HandleFunc("GET /page/{name}/metrics", s.handleMetricsChart)
	s.mux.HandleFunc("POST /analysis/start", s.handleStart)
	s.mux.HandleFunc("POST /analysis/stop", s.handleStop)
	s.mux.HandleFunc("POST /analysis/ask", s.handleAsk)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// ServeHTTP tags each request with a req-N logger.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := core.WithDefaultLogger(r.Context(), fmt.Sprintf("req-%d", atomic.AddInt32(&reqId, 1)))
	addCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	start := time.Now()
	s.mux.ServeHTTP(w, r.WithContext(ctx))
	core.Debugf(ctx, "%s %s done in %s", r.Method, r.URL.Path, time.Since(start))
}

func addCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// ErrorResponse is the JSON body of failed API calls.
type ErrorResponse struct {
	Error string `json:"error"`
}

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

func sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		core.Errorf(r.Context(), "render %s: %v", name, err)
	}
}
