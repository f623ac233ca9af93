package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/pivolan/textile_dashboard/analysis"
	"github.com/pivolan/textile_dashboard/core"
	"github.com/pivolan/textile_dashboard/domain/models"
	"github.com/pivolan/textile_dashboard/pages"
	uuid "github.com/satori/go.uuid"
)

const sessionCookie = "session_id"

const noSessionText = "No active analysis session. Start a session on the home page first."

// session returns the analysis state bound to the session_id cookie,
// issuing a new cookie when the request has none.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *analysis.SessionState {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if id, err := uuid.FromString(c.Value); err == nil {
			return s.states.Get(id.String())
		}
	}
	id := uuid.NewV4().String()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s.states.Get(id)
}

// analysisError maps analysis failures to a status and user text. Remote
// errors are shown verbatim.
func analysisError(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNoActiveSession):
		return http.StatusConflict, noSessionText
	case errors.Is(err, models.ErrSessionBusy):
		return http.StatusConflict, "The previous question is still being answered."
	case errors.Is(err, models.ErrEmptyQuestion):
		return http.StatusBadRequest, "Please enter a question."
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrRemoteService):
		return http.StatusBadGateway, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	state := s.session(w, r)
	if s.analyst == nil {
		sendErrorResponse(w, "analysis is not configured", http.StatusServiceUnavailable)
		return
	}
	if err := s.analyst.Start(r.Context(), state, pages.References()); err != nil {
		core.Warnf(r.Context(), "analysis start: %v", err)
		code, msg := analysisError(err)
		sendErrorResponse(w, msg, code)
		return
	}
	sendJSON(w, map[string]any{"active": true, "files": len(state.FileIDs())})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	state := s.session(w, r)
	if s.analyst != nil {
		if err := s.analyst.Stop(r.Context(), state); err != nil {
			code, msg := analysisError(err)
			sendErrorResponse(w, msg, code)
			return
		}
	}
	sendJSON(w, map[string]any{"active": false})
}

// handleAsk streams the answer as text/plain. A failure after part of the
// answer was written is appended as a final line.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	state := s.session(w, r)
	if s.analyst == nil {
		sendErrorResponse(w, noSessionText, http.StatusConflict)
		return
	}
	ans, err := s.analyst.Ask(r.Context(), state, r.FormValue("question"))
	if err != nil {
		code, msg := analysisError(err)
		sendErrorResponse(w, msg, code)
		return
	}
	defer ans.Close()

	first, err := ans.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		core.Errorf(r.Context(), "analysis ask: %v", err)
		code, msg := analysisError(err)
		sendErrorResponse(w, msg, code)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	frag := first
	for err == nil {
		if _, werr := io.WriteString(w, frag); werr != nil {
			core.Warnf(r.Context(), "analysis ask: client gone: %v", werr)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		frag, err = ans.Next()
	}
	if !errors.Is(err, io.EOF) {
		core.Errorf(r.Context(), "analysis ask: stream failed after %d bytes: %v", len(ans.Text()), err)
		io.WriteString(w, "\n\n[error] "+err.Error()+"\n")
	}
}
