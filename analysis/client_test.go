package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pivolan/textile_dashboard/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runEvents = `event: thread.run.created
data: {"id":"run_1","status":"queued"}

event: thread.message.delta
data: {"id":"msg_1","delta":{"content":[{"index":0,"type":"text","text":{"value":"Total "}}]}}

: keep-alive

event: thread.message.delta
data: {"id":"msg_1","delta":{"content":[{"index":0,"type":"text","text":{"value":"is 120.50"}}]}}

event: thread.run.completed
data: {"id":"run_1","status":"completed"}

event: done
data: [DONE]

`

type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	events   string
	status   int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	status, events := f.status, f.events
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer sk-test" || r.Header.Get("OpenAI-Beta") != "assistants=v2" {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":{"message":"The server had an error"}}`)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/files":
		if r.FormValue("purpose") != "assistants" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f, h, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.Close()
		fmt.Fprintf(w, `{"id":"file-%s"}`, strings.TrimSuffix(h.Filename, ".csv"))
	case r.Method == http.MethodPost && r.URL.Path == "/v1/assistants":
		var body struct {
			Tools         []map[string]string `json:"tools"`
			ToolResources struct {
				CodeInterpreter struct {
					FileIDs []string `json:"file_ids"`
				} `json:"code_interpreter"`
			} `json:"tool_resources"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Tools) != 1 || body.Tools[0]["type"] != "code_interpreter" || len(body.ToolResources.CodeInterpreter.FileIDs) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"id":"asst_1"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/threads":
		fmt.Fprint(w, `{"id":"thread_1"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/threads/thread_1/messages":
		fmt.Fprint(w, `{"id":"msg_q"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/threads/thread_1/runs":
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, events)
	case r.Method == http.MethodDelete:
		fmt.Fprint(w, `{"deleted":true}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, api *fakeAPI, key string) *Client {
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/v1", key, "")
}

func drain(t *testing.T, s Stream) ([]string, error) {
	t.Helper()
	var out []string
	for {
		frag, err := s.Next()
		if err != nil {
			return out, err
		}
		out = append(out, frag)
	}
}

func TestClientConversation(t *testing.T) {
	api := &fakeAPI{events: runEvents}
	c := newTestClient(t, api, "sk-test")
	ctx := context.Background()

	id, err := c.Upload(ctx, "accounts.csv", []byte("Name\nCotton\n"))
	require.NoError(t, err)
	assert.Equal(t, "file-accounts", id)

	h, err := c.CreateConversation(ctx, []string{id})
	require.NoError(t, err)
	assert.Equal(t, Handle{AssistantID: "asst_1", ThreadID: "thread_1"}, h)

	require.NoError(t, c.Post(ctx, h, "what is the total?"))

	s, err := c.Run(ctx, h)
	require.NoError(t, err)
	frags, err := drain(t, s)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, []string{"Total ", "is 120.50"}, frags)
	require.NoError(t, s.Close())

	require.NoError(t, c.Release(ctx, h, []string{id}))
	assert.Equal(t, []string{
		"POST /v1/files",
		"POST /v1/assistants",
		"POST /v1/threads",
		"POST /v1/threads/thread_1/messages",
		"POST /v1/threads/thread_1/runs",
		"DELETE /v1/threads/thread_1",
		"DELETE /v1/assistants/asst_1",
		"DELETE /v1/files/file-accounts",
	}, api.requests)
}

func TestClientMissingKey(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api, "")

	_, err := c.Upload(context.Background(), "accounts.csv", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrMissingCredential))
	assert.True(t, errors.Is(err, models.ErrRemoteService))
	assert.Empty(t, api.requests)
}

func TestClientRemoteError(t *testing.T) {
	c := newTestClient(t, &fakeAPI{}, "sk-wrong")

	_, err := c.Upload(context.Background(), "accounts.csv", []byte("a\n1\n"))
	var remote *models.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusUnauthorized, remote.Status)
	assert.Equal(t, "Incorrect API key provided", remote.Message)
	assert.Equal(t, "upload accounts.csv: status 401: Incorrect API key provided", err.Error())

	api := &fakeAPI{status: http.StatusInternalServerError}
	c = newTestClient(t, api, "sk-test")
	_, err = c.Run(context.Background(), Handle{AssistantID: "asst_1", ThreadID: "thread_1"})
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusInternalServerError, remote.Status)
}

func TestEventStreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		events string
		frags  []string
		msg    string
	}{
		{
			name: "run failed",
			events: "event: thread.message.delta\ndata: {\"delta\":{\"content\":[{\"type\":\"text\",\"text\":{\"value\":\"Part\"}}]}}\n\n" +
				"event: thread.run.failed\ndata: {\"status\":\"failed\",\"last_error\":{\"code\":\"server_error\",\"message\":\"Sorry, something went wrong.\"}}\n\n",
			frags: []string{"Part"},
			msg:   "Sorry, something went wrong.",
		},
		{
			name:   "error event",
			events: "event: error\ndata: {\"message\":\"rate limited\"}\n\n",
			msg:    "rate limited",
		},
		{
			name:   "truncated",
			events: "event: thread.message.delta\ndata: {\"delta\":{\"content\":[{\"type\":\"text\",\"text\":{\"value\":\"Half\"}}]}}\n\n",
			frags:  []string{"Half"},
			msg:    "stream ended before completion",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newEventStream(io.NopCloser(strings.NewReader(tt.events)))
			frags, err := drain(t, s)
			assert.Equal(t, tt.frags, frags)
			var remote *models.RemoteError
			require.True(t, errors.As(err, &remote))
			assert.Equal(t, tt.msg, remote.Message)
		})
	}
}

func TestAnalystOverHTTP(t *testing.T) {
	api := &fakeAPI{events: runEvents}
	c := newTestClient(t, api, "sk-test")
	a := NewAnalyst(c, testLoader(t), 60)
	state := NewSessionState("web")

	require.NoError(t, a.Start(context.Background(), state, []string{"accounts"}))
	ans, err := a.Ask(context.Background(), state, "what is the total?")
	require.NoError(t, err)

	sb := &strings.Builder{}
	_, err = ans.WriteTo(sb)
	require.NoError(t, err)
	assert.Equal(t, "Total is 120.50", sb.String())

	require.NoError(t, a.Stop(context.Background(), state))
	assert.False(t, state.Active())
}
