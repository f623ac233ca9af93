package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pivolan/textile_dashboard/domain/models"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o"

	requestTimeout = 60 * time.Second

	instructions = "You are a business analyst for a textile company. " +
		"The attached CSV files hold its accounts, services, customers, invoices, vendors, bills and expenses. " +
		"Use code interpreter to read them and answer with concrete numbers."
)

// Client talks to an OpenAI compatible Assistants v2 API.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		// Streaming runs last as long as the answer; per-call timeouts are
		// applied in do.
		client: &http.Client{},
	}
}

type objectResponse struct {
	ID string `json:"id"`
}

type apiErrorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (c *Client) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if err := c.checkKey("upload"); err != nil {
		return "", err
	}
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("purpose", "assistants"); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	var out objectResponse
	if err := c.do(ctx, "upload "+name, http.MethodPost, "/files", body, w.FormDataContentType(), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) CreateConversation(ctx context.Context, fileIDs []string) (Handle, error) {
	if err := c.checkKey("create assistant"); err != nil {
		return Handle{}, err
	}
	ids := fileIDs
	if ids == nil {
		ids = []string{}
	}
	req := map[string]any{
		"model":        c.model,
		"instructions": instructions,
		"tools":        []map[string]string{{"type": "code_interpreter"}},
		"tool_resources": map[string]any{
			"code_interpreter": map[string]any{"file_ids": ids},
		},
	}
	var assistant objectResponse
	if err := c.doJSON(ctx, "create assistant", http.MethodPost, "/assistants", req, &assistant); err != nil {
		return Handle{}, err
	}

	var thread objectResponse
	if err := c.doJSON(ctx, "create thread", http.MethodPost, "/threads", map[string]any{}, &thread); err != nil {
		_ = c.Release(context.WithoutCancel(ctx), Handle{AssistantID: assistant.ID}, nil)
		return Handle{}, err
	}
	return Handle{AssistantID: assistant.ID, ThreadID: thread.ID}, nil
}

func (c *Client) Post(ctx context.Context, h Handle, question string) error {
	if err := c.checkKey("post message"); err != nil {
		return err
	}
	req := map[string]string{"role": "user", "content": question}
	return c.doJSON(ctx, "post message", http.MethodPost, "/threads/"+h.ThreadID+"/messages", req, nil)
}

func (c *Client) Run(ctx context.Context, h Handle) (Stream, error) {
	const op = "run"
	if err := c.checkKey(op); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]any{"assistant_id": h.AssistantID, "stream": true})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/threads/"+h.ThreadID+"/runs", bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &models.RemoteError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readRemoteError(op, resp)
	}
	return newEventStream(resp.Body), nil
}

func (c *Client) Release(ctx context.Context, h Handle, fileIDs []string) error {
	if c.apiKey == "" {
		return nil
	}
	var errs []error
	if h.ThreadID != "" {
		errs = append(errs, c.doJSON(ctx, "delete thread", http.MethodDelete, "/threads/"+h.ThreadID, nil, nil))
	}
	if h.AssistantID != "" {
		errs = append(errs, c.doJSON(ctx, "delete assistant", http.MethodDelete, "/assistants/"+h.AssistantID, nil, nil))
	}
	for _, id := range fileIDs {
		if id != "" {
			errs = append(errs, c.doJSON(ctx, "delete file", http.MethodDelete, "/files/"+id, nil, nil))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) checkKey(op string) error {
	if c.apiKey == "" {
		return &models.RemoteError{Op: op, Message: "OPENAI_API_KEY is not set", Err: models.ErrMissingCredential}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return &models.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readRemoteError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.RemoteError{Op: op, Message: "failed to decode response", Err: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func readRemoteError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))

	var apiErr apiErrorResponse
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &models.RemoteError{Op: op, Status: resp.StatusCode, Message: msg}
}
