package analysis

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/pivolan/textile_dashboard/domain/models"
)

const maxEventSize = 1 << 20

// eventStream reads a run's Server-Sent Events and yields message text.
type eventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	err     error
}

func newEventStream(body io.ReadCloser) *eventStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	return &eventStream{body: body, scanner: sc}
}

type messageDelta struct {
	Delta struct {
		Content []struct {
			Type string `json:"type"`
			Text *struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"delta"`
}

type runFailure struct {
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
	Message string `json:"message"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *eventStream) Next() (string, error) {
	for s.err == nil {
		event, data, ok := s.readEvent()
		if !ok {
			break
		}
		text, err := s.dispatch(event, data)
		if err != nil {
			s.err = err
			break
		}
		if text != "" {
			return text, nil
		}
	}
	return "", s.err
}

// readEvent collects lines up to the next blank line.
func (s *eventStream) readEvent() (event string, data string, ok bool) {
	var lines []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if event == "" && len(lines) == 0 {
				continue
			}
			return event, strings.Join(lines, "\n"), true
		}
		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			lines = append(lines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := s.scanner.Err(); err != nil {
		s.err = &models.RemoteError{Op: "run", Message: "stream read failed", Err: err}
		return "", "", false
	}
	if event != "" || len(lines) > 0 {
		return event, strings.Join(lines, "\n"), true
	}
	s.err = &models.RemoteError{Op: "run", Message: "stream ended before completion", Err: io.ErrUnexpectedEOF}
	return "", "", false
}

func (s *eventStream) dispatch(event, data string) (string, error) {
	switch event {
	case "thread.message.delta":
		var d messageDelta
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return "", &models.RemoteError{Op: "run", Message: "bad message delta", Err: err}
		}
		var b strings.Builder
		for _, c := range d.Delta.Content {
			if c.Text != nil {
				b.WriteString(c.Text.Value)
			}
		}
		return b.String(), nil
	case "thread.run.completed", "done":
		return "", io.EOF
	case "thread.run.failed", "thread.run.cancelled", "thread.run.expired", "thread.run.incomplete", "error":
		return "", failure(event, data)
	}
	if event == "" && data == "[DONE]" {
		return "", io.EOF
	}
	return "", nil
}

func failure(event, data string) error {
	msg := event
	var f runFailure
	if json.Unmarshal([]byte(data), &f) == nil {
		switch {
		case f.LastError != nil && f.LastError.Message != "":
			msg = f.LastError.Message
		case f.Error != nil && f.Error.Message != "":
			msg = f.Error.Message
		case f.Message != "":
			msg = f.Message
		}
	}
	return &models.RemoteError{Op: "run", Message: msg}
}

func (s *eventStream) Close() error {
	if s.err == nil {
		s.err = errors.New("stream closed")
	}
	return s.body.Close()
}
