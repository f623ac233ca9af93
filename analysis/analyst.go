package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pivolan/textile_dashboard/core"
	"github.com/pivolan/textile_dashboard/dataset"
	"github.com/pivolan/textile_dashboard/domain/models"
	"golang.org/x/time/rate"
)

// TableLoader is the part of dataset.Loader the analyst needs.
type TableLoader interface {
	Load(ctx context.Context, name string) (*models.Table, error)
}

// Analyst drives analysis sessions against a Service.
type Analyst struct {
	service Service
	loader  TableLoader
	limiter *rate.Limiter
}

// NewAnalyst throttles asks to perMinute across all sessions. perMinute <= 0
// disables throttling.
func NewAnalyst(service Service, loader TableLoader, perMinute int) *Analyst {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return &Analyst{service: service, loader: loader, limiter: limiter}
}

// Start uploads the reference datasets and opens a conversation. Missing
// datasets are skipped; Start fails with models.ErrNotFound when none
// exist. An active state is left as is.
func (a *Analyst) Start(ctx context.Context, state *SessionState, references []string) error {
	if state.Active() {
		return nil
	}
	if err := state.acquire(); err != nil {
		return err
	}
	defer state.release()

	var fileIDs []string
	fail := func(err error) error {
		a.releaseQuietly(ctx, Handle{}, fileIDs)
		return err
	}

	for _, name := range references {
		table, err := a.loader.Load(ctx, name)
		if errors.Is(err, models.ErrNotFound) {
			core.Warnf(ctx, "analysis %s: reference %s skipped: %v", state.ID, name, err)
			continue
		}
		if err != nil {
			return fail(err)
		}

		buf := &bytes.Buffer{}
		if err := dataset.WriteCSV(buf, table); err != nil {
			return fail(fmt.Errorf("serialize %s: %w", name, err))
		}
		id, err := a.service.Upload(ctx, name+".csv", buf.Bytes())
		if err != nil {
			core.Errorf(ctx, "analysis %s: upload %s: %v", state.ID, name, err)
			return fail(err)
		}
		fileIDs = append(fileIDs, id)
	}
	if len(fileIDs) == 0 {
		return fmt.Errorf("no reference datasets: %w", models.ErrNotFound)
	}

	h, err := a.service.CreateConversation(ctx, fileIDs)
	if err != nil {
		core.Errorf(ctx, "analysis %s: create conversation: %v", state.ID, err)
		return fail(err)
	}
	state.activate(h, fileIDs)
	core.Infof(ctx, "analysis %s: started with %d files", state.ID, len(fileIDs))
	return nil
}

// Ask posts question and returns its streamed answer. The session stays
// busy until the answer is drained or closed.
func (a *Analyst) Ask(ctx context.Context, state *SessionState, question string) (*Answer, error) {
	if !state.Active() {
		return nil, models.ErrNoActiveSession
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, models.ErrEmptyQuestion
	}
	if err := state.acquire(); err != nil {
		return nil, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		state.release()
		return nil, err
	}

	h := state.Handle()
	if err := a.service.Post(ctx, h, question); err != nil {
		state.release()
		return nil, err
	}
	core.Debugf(ctx, "analysis %s: question posted", state.ID)

	return &Answer{
		ctx: ctx,
		open: func(ctx context.Context) (Stream, error) {
			return a.service.Run(ctx, h)
		},
		done: state.release,
	}, nil
}

// Stop releases the remote conversation and files and resets state.
// Release failures are logged, not returned.
func (a *Analyst) Stop(ctx context.Context, state *SessionState) error {
	if !state.Active() {
		return nil
	}
	if err := state.acquire(); err != nil {
		return err
	}
	defer state.release()

	h, ids := state.reset()
	a.releaseQuietly(ctx, h, ids)
	core.Infof(ctx, "analysis %s: stopped", state.ID)
	return nil
}

func (a *Analyst) releaseQuietly(ctx context.Context, h Handle, fileIDs []string) {
	if h.IsZero() && len(fileIDs) == 0 {
		return
	}
	if err := a.service.Release(context.WithoutCancel(ctx), h, fileIDs); err != nil {
		core.Warnf(ctx, "analysis: release failed: %v", err)
	}
}

// Answer is a finite, single-use sequence of answer fragments. It is not
// safe for concurrent use.
type Answer struct {
	ctx  context.Context
	open func(context.Context) (Stream, error)
	done func()

	stream    Stream
	retried   bool
	delivered int
	text      strings.Builder
	err       error
	once      sync.Once
}

// Next returns the next fragment, or io.EOF once the answer is complete.
// If the run fails before the first fragment it is reopened once.
func (a *Answer) Next() (string, error) {
	if a.err != nil {
		return "", a.err
	}
	for {
		if a.stream == nil {
			s, err := a.open(a.ctx)
			if err != nil {
				if a.retry(err) {
					continue
				}
				return "", a.finish(err)
			}
			a.stream = s
		}

		frag, err := a.stream.Next()
		if err == nil {
			if frag == "" {
				continue
			}
			a.delivered++
			a.text.WriteString(frag)
			return frag, nil
		}
		if errors.Is(err, io.EOF) {
			return "", a.finish(io.EOF)
		}

		_ = a.stream.Close()
		a.stream = nil
		if a.retry(err) {
			continue
		}
		return "", a.finish(err)
	}
}

func (a *Answer) retry(err error) bool {
	if a.retried || a.delivered > 0 || a.ctx.Err() != nil || !retryable(err) {
		return false
	}
	a.retried = true
	core.Warnf(a.ctx, "analysis: run failed before first fragment, retrying: %v", err)
	return true
}

// retryable accepts transport failures, 5xx responses and broken streams.
// Rejected requests and a missing key fail the same way a second time.
func retryable(err error) bool {
	if errors.Is(err, models.ErrMissingCredential) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var remote *models.RemoteError
	if errors.As(err, &remote) && remote.Status >= 400 && remote.Status < 500 {
		return false
	}
	return true
}

func (a *Answer) finish(err error) error {
	if ctxErr := a.ctx.Err(); ctxErr != nil && !errors.Is(err, io.EOF) {
		err = ctxErr
	}
	a.err = err
	if a.stream != nil {
		_ = a.stream.Close()
		a.stream = nil
	}
	a.once.Do(a.done)
	return err
}

// Text returns the fragments delivered so far.
func (a *Answer) Text() string {
	return a.text.String()
}

// Retried reports whether the run was reopened.
func (a *Answer) Retried() bool {
	return a.retried
}

// WriteTo drains the answer into w.
func (a *Answer) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for {
		frag, err := a.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		m, err := io.WriteString(w, frag)
		n += int64(m)
		if err != nil {
			a.Close()
			return n, err
		}
	}
}

// Close abandons the answer and frees the session for the next question.
func (a *Answer) Close() error {
	if a.err == nil {
		a.finish(io.EOF)
	}
	return nil
}
