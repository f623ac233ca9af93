package analysis

import "context"

// Handle identifies a remote conversation.
type Handle struct {
	AssistantID string `json:"assistant_id"`
	ThreadID    string `json:"thread_id"`
}

func (h Handle) IsZero() bool {
	return h.AssistantID == "" && h.ThreadID == ""
}

// Stream yields answer fragments of one run. Next returns io.EOF when the
// remote side signals completion.
type Stream interface {
	Next() (string, error)
	Close() error
}

// Service is the hosted analysis backend.
type Service interface {
	// Upload stores a reference file and returns its remote id.
	Upload(ctx context.Context, name string, data []byte) (string, error)
	// CreateConversation opens a conversation bound to the uploaded files.
	CreateConversation(ctx context.Context, fileIDs []string) (Handle, error)
	// Post appends a user question to the conversation.
	Post(ctx context.Context, h Handle, question string) error
	// Run starts answering the pending question and streams the reply.
	Run(ctx context.Context, h Handle) (Stream, error)
	// Release deletes the conversation and files. Zero handles and empty
	// ids are skipped.
	Release(ctx context.Context, h Handle, fileIDs []string) error
}
