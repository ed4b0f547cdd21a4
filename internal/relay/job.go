package relay

import (
	"context"
	"time"
)

// Kind is the media type a relay produces.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// State is the lifecycle state of a generation job.
type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Image is an attached reference image.
type Image struct {
	Data     []byte
	MIMEType string
}

// Request is a single generation request coming from a chat.
type Request struct {
	ChatID    int64
	Prompt    string
	Reference *Image
}

// Job tracks one request from submission to its terminal outcome.
type Job struct {
	RequestID   string    `json:"request_id"`
	ID          string    `json:"job_id,omitempty"`
	ChatID      int64     `json:"chat_id"`
	Kind        Kind      `json:"kind"`
	Prompt      string    `json:"prompt"`
	UsedPrompt  string    `json:"used_prompt,omitempty"`
	State       State     `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	Polls       int       `json:"polls"`
	SubmittedAt time.Time `json:"submitted_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// PollStatus is the provider-side status of a job.
type PollStatus string

const (
	PollPending   PollStatus = "pending"
	PollSucceeded PollStatus = "succeeded"
	PollFailed    PollStatus = "failed"
)

// PollResult is what a provider reports for a job.
type PollResult struct {
	Status   PollStatus
	Data     []byte
	MIMEType string
	// Reason is the provider's explanation for a failure, if any.
	Reason string
	// Blocked marks content-safety rejections.
	Blocked bool
}

// MessageRef identifies a sent chat message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	SendPhoto(ctx context.Context, chatID int64, data []byte, caption string) error
	SendVideo(ctx context.Context, chatID int64, data []byte, caption string) error
}

// Provider submits and polls generation jobs.
type Provider interface {
	Submit(ctx context.Context, prompt string, ref *Image) (string, error)
	Poll(ctx context.Context, jobID string) (*PollResult, error)
}

// Enhancer rewrites a prompt into a richer generation instruction.
type Enhancer interface {
	Enhance(ctx context.Context, prompt, instruction string) (string, error)
}

// Journal keeps a record of finished jobs.
type Journal interface {
	RecordJob(ctx context.Context, job Job) error
}
