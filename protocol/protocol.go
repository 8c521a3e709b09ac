// Package protocol defines the newline-delimited JSON messages exchanged
// between a supervisor and the worker inside an isolated context.
//
// Host to worker: one Bootstrap, then Task messages.
// Worker to host: Message values. For every request, zero or more messages
// with Continues set precede exactly one terminal message.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is bumped whenever the wire format changes. Host and worker
// must agree on it during the bootstrap handshake.
const Version = 1

// OutLimit caps stdout and stderr of a single job, in bytes.
const OutLimit = 131072

// TaskRunJob is the only task a worker understands.
const TaskRunJob = "job-lang"

// BootstrapComplete is the payload of the worker's handshake reply.
const BootstrapComplete = "bootstrap COMPLETE"

var ErrMalformed = errors.New("malformed message")

// Message is the only unit sent from an isolated context back to the host.
type Message struct {
	Payload   json.RawMessage `json:"payload"`
	IsOk      bool            `json:"is_ok"`
	Continues bool            `json:"continues"`
}

// Task is a host to worker request.
type Task struct {
	Task string          `json:"task"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Bootstrap is the first message on a fresh context. It has no task key.
type Bootstrap struct {
	Protocol int  `json:"protocol"`
	Debug    bool `json:"debug,omitempty"`
	// Limit is the host's per-stream output cap. Zero means OutLimit.
	Limit int `json:"limit,omitempty"`
}

// Chunk is an (stdout, stderr) pair. It travels as a two element JSON array.
type Chunk struct {
	Stdout string
	Stderr string
}

func (c Chunk) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{c.Stdout, c.Stderr})
}

func (c *Chunk) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("%w: chunk: %v", ErrMalformed, err)
	}
	c.Stdout, c.Stderr = pair[0], pair[1]
	return nil
}

// NewChunk builds a continuation message carrying out and err.
func NewChunk(out, err string) Message {
	data, _ := json.Marshal(Chunk{Stdout: out, Stderr: err})
	return Message{Payload: data, IsOk: true, Continues: true}
}

// NewDone builds the terminal success message of a job.
func NewDone() Message {
	data, _ := json.Marshal(Chunk{})
	return Message{Payload: data, IsOk: true}
}

// NewResponse builds a success message with an arbitrary payload.
func NewResponse(payload any, continues bool) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode payload: %w", err)
	}
	return Message{Payload: data, IsOk: true, Continues: continues}, nil
}

// NewError builds a terminal failure message.
func NewError(msg string) Message {
	data, _ := json.Marshal(msg)
	return Message{Payload: data}
}

// Chunk decodes a continuation or success payload.
func (m Message) Chunk() (Chunk, error) {
	var c Chunk
	if len(m.Payload) == 0 {
		return c, nil
	}
	err := json.Unmarshal(m.Payload, &c)
	return c, err
}

// ErrorText decodes a failure payload. Non-string payloads are returned verbatim.
func (m Message) ErrorText() string {
	var s string
	if err := json.Unmarshal(m.Payload, &s); err != nil {
		return string(m.Payload)
	}
	return s
}

// NewTask wraps data for the named task.
func NewTask(name string, data any) (Task, error) {
	t := Task{Task: name}
	if data == nil {
		return t, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Task{}, fmt.Errorf("encode task %s: %w", name, err)
	}
	t.Data = raw
	return t, nil
}
