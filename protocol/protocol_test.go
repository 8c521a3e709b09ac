package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMessageWireShape(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"continuation", NewChunk("out", "err"), `{"payload":["out","err"],"is_ok":true,"continues":true}`},
		{"done", NewDone(), `{"payload":["",""],"is_ok":true,"continues":false}`},
		{"error", NewError("Unknown lang: x"), `{"payload":"Unknown lang: x","is_ok":false,"continues":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("json = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestMessageDecoding(t *testing.T) {
	var msg Message
	if err := json.Unmarshal([]byte(`{"payload":["a\nb","<c>"],"is_ok":true,"continues":true}`), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	c, err := msg.Chunk()
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if c.Stdout != "a\nb" || c.Stderr != "<c>" {
		t.Errorf("chunk = %+v", c)
	}

	if got := NewError("bad").ErrorText(); got != "bad" {
		t.Errorf("error text = %q", got)
	}
	if got := (Message{Payload: json.RawMessage(`42`)}).ErrorText(); got != "42" {
		t.Errorf("non-string error text = %q", got)
	}
}

func TestChunkRejectsWrongShape(t *testing.T) {
	msg := Message{Payload: json.RawMessage(`{"stdout":"x"}`), IsOk: true, Continues: true}
	if _, err := msg.Chunk(); !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestNewTask(t *testing.T) {
	task, err := NewTask(TaskRunJob, map[string]string{"language": "Deadfish"})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	data, _ := json.Marshal(task)
	if !strings.Contains(string(data), `"task":"job-lang"`) || !strings.Contains(string(data), `"language":"Deadfish"`) {
		t.Errorf("json = %s", data)
	}

	bare, _ := NewTask("ping", nil)
	data, _ = json.Marshal(bare)
	if strings.Contains(string(data), "data") {
		t.Errorf("data should be omitted: %s", data)
	}
}

func TestBootstrapHasNoTaskKey(t *testing.T) {
	data, _ := json.Marshal(Bootstrap{Protocol: Version})
	if strings.Contains(string(data), "task") {
		t.Errorf("bootstrap carries a task key: %s", data)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Encode(NewChunk("<html>", ""))
	buf.WriteString("\n\n")
	enc.Encode(NewDone())

	dec := NewDecoder(&buf)

	var first Message
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c, _ := first.Chunk(); c.Stdout != "<html>" {
		t.Errorf("html should survive unescaped, got %q", c.Stdout)
	}

	var second Message
	if err := dec.Decode(&second); err != nil {
		t.Fatalf("decode after blank lines: %v", err)
	}
	if second.Continues {
		t.Error("second message should be terminal")
	}

	if err := dec.Decode(&second); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestDecoderLargeLine(t *testing.T) {
	var buf bytes.Buffer
	NewEncoder(&buf).Encode(NewChunk(strings.Repeat("S", 2*OutLimit), ""))

	var msg Message
	if err := NewDecoder(&buf).Decode(&msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	c, _ := msg.Chunk()
	if len(c.Stdout) != 2*OutLimit {
		t.Errorf("stdout len = %d", len(c.Stdout))
	}
}

func TestDecoderMalformed(t *testing.T) {
	var msg Message
	err := NewDecoder(strings.NewReader("{not json}\n")).Decode(&msg)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}
