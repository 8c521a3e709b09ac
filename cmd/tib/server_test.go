package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/caffeineduck/tib/job"
	"github.com/caffeineduck/tib/sandbox"
	"github.com/caffeineduck/tib/supervisor"
)

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	spawner, err := sandbox.NewProcess()
	if err != nil {
		t.Fatalf("failed to create spawner: %v", err)
	}

	s := &server{
		spawner:  spawner,
		registry: job.DefaultRegistry(true),
		supOpts:  []supervisor.Option{supervisor.WithDebugLanguages()},
		jobs:     newJobManager(15 * time.Minute),
		timeout:  30 * time.Second,
		logger:   slog.Default(),
	}
	ts := httptest.NewServer(s.router())
	t.Cleanup(func() {
		ts.Close()
		s.jobs.closeAll()
	})
	return ts
}

func createJob(t *testing.T, ts *httptest.Server, req job.Request) string {
	t.Helper()
	body, _ := json.Marshal(req)
	resp, err := http.Post(ts.URL+"/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}
	var created map[string]string
	json.NewDecoder(resp.Body).Decode(&created)
	if created["id"] == "" {
		t.Fatal("expected job id")
	}
	return created["id"]
}

func getJob(t *testing.T, ts *httptest.Server, id string) (int, jobResponse) {
	t.Helper()
	resp, err := http.Get(ts.URL + "/jobs/" + id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var jr jobResponse
	json.NewDecoder(resp.Body).Decode(&jr)
	return resp.StatusCode, jr
}

// pollJob polls until the job leaves the running state.
func pollJob(t *testing.T, ts *httptest.Server, id string) jobResponse {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		_, jr := getJob(t, ts, id)
		if jr.State != "running" {
			return jr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job still running at deadline")
	return jobResponse{}
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestLanguagesEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/languages")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var langs []languageResponse
	if err := json.NewDecoder(resp.Body).Decode(&langs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	names := make([]string, len(langs))
	for i, l := range langs {
		names[i] = l.Name
	}
	if got := strings.Join(names, ","); got != "///,Deadfish,ExampleLang,S10K,brainfuck" {
		t.Errorf("languages = %s", got)
	}
}

func TestJobLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	id := createJob(t, ts, job.Request{Language: "Deadfish", Program: "iiisodso"})
	jr := pollJob(t, ts, id)

	if jr.ID != id {
		t.Errorf("id = %q, want %q", jr.ID, id)
	}
	if jr.Stdout != "9\n64\n" {
		t.Errorf("stdout = %q", jr.Stdout)
	}
	if jr.Outcome != "finished" || jr.State != "ready" {
		t.Errorf("state %q outcome %q", jr.State, jr.Outcome)
	}
	if !strings.Contains(jr.Summary, "Elapsed time:") {
		t.Errorf("summary = %q", jr.Summary)
	}
}

func TestJobUnknownLanguage(t *testing.T) {
	ts := setupTestServer(t)

	id := createJob(t, ts, job.Request{Language: "Cobol", Program: "x"})
	jr := pollJob(t, ts, id)

	if jr.Outcome != "interpreter crashed" {
		t.Errorf("outcome = %q", jr.Outcome)
	}
	if !strings.Contains(jr.Stderr, "Unknown lang: Cobol") || !strings.Contains(jr.Error, "Cobol") {
		t.Errorf("stderr %q error %q", jr.Stderr, jr.Error)
	}
}

func TestDeleteRunningJob(t *testing.T) {
	ts := setupTestServer(t)

	id := createJob(t, ts, job.Request{Language: "ExampleLang", Program: "looper"})

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/jobs/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var jr jobResponse
	json.NewDecoder(resp.Body).Decode(&jr)
	if jr.Outcome != "aborted" {
		t.Errorf("outcome = %q, want aborted", jr.Outcome)
	}

	if code, _ := getJob(t, ts, id); code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", code)
	}
}

func TestJobNotFound(t *testing.T) {
	ts := setupTestServer(t)

	if code, _ := getJob(t, ts, "nonexistent"); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestCreateJobInvalid(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"missing language", `{"program":"o"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/jobs", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestJobManagerExpire(t *testing.T) {
	spawner, _ := sandbox.NewProcess()
	jm := newJobManager(time.Minute)

	sup := supervisor.New(spawner)
	id := jm.add(&serverJob{sup: sup, cancel: func() {}})

	if n := jm.expire(time.Now()); n != 0 {
		t.Errorf("expired %d fresh jobs", n)
	}
	if n := jm.expire(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Errorf("expired %d jobs, want 1", n)
	}
	if _, ok := jm.get(id); ok {
		t.Error("expired job still present")
	}
	if err := sup.Run(job.Request{Language: "Deadfish"}); err == nil {
		t.Error("expired job's supervisor should be closed")
	}
}

func dialStream(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/jobs/" + id + "/stream"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(20 * time.Second))
	return ws
}

// readStream collects frames until the done frame arrives.
func readStream(t *testing.T, ws *websocket.Conn) (string, jobResponse) {
	t.Helper()
	var stdout strings.Builder
	for {
		var frame streamFrame
		if err := ws.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		stdout.WriteString(frame.Stdout)
		if frame.Done != nil {
			return stdout.String(), *frame.Done
		}
	}
}

func TestStreamJob(t *testing.T) {
	ts := setupTestServer(t)

	id := createJob(t, ts, job.Request{Language: "Deadfish", Program: "iiisodso"})
	stdout, done := readStream(t, dialStream(t, ts, id))

	if stdout != "9\n64\n" {
		t.Errorf("streamed stdout = %q", stdout)
	}
	if done.Outcome != "finished" || done.Stdout != "9\n64\n" {
		t.Errorf("done = %+v", done)
	}
}

func TestStreamJobCancel(t *testing.T) {
	ts := setupTestServer(t)

	id := createJob(t, ts, job.Request{Language: "ExampleLang", Program: "looper"})
	ws := dialStream(t, ts, id)

	if err := ws.WriteJSON(streamCommand{Action: "cancel"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, done := readStream(t, ws)
	if done.Outcome != "aborted" {
		t.Errorf("outcome = %q, want aborted", done.Outcome)
	}
}

func TestStreamJobNotFound(t *testing.T) {
	ts := setupTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/jobs/nonexistent/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 response, got %v", resp)
	}
}
