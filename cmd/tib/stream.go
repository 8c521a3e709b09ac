package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/caffeineduck/tib/supervisor"
)

const streamInterval = 25 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamFrame carries output produced since the previous frame. The last
// frame of a job has Done set.
type streamFrame struct {
	Stdout string       `json:"stdout,omitempty"`
	Stderr string       `json:"stderr,omitempty"`
	Done   *jobResponse `json:"done,omitempty"`
}

type streamCommand struct {
	Action string `json:"action"`
}

// handleStreamJob pushes a job's output over a websocket until it stops
// running. A client message {"action":"cancel"} aborts the job.
func (s *server) handleStreamJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, ok := s.jobs.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var cmd streamCommand
			if err := ws.ReadJSON(&cmd); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("websocket read", "id", id, "error", err)
				}
				return
			}
			if cmd.Action == "cancel" {
				j.sup.Cancel()
			}
		}
	}()

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var sentOut, sentErr int
	for {
		st := j.sup.Poll()
		if sentOut > len(st.Stdout) || sentErr > len(st.Stderr) {
			sentOut, sentErr = 0, 0
		}
		frame := streamFrame{Stdout: st.Stdout[sentOut:], Stderr: st.Stderr[sentErr:]}
		sentOut, sentErr = len(st.Stdout), len(st.Stderr)
		if st.State != supervisor.Running {
			resp := newJobResponse(id, st)
			frame.Done = &resp
		}

		if frame.Stdout != "" || frame.Stderr != "" || frame.Done != nil {
			if err := ws.WriteJSON(frame); err != nil {
				s.logger.Debug("websocket write", "id", id, "error", err)
				return
			}
		}
		if frame.Done != nil {
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}

		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
