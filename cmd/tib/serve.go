package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/tib/job"
	"github.com/caffeineduck/tib/sandbox"
	"github.com/caffeineduck/tib/supervisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for running programs",
	Long: `Start an HTTP server that runs programs in isolated workers.

Endpoints:
  POST   /jobs          Start a job, returns {"id":"..."}
  GET    /jobs/{id}     Poll a job: output so far, state and outcome
  GET    /jobs/{id}/stream  Websocket of output deltas; send {"action":"cancel"} to abort
  DELETE /jobs/{id}     Abort a job if running and forget it
  GET    /languages     List languages
  GET    /health        Health check

Every job owns its worker. Jobs nobody polled for --ttl are removed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Duration("ttl", 15*time.Minute, "Remove jobs idle for this long")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "Abort jobs running longer than this (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

// serverJob is one submitted job and the supervisor running it.
type serverJob struct {
	sup      *supervisor.Supervisor
	cancel   context.CancelFunc
	lastUsed time.Time
}

type jobManager struct {
	jobs map[string]*serverJob
	mu   sync.Mutex
	ttl  time.Duration
}

func newJobManager(ttl time.Duration) *jobManager {
	return &jobManager{
		jobs: make(map[string]*serverJob),
		ttl:  ttl,
	}
}

func (jm *jobManager) add(j *serverJob) string {
	id := uuid.NewString()
	jm.mu.Lock()
	j.lastUsed = time.Now()
	jm.jobs[id] = j
	jm.mu.Unlock()
	return id
}

func (jm *jobManager) get(id string) (*serverJob, bool) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	j, ok := jm.jobs[id]
	if ok {
		j.lastUsed = time.Now()
	}
	return j, ok
}

func (jm *jobManager) remove(id string) (*serverJob, bool) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	j, ok := jm.jobs[id]
	if ok {
		delete(jm.jobs, id)
	}
	return j, ok
}

// expire closes jobs idle for longer than the TTL.
func (jm *jobManager) expire(now time.Time) int {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	n := 0
	for id, j := range jm.jobs {
		if now.Sub(j.lastUsed) > jm.ttl {
			j.close()
			delete(jm.jobs, id)
			n++
		}
	}
	return n
}

func (jm *jobManager) cleanup(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			jm.expire(now)
		}
	}
}

func (jm *jobManager) closeAll() {
	jm.mu.Lock()
	for id, j := range jm.jobs {
		j.close()
		delete(jm.jobs, id)
	}
	jm.mu.Unlock()
}

func (j *serverJob) close() {
	j.cancel()
	j.sup.Close()
}

type server struct {
	spawner  sandbox.Spawner
	registry *job.Registry
	supOpts  []supervisor.Option
	jobs     *jobManager
	timeout  time.Duration
	logger   *slog.Logger
}

type jobResponse struct {
	ID        string  `json:"id"`
	State     string  `json:"state"`
	Stdout    string  `json:"stdout"`
	Stderr    string  `json:"stderr"`
	Outcome   string  `json:"outcome,omitempty"`
	Summary   string  `json:"summary,omitempty"`
	ElapsedMs float64 `json:"elapsed_ms"`
	Error     string  `json:"error,omitempty"`
}

type languageResponse struct {
	Name     string `json:"name"`
	Homepage string `json:"homepage"`
}

func newJobResponse(id string, st supervisor.Status) jobResponse {
	resp := jobResponse{
		ID:        id,
		State:     st.State.String(),
		Stdout:    st.Stdout,
		Stderr:    st.Stderr,
		Outcome:   st.Outcome.String(),
		Summary:   st.Summary(),
		ElapsedMs: float64(st.Elapsed.Microseconds()) / 1000,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp
}

func (s *server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/jobs", s.handleCreateJob)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Get("/jobs/{id}/stream", s.handleStreamJob)
	r.Delete("/jobs/{id}", s.handleDeleteJob)
	r.Get("/languages", s.handleLanguages)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return r
}

func (s *server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req job.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Language == "" {
		writeError(w, http.StatusBadRequest, "language is required")
		return
	}

	sup := supervisor.New(s.spawner, s.supOpts...)
	if err := sup.Initialize(r.Context()); err != nil {
		sup.Close()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := sup.WaitReady(r.Context()); err != nil {
		sup.Close()
		s.logger.Error("worker failed to start", "error", err)
		writeError(w, http.StatusServiceUnavailable, "worker failed to start")
		return
	}
	if err := sup.Run(req); err != nil {
		sup.Close()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &serverJob{sup: sup, cancel: cancel}
	id := s.jobs.add(j)
	if s.timeout > 0 {
		go s.enforceTimeout(ctx, j)
	}

	s.logger.Debug("job created", "id", id, "lang", req.Language)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// enforceTimeout aborts j if it is still running after the server timeout.
func (s *server) enforceTimeout(ctx context.Context, j *serverJob) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := j.sup.Wait(ctx); errors.Is(err, context.DeadlineExceeded) {
		j.sup.Cancel()
	}
}

func (s *server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, ok := s.jobs.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(id, j.sup.Poll()))
}

func (s *server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, ok := s.jobs.remove(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	j.sup.Cancel()
	st := j.sup.Poll()
	j.close()
	writeJSON(w, http.StatusOK, newJobResponse(id, st))
}

func (s *server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	langs := []languageResponse{}
	for _, lang := range s.registry.All() {
		langs = append(langs, languageResponse{Name: lang.Name(), Homepage: lang.Homepage()})
	}
	writeJSON(w, http.StatusOK, langs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	logger := setupLogger(cmd)
	spawner, release, err := newSpawner(cmd, logger)
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s := &server{
		spawner:  spawner,
		registry: registry(cmd),
		supOpts:  supervisorOpts(cmd, logger),
		jobs:     newJobManager(ttl),
		timeout:  timeout,
		logger:   logger,
	}
	defer s.jobs.closeAll()
	go s.jobs.cleanup(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stderr, "tib server listening on :%d\n", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
