// Package daemon is the capture job server: it accepts jobs on the local
// socket and runs them on a fixed worker pool. A failing job is logged in
// full and never takes down the listener, other jobs, or the daemon.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/basalt-app/basalt/internal/capture"
	"github.com/basalt-app/basalt/internal/config"
	"github.com/basalt-app/basalt/internal/ipc"
)

// queueDepth is how many accepted jobs may wait behind the running workers
// before submission itself has to wait. Backpressure lives here, in the
// pool, not in the listener.
const queueDepth = 64

type queuedJob struct {
	id  string
	job capture.Job
}

// Server runs the accept loop and the worker pool.
type Server struct {
	cfg      config.Config
	pipeline *capture.Pipeline
	log      *slog.Logger
	validate *validator.Validate
}

// New builds a server around the given pipeline. The config decides the
// socket path, the worker count, and whether shutdown drains in-flight jobs.
func New(cfg config.Config, pipeline *capture.Pipeline, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		pipeline: pipeline,
		log:      log,
		validate: validator.New(),
	}
}

// Run moves the server through Starting -> Listening -> Draining -> Stopped.
// It returns when ctx is cancelled (the termination signal) and, when
// draining is configured, after every in-flight job has finished.
func (s *Server) Run(ctx context.Context) error {
	// Starting: clear any stale socket left by a crashed daemon, then bind.
	path := s.cfg.SocketPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("failed to bind socket %s: %w", path, err)
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 10
	}

	// The signal context stops the listener only. Draining means queued and
	// in-flight jobs run to completion after the signal, so they get their own
	// context; forced mode cancels them with the signal instead.
	jobCtx := ctx
	if s.cfg.DrainOnShutdown {
		jobCtx = context.Background()
	}

	jobs := make(chan queuedJob, queueDepth)
	var pool errgroup.Group
	for i := 0; i < workers; i++ {
		pool.Go(func() error {
			for qj := range jobs {
				s.runJob(jobCtx, qj)
			}
			return nil
		})
	}

	// Closing the listener unblocks the pending Accept so the loop exits.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.log.Info("listener running", "socket", path, "workers", workers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		s.handleConn(conn, jobs)
	}

	// Draining: no new jobs; queued and in-flight work either finishes or is
	// abandoned at exit per configuration.
	s.log.Info("shutdown requested, draining", "drain", s.cfg.DrainOnShutdown)
	close(jobs)
	if s.cfg.DrainOnShutdown {
		pool.Wait()
	}
	os.Remove(path)
	s.log.Info("daemon stopped")
	return nil
}

// handleConn reads exactly one envelope. A malformed or unauthenticated
// payload is logged and dropped; it is never fatal to the listener.
func (s *Server) handleConn(conn net.Conn, jobs chan<- queuedJob) {
	defer conn.Close()

	var envelope ipc.Envelope
	if err := ipc.ReadFrame(conn, &envelope); err != nil {
		s.log.Warn("invalid client payload", "error", err)
		return
	}
	if envelope.Auth != s.cfg.AuthKey {
		s.log.Warn("rejected connection with bad auth key")
		return
	}
	if err := s.validate.Struct(&envelope.Job); err != nil {
		s.log.Warn("invalid job payload", "error", err)
		return
	}

	id := uuid.NewString()
	s.log.Info("job accepted",
		"job_id", id, "kind", envelope.Job.Kind, "content", preview(envelope.Job.Content, 40))

	jobs <- queuedJob{id: id, job: envelope.Job}
}

// preview shortens content for log lines, cutting on a rune boundary so a
// multi-byte character is never split.
func preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// runJob executes one capture job, trapping both errors and panics so a
// failure stays contained to this job.
func (s *Server) runJob(ctx context.Context, qj queuedJob) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", "job_id", qj.id, "panic", r)
		}
	}()

	if err := s.pipeline.Run(ctx, qj.job); err != nil {
		// Terminal by design: no retry, observable only here.
		s.log.Error("job failed", "job_id", qj.id, "kind", qj.job.Kind, "error", err)
		return
	}
	s.log.Info("job finished", "job_id", qj.id)
}
