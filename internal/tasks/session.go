package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/services"
	"github.com/desertthunder/vgen/internal/shared"
)

// State is the [Session] state.
type State int

const (
	StateIdle State = iota
	StateCreating
	StatePolling
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreating:
		return "creating"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return ""
	}
}

// Terminal reports whether the session needs a reset before the next start.
func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

// errSessionReset is returned by calls whose session was reset while they were in flight.
var errSessionReset = fmt.Errorf("%w: session was reset", shared.ErrInvalidState)

// Snapshot is what a generation dialog renders.
type Snapshot struct {
	State    State
	Request  *models.GenerationRequest
	TaskID   string
	VideoURL string
	CoverURL string
	Error    string
	Err      error
}

// Session drives one generation from prompt to result.
//
// A session is owned by one dialog. Results of calls that were in flight when [Session.Reset] ran are discarded.
type Session struct {
	gateway   services.Gateway
	policy    PollPolicy
	logger    *log.Logger
	progress  chan<- ProgressUpdate
	onCreated func(taskID string)
	onStatus  func(taskID string, status *services.JobStatus)

	mu         sync.Mutex
	generation uint64
	state      State
	request    *models.GenerationRequest
	taskID     string
	videoURL   string
	coverURL   string
	errMsg     string
	err        error
}

// SessionOption configures a [Session].
type SessionOption func(*Session)

// WithPollPolicy overrides [DefaultPollPolicy].
func WithPollPolicy(p PollPolicy) SessionOption {
	return func(s *Session) { s.policy = p.normalized() }
}

// WithProgress sends progress updates to ch without blocking.
func WithProgress(ch chan<- ProgressUpdate) SessionOption {
	return func(s *Session) { s.progress = ch }
}

// WithTaskCreated calls fn with the task id right after the gateway accepts a job.
//
// Hosts use it to register the job in a [Registry] so it stays tracked after the dialog closes.
func WithTaskCreated(fn func(taskID string)) SessionOption {
	return func(s *Session) { s.onCreated = fn }
}

// WithStatusObserver calls fn with every status the poll loop observes.
func WithStatusObserver(fn func(taskID string, status *services.JobStatus)) SessionOption {
	return func(s *Session) { s.onStatus = fn }
}

// WithSessionLogger sets the logger, which defaults to stderr.
func WithSessionLogger(l *log.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession creates an idle [Session] backed by gateway.
func NewSession(gateway services.Gateway, opts ...SessionOption) *Session {
	s := &Session{gateway: gateway, policy: DefaultPollPolicy()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = shared.NewLogger(nil)
	}
	return s
}

// Start validates req and submits it, leaving the session polling on success.
//
// Valid only from idle. Validation failures leave the session idle and never reach the gateway.
func (s *Session) Start(ctx context.Context, req models.GenerationRequest) (string, error) {
	req = req.WithDefaults()

	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return "", fmt.Errorf("%w: cannot start while %s", shared.ErrInvalidState, state)
	}
	if err := req.Validate(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.state = StateCreating
	s.request = &req
	gen := s.generation
	s.mu.Unlock()

	SendProgress(s.progress, creatingUpdate(req))
	taskID, err := s.gateway.Create(ctx, req)

	if err == nil && s.onCreated != nil {
		s.onCreated(taskID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return taskID, errSessionReset
	}
	if err != nil {
		s.failLocked(err)
		return "", err
	}

	s.taskID = taskID
	s.state = StatePolling
	s.logger.Info("generation created", "task_id", taskID, "resolution", req.Resolution, "ratio", req.AspectRatio)
	SendProgress(s.progress, createdUpdate(taskID))
	return taskID, nil
}

// Poll queries the gateway until the job reaches a terminal status.
//
// Valid only while polling the session's own task. Cancelling ctx returns ctx.Err() and leaves the session polling;
// every other failure leaves it failed.
func (s *Session) Poll(ctx context.Context, taskID string) error {
	s.mu.Lock()
	if s.state != StatePolling || taskID == "" || taskID != s.taskID {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot poll %q while %s", shared.ErrInvalidState, taskID, state)
	}
	gen := s.generation
	s.mu.Unlock()

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, s.policy.Delay(attempt-2)); err != nil {
				return err
			}
		}

		status, err := s.gateway.Query(ctx, taskID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return s.fail(gen, err)
		}
		if s.onStatus != nil {
			s.onStatus(taskID, status)
		}
		SendProgress(s.progress, pollUpdate(attempt, s.policy.MaxAttempts, status.Status))

		switch {
		case status.Status.HasResult():
			if status.VideoURL == "" {
				return s.fail(gen, fmt.Errorf("%w: job %s succeeded without a video url", shared.ErrGateway, taskID))
			}
			return s.succeed(gen, status)
		case status.Status == models.StatusFailed:
			return s.fail(gen, fmt.Errorf("%w: %s", shared.ErrGateway, status.Error))
		}
	}

	return s.fail(gen, fmt.Errorf("%w: gave up after %d checks", shared.ErrPollTimeout, s.policy.MaxAttempts))
}

// Run starts req and polls it to completion.
func (s *Session) Run(ctx context.Context, req models.GenerationRequest) (Snapshot, error) {
	taskID, err := s.Start(ctx, req)
	if err != nil {
		return s.Snapshot(), err
	}
	err = s.Poll(ctx, taskID)
	return s.Snapshot(), err
}

// Reset returns the session to idle, clearing the request, task id, result and error.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.state = StateIdle
	s.request = nil
	s.taskID = ""
	s.videoURL = ""
	s.coverURL = ""
	s.errMsg = ""
	s.err = nil
}

// Snapshot returns a copy of the observable session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:    s.state,
		TaskID:   s.taskID,
		VideoURL: s.videoURL,
		CoverURL: s.coverURL,
		Error:    s.errMsg,
		Err:      s.err,
	}
	if s.request != nil {
		req := *s.request
		snap.Request = &req
	}
	return snap
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) succeed(gen uint64, status *services.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return errSessionReset
	}
	s.state = StateSucceeded
	s.videoURL = status.VideoURL
	s.coverURL = status.LastFrameURL
	s.logger.Info("generation succeeded", "task_id", s.taskID, "video_url", s.videoURL)
	SendProgress(s.progress, succeededUpdate(s.videoURL))
	return nil
}

func (s *Session) fail(gen uint64, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return errSessionReset
	}
	s.failLocked(err)
	return err
}

func (s *Session) failLocked(err error) {
	s.state = StateFailed
	s.err = err
	s.errMsg = ErrorMessage(err)
	s.logger.Warn("generation failed", "task_id", s.taskID, "error", err)
	SendProgress(s.progress, failedUpdate(s.errMsg))
}

// ErrorMessage extracts the message worth showing a user, preferring the provider's own text.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *services.StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
