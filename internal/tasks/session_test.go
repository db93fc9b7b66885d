package tasks

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/services"
	"github.com/desertthunder/vgen/internal/shared"
	tu "github.com/desertthunder/vgen/internal/testing"
)

func fastPolicy(attempts int) PollPolicy {
	return PollPolicy{Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2, MaxAttempts: attempts}
}

func newTestSession(gw services.Gateway, opts ...SessionOption) *Session {
	opts = append([]SessionOption{WithPollPolicy(fastPolicy(5)), WithSessionLogger(log.New(io.Discard))}, opts...)
	return NewSession(gw, opts...)
}

func catSurfing() models.GenerationRequest {
	return models.GenerationRequest{
		Prompt:      "a cat surfing",
		Resolution:  models.Resolution720p,
		AspectRatio: models.Ratio16x9,
		Duration:    5,
		FPS:         models.FPS16,
	}
}

func TestSession(t *testing.T) {
	t.Run("a successful job ends succeeded with its video url", func(t *testing.T) {
		gw := &tu.MockGateway{
			CreateID: "t1",
			Statuses: []*services.JobStatus{
				{Status: models.StatusQueued},
				{Status: models.StatusRunning},
				{Status: models.StatusSucceeded, VideoURL: "https://x/v.mp4", LastFrameURL: "https://x/f.jpg"},
			},
		}
		s := newTestSession(gw)

		snap, err := s.Run(context.Background(), catSurfing())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if snap.State != StateSucceeded {
			t.Errorf("expected succeeded, got %s", snap.State)
		}
		if snap.VideoURL != "https://x/v.mp4" || snap.CoverURL != "https://x/f.jpg" {
			t.Errorf("unexpected result %+v", snap)
		}
		if snap.TaskID != "t1" || snap.Error != "" {
			t.Errorf("unexpected snapshot %+v", snap)
		}
		if gw.QueryCalls != 3 {
			t.Errorf("expected 3 queries, got %d", gw.QueryCalls)
		}
	})

	t.Run("an empty prompt fails validation without calling the gateway", func(t *testing.T) {
		gw := &tu.MockGateway{}
		s := newTestSession(gw)

		_, err := s.Start(context.Background(), models.GenerationRequest{Prompt: ""})
		if !errors.Is(err, shared.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if gw.CreateCalls != 0 {
			t.Errorf("expected no gateway call, got %d", gw.CreateCalls)
		}
		if s.State() != StateIdle {
			t.Errorf("expected idle after validation failure, got %s", s.State())
		}
	})

	t.Run("a create error fails the session with the gateway message", func(t *testing.T) {
		gw := &tu.MockGateway{CreateErr: &services.StatusError{StatusCode: 422, Message: "content policy"}}
		s := newTestSession(gw)

		_, err := s.Start(context.Background(), catSurfing())
		if !errors.Is(err, shared.ErrGateway) {
			t.Fatalf("expected ErrGateway, got %v", err)
		}
		snap := s.Snapshot()
		if snap.State != StateFailed || snap.Error != "content policy" {
			t.Errorf("unexpected snapshot %+v", snap)
		}
		if gw.CreateCalls != 1 {
			t.Errorf("expected exactly one create call, got %d", gw.CreateCalls)
		}
	})

	t.Run("a failed job ends failed with a message", func(t *testing.T) {
		gw := &tu.MockGateway{Statuses: []*services.JobStatus{{Status: models.StatusFailed, Error: "nsfw"}}}
		s := newTestSession(gw)

		snap, err := s.Run(context.Background(), catSurfing())
		if !errors.Is(err, shared.ErrGateway) {
			t.Fatalf("expected ErrGateway, got %v", err)
		}
		if snap.State != StateFailed || snap.Error == "" {
			t.Errorf("expected failed with message, got %+v", snap)
		}
	})

	t.Run("a query error fails the session", func(t *testing.T) {
		gw := &tu.MockGateway{QueryErr: errors.New("connection reset")}
		s := newTestSession(gw)

		snap, err := s.Run(context.Background(), catSurfing())
		if err == nil || snap.State != StateFailed || snap.Error != "connection reset" {
			t.Errorf("unexpected result %+v, %v", snap, err)
		}
	})

	t.Run("succeeded without a video url is malformed", func(t *testing.T) {
		gw := &tu.MockGateway{Statuses: []*services.JobStatus{{Status: models.StatusSucceeded}}}
		s := newTestSession(gw)

		snap, err := s.Run(context.Background(), catSurfing())
		if !errors.Is(err, shared.ErrGateway) || snap.State != StateFailed {
			t.Errorf("expected gateway failure, got %+v, %v", snap, err)
		}
	})

	t.Run("polling gives up after max attempts", func(t *testing.T) {
		gw := &tu.MockGateway{Statuses: []*services.JobStatus{{Status: models.StatusRunning}}}
		s := newTestSession(gw, WithPollPolicy(fastPolicy(3)))

		snap, err := s.Run(context.Background(), catSurfing())
		if !errors.Is(err, shared.ErrPollTimeout) {
			t.Fatalf("expected ErrPollTimeout, got %v", err)
		}
		if snap.State != StateFailed {
			t.Errorf("expected failed, got %s", snap.State)
		}
		if gw.QueryCalls != 3 {
			t.Errorf("expected 3 queries, got %d", gw.QueryCalls)
		}
	})

	t.Run("cancelling the context stops polling and leaves the session polling", func(t *testing.T) {
		gw := &tu.MockGateway{Statuses: []*services.JobStatus{{Status: models.StatusRunning}}}
		s := newTestSession(gw, WithPollPolicy(PollPolicy{Initial: time.Hour, Max: time.Hour, Multiplier: 1, MaxAttempts: 10}))

		taskID, err := s.Start(context.Background(), catSurfing())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Poll(ctx, taskID) }()

		time.Sleep(10 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Poll did not return after cancel")
		}
		if s.State() != StatePolling {
			t.Errorf("expected polling after cancel, got %s", s.State())
		}
	})

	t.Run("start is rejected unless idle", func(t *testing.T) {
		gw := &tu.MockGateway{}
		s := newTestSession(gw)

		if _, err := s.Start(context.Background(), catSurfing()); err != nil {
			t.Fatalf("first Start() error = %v", err)
		}
		if _, err := s.Start(context.Background(), catSurfing()); !errors.Is(err, shared.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
		if gw.CreateCalls != 1 {
			t.Errorf("expected one create call, got %d", gw.CreateCalls)
		}
	})

	t.Run("poll is rejected for another task", func(t *testing.T) {
		s := newTestSession(&tu.MockGateway{CreateID: "t1"})
		if err := s.Poll(context.Background(), "t1"); !errors.Is(err, shared.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState while idle, got %v", err)
		}

		s.Start(context.Background(), catSurfing())
		if err := s.Poll(context.Background(), "other"); !errors.Is(err, shared.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState for foreign task, got %v", err)
		}
	})

	t.Run("reset after a terminal state looks like a fresh session", func(t *testing.T) {
		gw := &tu.MockGateway{Statuses: []*services.JobStatus{{Status: models.StatusSucceeded, VideoURL: "u"}}}
		s := newTestSession(gw)
		fresh := newTestSession(gw).Snapshot()

		if _, err := s.Run(context.Background(), catSurfing()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		s.Reset()

		snap := s.Snapshot()
		if snap.State != fresh.State || snap.TaskID != "" || snap.VideoURL != "" || snap.CoverURL != "" ||
			snap.Error != "" || snap.Err != nil || snap.Request != nil {
			t.Errorf("expected fresh snapshot, got %+v", snap)
		}

		gw.Statuses = []*services.JobStatus{{Status: models.StatusFailed, Error: "x"}}
		if _, err := s.Run(context.Background(), catSurfing()); err == nil {
			t.Fatal("expected failure on second run")
		}
		s.Reset()
		if snap := s.Snapshot(); snap.State != StateIdle || snap.Error != "" {
			t.Errorf("expected idle after reset, got %+v", snap)
		}
	})

	t.Run("results of a poll that outlives a reset are discarded", func(t *testing.T) {
		gw := &tu.MockGateway{Statuses: []*services.JobStatus{{Status: models.StatusRunning}}}
		s := newTestSession(gw, WithPollPolicy(PollPolicy{Initial: 20 * time.Millisecond, Max: 20 * time.Millisecond, Multiplier: 1, MaxAttempts: 3}))

		taskID, _ := s.Start(context.Background(), catSurfing())
		done := make(chan error, 1)
		go func() { done <- s.Poll(context.Background(), taskID) }()

		time.Sleep(5 * time.Millisecond)
		s.Reset()

		if err := <-done; !errors.Is(err, shared.ErrInvalidState) {
			t.Errorf("expected reset error, got %v", err)
		}
		if snap := s.Snapshot(); snap.State != StateIdle || snap.Error != "" {
			t.Errorf("stale poll leaked into the session: %+v", snap)
		}
	})

	t.Run("the created hook sees the task id", func(t *testing.T) {
		var created string
		var observed []models.TaskStatus
		gw := &tu.MockGateway{CreateID: "t9", Statuses: []*services.JobStatus{
			{Status: models.StatusRunning},
			{Status: models.StatusSucceeded, VideoURL: "u"},
		}}
		s := newTestSession(gw,
			WithTaskCreated(func(id string) { created = id }),
			WithStatusObserver(func(id string, st *services.JobStatus) { observed = append(observed, st.Status) }),
		)

		if _, err := s.Run(context.Background(), catSurfing()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if created != "t9" {
			t.Errorf("expected created hook with t9, got %q", created)
		}
		if len(observed) != 2 || observed[1] != models.StatusSucceeded {
			t.Errorf("unexpected observed statuses %v", observed)
		}
	})

	t.Run("defaults are applied to the submitted request", func(t *testing.T) {
		gw := &tu.MockGateway{}
		s := newTestSession(gw)

		if _, err := s.Start(context.Background(), models.GenerationRequest{Prompt: " waves "}); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		got := gw.Requests[0]
		if got.Prompt != "waves" || got.Resolution != models.Resolution720p || got.Duration != 5 {
			t.Errorf("unexpected submitted request %+v", got)
		}
		if snap := s.Snapshot(); snap.Request == nil || snap.Request.Prompt != "waves" {
			t.Errorf("expected the session to keep the request, got %+v", snap.Request)
		}
	})
}

func TestSessionProgressIsNonBlocking(t *testing.T) {
	gw := &tu.MockGateway{Statuses: []*services.JobStatus{{Status: models.StatusSucceeded, VideoURL: "u"}}}
	progress := make(chan ProgressUpdate)
	s := newTestSession(gw, WithProgress(progress))

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), catSurfing())
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Run() should not block on progress sends")
	}
}

func TestSessionProgressPhases(t *testing.T) {
	gw := &tu.MockGateway{Statuses: []*services.JobStatus{{Status: models.StatusSucceeded, VideoURL: "u"}}}
	progress := make(chan ProgressUpdate, 10)
	s := newTestSession(gw, WithProgress(progress))

	if _, err := s.Run(context.Background(), catSurfing()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(progress)

	var phases []Phase
	for u := range progress {
		phases = append(phases, u.Phase)
	}
	want := []Phase{PhaseCreate, PhaseCreate, PhasePoll, PhaseSucceeded}
	if len(phases) != len(want) {
		t.Fatalf("expected phases %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d = %s, want %s", i, phases[i], want[i])
		}
	}
}
