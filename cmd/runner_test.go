package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/services"
	"github.com/desertthunder/vgen/internal/shared"
	"github.com/desertthunder/vgen/internal/tasks"
	tu "github.com/desertthunder/vgen/internal/testing"
)

func testConfig(t *testing.T) *shared.Config {
	t.Helper()
	dir := t.TempDir()
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "vgen.db")
	config.Session.Path = filepath.Join(dir, "session.json")
	config.Auth.TokenPath = filepath.Join(dir, "token.json")
	config.Storage.LocalPath = filepath.Join(dir, "media")
	config.Log.File = filepath.Join(dir, "vgen-tui.log")
	config.Gateway.PollInitialMS = 1
	config.Gateway.PollMaxMS = 1
	config.Gateway.RequestsPerSec = 0
	return config
}

type harness struct {
	runner  *Runner
	config  *shared.Config
	out     *bytes.Buffer
	gateway *tu.MockGateway
	catalog *tu.MockCatalog
	store   *tu.MockStore
	opened  []string
}

// newHarness wires a runner to in-memory collaborators. An empty token means signed out.
func newHarness(t *testing.T, token string) *harness {
	t.Helper()
	h := &harness{
		config:  testConfig(t),
		out:     &bytes.Buffer{},
		gateway: &tu.MockGateway{},
		catalog: &tu.MockCatalog{Profile: &models.Profile{ID: "user-1", Username: "kit", DisplayName: "Kit"}},
		store:   &tu.MockStore{},
	}
	h.runner = NewRunner(RunnerOpts{
		Config:     h.config,
		Logger:     log.New(io.Discard),
		Output:     h.out,
		HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("offline"))},
		Open: func(target string) error {
			h.opened = append(h.opened, target)
			return nil
		},
		Auth: tu.StaticCredentials{
			Token: token,
			User:  &services.Identity{ID: "user-1", Username: "kit", DisplayName: "Kit", Email: "kit@example.com"},
		},
		Gateway: h.gateway,
		Catalog: h.catalog,
		Store:   h.store,
	})
	return h
}

func (h *harness) run(args ...string) error {
	app := &cli.Command{
		Name:      "vgen",
		Writer:    io.Discard,
		ErrWriter: io.Discard,
		Commands:  h.runner.register(),
	}
	return app.Run(context.Background(), append([]string{"vgen"}, args...))
}

func (h *harness) session(t *testing.T) tasks.RegistryState {
	t.Helper()
	state, err := h.runner.sessionFile.Load()
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	return state
}

func (h *harness) seed(t *testing.T, state tasks.RegistryState) {
	t.Helper()
	if err := h.runner.sessionFile.Save(state); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
}

func finishedTask(id string) models.TrackedTask {
	return models.TrackedTask{TaskID: id, Status: models.StatusSucceeded, VideoURL: "https://gen.test/" + id + ".mp4"}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			gateway := &tu.MockGateway{}
			catalog := &tu.MockCatalog{}
			store := &tu.MockStore{}
			auth := tu.StaticCredentials{Token: "tok"}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Auth:       auth,
				Gateway:    gateway,
				Catalog:    catalog,
				Store:      store,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.gateway != gateway {
				t.Error("expected gateway to be set")
			}
			if runner.catalog != catalog {
				t.Error("expected catalog to be set")
			}
			if runner.store != store {
				t.Error("expected store to be set")
			}
			if runner.auth != auth {
				t.Error("expected auth to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses the gateway timeout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})

			if runner.httpClient == nil || runner.httpClient.Timeout != runner.config.Gateway.HTTPTimeout() {
				t.Errorf("expected client with gateway timeout, got %+v", runner.httpClient)
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/test/path/config.toml"})

			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})

		t.Run("without injected collaborators uses the HTTP backends", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: testConfig(t)})

			if _, ok := runner.gateway.(*services.HTTPGateway); !ok {
				t.Errorf("expected HTTP gateway, got %T", runner.gateway)
			}
			if _, ok := runner.catalog.(*services.CatalogClient); !ok {
				t.Errorf("expected catalog client, got %T", runner.catalog)
			}
			if runner.auth != runner.tokens {
				t.Error("expected the token store to answer auth")
			}
		})

		t.Run("records an incomplete auth configuration", func(t *testing.T) {
			config := testConfig(t)
			config.Auth.ClientID = ""
			runner := NewRunner(RunnerOpts{Config: config})

			if !errors.Is(runner.oauthErr, shared.ErrMissingConfig) {
				t.Errorf("expected ErrMissingConfig, got %v", runner.oauthErr)
			}
		})
	})

	t.Run("objectStore", func(t *testing.T) {
		t.Run("local backend writes under local_path", func(t *testing.T) {
			config := testConfig(t)
			config.Storage.Backend = "local"
			runner := NewRunner(RunnerOpts{Config: config})

			store, err := runner.objectStore()
			if err != nil {
				t.Fatalf("objectStore() error = %v", err)
			}
			fs, ok := store.(*services.FileStore)
			if !ok {
				t.Fatalf("expected file store, got %T", store)
			}
			if want, _ := filepath.Abs(config.Storage.LocalPath); fs.BasePath() != want {
				t.Errorf("expected base path %s, got %s", want, fs.BasePath())
			}
		})

		t.Run("http backend uses the storage endpoint", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: testConfig(t)})

			store, err := runner.objectStore()
			if err != nil {
				t.Fatalf("objectStore() error = %v", err)
			}
			if _, ok := store.(*services.HTTPStore); !ok {
				t.Errorf("expected HTTP store, got %T", store)
			}
		})
	})

	t.Run("defaultRequest", func(t *testing.T) {
		config := testConfig(t)
		config.Gateway.Defaults = shared.GenDefaults{Resolution: "480p", AspectRatio: "9:16", Duration: 8}
		runner := NewRunner(RunnerOpts{Config: config})

		req := runner.defaultRequest()
		if req.Resolution != models.Resolution480p || req.AspectRatio != models.Ratio9x16 || req.Duration != 8 {
			t.Errorf("unexpected defaults %+v", req)
		}
		if req.FPS != models.FPS16 {
			t.Errorf("expected unset fps to default to 16, got %d", req.FPS)
		}
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, true)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			// channels cannot be marshaled to JSON
			err := runner.writeJSON(make(chan int), false)

			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)

			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writeProgress", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		runner.writeProgress(tasks.ProgressUpdate{Phase: tasks.PhasePoll, Step: 2, Total: 10, Message: "running"})
		runner.writeProgress(tasks.ProgressUpdate{Phase: tasks.PhaseCreate})

		want := fmt.Sprintf("→ [%s 2/10] running\n", tasks.PhasePoll)
		if output.String() != want {
			t.Errorf("expected %q, got %q", want, output.String())
		}
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		if len(commands) == 0 {
			t.Error("expected at least one command to be registered")
		}

		seen := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Errorf("command at index %d is nil", i)
				continue
			}
			if seen[cmd.Name] {
				t.Errorf("command %q registered twice", cmd.Name)
			}
			seen[cmd.Name] = true
		}
		for _, name := range []string{"setup", "auth", "generate", "task", "publish", "feed", "storage", "session", "api", "tui"} {
			if !seen[name] {
				t.Errorf("expected %q command", name)
			}
		}
	})
}

func TestTaskCommands(t *testing.T) {
	t.Run("add, list and remove round trip through the session file", func(t *testing.T) {
		h := newHarness(t, "tok")

		if err := h.run("task", "add", "task-7"); err != nil {
			t.Fatalf("task add error = %v", err)
		}
		if !strings.Contains(h.out.String(), "Tracking task task-7") {
			t.Errorf("unexpected output %q", h.out.String())
		}
		tu.AssertFileExists(t, h.config.Session.Path)

		h.out.Reset()
		if err := h.run("task", "list"); err != nil {
			t.Fatalf("task list error = %v", err)
		}
		if !strings.Contains(h.out.String(), "task-7") {
			t.Errorf("expected task-7 in list, got %q", h.out.String())
		}

		if err := h.run("task", "remove", "task-7"); err != nil {
			t.Fatalf("task remove error = %v", err)
		}
		h.out.Reset()
		if err := h.run("task", "list"); err != nil {
			t.Fatalf("task list error = %v", err)
		}
		if !strings.Contains(h.out.String(), "No tracked tasks") {
			t.Errorf("expected empty list, got %q", h.out.String())
		}
		if create, query, synced := h.gateway.Calls(); create+query+synced != 0 {
			t.Errorf("expected no gateway calls, got %d/%d/%d", create, query, synced)
		}
	})

	t.Run("list as JSON mirrors the session", func(t *testing.T) {
		h := newHarness(t, "tok")
		h.seed(t, tasks.RegistryState{Tasks: []models.TrackedTask{finishedTask("t1")}})

		if err := h.run("task", "list", "--json", "--pretty=false"); err != nil {
			t.Fatalf("task list error = %v", err)
		}
		if !strings.Contains(h.out.String(), `"task_id":"t1"`) {
			t.Errorf("expected JSON task, got %q", h.out.String())
		}
	})

	t.Run("missing and unknown ids are rejected", func(t *testing.T) {
		h := newHarness(t, "tok")

		if err := h.run("task", "add"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if err := h.run("task", "remove", "nope"); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
		if err := h.run("task", "refresh", "nope"); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
	})

	t.Run("refresh merges the remote status", func(t *testing.T) {
		h := newHarness(t, "tok")
		h.gateway.SyncStatuses = map[string]*services.JobStatus{
			"task-7": {Status: models.StatusSucceeded, VideoURL: "https://gen.test/7.mp4"},
		}
		h.seed(t, tasks.RegistryState{Tasks: []models.TrackedTask{{TaskID: "task-7", Status: models.StatusRunning}}})

		if err := h.run("task", "refresh", "task-7"); err != nil {
			t.Fatalf("task refresh error = %v", err)
		}
		if !strings.Contains(h.out.String(), "Status: succeeded") || !strings.Contains(h.out.String(), "https://gen.test/7.mp4") {
			t.Errorf("unexpected output %q", h.out.String())
		}
		if got := h.session(t).Tasks[0]; got.Status != models.StatusSucceeded {
			t.Errorf("expected saved status succeeded, got %s", got.Status)
		}
	})

	t.Run("sync reports completed tasks", func(t *testing.T) {
		h := newHarness(t, "tok")
		h.gateway.SyncStatuses = map[string]*services.JobStatus{
			"a": {Status: models.StatusSucceeded, VideoURL: "https://gen.test/a.mp4"},
			"b": {Status: models.StatusFailed, Error: "content filtered"},
		}
		h.seed(t, tasks.RegistryState{Tasks: []models.TrackedTask{
			{TaskID: "a", Status: models.StatusRunning},
			{TaskID: "b", Status: models.StatusQueued},
			finishedTask("done"),
		}})

		if err := h.run("task", "sync"); err != nil {
			t.Fatalf("task sync error = %v", err)
		}
		if !strings.Contains(h.out.String(), "Checked 2, completed 1, failed 1") {
			t.Errorf("unexpected output %q", h.out.String())
		}
		if h.gateway.SyncCalls != 2 {
			t.Errorf("expected only unfinished tasks synced, got %d calls", h.gateway.SyncCalls)
		}
	})

	t.Run("sync while signed out stays quiet", func(t *testing.T) {
		h := newHarness(t, "")
		h.seed(t, tasks.RegistryState{Tasks: []models.TrackedTask{{TaskID: "a", Status: models.StatusRunning}}})

		if err := h.run("task", "sync"); err != nil {
			t.Fatalf("task sync error = %v", err)
		}
		if !strings.Contains(h.out.String(), "vgen auth login") {
			t.Errorf("expected sign-in hint, got %q", h.out.String())
		}
		if h.gateway.SyncCalls != 0 {
			t.Errorf("expected no sync calls, got %d", h.gateway.SyncCalls)
		}
	})

	t.Run("preview opens a finished video", func(t *testing.T) {
		h := newHarness(t, "tok")
		h.seed(t, tasks.RegistryState{Tasks: []models.TrackedTask{finishedTask("t1")}})

		if err := h.run("task", "preview", "t1"); err != nil {
			t.Fatalf("task preview error = %v", err)
		}
		if len(h.opened) != 1 || h.opened[0] != "https://gen.test/t1.mp4" {
			t.Errorf("expected preview opened, got %v", h.opened)
		}
		if got := h.session(t).PreviewID; got != "t1" {
			t.Errorf("expected preview id saved, got %q", got)
		}
	})

	t.Run("preview without a video fails", func(t *testing.T) {
		h := newHarness(t, "tok")
		h.seed(t, tasks.RegistryState{Tasks: []models.TrackedTask{{TaskID: "t1", Status: models.StatusRunning}}})

		if err := h.run("task", "preview", "t1"); !errors.Is(err, shared.ErrNoResult) {
			t.Errorf("expected ErrNoResult, got %v", err)
		}
		if len(h.opened) != 0 {
			t.Errorf("expected nothing opened, got %v", h.opened)
		}
	})

	t.Run("use hands the result off and drops the task", func(t *testing.T) {
		h := newHarness(t, "tok")
		h.seed(t, tasks.RegistryState{Tasks: []models.TrackedTask{finishedTask("t1")}})

		if err := h.run("task", "use", "t1"); err != nil {
			t.Fatalf("task use error = %v", err)
		}
		state := h.session(t)
		if len(state.Tasks) != 0 {
			t.Errorf("expected task removed, got %+v", state.Tasks)
		}
		if state.Pending == nil || state.Pending.TaskID != "t1" || state.Pending.VideoURL != "https://gen.test/t1.mp4" {
			t.Errorf("expected pending result, got %+v", state.Pending)
		}
	})

	t.Run("session clear removes the file", func(t *testing.T) {
		h := newHarness(t, "tok")
		h.seed(t, tasks.RegistryState{Tasks: []models.TrackedTask{finishedTask("t1")}})

		if err := h.run("session", "clear"); err != nil {
			t.Fatalf("session clear error = %v", err)
		}
		if _, err := os.Stat(h.config.Session.Path); !os.IsNotExist(err) {
			t.Errorf("expected session file removed, stat err = %v", err)
		}
	})
}

func TestGenerateCommand(t *testing.T) {
	t.Run("detach only creates and tracks", func(t *testing.T) {
		h := newHarness(t, "tok")
		h.gateway.CreateID = "task-9"

		if err := h.run("generate", "--detach", "a cat surfing a wave"); err != nil {
			t.Fatalf("generate error = %v", err)
		}
		if !strings.Contains(h.out.String(), "Task task-9 created") {
			t.Errorf("unexpected output %q", h.out.String())
		}
		if create, query, _ := h.gateway.Calls(); create != 1 || query != 0 {
			t.Errorf("expected one create and no queries, got %d/%d", create, query)
		}
		state := h.session(t)
		if len(state.Tasks) != 1 || state.Tasks[0].TaskID != "task-9" {
			t.Errorf("expected task-9 tracked, got %+v", state.Tasks)
		}
	})

	t.Run("foreground run polls to the result", func(t *testing.T) {
		h := newHarness(t, "tok")
		h.gateway.Statuses = []*services.JobStatus{
			{Status: models.StatusRunning},
			{Status: models.StatusSucceeded, VideoURL: "https://gen.test/v.mp4"},
		}

		if err := h.run("generate", "a cat surfing a wave"); err != nil {
			t.Fatalf("generate error = %v", err)
		}
		if !strings.Contains(h.out.String(), "Video ready: https://gen.test/v.mp4") {
			t.Errorf("unexpected output %q", h.out.String())
		}
		state := h.session(t)
		if len(state.Tasks) != 1 || state.Tasks[0].Status != models.StatusSucceeded {
			t.Errorf("expected finished task saved, got %+v", state.Tasks)
		}
	})

	t.Run("flags override the configured defaults", func(t *testing.T) {
		h := newHarness(t, "tok")

		if err := h.run("generate", "--detach", "--ratio", "9:16", "--duration", "8", "a cat"); err != nil {
			t.Fatalf("generate error = %v", err)
		}
		req := h.gateway.Requests[0]
		if req.AspectRatio != models.Ratio9x16 || req.Duration != 8 || req.Resolution != models.Resolution720p {
			t.Errorf("unexpected request %+v", req)
		}
	})

	t.Run("a failed job keeps the task tracked", func(t *testing.T) {
		h := newHarness(t, "tok")
		h.gateway.Statuses = []*services.JobStatus{{Status: models.StatusFailed, Error: "content filtered"}}

		err := h.run("generate", "a cat")
		if !errors.Is(err, shared.ErrGateway) {
			t.Fatalf("expected ErrGateway, got %v", err)
		}
		if !strings.Contains(h.out.String(), "still tracked") {
			t.Errorf("expected tracking hint, got %q", h.out.String())
		}
		state := h.session(t)
		if len(state.Tasks) != 1 || state.Tasks[0].Status != models.StatusFailed {
			t.Errorf("expected failed task saved, got %+v", state.Tasks)
		}
	})

	t.Run("invalid requests never reach the gateway", func(t *testing.T) {
		h := newHarness(t, "tok")

		if err := h.run("generate"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if err := h.run("generate", "--duration", "99", "a cat"); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
		if h.gateway.CreateCalls != 0 {
			t.Errorf("expected no create calls, got %d", h.gateway.CreateCalls)
		}
	})
}

func TestPublishCommand(t *testing.T) {
	writeMedia := func(t *testing.T) (string, string) {
		t.Helper()
		dir := t.TempDir()
		video := filepath.Join(dir, "clip.mp4")
		cover := filepath.Join(dir, "cover.png")
		if err := os.WriteFile(video, []byte("not really a movie"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(cover, []byte("not really an image"), 0o644); err != nil {
			t.Fatal(err)
		}
		return video, cover
	}

	generated := func(h *harness) {
		h.gateway.PublishResult = &services.PublishResult{
			TaskID: "t1",
			Video:  models.PublishedVideo{ID: "video-9", Title: "Cat surfing", VideoURL: "https://cdn.test/v.mp4"},
		}
	}

	t.Run("uploads local files into the feed", func(t *testing.T) {
		h := newHarness(t, "tok")
		video, cover := writeMedia(t)

		err := h.run("publish", "--title", "Cat surfing", "--tags", "cats surf", "--video", video, "--cover", cover)
		if err != nil {
			t.Fatalf("publish error = %v", err)
		}
		if !strings.Contains(h.out.String(), `Published "Cat surfing" (video-1)`) {
			t.Errorf("unexpected output %q", h.out.String())
		}
		if len(h.store.Keys) != 2 || len(h.catalog.Inserted) != 1 {
			t.Errorf("expected two uploads and one insert, got %d/%d", len(h.store.Keys), len(h.catalog.Inserted))
		}
		if tags := h.catalog.Inserted[0].Tags; len(tags) != 2 {
			t.Errorf("expected parsed tags, got %v", tags)
		}

		h.out.Reset()
		if err := h.run("feed", "list"); err != nil {
			t.Fatalf("feed list error = %v", err)
		}
		if !strings.Contains(h.out.String(), "Cat surfing") || !strings.Contains(h.out.String(), "Kit") {
			t.Errorf("expected hydrated entry in feed, got %q", h.out.String())
		}
	})

	t.Run("consumes the handed off result", func(t *testing.T) {
		h := newHarness(t, "tok")
		generated(h)
		h.seed(t, tasks.RegistryState{Pending: &models.PendingUseResult{TaskID: "t1", VideoURL: "https://gen.test/t1.mp4"}})

		if err := h.run("publish", "--title", "Cat surfing"); err != nil {
			t.Fatalf("publish error = %v", err)
		}
		if h.gateway.PublishCalls != 1 || len(h.store.Keys) != 0 {
			t.Errorf("expected gateway publish without uploads, got %d/%d", h.gateway.PublishCalls, len(h.store.Keys))
		}
		if pending := h.session(t).Pending; pending != nil {
			t.Errorf("expected handoff consumed, got %+v", pending)
		}
	})

	t.Run("--task publishes a finished task", func(t *testing.T) {
		h := newHarness(t, "tok")
		generated(h)
		h.seed(t, tasks.RegistryState{Tasks: []models.TrackedTask{finishedTask("t1")}})

		if err := h.run("publish", "--task", "t1", "--title", "Cat surfing"); err != nil {
			t.Fatalf("publish error = %v", err)
		}
		state := h.session(t)
		if len(state.Tasks) != 0 || state.Pending != nil {
			t.Errorf("expected the task spent, got %+v", state)
		}
		if h.gateway.Published[0].Title != "Cat surfing" {
			t.Errorf("unexpected publish request %+v", h.gateway.Published[0])
		}
	})

	t.Run("a failed generated publish keeps the result pending", func(t *testing.T) {
		h := newHarness(t, "")
		generated(h)
		h.seed(t, tasks.RegistryState{Pending: &models.PendingUseResult{TaskID: "t1", VideoURL: "https://gen.test/t1.mp4"}})

		if err := h.run("publish", "--title", "Cat surfing"); !errors.Is(err, shared.ErrAuthRequired) {
			t.Fatalf("expected ErrAuthRequired, got %v", err)
		}
		if pending := h.session(t).Pending; pending == nil || pending.TaskID != "t1" {
			t.Errorf("expected pending result kept, got %+v", pending)
		}
		if h.gateway.PublishCalls != 0 {
			t.Errorf("expected no publish calls, got %d", h.gateway.PublishCalls)
		}
	})

	t.Run("requires media", func(t *testing.T) {
		h := newHarness(t, "tok")

		if err := h.run("publish", "--title", "Cat surfing"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if err := h.run("publish", "--title", "x", "--task", "t1", "--video", "clip.mp4"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestFeedCommands(t *testing.T) {
	seedCatalog := func(h *harness) {
		h.catalog.Records = map[string]*models.PublishedVideo{
			"v1": {ID: "v1", Title: "Cat surfing", UploaderID: "user-2", LikeCount: 2},
		}
	}

	t.Run("sync, list and like", func(t *testing.T) {
		h := newHarness(t, "tok")
		seedCatalog(h)

		if err := h.run("feed", "sync"); err != nil {
			t.Fatalf("feed sync error = %v", err)
		}
		if !strings.Contains(h.out.String(), "Synced 1 videos") {
			t.Errorf("unexpected output %q", h.out.String())
		}

		h.out.Reset()
		if err := h.run("feed", "list", "--json", "--pretty=false"); err != nil {
			t.Fatalf("feed list error = %v", err)
		}
		if !strings.Contains(h.out.String(), `"id":"v1"`) {
			t.Errorf("expected v1 in JSON, got %q", h.out.String())
		}

		h.out.Reset()
		if err := h.run("feed", "like", "v1"); err != nil {
			t.Fatalf("feed like error = %v", err)
		}
		if !strings.Contains(h.out.String(), `Liked "Cat surfing" (3 likes)`) {
			t.Errorf("unexpected output %q", h.out.String())
		}
		if h.catalog.LikeCalls != 1 {
			t.Errorf("expected one like call, got %d", h.catalog.LikeCalls)
		}
	})

	t.Run("like while signed out", func(t *testing.T) {
		h := newHarness(t, "")
		seedCatalog(h)

		if err := h.run("feed", "like", "v1"); !errors.Is(err, shared.ErrAuthRequired) {
			t.Errorf("expected ErrAuthRequired, got %v", err)
		}
	})

	t.Run("export writes the requested format", func(t *testing.T) {
		h := newHarness(t, "tok")
		seedCatalog(h)
		if err := h.run("feed", "sync"); err != nil {
			t.Fatalf("feed sync error = %v", err)
		}

		path := filepath.Join(t.TempDir(), "feed.json")
		if err := h.run("feed", "export", "--format", "json", "--output", path); err != nil {
			t.Fatalf("feed export error = %v", err)
		}
		if !strings.Contains(tu.MustReadFile(t, path), "Cat surfing") {
			t.Error("expected exported video")
		}

		base := filepath.Join(t.TempDir(), "feed")
		if err := h.run("feed", "export", "--output", base); err != nil {
			t.Fatalf("feed export error = %v", err)
		}
		tu.AssertFileExists(t, base+"_videos.csv")
		tu.AssertFileExists(t, base+"_metadata.json")

		if err := h.run("feed", "export", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestStorageRemove(t *testing.T) {
	t.Run("deletes the object", func(t *testing.T) {
		h := newHarness(t, "tok")

		if err := h.run("storage", "remove", "user-1/videos/x.mp4"); err != nil {
			t.Fatalf("storage remove error = %v", err)
		}
		if len(h.store.Deleted) != 1 || h.store.Deleted[0] != "user-1/videos/x.mp4" {
			t.Errorf("expected key deleted, got %v", h.store.Deleted)
		}
	})

	t.Run("remote storage requires sign in", func(t *testing.T) {
		h := newHarness(t, "")

		if err := h.run("storage", "remove", "user-1/videos/x.mp4"); !errors.Is(err, shared.ErrAuthRequired) {
			t.Errorf("expected ErrAuthRequired, got %v", err)
		}
		if len(h.store.Deleted) != 0 {
			t.Errorf("expected nothing deleted, got %v", h.store.Deleted)
		}
	})
}

func TestAPICommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/health":
			fmt.Fprintf(w, `{"ok":true,"bearer":%q}`, r.Header.Get("Authorization"))
		case "/echo":
			body, _ := io.ReadAll(r.Body)
			w.Write(body)
		default:
			http.Error(w, "missing", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	newAPIHarness := func(t *testing.T) *harness {
		h := newHarness(t, "tok")
		h.config.Gateway.BaseURL = srv.URL
		h.runner.httpClient = srv.Client()
		h.runner.wire()
		return h
	}

	t.Run("get prints JSON", func(t *testing.T) {
		h := newAPIHarness(t)

		if err := h.run("api", "get", "--pretty=false", "/health"); err != nil {
			t.Fatalf("api get error = %v", err)
		}
		if !strings.Contains(h.out.String(), `"ok":true`) || !strings.Contains(h.out.String(), "Bearer tok") {
			t.Errorf("unexpected output %q", h.out.String())
		}
	})

	t.Run("non-2xx is a gateway error", func(t *testing.T) {
		h := newAPIHarness(t)

		if err := h.run("api", "get", "/nope"); !errors.Is(err, shared.ErrGateway) {
			t.Errorf("expected ErrGateway, got %v", err)
		}
	})

	t.Run("post sends the body", func(t *testing.T) {
		h := newAPIHarness(t)

		if err := h.run("api", "post", "--data", `{"name":"kit"}`, "/echo"); err != nil {
			t.Fatalf("api post error = %v", err)
		}
		if !strings.Contains(h.out.String(), `"name": "kit"`) {
			t.Errorf("unexpected output %q", h.out.String())
		}
	})

	t.Run("post rejects invalid JSON", func(t *testing.T) {
		h := newAPIHarness(t)

		if err := h.run("api", "post", "--data", "{nope", "/echo"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("status when signed in", func(t *testing.T) {
		h := newHarness(t, "tok")

		if err := h.run("auth", "status"); err != nil {
			t.Fatalf("auth status error = %v", err)
		}
		if !strings.Contains(h.out.String(), "Signed in as Kit") || !strings.Contains(h.out.String(), "kit@example.com") {
			t.Errorf("unexpected output %q", h.out.String())
		}
	})

	t.Run("status as JSON when signed out", func(t *testing.T) {
		h := newHarness(t, "")

		if err := h.run("auth", "status", "--json"); err != nil {
			t.Fatalf("auth status error = %v", err)
		}
		if strings.TrimSpace(h.out.String()) != `{"signed_in":false}` {
			t.Errorf("unexpected output %q", h.out.String())
		}
	})

	t.Run("logout removes the token and the session", func(t *testing.T) {
		h := newHarness(t, "tok")
		if err := os.WriteFile(h.config.Auth.TokenPath, []byte(`{"access_token":"a"}`), 0o600); err != nil {
			t.Fatal(err)
		}
		h.seed(t, tasks.RegistryState{Tasks: []models.TrackedTask{finishedTask("t1")}})

		if err := h.run("auth", "logout"); err != nil {
			t.Fatalf("auth logout error = %v", err)
		}
		for _, path := range []string{h.config.Auth.TokenPath, h.config.Session.Path} {
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Errorf("expected %s removed, stat err = %v", path, err)
			}
		}
	})

	t.Run("login requires an auth client", func(t *testing.T) {
		h := newHarness(t, "")
		h.config.Auth.ClientID = ""
		h.runner.wire()

		if err := h.run("auth", "login"); !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("login saves the exchanged token", func(t *testing.T) {
		tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.Form.Get("code") != "good" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"access-1","token_type":"bearer","refresh_token":"refresh-1"}`)
		}))
		defer tokenServer.Close()

		h := newHarness(t, "")
		h.config.Auth.TokenURL = tokenServer.URL
		h.config.Auth.AuthURL = tokenServer.URL + "/authorize"
		h.config.Auth.RedirectURI = fmt.Sprintf("http://127.0.0.1:%d/callback", freePort(t))
		h.runner.opts.Open = func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			q := u.Query()
			callback := q.Get("redirect_uri") + "?code=good&state=" + url.QueryEscape(q.Get("state"))
			resp, err := http.Get(callback)
			if err != nil {
				return err
			}
			return resp.Body.Close()
		}
		h.runner.open = h.runner.opts.Open
		h.runner.wire()

		if err := h.run("auth", "login", "--timeout", "5s"); err != nil {
			t.Fatalf("auth login error = %v", err)
		}
		if !strings.Contains(h.out.String(), "✓ Signed in") {
			t.Errorf("unexpected output %q", h.out.String())
		}
		if !strings.Contains(tu.MustReadFile(t, h.config.Auth.TokenPath), "access-1") {
			t.Error("expected token saved")
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config writes the template once", func(t *testing.T) {
		h := newHarness(t, "")
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := h.run("setup", "config", "--config", path); err != nil {
			t.Fatalf("setup config error = %v", err)
		}
		if !strings.Contains(tu.MustReadFile(t, path), "[gateway]") {
			t.Error("expected template contents")
		}
		if err := h.run("setup", "config", "--config", path); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument on second write, got %v", err)
		}
	})

	t.Run("database migrates and rolls back", func(t *testing.T) {
		h := newHarness(t, "")
		dir := t.TempDir()
		dbPath := filepath.Join(dir, "cache.db")
		configPath := filepath.Join(dir, "config.toml")
		if err := os.WriteFile(configPath, []byte(fmt.Sprintf("[database]\npath = %q\n", dbPath)), 0o644); err != nil {
			t.Fatal(err)
		}

		if err := h.run("setup", "database", "--config", configPath); err != nil {
			t.Fatalf("setup database error = %v", err)
		}
		tu.AssertFileExists(t, dbPath)
		if !strings.Contains(h.out.String(), "Feed cache ready") {
			t.Errorf("unexpected output %q", h.out.String())
		}

		if err := h.run("setup", "database", "--config", configPath, "--rollback"); err != nil {
			t.Fatalf("setup database --rollback error = %v", err)
		}
		if !strings.Contains(h.out.String(), "Rolled back") {
			t.Errorf("unexpected output %q", h.out.String())
		}
	})
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
