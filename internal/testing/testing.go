// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/services"
	"github.com/desertthunder/vgen/internal/shared"
)

// MockGateway is a test double for [services.Gateway].
//
// Query and SyncFromRemote pop scripted responses in order; the last response repeats once the script runs out.
type MockGateway struct {
	mu sync.Mutex

	CreateID  string
	CreateErr error

	Statuses []*services.JobStatus
	QueryErr error

	SyncStatuses map[string]*services.JobStatus
	SyncErr      error

	PublishResult *services.PublishResult
	PublishErr    error

	CreateCalls  int
	QueryCalls   int
	SyncCalls    int
	PublishCalls int
	Requests     []models.GenerationRequest
	Published    []services.PublishRequest
}

func (m *MockGateway) Create(ctx context.Context, req models.GenerationRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	m.Requests = append(m.Requests, req)
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	if m.CreateID == "" {
		return "task-1", nil
	}
	return m.CreateID, nil
}

func (m *MockGateway) Query(ctx context.Context, taskID string) (*services.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	if len(m.Statuses) == 0 {
		return &services.JobStatus{Status: models.StatusRunning}, nil
	}
	status := m.Statuses[0]
	if len(m.Statuses) > 1 {
		m.Statuses = m.Statuses[1:]
	}
	copied := *status
	return &copied, nil
}

func (m *MockGateway) SyncFromRemote(ctx context.Context, taskID, credential string) (*services.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SyncCalls++
	if credential == "" {
		return nil, shared.ErrAuthRequired
	}
	if m.SyncErr != nil {
		return nil, m.SyncErr
	}
	if status, ok := m.SyncStatuses[taskID]; ok {
		copied := *status
		return &copied, nil
	}
	return &services.JobStatus{Status: models.StatusRunning}, nil
}

func (m *MockGateway) Publish(ctx context.Context, taskID string, req services.PublishRequest, credential string) (*services.PublishResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishCalls++
	m.Published = append(m.Published, req)
	if m.PublishErr != nil {
		return nil, m.PublishErr
	}
	if m.PublishResult == nil {
		return nil, errors.New("no publish result scripted")
	}
	result := *m.PublishResult
	return &result, nil
}

// Calls returns the create, query and sync call counts.
func (m *MockGateway) Calls() (create, query, synced int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CreateCalls, m.QueryCalls, m.SyncCalls
}

// MockCatalog is an in-memory [services.Catalog].
//
// Inserted records come back without a profile, like the real insert response; FetchByID adds one.
type MockCatalog struct {
	mu sync.Mutex

	Records   map[string]*models.PublishedVideo
	Profile   *models.Profile
	NextID    string
	InsertErr error
	FetchErr  error
	ListErr   error
	LikeErr   error

	Inserted    []models.VideoDraft
	FetchCalls  int
	LikeCalls   int
	UpdateCalls int
}

func (m *MockCatalog) Insert(ctx context.Context, draft models.VideoDraft, credential string) (*models.PublishedVideo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Inserted = append(m.Inserted, draft)
	if m.InsertErr != nil {
		return nil, m.InsertErr
	}
	id := m.NextID
	if id == "" {
		id = "video-" + strconv.Itoa(len(m.Inserted))
	}
	record := &models.PublishedVideo{
		ID:          id,
		Title:       draft.Title,
		Description: draft.Description,
		Tags:        draft.Tags,
		VideoURL:    draft.VideoURL,
		CoverURL:    draft.CoverURL,
		Duration:    draft.Duration,
		AspectRatio: draft.AspectRatio,
		UploaderID:  draft.UploaderID,
		Source:      draft.Source,
		TaskID:      draft.TaskID,
	}
	if m.Records == nil {
		m.Records = make(map[string]*models.PublishedVideo)
	}
	m.Records[id] = record
	copied := *record
	return &copied, nil
}

func (m *MockCatalog) FetchByID(ctx context.Context, id string) (*models.PublishedVideo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls++
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	record, ok := m.Records[id]
	if !ok {
		return nil, nil
	}
	copied := *record
	copied.Uploader = m.Profile
	copied.Hydrated = true
	return &copied, nil
}

func (m *MockCatalog) Update(ctx context.Context, id string, patch models.VideoPatch, credential string) (*models.PublishedVideo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	record, ok := m.Records[id]
	if !ok {
		return nil, &services.StatusError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	if patch.Title != nil {
		record.Title = *patch.Title
	}
	if patch.Description != nil {
		record.Description = *patch.Description
	}
	if patch.Tags != nil {
		record.Tags = patch.Tags
	}
	copied := *record
	return &copied, nil
}

func (m *MockCatalog) List(ctx context.Context, limit int) ([]models.PublishedVideo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []models.PublishedVideo
	for _, record := range m.Records {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, *record)
	}
	return out, nil
}

func (m *MockCatalog) SetLike(ctx context.Context, id string, liked bool, credential string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LikeCalls++
	if m.LikeErr != nil {
		return 0, m.LikeErr
	}
	record, ok := m.Records[id]
	if !ok {
		return 0, &services.StatusError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	if liked {
		record.LikeCount++
	} else if record.LikeCount > 0 {
		record.LikeCount--
	}
	record.Liked = liked
	return record.LikeCount, nil
}

// MockStore is an in-memory [services.ObjectStore] that can fail the n-th Put.
type MockStore struct {
	mu sync.Mutex

	FailOn  int // 1-based Put call that fails; zero never fails
	PutErr  error
	Objects map[string][]byte
	Keys    []string
	Deleted []string
}

func (m *MockStore) Put(ctx context.Context, key, contentType string, r io.Reader, credential string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Keys = append(m.Keys, key)
	if m.FailOn == len(m.Keys) {
		m.Keys = m.Keys[:len(m.Keys)-1]
		if m.PutErr != nil {
			return "", m.PutErr
		}
		return "", errors.New("upload failed")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if m.Objects == nil {
		m.Objects = make(map[string][]byte)
	}
	m.Objects[key] = data
	return "https://cdn.test/" + key, nil
}

func (m *MockStore) Delete(ctx context.Context, key, credential string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, key)
	m.Deleted = append(m.Deleted, key)
	return nil
}

// StaticCredentials is a fixed credential source; an empty Token means signed out.
type StaticCredentials struct {
	Token string
	User  *services.Identity
}

func (s StaticCredentials) CurrentCredential(ctx context.Context) (string, bool) {
	return s.Token, s.Token != ""
}

func (s StaticCredentials) CurrentUser(ctx context.Context) (*services.Identity, error) {
	if s.Token == "" || s.User == nil {
		return nil, shared.ErrAuthRequired
	}
	u := *s.User
	return &u, nil
}

// Recorder is a [shared.Notifier] that keeps every notification.
type Recorder struct {
	mu    sync.Mutex
	notes []shared.Notification
}

func (r *Recorder) Notify(n shared.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []shared.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.Notification(nil), r.notes...)
}

// Count returns how many notifications were recorded at level.
func (r *Recorder) Count(level shared.Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Level == level {
			n++
		}
	}
	return n
}

// Len returns the number of recorded notifications.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
