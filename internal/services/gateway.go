package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/shared"
)

// Gateway is the remote job gateway that runs video generation.
//
// Jobs are created once and then observed by id; the client never receives pushes.
type Gateway interface {
	// Create submits a job and returns the gateway's task id.
	Create(ctx context.Context, req models.GenerationRequest) (string, error)

	// Query returns the current status of a job.
	Query(ctx context.Context, taskID string) (*JobStatus, error)

	// SyncFromRemote asks the backend to refresh its copy of the job from the provider, then returns its status.
	SyncFromRemote(ctx context.Context, taskID, credential string) (*JobStatus, error)

	// Publish finalizes a succeeded job server-side and returns the inserted catalog record.
	Publish(ctx context.Context, taskID string, req PublishRequest, credential string) (*PublishResult, error)
}

// JobStatus is a normalized gateway status response.
type JobStatus struct {
	Status       models.TaskStatus
	VideoURL     string
	LastFrameURL string
	Error        string
}

// Patch converts the status into a registry update.
//
// Empty URLs are left unset so an earlier value is never erased.
func (s *JobStatus) Patch() *models.TaskPatch {
	patch := &models.TaskPatch{Status: models.Ptr(s.Status)}
	if s.VideoURL != "" {
		patch.VideoURL = models.Ptr(s.VideoURL)
	}
	if s.LastFrameURL != "" {
		patch.CoverURL = models.Ptr(s.LastFrameURL)
	}
	if s.Status == models.StatusFailed {
		patch.Error = models.Ptr(s.Error)
	} else {
		patch.Error = models.Ptr("")
	}
	return patch
}

// PublishRequest carries the metadata for a server-side publish.
type PublishRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Duration    *float64 `json:"duration,omitempty"`
	AspectRatio float64  `json:"aspect_ratio"`
}

// PublishResult is returned by [Gateway.Publish].
type PublishResult struct {
	TaskID         string                `json:"task_id"`
	Video          models.PublishedVideo `json:"video"`
	VideoPublicURL string                `json:"video_public_url"`
	CoverPublicURL string                `json:"cover_public_url"`
}

// HTTPGateway implements [Gateway] over the backend's /v1/generations endpoints.
type HTTPGateway struct {
	client *Client
}

// NewHTTPGateway creates an [HTTPGateway] using client.
func NewHTTPGateway(client *Client) *HTTPGateway {
	return &HTTPGateway{client: client}
}

type createResponse struct {
	TaskID string `json:"task_id"`
	ID     string `json:"id"`
}

type statusResponse struct {
	Status       string `json:"status"`
	VideoURL     string `json:"video_url"`
	LastFrameURL string `json:"last_frame_url"`
	Error        string `json:"error"`
}

func (g *HTTPGateway) Create(ctx context.Context, req models.GenerationRequest) (string, error) {
	var resp createResponse
	if err := g.client.doJSON(ctx, "POST", "/v1/generations", "", req, &resp); err != nil {
		return "", err
	}

	taskID := strings.TrimSpace(resp.TaskID)
	if taskID == "" {
		taskID = strings.TrimSpace(resp.ID)
	}
	if taskID == "" {
		return "", fmt.Errorf("%w: create response has no task id", shared.ErrGateway)
	}
	return taskID, nil
}

func (g *HTTPGateway) Query(ctx context.Context, taskID string) (*JobStatus, error) {
	var resp statusResponse
	if err := g.client.doJSON(ctx, "GET", generationPath(taskID), "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.normalize()
}

func (g *HTTPGateway) SyncFromRemote(ctx context.Context, taskID, credential string) (*JobStatus, error) {
	if credential == "" {
		return nil, shared.ErrAuthRequired
	}
	var resp statusResponse
	if err := g.client.doJSON(ctx, "POST", generationPath(taskID)+"/sync", credential, nil, &resp); err != nil {
		return nil, err
	}
	return resp.normalize()
}

func (g *HTTPGateway) Publish(ctx context.Context, taskID string, req PublishRequest, credential string) (*PublishResult, error) {
	if credential == "" {
		return nil, shared.ErrAuthRequired
	}
	var resp PublishResult
	if err := g.client.doJSON(ctx, "POST", generationPath(taskID)+"/publish", credential, req, &resp); err != nil {
		return nil, err
	}
	if resp.Video.ID == "" {
		return nil, fmt.Errorf("%w: publish response has no video record", shared.ErrGateway)
	}
	if resp.TaskID == "" {
		resp.TaskID = taskID
	}
	if resp.Video.VideoURL == "" {
		resp.Video.VideoURL = resp.VideoPublicURL
	}
	if resp.Video.CoverURL == "" {
		resp.Video.CoverURL = resp.CoverPublicURL
	}
	return &resp, nil
}

func generationPath(taskID string) string {
	return "/v1/generations/" + url.PathEscape(taskID)
}

// normalize maps the provider status and rejects payloads that cannot be acted on.
func (r statusResponse) normalize() (*JobStatus, error) {
	status, ok := models.ParseTaskStatus(r.Status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown job status %q", shared.ErrGateway, r.Status)
	}
	js := &JobStatus{
		Status:       status,
		VideoURL:     strings.TrimSpace(r.VideoURL),
		LastFrameURL: strings.TrimSpace(r.LastFrameURL),
		Error:        strings.TrimSpace(r.Error),
	}
	if js.Status == models.StatusFailed && js.Error == "" {
		js.Error = "generation failed"
	}
	return js, nil
}
