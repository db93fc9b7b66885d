package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/shared"
)

// Catalog is the remote video catalog: single-record operations with no cross-record transactions.
type Catalog interface {
	// Insert creates a record. The response lacks the joined uploader profile and counters.
	Insert(ctx context.Context, draft models.VideoDraft, credential string) (*models.PublishedVideo, error)

	// FetchByID returns the fully joined record, or nil when it does not exist.
	FetchByID(ctx context.Context, id string) (*models.PublishedVideo, error)

	// Update patches mutable fields of a record owned by the caller.
	Update(ctx context.Context, id string, patch models.VideoPatch, credential string) (*models.PublishedVideo, error)

	// List returns the newest records, at most limit.
	List(ctx context.Context, limit int) ([]models.PublishedVideo, error)

	// SetLike likes or unlikes a record and returns the new like count.
	SetLike(ctx context.Context, id string, liked bool, credential string) (int, error)
}

// CatalogClient implements [Catalog] over the backend's /v1/videos endpoints.
type CatalogClient struct {
	client *Client
}

// NewCatalogClient creates a [CatalogClient] using client.
func NewCatalogClient(client *Client) *CatalogClient {
	return &CatalogClient{client: client}
}

func (c *CatalogClient) Insert(ctx context.Context, draft models.VideoDraft, credential string) (*models.PublishedVideo, error) {
	if credential == "" {
		return nil, shared.ErrAuthRequired
	}
	var video models.PublishedVideo
	if err := c.client.doJSON(ctx, "POST", "/v1/videos", credential, draft, &video); err != nil {
		return nil, err
	}
	if video.ID == "" {
		return nil, fmt.Errorf("%w: insert response has no id", shared.ErrGateway)
	}
	return &video, nil
}

func (c *CatalogClient) FetchByID(ctx context.Context, id string) (*models.PublishedVideo, error) {
	var video models.PublishedVideo
	if err := c.client.doJSON(ctx, "GET", videoPath(id), "", nil, &video); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	video.Hydrated = true
	return &video, nil
}

func (c *CatalogClient) Update(ctx context.Context, id string, patch models.VideoPatch, credential string) (*models.PublishedVideo, error) {
	if credential == "" {
		return nil, shared.ErrAuthRequired
	}
	var video models.PublishedVideo
	if err := c.client.doJSON(ctx, "PATCH", videoPath(id), credential, patch, &video); err != nil {
		return nil, err
	}
	return &video, nil
}

func (c *CatalogClient) List(ctx context.Context, limit int) ([]models.PublishedVideo, error) {
	if limit <= 0 {
		limit = 50
	}
	var videos []models.PublishedVideo
	if err := c.client.doJSON(ctx, "GET", "/v1/videos?limit="+strconv.Itoa(limit), "", nil, &videos); err != nil {
		return nil, err
	}
	for i := range videos {
		videos[i].Hydrated = true
	}
	return videos, nil
}

func (c *CatalogClient) SetLike(ctx context.Context, id string, liked bool, credential string) (int, error) {
	if credential == "" {
		return 0, shared.ErrAuthRequired
	}
	method := "PUT"
	if !liked {
		method = "DELETE"
	}
	var resp struct {
		LikesCount int `json:"likes_count"`
	}
	if err := c.client.doJSON(ctx, method, videoPath(id)+"/like", credential, nil, &resp); err != nil {
		return 0, err
	}
	return resp.LikesCount, nil
}

func videoPath(id string) string {
	return "/v1/videos/" + url.PathEscape(id)
}
