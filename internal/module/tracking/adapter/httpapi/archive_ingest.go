package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
)

// ArchiveIngestClient はアーカイブ一括取り込みジョブのアダプタです
// 唯一、同一リソースの履歴一覧(List)を持つ種別です
type ArchiveIngestClient struct {
	client *Client
}

// NewArchiveIngestClient は新しいArchiveIngestClientを作成します
func NewArchiveIngestClient(client *Client) *ArchiveIngestClient {
	return &ArchiveIngestClient{client: client}
}

// Class はジョブ種別を返します
func (c *ArchiveIngestClient) Class() domain.JobClass {
	return domain.JobClassArchiveIngest
}

// archiveIngestRequest はアーカイブ取り込みの開始リクエストです
type archiveIngestRequest struct {
	// ArchivePath はサーバーから参照可能なアーカイブの場所
	ArchivePath string `json:"archive_path"`
	// ContentType はアーカイブの形式（例: "application/zip"）
	ContentType string `json:"content_type,omitempty"`
}

// Start はアーカイブ取り込みジョブを開始します
// params["archive_path"] は必須です
func (c *ArchiveIngestClient) Start(ctx context.Context, resourceID string, params domain.StartParams) (*domain.RawSnapshot, error) {
	if resourceID == "" {
		return nil, domain.ValidationError("resource ID is required")
	}

	archivePath, _ := params["archive_path"].(string)
	if archivePath == "" {
		return nil, domain.ValidationError("archive_path is required")
	}
	req := archiveIngestRequest{ArchivePath: archivePath}
	if v, ok := params["content_type"].(string); ok {
		req.ContentType = v
	}

	var resp jobStatusResponse
	path := fmt.Sprintf("/api/v1/projects/%s/archive-jobs", url.PathEscape(resourceID))
	if err := c.client.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return resp.toRawSnapshot(), nil
}

// FetchStatus はアーカイブ取り込みジョブの現在状態を取得します
func (c *ArchiveIngestClient) FetchStatus(ctx context.Context, jobID string) (*domain.RawSnapshot, error) {
	if jobID == "" {
		return nil, domain.ValidationError("job ID is required")
	}

	var resp jobStatusResponse
	path := fmt.Sprintf("/api/v1/archive-jobs/%s", url.PathEscape(jobID))
	if err := c.client.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.JobID == "" {
		resp.JobID = jobID
	}
	return resp.toRawSnapshot(), nil
}

// List はリソースに紐づく取り込みジョブの履歴を返します
func (c *ArchiveIngestClient) List(ctx context.Context, resourceID string) ([]*domain.RawSnapshot, error) {
	if resourceID == "" {
		return nil, domain.ValidationError("resource ID is required")
	}

	var resp struct {
		Jobs []jobStatusResponse `json:"jobs"`
	}
	path := fmt.Sprintf("/api/v1/projects/%s/archive-jobs", url.PathEscape(resourceID))
	if err := c.client.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	raws := make([]*domain.RawSnapshot, 0, len(resp.Jobs))
	for i := range resp.Jobs {
		raws = append(raws, resp.Jobs[i].toRawSnapshot())
	}
	return raws, nil
}
