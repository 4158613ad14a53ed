package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
)

// IndexBuildClient はベクトルインデックス構築ジョブのアダプタです
type IndexBuildClient struct {
	client *Client
}

// NewIndexBuildClient は新しいIndexBuildClientを作成します
func NewIndexBuildClient(client *Client) *IndexBuildClient {
	return &IndexBuildClient{client: client}
}

// Class はジョブ種別を返します
func (c *IndexBuildClient) Class() domain.JobClass {
	return domain.JobClassIndexBuild
}

// indexBuildRequest はインデックス構築の開始リクエストです
type indexBuildRequest struct {
	// ForceInit は差分ではなく全件を再インデックスするか
	ForceInit bool `json:"force_init,omitempty"`
	// Ref はインデックス対象のバージョン参照（ブランチ等）
	Ref string `json:"ref,omitempty"`
}

// Start はインデックス構築ジョブを開始します
func (c *IndexBuildClient) Start(ctx context.Context, resourceID string, params domain.StartParams) (*domain.RawSnapshot, error) {
	if resourceID == "" {
		return nil, domain.ValidationError("resource ID is required")
	}

	req := indexBuildRequest{}
	if v, ok := params["force_init"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, domain.ValidationError("force_init must be a bool")
		}
		req.ForceInit = b
	}
	if v, ok := params["ref"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, domain.ValidationError("ref must be a string")
		}
		req.Ref = s
	}

	var resp jobStatusResponse
	path := fmt.Sprintf("/api/v1/projects/%s/index-jobs", url.PathEscape(resourceID))
	if err := c.client.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return resp.toRawSnapshot(), nil
}

// FetchStatus はインデックス構築ジョブの現在状態を取得します
func (c *IndexBuildClient) FetchStatus(ctx context.Context, jobID string) (*domain.RawSnapshot, error) {
	if jobID == "" {
		return nil, domain.ValidationError("job ID is required")
	}

	var resp jobStatusResponse
	path := fmt.Sprintf("/api/v1/index-jobs/%s", url.PathEscape(jobID))
	if err := c.client.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.JobID == "" {
		resp.JobID = jobID
	}
	return resp.toRawSnapshot(), nil
}
