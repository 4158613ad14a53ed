package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
)

// AssessmentRunClient はAIドキュメント評価ジョブのアダプタです
type AssessmentRunClient struct {
	client *Client
}

// NewAssessmentRunClient は新しいAssessmentRunClientを作成します
func NewAssessmentRunClient(client *Client) *AssessmentRunClient {
	return &AssessmentRunClient{client: client}
}

// Class はジョブ種別を返します
func (c *AssessmentRunClient) Class() domain.JobClass {
	return domain.JobClassAssessmentRun
}

// assessmentRunRequest はドキュメント評価の開始リクエストです
type assessmentRunRequest struct {
	// Collection は評価対象のドキュメントコレクション名
	Collection string `json:"collection"`
	// Rubric は評価基準の識別子（省略時はサーバー既定）
	Rubric string `json:"rubric,omitempty"`
}

// Start はドキュメント評価ジョブを開始します
// params["collection"] は必須です
func (c *AssessmentRunClient) Start(ctx context.Context, resourceID string, params domain.StartParams) (*domain.RawSnapshot, error) {
	if resourceID == "" {
		return nil, domain.ValidationError("resource ID is required")
	}

	collection, _ := params["collection"].(string)
	if collection == "" {
		return nil, domain.ValidationError("collection is required")
	}
	req := assessmentRunRequest{Collection: collection}
	if v, ok := params["rubric"].(string); ok {
		req.Rubric = v
	}

	var resp jobStatusResponse
	path := fmt.Sprintf("/api/v1/projects/%s/assessment-jobs", url.PathEscape(resourceID))
	if err := c.client.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return resp.toRawSnapshot(), nil
}

// FetchStatus はドキュメント評価ジョブの現在状態を取得します
func (c *AssessmentRunClient) FetchStatus(ctx context.Context, jobID string) (*domain.RawSnapshot, error) {
	if jobID == "" {
		return nil, domain.ValidationError("job ID is required")
	}

	var resp jobStatusResponse
	path := fmt.Sprintf("/api/v1/assessment-jobs/%s", url.PathEscape(jobID))
	if err := c.client.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.JobID == "" {
		resp.JobID = jobID
	}
	return resp.toRawSnapshot(), nil
}
