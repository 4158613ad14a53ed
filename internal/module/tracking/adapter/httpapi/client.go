// Package httpapi はサーバーAPIへのジョブ種別ごとのアダプタを提供します
// 各アダプタはリクエスト/レスポンスの形の変換のみを担当し、
// リトライ・ポーリング・キャッシュは行いません
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
)

const (
	defaultTimeout = 15 * time.Second
	// defaultRequestsPerSecond は全アダプタ共有のAPIレート上限
	defaultRequestsPerSecond = 10
	defaultBurst             = 5
)

// Client は全ジョブ種別アダプタが共有するHTTPクライアント基盤です
// ベースURL・認証トークン・レート制限・エラー変換を一元管理します
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option はClientの設定オプションです
type Option func(*Client)

// WithHTTPClient は内部のhttp.Clientを差し替えます（テスト用）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit はAPIレート制限を変更します
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// NewClient は新しいClientを作成します
func NewClient(baseURL, token string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// errorResponse はサーバーが返すエラーペイロードです
type errorResponse struct {
	Message string `json:"message"`
}

// doJSON はJSONリクエストを送信し、レスポンスをoutにデコードします
// HTTPステータスはドメインエラーに変換されます:
//
//	400 -> ErrValidation / 404 -> ErrNotFound / 409 -> ErrConflict
//	その他の非2xxおよびネットワーク障害 -> ErrTransport
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.TransportError(err)
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.mapStatusError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			// 壊れたレスポンスボディは一時障害として扱う
			return domain.TransportError(fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}

// mapStatusError は非2xxレスポンスをドメインエラーに変換します
func (c *Client) mapStatusError(resp *http.Response) error {
	var payload errorResponse
	message := resp.Status
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Message != "" {
		message = payload.Message
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrValidation, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrConflict, message)
	default:
		return fmt.Errorf("%w: server returned %s", domain.ErrTransport, message)
	}
}

// jobStatusResponse はサーバーのジョブ状態ペイロードです（§外部IF）
// フィールドは欠落し得るため全てoptional扱いでデコードします
type jobStatusResponse struct {
	JobID           string         `json:"job_id"`
	Status          string         `json:"status"`
	Stage           string         `json:"stage,omitempty"`
	ProgressPercent *int           `json:"progress_percent,omitempty"`
	Counts          *countsPayload `json:"counts,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	CreatedAt       *time.Time     `json:"created_at,omitempty"`
	UpdatedAt       *time.Time     `json:"updated_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

type countsPayload struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// toRawSnapshot はワイヤ形式を解釈前の生スナップショットに変換します
func (r *jobStatusResponse) toRawSnapshot() *domain.RawSnapshot {
	raw := &domain.RawSnapshot{
		JobID:        r.JobID,
		Status:       r.Status,
		Stage:        r.Stage,
		Progress:     r.ProgressPercent,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		CompletedAt:  r.CompletedAt,
	}
	if r.Counts != nil {
		raw.Counts = &domain.Counts{
			Processed: r.Counts.Processed,
			Total:     r.Counts.Total,
		}
	}
	return raw
}
