package domain

import (
	"time"
)

// === JobSession集約 ===

// JobClass はサーバー側ジョブの種別を表します
type JobClass string

const (
	// JobClassIndexBuild はベクトルインデックス構築ジョブ
	JobClassIndexBuild JobClass = "index-build"
	// JobClassArchiveIngest はアーカイブ一括取り込みジョブ
	JobClassArchiveIngest JobClass = "archive-ingest"
	// JobClassAssessmentRun はAIドキュメント評価ジョブ
	JobClassAssessmentRun JobClass = "assessment-run"
)

// String はJobClassの文字列表現を返します
func (c JobClass) String() string {
	return string(c)
}

// Valid はJobClassが既知の種別かどうかを返します
func (c JobClass) Valid() bool {
	switch c {
	case JobClassIndexBuild, JobClassArchiveIngest, JobClassAssessmentRun:
		return true
	}
	return false
}

// Status はUIに公開する正準ステータスを表します
// サーバーから返る生のステータス文字列とは区別されます
type Status string

const (
	StatusPending     Status = "Pending"
	StatusConfiguring Status = "Configuring"
	StatusProcessing  Status = "Processing"
	// StatusDegraded は連続した通信失敗により信頼度が低下した状態（非終端）
	StatusDegraded Status = "Degraded"
	StatusReady    Status = "Ready"
	StatusOffline  Status = "Offline"
	StatusFailed   Status = "Failed"
	// StatusTimedOut はクライアント側の監視上限に達した状態
	// サーバー側の真の結果は不明のため、Failedとは区別されます
	StatusTimedOut Status = "TimedOut"
	// StatusUnknown はサーバーがジョブを認識していない状態
	StatusUnknown Status = "Unknown"
)

// String はStatusの文字列表現を返します
func (s Status) String() string {
	return string(s)
}

// Terminal はこれ以上遷移しない終端ステータスかどうかを返します
func (s Status) Terminal() bool {
	switch s {
	case StatusReady, StatusFailed, StatusTimedOut, StatusUnknown:
		return true
	}
	return false
}

// Counts はジョブの処理件数を表します（件数の意味はジョブ種別ごとに異なる）
type Counts struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// JobSession は1つのサーバー側ジョブの追跡状態を表します
// StatusReconcilerによってのみ更新されます
type JobSession struct {
	JobID      string   `json:"jobID"`
	ResourceID string   `json:"resourceID"`
	JobClass   JobClass `json:"jobClass"`

	Status Status `json:"status"`
	// Stage はサーバーが返す自由記述のサブステータス（例: "processing"）
	Stage string `json:"stage,omitempty"`
	// Progress は進捗率(0-100)。サーバーが返さない場合はヒューリスティックで合成されます
	Progress int `json:"progress"`
	// ProgressHeuristic はProgressが合成値である場合にtrue
	// UIは合成値を概算として表示しなければなりません
	ProgressHeuristic bool    `json:"progressHeuristic,omitempty"`
	Counts            *Counts `json:"counts,omitempty"`
	ErrorMessage      string  `json:"errorMessage,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// CompletedAt はStatusが終端の場合に限り設定されます
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone はJobSessionのディープコピーを返します
func (s *JobSession) Clone() *JobSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.Counts != nil {
		counts := *s.Counts
		c.Counts = &counts
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// RawSnapshot はアダプタが取得したジョブ状態の生スナップショットを表します
// フィールドは欠落し得るため、解釈はStatusReconcilerに委ねられます
type RawSnapshot struct {
	JobID        string
	Status       string
	Stage        string
	Progress     *int
	Counts       *Counts
	ErrorMessage string
	CreatedAt    *time.Time
	UpdatedAt    *time.Time
	CompletedAt  *time.Time
}

// IntentRecord は「開始済みでまだ実行中と思われるジョブ」の永続レコードを表します
// プロセス再起動後の追跡再開と、同一リソースへの重複ポーリング防止に使われます
type IntentRecord struct {
	JobID      string    `json:"jobID"`
	ResourceID string    `json:"resourceID"`
	JobClass   JobClass  `json:"jobClass"`
	CreatedAt  time.Time `json:"createdAt"`
}
