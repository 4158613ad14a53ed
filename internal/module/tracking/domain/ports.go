package domain

import (
	"context"
)

// StartParams はジョブ開始時の種別固有パラメータを表します
type StartParams map[string]any

// JobClient はジョブ種別ごとのサーバーAPIアダプタを表すインターフェース
// 形の変換のみを担当し、リトライ・ポーリング・キャッシュは行いません
// （それらはPolling Schedulerの責務です）
type JobClient interface {
	// Class はこのアダプタが扱うジョブ種別を返します
	Class() JobClass

	// Start はジョブを開始し、初期（非終端）スナップショットを返します
	// パラメータ不正はErrValidation、通信失敗はErrTransportを返します
	Start(ctx context.Context, resourceID string, params StartParams) (*RawSnapshot, error)

	// FetchStatus はジョブの現在状態を取得します
	// サーバーがジョブを認識していない場合はErrNotFound、
	// 通信失敗はErrTransportを返します
	FetchStatus(ctx context.Context, jobID string) (*RawSnapshot, error)
}

// JobLister は同一リソースに複数セッションが正当に存在する種別
// （アーカイブ取り込みの履歴）向けの一覧取得インターフェース
type JobLister interface {
	List(ctx context.Context, resourceID string) ([]*RawSnapshot, error)
}

// IntentStore は実行中と思われるジョブの永続レコードを管理するインターフェース
// record/forget/listActiveはアトミックでなければなりません
type IntentStore interface {
	// Record はジョブ開始時にIntentRecordを保存します
	Record(ctx context.Context, intent IntentRecord) error

	// Forget はジョブが終端に達した（またはユーザーが破棄した）際にレコードを削除します
	// 存在しないjobIDに対しても安全に呼び出せます
	Forget(ctx context.Context, jobID string) error

	// ListActive は未終端と思われる全IntentRecordを返します
	ListActive(ctx context.Context) ([]IntentRecord, error)

	// FindActive は(ジョブ種別, リソースID)に対応するアクティブなレコードを返します
	// 見つからない場合は(nil, nil)を返します
	FindActive(ctx context.Context, class JobClass, resourceID string) (*IntentRecord, error)
}
