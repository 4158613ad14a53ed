package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation は開始パラメータが不正な場合のエラー
	// ジョブは作成されず、そのままユーザーに提示されます
	ErrValidation = errors.New("validation failed")

	// ErrConflict は同一リソースに対するアクティブなジョブが既に存在する場合のエラー
	ErrConflict = errors.New("job already running")

	// ErrNotFound はサーバーがジョブを認識していない場合のエラー
	// 一時的な失敗ではなく終端（Unknown）として扱われます
	ErrNotFound = errors.New("job not found")

	// ErrTransport はネットワーク・サーバー障害による一時的なエラー
	// ポーリングは直前の状態を保持したまま次のティックで再試行します
	ErrTransport = errors.New("transport failure")
)

// ValidationError はErrValidationを詳細メッセージ付きで返します
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ConflictError はErrConflictを既存ジョブID付きで返します
func ConflictError(existingJobID string) error {
	return fmt.Errorf("%w: job %s is active", ErrConflict, existingJobID)
}

// NotFoundError はErrNotFoundをジョブID付きで返します
func NotFoundError(jobID string) error {
	return fmt.Errorf("%w: job %s", ErrNotFound, jobID)
}

// TransportError はErrTransportを原因付きで返します
func TransportError(cause error) error {
	return fmt.Errorf("%w: %v", ErrTransport, cause)
}
