// Package sqlite はLocal Intent StoreのSQLite実装を提供します
// IntentRecordはこのサブシステムで唯一プロセス再起動を生き延びるエンティティです
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS intents (
	job_id      TEXT PRIMARY KEY,
	resource_id TEXT NOT NULL,
	job_class   TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intents_class_resource
	ON intents (job_class, resource_id);
`

// IntentStore はdomain.IntentStoreのSQLite実装です
// 1文ずつのアトミックなステートメントのみを使うため追加のロックは不要です
type IntentStore struct {
	db *sql.DB
}

// NewIntentStore はスキーマを適用してIntentStoreを作成します
func NewIntentStore(db *sql.DB) (*IntentStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply intent schema: %w", err)
	}
	return &IntentStore{db: db}, nil
}

// Record はIntentRecordを保存します
// 同一ジョブIDの再登録はcreated_atを保持したまま上書きします
func (s *IntentStore) Record(ctx context.Context, intent domain.IntentRecord) error {
	if intent.JobID == "" {
		return domain.ValidationError("job ID is required")
	}
	createdAt := intent.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO intents (job_id, resource_id, job_class, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
			resource_id = excluded.resource_id,
			job_class   = excluded.job_class`,
		intent.JobID, intent.ResourceID, string(intent.JobClass), createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record intent: %w", err)
	}
	return nil
}

// Forget はIntentRecordを削除します。存在しないジョブIDでもエラーになりません
func (s *IntentStore) Forget(ctx context.Context, jobID string) error {
	if jobID == "" {
		return domain.ValidationError("job ID is required")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM intents WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to forget intent: %w", err)
	}
	return nil
}

// ListActive は未終端と思われる全IntentRecordを登録順で返します
func (s *IntentStore) ListActive(ctx context.Context) ([]domain.IntentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, resource_id, job_class, created_at
		FROM intents
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list intents: %w", err)
	}
	defer rows.Close()

	var intents []domain.IntentRecord
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intents: %w", err)
	}
	return intents, nil
}

// FindActive は(ジョブ種別, リソースID)に対応するアクティブなレコードを返します
// 複数存在する場合（single-activeでない種別）は最も古いものを返します
func (s *IntentStore) FindActive(ctx context.Context, class domain.JobClass, resourceID string) (*domain.IntentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, resource_id, job_class, created_at
		FROM intents
		WHERE job_class = ? AND resource_id = ?
		ORDER BY created_at ASC
		LIMIT 1`,
		string(class), resourceID,
	)

	intent, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

// scanner はsql.Rowとsql.Rowsに共通のScanインターフェース
type scanner interface {
	Scan(dest ...any) error
}

func scanIntent(row scanner) (domain.IntentRecord, error) {
	var (
		intent    domain.IntentRecord
		class     string
		createdAt time.Time
	)
	if err := row.Scan(&intent.JobID, &intent.ResourceID, &class, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IntentRecord{}, err
		}
		return domain.IntentRecord{}, fmt.Errorf("failed to scan intent: %w", err)
	}
	intent.JobClass = domain.JobClass(class)
	intent.CreatedAt = createdAt
	return intent, nil
}
