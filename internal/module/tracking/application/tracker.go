package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
)

// resumeConcurrency は起動時のintent再開で同時に発行する即時フェッチの上限
const resumeConcurrency = 4

// Tracker は非同期ジョブ追跡のビジネスフローを統括します
// アダプタ・IntentStore・Schedulerを束ね、UIにはコールバックで状態を通知します
type Tracker struct {
	// ドメインポート
	clients map[domain.JobClass]domain.JobClient
	store   domain.IntentStore

	// ポーリング方針（ジョブ種別ごと）
	policies map[domain.JobClass]domain.ClassPolicy

	// 技術基盤
	sched  *Scheduler
	logger *slog.Logger

	// UIポート
	onUpdate   UpdateFunc
	onTerminal TerminalFunc
}

// NewTracker は新しいTrackerを作成します
// policiesに無い種別はDefaultPoliciesの値が使われます
func NewTracker(
	clients []domain.JobClient,
	store domain.IntentStore,
	policies map[domain.JobClass]domain.ClassPolicy,
	logger *slog.Logger,
	onUpdate UpdateFunc,
	onTerminal TerminalFunc,
) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	byClass := make(map[domain.JobClass]domain.JobClient, len(clients))
	for _, c := range clients {
		byClass[c.Class()] = c
	}
	merged := domain.DefaultPolicies()
	for class, p := range policies {
		merged[class] = p
	}
	return &Tracker{
		clients:    byClass,
		store:      store,
		policies:   merged,
		sched:      NewScheduler(logger),
		logger:     logger,
		onUpdate:   onUpdate,
		onTerminal: onTerminal,
	}
}

// Start はジョブを開始し、ポーリングによる追跡を始めます
//
// single-active方針の種別で同一リソースにアクティブなジョブが既にある場合は
// 新しいジョブを開始せず、既存ジョブのセッションとErrConflictを返します
// （呼び出し側は「実行中」としてそのまま既存ジョブを追跡できます）
func (t *Tracker) Start(ctx context.Context, class domain.JobClass, resourceID string, params domain.StartParams) (*domain.JobSession, *Handle, error) {
	if !class.Valid() {
		return nil, nil, domain.ValidationError("unknown job class %q", class)
	}
	if resourceID == "" {
		return nil, nil, domain.ValidationError("resource ID is required")
	}
	client, ok := t.clients[class]
	if !ok {
		return nil, nil, domain.ValidationError("no client registered for class %q", class)
	}
	policy := t.policies[class]

	if policy.SingleActive {
		existing, err := t.store.FindActive(ctx, class, resourceID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check active intent: %w", err)
		}
		if existing != nil {
			return t.reuseExisting(class, *existing)
		}
	}

	raw, err := client.Start(ctx, resourceID, params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start %s job: %w", class, err)
	}

	now := time.Now()
	seed := &domain.JobSession{
		JobID:      raw.JobID,
		ResourceID: resourceID,
		JobClass:   class,
		Status:     domain.StatusPending,
		CreatedAt:  now,
	}
	session := domain.Reconcile(seed, *raw, now)

	intent := domain.IntentRecord{
		JobID:      session.JobID,
		ResourceID: resourceID,
		JobClass:   class,
		CreatedAt:  now,
	}
	if err := t.store.Record(ctx, intent); err != nil {
		// 永続化に失敗してもインメモリ追跡は続行する（再起動後の再開だけが失われる）
		t.logger.Error("failed to record intent", "jobID", session.JobID, "error", err)
	}

	handle := t.schedule(client, session, policy, false)
	t.logger.Info("job started",
		"jobID", session.JobID,
		"jobClass", class,
		"resourceID", resourceID,
	)
	return session, handle, nil
}

// reuseExisting は既存のアクティブジョブを再利用します
// ループが停止している場合（再起動直後など）は即時フェッチ付きで再アタッチします
func (t *Tracker) reuseExisting(class domain.JobClass, intent domain.IntentRecord) (*domain.JobSession, *Handle, error) {
	client := t.clients[class]
	policy := t.policies[class]

	seed := &domain.JobSession{
		JobID:      intent.JobID,
		ResourceID: intent.ResourceID,
		JobClass:   class,
		Status:     domain.StatusPending,
		CreatedAt:  intent.CreatedAt,
	}
	handle := t.schedule(client, seed, policy, true)
	session := handle.Session()

	t.logger.Info("reusing active job",
		"jobID", intent.JobID,
		"jobClass", class,
		"resourceID", intent.ResourceID,
	)
	return session, handle, domain.ConflictError(intent.JobID)
}

// Resume は永続化されたintentを読み出し、全ジョブの追跡を再開します
// 各ジョブには最初のティックを待たずに即時フェッチが発行されます
// サーバーがジョブを忘れている場合はその場でintentを破棄しUnknownとして報告します
func (t *Tracker) Resume(ctx context.Context) ([]*Handle, error) {
	intents, err := t.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active intents: %w", err)
	}
	if len(intents) == 0 {
		return nil, nil
	}

	t.logger.Info("resuming persisted intents", "count", len(intents))

	handles := make([]*Handle, len(intents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resumeConcurrency)
	for i, intent := range intents {
		i, intent := i, intent
		g.Go(func() error {
			handles[i] = t.resumeIntent(gctx, intent)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*Handle, 0, len(handles))
	for _, h := range handles {
		if h != nil {
			out = append(out, h)
		}
	}
	return out, nil
}

// resumeIntent は1件のintentの追跡を再開します
// 追跡が再開されなかった場合（終端到達・クライアント未登録）はnilを返します
func (t *Tracker) resumeIntent(ctx context.Context, intent domain.IntentRecord) *Handle {
	client, ok := t.clients[intent.JobClass]
	if !ok {
		t.logger.Error("no client for persisted intent", "jobID", intent.JobID, "jobClass", intent.JobClass)
		return nil
	}
	policy := t.policies[intent.JobClass]

	seed := &domain.JobSession{
		JobID:      intent.JobID,
		ResourceID: intent.ResourceID,
		JobClass:   intent.JobClass,
		Status:     domain.StatusPending,
		CreatedAt:  intent.CreatedAt,
	}

	raw, err := client.FetchStatus(ctx, intent.JobID)
	switch {
	case err == nil:
		now := time.Now()
		session := domain.Reconcile(seed, *raw, now)
		if session.Status.Terminal() {
			// 再起動中に終端へ達していた。ポーリングは開始せずそのまま確定する
			t.handleTerminal(session)
			return nil
		}
		return t.schedule(client, session, policy, false)

	case errors.Is(err, domain.ErrNotFound):
		// サーバーがジョブを忘れている。リトライせず即座に破棄してUnknownを報告する
		now := time.Now()
		session := seed.Clone()
		session.Status = domain.StatusUnknown
		session.UpdatedAt = now
		session.CompletedAt = &now
		t.handleTerminal(session)
		return nil

	default:
		// 一時的な通信失敗。通常のポーリングに委ねる
		t.logger.Warn("resume fetch failed, scheduling anyway",
			"jobID", intent.JobID,
			"error", err,
		)
		return t.schedule(client, seed, policy, true)
	}
}

// Cancel はジョブのポーリングを停止します。冪等です
// intentは残るため、Resumeで追跡を再開できます
func (t *Tracker) Cancel(jobID string) {
	t.sched.Cancel(jobID)
}

// Dismiss はジョブの追跡をやめ、intentも破棄します
// 完了・失敗したジョブをユーザーがUIから片付ける操作に相当します
func (t *Tracker) Dismiss(ctx context.Context, jobID string) error {
	t.sched.Cancel(jobID)
	if err := t.store.Forget(ctx, jobID); err != nil {
		return fmt.Errorf("failed to forget intent: %w", err)
	}
	return nil
}

// ListIntents は永続化されているアクティブなintentの一覧を返します
func (t *Tracker) ListIntents(ctx context.Context) ([]domain.IntentRecord, error) {
	return t.store.ListActive(ctx)
}

// History はアーカイブ取り込みのようにList APIを持つ種別のジョブ履歴を返します
func (t *Tracker) History(ctx context.Context, class domain.JobClass, resourceID string) ([]*domain.JobSession, error) {
	client, ok := t.clients[class]
	if !ok {
		return nil, domain.ValidationError("no client registered for class %q", class)
	}
	lister, ok := client.(domain.JobLister)
	if !ok {
		return nil, domain.ValidationError("job class %q does not support listing", class)
	}

	raws, err := lister.List(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s jobs: %w", class, err)
	}

	now := time.Now()
	sessions := make([]*domain.JobSession, 0, len(raws))
	for _, raw := range raws {
		seed := &domain.JobSession{
			JobID:      raw.JobID,
			ResourceID: resourceID,
			JobClass:   class,
			Status:     domain.StatusPending,
			CreatedAt:  now,
		}
		sessions = append(sessions, domain.Reconcile(seed, *raw, now))
	}
	return sessions, nil
}

// Close は全ポーリングループを停止します（シャットダウン時のteardown）
func (t *Tracker) Close() {
	t.sched.Close()
}

// schedule はSchedulerにループを登録します。既存ループがあればそのHandleが返ります
func (t *Tracker) schedule(client domain.JobClient, session *domain.JobSession, policy domain.ClassPolicy, immediate bool) *Handle {
	return t.sched.Schedule(LoopSpec{
		Session:    session,
		Policy:     policy,
		Fetch:      client.FetchStatus,
		Immediate:  immediate,
		OnUpdate:   t.onUpdate,
		OnTerminal: t.handleTerminal,
	})
}

// handleTerminal は終端到達時の後始末です
// intentを自動的に破棄してからUIへ通知します
func (t *Tracker) handleTerminal(session *domain.JobSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.store.Forget(ctx, session.JobID); err != nil {
		t.logger.Error("failed to forget intent", "jobID", session.JobID, "error", err)
	}

	t.logger.Info("job reached terminal state",
		"jobID", session.JobID,
		"jobClass", session.JobClass,
		"status", session.Status,
	)
	if t.onTerminal != nil {
		t.onTerminal(session)
	}
}
