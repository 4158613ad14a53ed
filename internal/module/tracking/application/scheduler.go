package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
)

// FetchFunc はジョブの現在状態を取得する関数です（通常はJobClient.FetchStatus）
type FetchFunc func(ctx context.Context, jobID string) (*domain.RawSnapshot, error)

// UpdateFunc は正準状態が変化するたびに呼ばれるコールバックです
type UpdateFunc func(session *domain.JobSession)

// TerminalFunc はジョブが終端ステータスに達した際に一度だけ呼ばれるコールバックです
type TerminalFunc func(session *domain.JobSession)

// LoopSpec は1ジョブ分のポーリングループの仕様を表します
type LoopSpec struct {
	// Session は初期セッション（JobID必須、非終端）
	Session *domain.JobSession
	// Policy は間隔・上限・閾値を与えるジョブ種別ごとの方針
	Policy domain.ClassPolicy
	// Fetch はステータス取得関数
	Fetch FetchFunc
	// Immediate がtrueの場合、最初のティックを待たずに即時フェッチします
	// （再起動後のintent再開で使用）
	Immediate  bool
	OnUpdate   UpdateFunc
	OnTerminal TerminalFunc
}

// Handle はアクティブなポーリングループへの参照です
type Handle struct {
	loop *pollLoop
}

// JobID はこのループが追跡しているジョブIDを返します
func (h *Handle) JobID() string {
	return h.loop.spec.Session.JobID
}

// Done はループが停止した時点でcloseされるチャネルを返します
func (h *Handle) Done() <-chan struct{} {
	return h.loop.done
}

// Session は現時点の正準セッションのコピーを返します
func (h *Handle) Session() *domain.JobSession {
	h.loop.mu.Lock()
	defer h.loop.mu.Unlock()
	return h.loop.session.Clone()
}

// Scheduler はジョブごとのポーリングループを駆動します
// 各ループは自身のシーケンス番号とセッションを所有するため、
// 異なるジョブ同士はロックを共有せずに並行動作します
type Scheduler struct {
	logger *slog.Logger

	mu    sync.Mutex
	loops map[string]*pollLoop
}

// NewScheduler は新しいSchedulerを作成します
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger: logger,
		loops:  make(map[string]*pollLoop),
	}
}

// Schedule はジョブのポーリングループを開始します
// 同一ジョブIDのループが既にアクティブな場合は新しいループを開始せず、
// 既存のHandleをそのまま返します
func (s *Scheduler) Schedule(spec LoopSpec) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobID := spec.Session.JobID
	if existing, ok := s.loops[jobID]; ok {
		return existing.handle
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &pollLoop{
		spec:    spec,
		logger:  s.logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		session: spec.Session.Clone(),
	}
	l.handle = &Handle{loop: l}
	s.loops[jobID] = l

	go l.run(s)

	s.logger.Debug("polling loop scheduled",
		"jobID", jobID,
		"jobClass", spec.Session.JobClass,
		"interval", spec.Policy.Interval,
		"maxDuration", spec.Policy.MaxDuration,
	)
	return l.handle
}

// Cancel はジョブのポーリングループを即時停止します。冪等です
// 実行中のフェッチがあっても、その結果の反映は無条件に抑止されます
func (s *Scheduler) Cancel(jobID string) {
	s.mu.Lock()
	l, ok := s.loops[jobID]
	s.mu.Unlock()
	if !ok {
		return
	}

	l.mu.Lock()
	l.canceled = true
	l.mu.Unlock()
	l.cancel()
}

// Active はジョブのループがアクティブかどうかを返します
func (s *Scheduler) Active(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[jobID]
	return ok
}

// Close は全ループを停止し、終了を待ちます
func (s *Scheduler) Close() {
	s.mu.Lock()
	loops := make([]*pollLoop, 0, len(s.loops))
	for _, l := range s.loops {
		loops = append(loops, l)
	}
	s.mu.Unlock()

	for _, l := range loops {
		l.mu.Lock()
		l.canceled = true
		l.mu.Unlock()
		l.cancel()
	}
	for _, l := range loops {
		<-l.done
	}
}

func (s *Scheduler) remove(jobID string) {
	s.mu.Lock()
	delete(s.loops, jobID)
	s.mu.Unlock()
}

// === ポーリングループ本体 ===

// pollLoop は1ジョブ分のポーリング状態を保持します
type pollLoop struct {
	spec   LoopSpec
	logger *slog.Logger
	handle *Handle

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	session *domain.JobSession
	// nextSeq は発行済みフェッチの通し番号
	nextSeq uint64
	// appliedSeq は反映済みレスポンスの最大シーケンス番号
	// これ以下の番号のレスポンスは遅延到着とみなして破棄します
	appliedSeq uint64
	// failures は連続した通信失敗の回数
	failures int
	canceled bool
	terminal bool
}

// run はティックごとにフェッチを発行するループです
// ループ自体は単一goroutineで駆動され、同一ジョブのティック処理が
// 並行実行されることはありません（フェッチの発行と反映は非同期）
func (l *pollLoop) run(s *Scheduler) {
	defer close(l.done)
	defer s.remove(l.spec.Session.JobID)
	defer l.cancel()

	deadline := time.Now().Add(l.spec.Policy.MaxDuration)

	if l.spec.Immediate {
		l.dispatchFetch()
	}

	ticker := time.NewTicker(l.spec.Policy.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case now := <-ticker.C:
			if !now.Before(deadline) {
				l.markTimedOut()
				return
			}
			l.dispatchFetch()
		}
	}
}

// dispatchFetch はシーケンス番号を採番してフェッチを非同期に発行します
func (l *pollLoop) dispatchFetch() {
	l.mu.Lock()
	if l.canceled || l.terminal {
		l.mu.Unlock()
		return
	}
	l.nextSeq++
	seq := l.nextSeq
	jobID := l.session.JobID
	l.mu.Unlock()

	go func() {
		raw, err := l.spec.Fetch(l.ctx, jobID)
		l.applyResponse(seq, raw, err)
	}()
}

// applyResponse はフェッチ結果を正準状態に反映します
// キャンセル済み・終端到達後・古いシーケンス番号のレスポンスは破棄されます
func (l *pollLoop) applyResponse(seq uint64, raw *domain.RawSnapshot, err error) {
	l.mu.Lock()

	if l.canceled || l.terminal {
		l.mu.Unlock()
		return
	}
	if seq <= l.appliedSeq {
		// ネットワーク遅延で追い越されたレスポンス。新しい状態を上書きさせない
		l.mu.Unlock()
		return
	}
	l.appliedSeq = seq

	now := time.Now()
	var next *domain.JobSession

	switch {
	case err == nil:
		l.failures = 0
		next = domain.Reconcile(l.session, *raw, now)

	case errors.Is(err, domain.ErrNotFound):
		// サーバーがジョブを忘れている。一時障害ではなく終端(Unknown)として扱う
		next = l.session.Clone()
		next.Status = domain.StatusUnknown
		next.UpdatedAt = now
		next.CompletedAt = &now

	default:
		// 通信失敗は一時的なものとして直前の状態を保持し、次のティックで再試行する
		l.failures++
		l.logger.Warn("status fetch failed",
			"jobID", l.session.JobID,
			"consecutiveFailures", l.failures,
			"error", err,
		)
		threshold := l.spec.Policy.DegradedThreshold
		if threshold > 0 && l.failures >= threshold && l.session.Status != domain.StatusDegraded {
			next = l.session.Clone()
			next.Status = domain.StatusDegraded
			next.UpdatedAt = now
		} else {
			l.mu.Unlock()
			return
		}
	}

	l.session = next
	reachedTerminal := next.Status.Terminal()
	if reachedTerminal {
		l.terminal = true
	}
	out := next.Clone()
	l.mu.Unlock()

	if reachedTerminal {
		l.cancel()
		if l.spec.OnTerminal != nil {
			l.spec.OnTerminal(out)
		}
		return
	}
	if l.spec.OnUpdate != nil {
		l.spec.OnUpdate(out)
	}
}

// markTimedOut は監視上限に達したジョブをTimedOutとして確定します
// サーバー側の真の結果は不明のため、Failedとは区別されます
func (l *pollLoop) markTimedOut() {
	l.mu.Lock()
	if l.canceled || l.terminal {
		l.mu.Unlock()
		return
	}
	now := time.Now()
	next := l.session.Clone()
	next.Status = domain.StatusTimedOut
	next.UpdatedAt = now
	next.CompletedAt = &now
	l.session = next
	l.terminal = true
	out := next.Clone()
	l.mu.Unlock()

	l.logger.Warn("polling ceiling reached",
		"jobID", out.JobID,
		"jobClass", out.JobClass,
		"maxDuration", l.spec.Policy.MaxDuration,
	)
	if l.spec.OnTerminal != nil {
		l.spec.OnTerminal(out)
	}
}
