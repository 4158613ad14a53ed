package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
	testutil "github.com/jinford/jobwatch/internal/module/tracking/testing"
)

// collectingCallbacks はコールバック呼び出しを記録するテストヘルパー
type collectingCallbacks struct {
	mu        sync.Mutex
	updates   []*domain.JobSession
	terminals []*domain.JobSession
}

func (c *collectingCallbacks) onUpdate(s *domain.JobSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, s)
}

func (c *collectingCallbacks) onTerminal(s *domain.JobSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminals = append(c.terminals, s)
}

func (c *collectingCallbacks) updateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func (c *collectingCallbacks) terminalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.terminals)
}

func (c *collectingCallbacks) lastUpdate() *domain.JobSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.updates) == 0 {
		return nil
	}
	return c.updates[len(c.updates)-1]
}

func fastPolicy() domain.ClassPolicy {
	return domain.ClassPolicy{
		Interval:          10 * time.Millisecond,
		MaxDuration:       5 * time.Second,
		DegradedThreshold: 3,
	}
}

// idlePolicy はティックが発火しない（手動でapplyResponseを呼ぶ）テスト用の方針
func idlePolicy() domain.ClassPolicy {
	return domain.ClassPolicy{
		Interval:          time.Hour,
		MaxDuration:       24 * time.Hour,
		DegradedThreshold: 3,
	}
}

// getLoop はテストからループ内部にアクセスするためのヘルパー
func (s *Scheduler) getLoop(t *testing.T, jobID string) *pollLoop {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loops[jobID]
	require.True(t, ok, "loop for %s should be active", jobID)
	return l
}

func TestScheduler_OrderedResponsesReachReady(t *testing.T) {
	// {processing,40%} -> {processing,70%} -> {ready,100%} が順に適用され、
	// 最終状態がReady/100%になること
	sched := NewScheduler(nil)
	defer sched.Close()
	callbacks := &collectingCallbacks{}

	var calls atomic.Int64
	fetch := func(ctx context.Context, jobID string) (*domain.RawSnapshot, error) {
		switch calls.Add(1) {
		case 1:
			return testutil.ProcessingSnapshot(jobID, 40), nil
		case 2:
			return testutil.ProcessingSnapshot(jobID, 70), nil
		default:
			return testutil.ReadySnapshot(jobID), nil
		}
	}

	handle := sched.Schedule(LoopSpec{
		Session:    testutil.TestSession("job-1", domain.JobClassIndexBuild, domain.StatusPending),
		Policy:     fastPolicy(),
		Fetch:      fetch,
		OnUpdate:   callbacks.onUpdate,
		OnTerminal: callbacks.onTerminal,
	})

	select {
	case <-handle.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not reach terminal state")
	}

	final := handle.Session()
	assert.Equal(t, domain.StatusReady, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.NotNil(t, final.CompletedAt)
	assert.Equal(t, 1, callbacks.terminalCount())
}

func TestScheduler_StaleResponseDiscarded(t *testing.T) {
	// ネットワーク遅延で追い越された古いシーケンス番号のレスポンスが
	// 新しい状態を上書きしないこと
	sched := NewScheduler(nil)
	defer sched.Close()
	callbacks := &collectingCallbacks{}

	sched.Schedule(LoopSpec{
		Session:  testutil.TestSession("job-1", domain.JobClassIndexBuild, domain.StatusPending),
		Policy:   idlePolicy(),
		Fetch:    func(ctx context.Context, jobID string) (*domain.RawSnapshot, error) { return nil, nil },
		OnUpdate: callbacks.onUpdate,
	})
	l := sched.getLoop(t, "job-1")

	// seq=2（70%）が先に到着し、seq=1（40%）が遅れて到着する
	l.applyResponse(2, testutil.ProcessingSnapshot("job-1", 70), nil)
	l.applyResponse(1, testutil.ProcessingSnapshot("job-1", 40), nil)

	session := l.handle.Session()
	assert.Equal(t, 70, session.Progress)
	// 破棄されたレスポンスはコールバックも発火しない
	assert.Equal(t, 1, callbacks.updateCount())
}

func TestScheduler_CancelSuppressesLateResponse(t *testing.T) {
	// cancel後に到着したレスポンスは状態変化もコールバックも起こさないこと
	sched := NewScheduler(nil)
	callbacks := &collectingCallbacks{}

	handle := sched.Schedule(LoopSpec{
		Session:    testutil.TestSession("job-1", domain.JobClassIndexBuild, domain.StatusPending),
		Policy:     idlePolicy(),
		Fetch:      func(ctx context.Context, jobID string) (*domain.RawSnapshot, error) { return nil, nil },
		OnUpdate:   callbacks.onUpdate,
		OnTerminal: callbacks.onTerminal,
	})
	l := sched.getLoop(t, "job-1")

	sched.Cancel("job-1")
	<-handle.Done()

	l.applyResponse(1, testutil.ReadySnapshot("job-1"), nil)

	session := handle.Session()
	assert.Equal(t, domain.StatusPending, session.Status)
	assert.Equal(t, 0, callbacks.updateCount())
	assert.Equal(t, 0, callbacks.terminalCount())
}

func TestScheduler_CancelIdempotent(t *testing.T) {
	sched := NewScheduler(nil)

	handle := sched.Schedule(LoopSpec{
		Session: testutil.TestSession("job-1", domain.JobClassIndexBuild, domain.StatusPending),
		Policy:  idlePolicy(),
		Fetch:   func(ctx context.Context, jobID string) (*domain.RawSnapshot, error) { return nil, nil },
	})

	sched.Cancel("job-1")
	sched.Cancel("job-1")
	// 存在しないジョブIDも安全
	sched.Cancel("no-such-job")

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("canceled loop did not stop")
	}
}

func TestScheduler_ReentrantScheduleReturnsSameHandle(t *testing.T) {
	// アクティブなジョブへの再スケジュールはタイマーを複製せず既存Handleを返すこと
	sched := NewScheduler(nil)
	defer sched.Close()

	spec := LoopSpec{
		Session: testutil.TestSession("job-1", domain.JobClassIndexBuild, domain.StatusPending),
		Policy:  idlePolicy(),
		Fetch:   func(ctx context.Context, jobID string) (*domain.RawSnapshot, error) { return nil, nil },
	}

	h1 := sched.Schedule(spec)
	h2 := sched.Schedule(spec)

	assert.Same(t, h1, h2)
}

func TestScheduler_NoDuplicateFetchesPerTick(t *testing.T) {
	// 再スケジュールしてもティックごとのフェッチが倍にならないこと
	sched := NewScheduler(nil)
	defer sched.Close()

	var calls atomic.Int64
	spec := LoopSpec{
		Session: testutil.TestSession("job-1", domain.JobClassIndexBuild, domain.StatusPending),
		Policy: domain.ClassPolicy{
			Interval:          20 * time.Millisecond,
			MaxDuration:       5 * time.Second,
			DegradedThreshold: 3,
		},
		Fetch: func(ctx context.Context, jobID string) (*domain.RawSnapshot, error) {
			calls.Add(1)
			return testutil.ProcessingSnapshot(jobID, 10), nil
		},
	}

	sched.Schedule(spec)
	sched.Schedule(spec)
	sched.Schedule(spec)

	time.Sleep(110 * time.Millisecond)
	sched.Close()

	// 約5ティック分。重複ループがあれば2倍以上になる
	got := calls.Load()
	assert.LessOrEqual(t, got, int64(7))
	assert.GreaterOrEqual(t, got, int64(3))
}

func TestScheduler_TimeoutMarksTimedOut(t *testing.T) {
	// 終端に達しないままmax_durationを超えたジョブはTimedOutになり、
	// 以後フェッチが発行されないこと
	sched := NewScheduler(nil)
	callbacks := &collectingCallbacks{}

	var calls atomic.Int64
	handle := sched.Schedule(LoopSpec{
		Session: testutil.TestSession("job-1", domain.JobClassIndexBuild, domain.StatusPending),
		Policy: domain.ClassPolicy{
			Interval:          10 * time.Millisecond,
			MaxDuration:       55 * time.Millisecond,
			DegradedThreshold: 3,
		},
		Fetch: func(ctx context.Context, jobID string) (*domain.RawSnapshot, error) {
			calls.Add(1)
			return testutil.ProcessingSnapshot(jobID, 30), nil
		},
		OnTerminal: callbacks.onTerminal,
	})

	select {
	case <-handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not time out")
	}

	final := handle.Session()
	assert.Equal(t, domain.StatusTimedOut, final.Status)
	assert.NotNil(t, final.CompletedAt)
	assert.Equal(t, 1, callbacks.terminalCount())

	// 停止後にフェッチが増えないこと
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestScheduler_DegradedAfterConsecutiveFailures(t *testing.T) {
	// 閾値3で5連続の通信失敗:
	// 3回目でDegradedに遷移し、4・5回目もDegradedのまま（Failedにしない）、
	// 次の成功で通常の状態に復帰すること
	sched := NewScheduler(nil)
	defer sched.Close()
	callbacks := &collectingCallbacks{}

	sched.Schedule(LoopSpec{
		Session:  testutil.TestSession("job-1", domain.JobClassIndexBuild, domain.StatusProcessing),
		Policy:   idlePolicy(),
		Fetch:    func(ctx context.Context, jobID string) (*domain.RawSnapshot, error) { return nil, nil },
		OnUpdate: callbacks.onUpdate,
	})
	l := sched.getLoop(t, "job-1")

	transportErr := domain.TransportError(assert.AnError)

	l.applyResponse(1, nil, transportErr)
	l.applyResponse(2, nil, transportErr)
	assert.Equal(t, domain.StatusProcessing, l.handle.Session().Status)
	assert.Equal(t, 0, callbacks.updateCount())

	l.applyResponse(3, nil, transportErr)
	assert.Equal(t, domain.StatusDegraded, l.handle.Session().Status)
	assert.Equal(t, 1, callbacks.updateCount())

	l.applyResponse(4, nil, transportErr)
	l.applyResponse(5, nil, transportErr)
	assert.Equal(t, domain.StatusDegraded, l.handle.Session().Status)
	// Degraded継続中は重複通知しない
	assert.Equal(t, 1, callbacks.updateCount())

	// 成功すると通常の状態に復帰する
	l.applyResponse(6, testutil.ProcessingSnapshot("job-1", 45), nil)
	session := l.handle.Session()
	assert.Equal(t, domain.StatusProcessing, session.Status)
	assert.Equal(t, 45, session.Progress)
}

func TestScheduler_NotFoundIsTerminalUnknown(t *testing.T) {
	// サーバーがジョブを忘れている場合は一時障害ではなく終端(Unknown)として扱うこと
	sched := NewScheduler(nil)
	callbacks := &collectingCallbacks{}

	handle := sched.Schedule(LoopSpec{
		Session:    testutil.TestSession("job-1", domain.JobClassIndexBuild, domain.StatusProcessing),
		Policy:     idlePolicy(),
		Fetch:      func(ctx context.Context, jobID string) (*domain.RawSnapshot, error) { return nil, nil },
		OnTerminal: callbacks.onTerminal,
	})
	l := sched.getLoop(t, "job-1")

	l.applyResponse(1, nil, domain.NotFoundError("job-1"))

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after not-found")
	}

	final := handle.Session()
	assert.Equal(t, domain.StatusUnknown, final.Status)
	assert.NotNil(t, final.CompletedAt)
	assert.Equal(t, 1, callbacks.terminalCount())
}

func TestScheduler_ImmediateFetch(t *testing.T) {
	// Immediate指定時は最初のティックを待たずにフェッチが発行されること
	sched := NewScheduler(nil)
	defer sched.Close()

	var calls atomic.Int64
	sched.Schedule(LoopSpec{
		Session:   testutil.TestSession("job-1", domain.JobClassIndexBuild, domain.StatusPending),
		Policy:    idlePolicy(),
		Immediate: true,
		Fetch: func(ctx context.Context, jobID string) (*domain.RawSnapshot, error) {
			calls.Add(1)
			return testutil.ProcessingSnapshot(jobID, 10), nil
		},
	})

	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_CloseStopsAllLoops(t *testing.T) {
	sched := NewScheduler(nil)

	h1 := sched.Schedule(LoopSpec{
		Session: testutil.TestSession("job-1", domain.JobClassIndexBuild, domain.StatusPending),
		Policy:  idlePolicy(),
		Fetch:   func(ctx context.Context, jobID string) (*domain.RawSnapshot, error) { return nil, nil },
	})
	h2 := sched.Schedule(LoopSpec{
		Session: testutil.TestSession("job-2", domain.JobClassArchiveIngest, domain.StatusPending),
		Policy:  idlePolicy(),
		Fetch:   func(ctx context.Context, jobID string) (*domain.RawSnapshot, error) { return nil, nil },
	})

	sched.Close()

	select {
	case <-h1.Done():
	default:
		t.Fatal("job-1 loop still active after Close")
	}
	select {
	case <-h2.Done():
	default:
		t.Fatal("job-2 loop still active after Close")
	}
	assert.False(t, sched.Active("job-1"))
	assert.False(t, sched.Active("job-2"))
}
