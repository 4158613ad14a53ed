package domain

import (
	"strings"
	"time"
)

// statusMapping はサーバーの生ステータス文字列から正準ステータスへの対応表です
// ここに無い文字列は「未知」として直前の正準ステータスを維持します
var statusMapping = map[string]Status{
	"pending":     StatusPending,
	"configuring": StatusConfiguring,
	"processing":  StatusProcessing,
	"indexing":    StatusProcessing,
	"ready":       StatusReady,
	"completed":   StatusReady,
	"offline":     StatusOffline,
	"failed":      StatusFailed,
	"error":       StatusFailed,
}

// heuristicProgress はサーバーが進捗率を返さない場合に合成する段階別の概算値です
// 正確な値ではないため、合成結果にはProgressHeuristicフラグが立ちます
var heuristicProgress = map[Status]int{
	StatusPending:     50,
	StatusConfiguring: 65,
	StatusProcessing:  90,
	StatusReady:       100,
}

// MapRawStatus は生ステータス文字列を正準ステータスに変換します
// 認識できない場合は第2戻り値がfalseになります
func MapRawStatus(raw string) (Status, bool) {
	s, ok := statusMapping[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}

// Reconcile は生スナップショットと直前の状態から次の正準状態を導出する純関数です
// prevは変更されません。prevがnilの場合は新規セッションとして扱います
//
// 不変条件:
//   - CompletedAtは終端ステータスの場合に限り設定される
//   - Progressは同一ジョブ内で減少しない。正準ステータス自体が変化した
//     スナップショットに伴う場合のみ後退が許される
func Reconcile(prev *JobSession, raw RawSnapshot, now time.Time) *JobSession {
	next := prev.Clone()
	if next == nil {
		next = &JobSession{
			JobID:     raw.JobID,
			Status:    StatusPending,
			CreatedAt: now,
		}
		if raw.CreatedAt != nil {
			next.CreatedAt = *raw.CreatedAt
		}
	}

	// ステータス変換。未知・欠落の場合は直前の値を維持する
	// （不正なスナップショット1回でUIがUnknownにちらつくのを防ぐ）
	statusChanged := false
	if mapped, ok := MapRawStatus(raw.Status); ok {
		statusChanged = mapped != next.Status
		next.Status = mapped
	}

	if raw.Stage != "" {
		next.Stage = raw.Stage
	}

	next.applyProgress(prev, raw, statusChanged)

	if raw.Counts != nil {
		counts := *raw.Counts
		next.Counts = &counts
	}
	if raw.ErrorMessage != "" {
		next.ErrorMessage = raw.ErrorMessage
	}

	next.UpdatedAt = now
	if raw.UpdatedAt != nil {
		next.UpdatedAt = *raw.UpdatedAt
	}

	// 終端検出。終端への最初の遷移でCompletedAtを確定する
	if next.Status.Terminal() {
		if prev == nil || !prev.Status.Terminal() || prev.CompletedAt == nil {
			completed := now
			if raw.CompletedAt != nil {
				completed = *raw.CompletedAt
			}
			next.CompletedAt = &completed
		}
	} else {
		// 強制再実行などでReady→Processingに戻った場合はCompletedAtを解除する
		next.CompletedAt = nil
	}

	return next
}

// applyProgress は進捗率の反映を行います
// サーバーが明示値を返さない場合はヒューリスティック表から合成し、
// 単調性ルール（ステータス遷移を伴わない後退は破棄）を適用します
func (next *JobSession) applyProgress(prev *JobSession, raw RawSnapshot, statusChanged bool) {
	candidate := next.Progress
	heuristic := next.ProgressHeuristic

	if raw.Progress != nil {
		candidate = clampPercent(*raw.Progress)
		heuristic = false
	} else if h, ok := heuristicProgress[next.Status]; ok {
		candidate = h
		heuristic = true
	}

	if prev != nil && candidate < prev.Progress && !statusChanged {
		// ステータス遷移を伴わない後退は通信の乱れとみなして破棄する
		return
	}

	next.Progress = candidate
	next.ProgressHeuristic = heuristic
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
