package domain

import "time"

// ClassPolicy はジョブ種別ごとのポーリング方針を表します
type ClassPolicy struct {
	// Interval はステータス取得の間隔
	Interval time.Duration

	// MaxDuration は終端に達しないまま監視を続ける上限時間
	// 超過したジョブはTimedOutとして打ち切られます
	MaxDuration time.Duration

	// DegradedThreshold は連続通信失敗がこの回数に達した時点で
	// Degraded（非終端）に遷移させる閾値
	DegradedThreshold int

	// SingleActive は同一リソースに対するアクティブジョブを1つに制限するか
	// アーカイブ取り込みはバッチの重複実行を許すため既定でfalse
	SingleActive bool
}

// DefaultPolicies はジョブ種別ごとの既定方針を返します
// 間隔・上限は環境変数で上書きできます（platform/config参照）
func DefaultPolicies() map[JobClass]ClassPolicy {
	return map[JobClass]ClassPolicy{
		JobClassIndexBuild: {
			Interval:          5 * time.Second,
			MaxDuration:       30 * time.Minute,
			DegradedThreshold: 3,
			SingleActive:      true,
		},
		JobClassArchiveIngest: {
			Interval:          2 * time.Second,
			MaxDuration:       20 * time.Minute,
			DegradedThreshold: 3,
			SingleActive:      false,
		},
		JobClassAssessmentRun: {
			Interval:          10 * time.Second,
			MaxDuration:       15 * time.Minute,
			DegradedThreshold: 3,
			SingleActive:      true,
		},
	}
}
