package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jinford/jobwatch/internal/module/tracking/application"
	"github.com/jinford/jobwatch/internal/module/tracking/domain"
	"github.com/jinford/jobwatch/internal/platform/config"
	"github.com/jinford/jobwatch/internal/platform/container"
	"github.com/jinford/jobwatch/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Container *container.ServiceContainer
}

// NewAppContext は設定ファイルを読み込み、IntentStoreを開いて AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	// 設定の読み込み（platform層を使用）
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	// ロガーの初期化（platform層を使用）
	appLogger := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})

	// コンテナの初期化（platform層を使用）
	cont, err := container.NewContainer(ctx, cfg,
		container.WithContainerLogger(appLogger),
		container.WithContainerCallbacks(printUpdate, printTerminal),
	)
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}

// printUpdate は状態更新を1行で標準出力に表示する
func printUpdate(session *domain.JobSession) {
	fmt.Fprintf(os.Stdout, "  [%s] %s %s\n", session.JobID, session.Status, formatProgress(session))
}

// printTerminal は終端到達を標準出力に表示する
func printTerminal(session *domain.JobSession) {
	line := fmt.Sprintf("  [%s] %s %s", session.JobID, session.Status, formatProgress(session))
	if session.ErrorMessage != "" {
		line += " error=" + session.ErrorMessage
	}
	fmt.Fprintln(os.Stdout, line)
}

// formatProgress は進捗率を表示用に整形する
// ヒューリスティックで合成された値は概算であることを「~」で示す
func formatProgress(session *domain.JobSession) string {
	prefix := ""
	if session.ProgressHeuristic {
		prefix = "~"
	}
	s := fmt.Sprintf("%s%d%%", prefix, session.Progress)
	if session.Counts != nil && session.Counts.Total > 0 {
		s += fmt.Sprintf(" (%d/%d)", session.Counts.Processed, session.Counts.Total)
	}
	return s
}

// watchJob はジョブが終端に達するまで待機する
// Ctrl-Cなどでコンテキストが打ち切られた場合はポーリングを停止して戻る
// （intentは残るため、後で resume コマンドで追跡を再開できる）
func watchJob(ctx context.Context, appCtx *AppContext, handle *application.Handle) error {
	select {
	case <-ctx.Done():
		appCtx.Container.Tracker.Cancel(handle.JobID())
		slog.Info("追跡を中断しました（resumeコマンドで再開できます）", "jobID", handle.JobID())
		return nil
	case <-handle.Done():
	}

	final := handle.Session()
	switch final.Status {
	case domain.StatusReady:
		return nil
	case domain.StatusFailed:
		return fmt.Errorf("ジョブが失敗しました: %s", final.ErrorMessage)
	case domain.StatusTimedOut:
		return errors.New("監視上限に達したため追跡を打ち切りました（サーバー側の結果は不明です）")
	case domain.StatusUnknown:
		return errors.New("サーバーがジョブを認識していません")
	default:
		return nil
	}
}

// startAndWatch はジョブを開始し、終端まで追跡する共通フロー
func startAndWatch(ctx context.Context, appCtx *AppContext, class domain.JobClass, resourceID string, params domain.StartParams) error {
	tracker := appCtx.Container.Tracker

	session, handle, err := tracker.Start(ctx, class, resourceID, params)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) && handle != nil {
			// 既存のアクティブジョブをそのまま追跡する
			slog.Info("既にアクティブなジョブがあるため再利用します", "jobID", session.JobID)
			return watchJob(ctx, appCtx, handle)
		}
		return err
	}

	printUpdate(session)
	return watchJob(ctx, appCtx, handle)
}
