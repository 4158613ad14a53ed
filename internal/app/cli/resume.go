package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// ResumeAction は永続化されたintentの追跡を再開し、全ジョブの終端まで待つアクション
func ResumeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	handles, err := appCtx.Container.Tracker.Resume(ctx)
	if err != nil {
		slog.Error("intentの再開に失敗しました", "error", err)
		return err
	}
	if len(handles) == 0 {
		fmt.Println("再開するジョブはありません")
		return nil
	}

	slog.Info("ジョブの追跡を再開しました", "count", len(handles))

	// 全ジョブが終端に達するか、ユーザーが中断するまで待機する
	for _, handle := range handles {
		select {
		case <-ctx.Done():
			for _, h := range handles {
				appCtx.Container.Tracker.Cancel(h.JobID())
			}
			slog.Info("追跡を中断しました（resumeコマンドで再開できます）")
			return nil
		case <-handle.Done():
		}
	}
	return nil
}

// ActiveAction は永続化されているアクティブなintentの一覧を表示するアクション
func ActiveAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	intents, err := appCtx.Container.Tracker.ListIntents(ctx)
	if err != nil {
		slog.Error("intent一覧の取得に失敗しました", "error", err)
		return err
	}

	if len(intents) == 0 {
		fmt.Println("アクティブなジョブはありません")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tCLASS\tRESOURCE\tSTARTED")
	for _, intent := range intents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			intent.JobID,
			intent.JobClass,
			intent.ResourceID,
			intent.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

// DismissAction はジョブの追跡をやめてintentを破棄するアクション
func DismissAction(ctx context.Context, cmd *cli.Command) error {
	jobID := cmd.String("job")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.Tracker.Dismiss(ctx, jobID); err != nil {
		slog.Error("ジョブの破棄に失敗しました", "jobID", jobID, "error", err)
		return err
	}

	slog.Info("ジョブを破棄しました", "jobID", jobID)
	return nil
}
