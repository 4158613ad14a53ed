package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
)

// ArchiveIngestAction はアーカイブ取り込みジョブを開始して追跡するアクション
func ArchiveIngestAction(ctx context.Context, cmd *cli.Command) error {
	project := cmd.String("project")
	file := cmd.String("file")
	contentType := cmd.String("content-type")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("アーカイブ取り込みジョブを開始します", "project", project, "file", file)

	params := domain.StartParams{
		"archive_path": file,
	}
	if contentType != "" {
		params["content_type"] = contentType
	}

	if err := startAndWatch(ctx, appCtx, domain.JobClassArchiveIngest, project, params); err != nil {
		slog.Error("アーカイブ取り込みジョブの追跡に失敗しました", "error", err)
		return err
	}
	return nil
}

// ArchiveHistoryAction はリソースの取り込みジョブ履歴を表示するアクション
func ArchiveHistoryAction(ctx context.Context, cmd *cli.Command) error {
	project := cmd.String("project")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	sessions, err := appCtx.Container.Tracker.History(ctx, domain.JobClassArchiveIngest, project)
	if err != nil {
		slog.Error("取り込み履歴の取得に失敗しました", "error", err)
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("取り込みジョブはありません")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tSTATUS\tPROGRESS\tCOMPLETED")
	for _, s := range sessions {
		completed := "-"
		if s.CompletedAt != nil {
			completed = s.CompletedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.JobID, s.Status, formatProgress(s), completed)
	}
	return w.Flush()
}
