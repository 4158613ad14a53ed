package cli

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
)

// AssessmentRunAction はAIドキュメント評価ジョブを開始して追跡するアクション
func AssessmentRunAction(ctx context.Context, cmd *cli.Command) error {
	project := cmd.String("project")
	collection := cmd.String("collection")
	rubric := cmd.String("rubric")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("ドキュメント評価ジョブを開始します",
		"project", project,
		"collection", collection,
	)

	params := domain.StartParams{
		"collection": collection,
	}
	if rubric != "" {
		params["rubric"] = rubric
	}

	if err := startAndWatch(ctx, appCtx, domain.JobClassAssessmentRun, project, params); err != nil {
		slog.Error("ドキュメント評価ジョブの追跡に失敗しました", "error", err)
		return err
	}
	return nil
}
