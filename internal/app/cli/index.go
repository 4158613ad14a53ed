package cli

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/jobwatch/internal/module/tracking/domain"
)

// IndexBuildAction はベクトルインデックス構築ジョブを開始して追跡するアクション
func IndexBuildAction(ctx context.Context, cmd *cli.Command) error {
	project := cmd.String("project")
	ref := cmd.String("ref")
	forceInit := cmd.Bool("force-init")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("インデックス構築ジョブを開始します",
		"project", project,
		"ref", ref,
		"forceInit", forceInit,
	)

	params := domain.StartParams{}
	if forceInit {
		params["force_init"] = true
	}
	if ref != "" {
		params["ref"] = ref
	}

	if err := startAndWatch(ctx, appCtx, domain.JobClassIndexBuild, project, params); err != nil {
		slog.Error("インデックス構築ジョブの追跡に失敗しました", "error", err)
		return err
	}
	return nil
}
