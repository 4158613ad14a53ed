package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/jobwatch/internal/app/cli"
)

// envFlag は全コマンド共通の環境変数ファイル指定フラグ
func envFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定（コマンド側で設定読み込み後に上書きされる）
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "jobwatch",
		Usage: "サーバー側の長時間ジョブ（インデックス構築・アーカイブ取り込み・ドキュメント評価）をポーリングで追跡するクライアント",
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "ベクトルインデックス構築ジョブ",
				Commands: []*cli.Command{
					{
						Name:  "build",
						Usage: "インデックス構築ジョブを開始して終端まで追跡",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "project",
								Usage:    "対象プロジェクトID",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "ref",
								Usage: "インデックス対象のバージョン参照（ブランチ等）",
							},
							&cli.BoolFlag{
								Name:  "force-init",
								Usage: "差分ではなく全件を再インデックス",
							},
						},
						Action: appcli.IndexBuildAction,
					},
				},
			},
			{
				Name:  "archive",
				Usage: "アーカイブ一括取り込みジョブ",
				Commands: []*cli.Command{
					{
						Name:  "ingest",
						Usage: "アーカイブ取り込みジョブを開始して終端まで追跡",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "project",
								Usage:    "対象プロジェクトID",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "file",
								Usage:    "サーバーから参照可能なアーカイブの場所",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "content-type",
								Usage: "アーカイブの形式（例: application/zip）",
							},
						},
						Action: appcli.ArchiveIngestAction,
					},
					{
						Name:  "history",
						Usage: "プロジェクトの取り込みジョブ履歴を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "project",
								Usage:    "対象プロジェクトID",
								Required: true,
							},
						},
						Action: appcli.ArchiveHistoryAction,
					},
				},
			},
			{
				Name:  "assess",
				Usage: "AIドキュメント評価ジョブ",
				Commands: []*cli.Command{
					{
						Name:  "run",
						Usage: "ドキュメント評価ジョブを開始して終端まで追跡",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "project",
								Usage:    "対象プロジェクトID",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "collection",
								Usage:    "評価対象のドキュメントコレクション名",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "rubric",
								Usage: "評価基準の識別子",
							},
						},
						Action: appcli.AssessmentRunAction,
					},
				},
			},
			{
				Name:   "resume",
				Usage:  "前回実行中だったジョブの追跡を再開",
				Flags:  []cli.Flag{envFlag()},
				Action: appcli.ResumeAction,
			},
			{
				Name:   "active",
				Usage:  "実行中と思われるジョブの一覧を表示",
				Flags:  []cli.Flag{envFlag()},
				Action: appcli.ActiveAction,
			},
			{
				Name:  "dismiss",
				Usage: "ジョブの追跡をやめてローカル記録を破棄",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "job",
						Usage:    "ジョブID",
						Required: true,
					},
				},
				Action: appcli.DismissAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
