package container

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jinford/jobwatch/internal/module/tracking/adapter/httpapi"
	"github.com/jinford/jobwatch/internal/module/tracking/adapter/sqlite"
	"github.com/jinford/jobwatch/internal/module/tracking/application"
	"github.com/jinford/jobwatch/internal/module/tracking/domain"
	"github.com/jinford/jobwatch/internal/platform/config"
	"github.com/jinford/jobwatch/internal/platform/database"
)

// ServiceContainer はジョブ追跡サブシステムの依存関係を保持する。
type ServiceContainer struct {
	Tracker *application.Tracker

	logger *slog.Logger
	db     *sql.DB
}

type containerOptions struct {
	logger     *slog.Logger
	clients    []domain.JobClient
	store      domain.IntentStore
	onUpdate   application.UpdateFunc
	onTerminal application.TerminalFunc
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerClients はジョブクライアントを差し替える（テスト用）
func WithContainerClients(clients ...domain.JobClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.clients = clients
	}
}

// WithContainerIntentStore はIntentStoreを差し替える（テスト用）
func WithContainerIntentStore(store domain.IntentStore) ContainerOption {
	return func(opts *containerOptions) {
		opts.store = store
	}
}

// WithContainerCallbacks は状態更新・終端到達のUIコールバックを設定する
func WithContainerCallbacks(onUpdate application.UpdateFunc, onTerminal application.TerminalFunc) ContainerOption {
	return func(opts *containerOptions) {
		opts.onUpdate = onUpdate
		opts.onTerminal = onTerminal
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := &containerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	var db *sql.DB
	store := options.store
	if store == nil {
		var err error
		db, err = database.Open(cfg.Store.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open intent database: %w", err)
		}
		store, err = sqlite.NewIntentStore(db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize intent store: %w", err)
		}
	}

	clients := options.clients
	if clients == nil {
		api := httpapi.NewClient(
			cfg.API.BaseURL,
			cfg.API.Token,
			logger,
			httpapi.WithRateLimit(cfg.API.RequestsPerSecond, 5),
		)
		clients = []domain.JobClient{
			httpapi.NewIndexBuildClient(api),
			httpapi.NewArchiveIngestClient(api),
			httpapi.NewAssessmentRunClient(api),
		}
	}

	tracker := application.NewTracker(
		clients,
		store,
		cfg.Policies(),
		logger,
		options.onUpdate,
		options.onTerminal,
	)

	return &ServiceContainer{
		Tracker: tracker,
		logger:  logger,
		db:      db,
	}, nil
}

// Logger はコンテナのロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	return c.logger
}

// Close は全ポーリングループを停止し、保持するリソースを解放する
func (c *ServiceContainer) Close() {
	if c.Tracker != nil {
		c.Tracker.Close()
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("failed to close intent database", "error", err)
		}
	}
}
