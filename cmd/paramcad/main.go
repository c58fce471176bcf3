package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bitfantasy/paramcad/internal/cad/catalog"
	"github.com/bitfantasy/paramcad/internal/cad/engine"
	"github.com/bitfantasy/paramcad/internal/cad/repository"
	"github.com/bitfantasy/paramcad/internal/config"
	"github.com/bitfantasy/paramcad/internal/database"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "paramcad",
		Short:         "Parametric piece validation and revision engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		config.GetEnvOrDefault("PARAMCAD_CONFIG", ""), "Config file path (YAML)")

	cmd.AddCommand(
		serveCmd(&configPath),
		migrateCmd(&configPath),
		seedCmd(&configPath),
		validateCmd(&configPath),
		generateCmd(&configPath),
		designsCmd(&configPath),
		revisionsCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "paramcad version %s (build: %s)\n", Version, BuildTime)
			},
		},
	)
	return cmd
}

// app 命令共享的基础设施
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	catalog *catalog.Catalog
	repos   *repository.Repositories
}

// newApp 加载配置、初始化日志和数据库（自动迁移）
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := initDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		catalog: catalog.New(cfg.Catalog.Path),
		repos:   repository.NewRepositories(db),
	}, nil
}

func (a *app) close() {
	database.Close(a.db)
	a.logger.Sync()
}

func (a *app) engine() engine.Engine {
	return engine.NewFreeCADEngine(engine.FreeCADConfig{
		Bin:     a.cfg.Engine.Bin,
		Script:  a.cfg.Engine.Script,
		Timeout: a.cfg.Engine.Timeout,
		Name:    a.cfg.Engine.Name,
	}, a.logger)
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	dbCfg := database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Debug:           cfg.Debug,
	}
	if cfg.Driver == database.DriverPostgres {
		dbCfg.DSN = cfg.DSN()
	}
	db, err := database.Open(dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
