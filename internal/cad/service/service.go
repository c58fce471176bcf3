package service

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"

	"github.com/bitfantasy/paramcad/internal/cad/catalog"
	"github.com/bitfantasy/paramcad/internal/cad/engine"
	"github.com/bitfantasy/paramcad/internal/cad/repository"
	"github.com/bitfantasy/paramcad/internal/cad/sse"
	"github.com/bitfantasy/paramcad/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrDesignNotFound    = errors.New("design not found")
	ErrPieceTypeNotFound = errors.New("piece type not found")
	ErrRevisionNotFound  = errors.New("revision not found")
	ErrValidationFailed  = errors.New("parameter validation failed")
	ErrGenerationFailed  = errors.New("generation failed")
	ErrInvalidInput      = errors.New("invalid input")
)

// Services 服务集合
type Services struct {
	Catalog    *CatalogService
	Design     *DesignService
	Revision   *RevisionService
	BOM        *BOMService
	Generation *GenerationService
	Dispatcher *Dispatcher
	Metrics    *Metrics
}

// NewServices 创建服务集合
// rdb 为 nil 时使用进程内设计锁；未配置 MinIO 时不归档生成文件
func NewServices(repos *repository.Repositories, cat *catalog.Catalog, eng engine.Engine, rdb *redis.Client, cfg *config.Config, hub *sse.Hub, metrics *Metrics, logger *zap.Logger) *Services {
	var locker DesignLocker = NewLocalLocker()
	if rdb != nil {
		locker = NewRedisLocker(rdb, cfg.App.LockTTL)
	}

	// 初始化MinIO归档
	var archiver ArtifactArchiver
	if cfg.MinIO.Endpoint != "" {
		a, err := NewMinioArchiver(cfg.MinIO)
		if err != nil {
			logger.Warn("MinIO archive disabled", zap.Error(err))
		} else {
			archiver = a
		}
	}

	gen := NewGenerationService(repos, cat, eng, GenerationOptions{
		OutputsDir:    cfg.App.OutputsDir,
		DefaultAuthor: cfg.App.DefaultAuthor,
		Timeout:       cfg.Engine.Timeout,
		Locker:        locker,
		Archiver:      archiver,
		Metrics:       metrics,
	}, logger)

	return &Services{
		Catalog:    NewCatalogService(repos.PieceType, cat, metrics, hub, logger),
		Design:     NewDesignService(repos.Design, repos.PieceType),
		Revision:   NewRevisionService(repos.Revision, repos.Design, hub),
		BOM:        NewBOMService(repos, cat, cfg.App.OutputsDir),
		Generation: gen,
		Dispatcher: NewDispatcher(gen, hub, cfg.App.JobRetention, logger),
		Metrics:    metrics,
	}
}

// Generator 同步生成接口（由 GenerationService 实现，异步调度器依赖它）
type Generator interface {
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)
}

var unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_\-]`)

// SafeName 把设计名称转换为可用作目录名的形式
func SafeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// OutputDir 修订输出目录：<outputs>/<piece_code>/<safe design name>/<revision_code>
func OutputDir(outputsDir, pieceCode, designName, revisionCode string) string {
	return filepath.Join(outputsDir, pieceCode, SafeName(designName), revisionCode)
}
