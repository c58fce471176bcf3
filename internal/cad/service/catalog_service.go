package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/paramcad/internal/cad/catalog"
	"github.com/bitfantasy/paramcad/internal/cad/entity"
	"github.com/bitfantasy/paramcad/internal/cad/repository"
	"github.com/bitfantasy/paramcad/internal/cad/sse"
	"github.com/bitfantasy/paramcad/internal/cad/validation"
	"go.uber.org/zap"
)

// CatalogService 零件类型与参数目录
type CatalogService struct {
	pieceTypes *repository.PieceTypeRepository
	catalog    *catalog.Catalog
	validator  *validation.Engine
	metrics    *Metrics
	hub        *sse.Hub
	logger     *zap.Logger
}

func NewCatalogService(pieceTypes *repository.PieceTypeRepository, cat *catalog.Catalog, metrics *Metrics, hub *sse.Hub, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		pieceTypes: pieceTypes,
		catalog:    cat,
		validator:  validation.NewEngine(),
		metrics:    metrics,
		hub:        hub,
		logger:     logger,
	}
}

// PieceTypeDetail 零件类型及其目录定义
type PieceTypeDetail struct {
	entity.PieceType
	Spec *catalog.PieceSpec `json:"spec"`
}

// ListPieceTypes 启用的零件类型，discipline 非空时按专业筛选
func (s *CatalogService) ListPieceTypes(ctx context.Context, discipline string) ([]entity.PieceType, error) {
	if discipline != "" {
		return s.pieceTypes.ListByDiscipline(ctx, discipline)
	}
	return s.pieceTypes.ListActive(ctx)
}

// GetPieceType 零件类型详情（参数、规则、BOM 模板）
func (s *CatalogService) GetPieceType(ctx context.Context, code string) (*PieceTypeDetail, error) {
	pt, err := s.pieceTypes.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPieceTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find piece type %s: %w", code, err)
	}
	spec, err := s.catalog.Piece(code)
	if errors.Is(err, catalog.ErrPieceNotFound) {
		return nil, fmt.Errorf("%w: %s missing from catalog", ErrPieceTypeNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	return &PieceTypeDetail{PieceType: *pt, Spec: spec}, nil
}

// ValidateRequest 预校验请求
type ValidateRequest struct {
	PieceCode  string         `json:"piece_code" binding:"required"`
	Parameters map[string]any `json:"parameters"`
}

// Validate 只校验，不写库也不调用引擎
func (s *CatalogService) Validate(ctx context.Context, req *ValidateRequest) (*validation.Result, error) {
	if _, err := s.catalog.Piece(req.PieceCode); err != nil {
		if errors.Is(err, catalog.ErrPieceNotFound) {
			return nil, ErrPieceTypeNotFound
		}
		return nil, err
	}
	rules, err := s.catalog.Rules(req.PieceCode)
	if err != nil {
		return nil, err
	}
	result := s.validator.Validate(req.Parameters, rules)
	s.metrics.validation(req.PieceCode, result.IsValid)
	return result, nil
}

// Disciplines 目录中的专业列表
func (s *CatalogService) Disciplines() ([]string, error) {
	return s.catalog.Disciplines()
}

// Version 目录版本
func (s *CatalogService) Version() (string, error) {
	return s.catalog.Version()
}

// Reload 重新读取目录文件；失败时保留旧目录
func (s *CatalogService) Reload() error {
	err := s.catalog.Reload()
	s.Reloaded(err)
	return err
}

// Reloaded 记录一次目录重载（也用于文件监听触发的重载）
func (s *CatalogService) Reloaded(err error) {
	s.metrics.catalogReload(err)
	if err != nil {
		s.logger.Warn("Catalog reload failed", zap.Error(err))
		return
	}
	version, _ := s.catalog.Version()
	s.logger.Info("Catalog reloaded", zap.String("version", version))
	if s.hub != nil {
		s.hub.Publish(sse.EventCatalogReloaded, map[string]string{"catalog_version": version})
	}
}
