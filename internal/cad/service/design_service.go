package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bitfantasy/paramcad/internal/cad/entity"
	"github.com/bitfantasy/paramcad/internal/cad/repository"
	"github.com/google/uuid"
)

// DesignService 设计服务
type DesignService struct {
	designRepo    *repository.DesignRepository
	pieceTypeRepo *repository.PieceTypeRepository
}

// NewDesignService 创建设计服务
func NewDesignService(designRepo *repository.DesignRepository, pieceTypeRepo *repository.PieceTypeRepository) *DesignService {
	return &DesignService{
		designRepo:    designRepo,
		pieceTypeRepo: pieceTypeRepo,
	}
}

// CreateDesignRequest 创建设计请求
type CreateDesignRequest struct {
	PieceTypeCode string  `json:"piece_type_code" binding:"required"`
	Name          string  `json:"name" binding:"required"`
	Description   string  `json:"description"`
	DrawingNumber *string `json:"drawing_number"`
}

// UpdateDesignRequest 更新设计请求，nil 字段保持不变
type UpdateDesignRequest struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	DrawingNumber *string `json:"drawing_number"`
}

// Create 创建设计
func (s *DesignService) Create(ctx context.Context, req *CreateDesignRequest) (*entity.Design, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	pt, err := s.pieceTypeRepo.FindByCode(ctx, req.PieceTypeCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPieceTypeNotFound, req.PieceTypeCode)
	}
	if err != nil {
		return nil, fmt.Errorf("find piece type: %w", err)
	}

	design := &entity.Design{
		ID:            uuid.New().String()[:32],
		PieceTypeID:   pt.ID,
		Name:          name,
		Description:   req.Description,
		DrawingNumber: normalizeDrawingNumber(req.DrawingNumber),
	}
	if err := s.designRepo.Create(ctx, design); err != nil {
		return nil, fmt.Errorf("create design: %w", err)
	}
	design.PieceType = pt
	return design, nil
}

// Get 获取设计
func (s *DesignService) Get(ctx context.Context, id string) (*entity.Design, error) {
	design, err := s.designRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDesignNotFound
	}
	return design, err
}

// List 设计列表，pieceTypeCode 非空时按零件类型筛选
func (s *DesignService) List(ctx context.Context, pieceTypeCode string) ([]entity.Design, error) {
	if pieceTypeCode == "" {
		return s.designRepo.List(ctx)
	}
	pt, err := s.pieceTypeRepo.FindByCode(ctx, pieceTypeCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPieceTypeNotFound, pieceTypeCode)
	}
	if err != nil {
		return nil, err
	}
	return s.designRepo.ListByPieceType(ctx, pt.ID)
}

// Update 更新名称、描述、图号
func (s *DesignService) Update(ctx context.Context, id string, req *UpdateDesignRequest) (*entity.Design, error) {
	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.DrawingNumber != nil {
		updates["drawing_number"] = normalizeDrawingNumber(req.DrawingNumber)
	}
	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	design, err := s.designRepo.Update(ctx, id, updates)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDesignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update design: %w", err)
	}
	return design, nil
}

// Delete 删除设计及其全部修订
func (s *DesignService) Delete(ctx context.Context, id string) error {
	err := s.designRepo.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrDesignNotFound
	}
	return err
}

// normalizeDrawingNumber 空白图号存为 NULL，唯一约束只作用于非空值
func normalizeDrawingNumber(s *string) *string {
	if s == nil {
		return nil
	}
	return entity.StringPtr(strings.TrimSpace(*s))
}
