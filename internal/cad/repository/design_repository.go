package repository

import (
	"context"
	"fmt"

	"github.com/bitfantasy/paramcad/internal/cad/entity"
	"github.com/bitfantasy/paramcad/internal/database"
	"gorm.io/gorm"
)

type DesignRepository struct {
	db *gorm.DB
}

func NewDesignRepository(db *gorm.DB) *DesignRepository {
	return &DesignRepository{db: db}
}

// Create 创建设计；图号重复返回 ErrConflict
func (r *DesignRepository) Create(ctx context.Context, design *entity.Design) error {
	err := r.db.WithContext(ctx).Omit("PieceType").Create(design).Error
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: drawing number %s", ErrConflict, deref(design.DrawingNumber))
	}
	if database.IsForeignKeyViolation(err) {
		return fmt.Errorf("piece type %s: %w", design.PieceTypeID, ErrNotFound)
	}
	return err
}

// FindByID 根据ID查找（含零件类型）
func (r *DesignRepository) FindByID(ctx context.Context, id string) (*entity.Design, error) {
	var design entity.Design
	err := r.db.WithContext(ctx).
		Preload("PieceType").
		First(&design, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &design, nil
}

// List 全部设计，最近更新的在前
func (r *DesignRepository) List(ctx context.Context) ([]entity.Design, error) {
	var designs []entity.Design
	err := r.db.WithContext(ctx).
		Preload("PieceType").
		Order("updated_at DESC").
		Find(&designs).Error
	return designs, err
}

// ListByPieceType 某零件类型下的设计
func (r *DesignRepository) ListByPieceType(ctx context.Context, pieceTypeID string) ([]entity.Design, error) {
	var designs []entity.Design
	err := r.db.WithContext(ctx).
		Preload("PieceType").
		Where("piece_type_id = ?", pieceTypeID).
		Order("updated_at DESC").
		Find(&designs).Error
	return designs, err
}

// Update 更新名称、描述、图号
func (r *DesignRepository) Update(ctx context.Context, id string, updates map[string]interface{}) (*entity.Design, error) {
	res := r.db.WithContext(ctx).Model(&entity.Design{}).Where("id = ?", id).Updates(updates)
	if database.IsUniqueViolation(res.Error) {
		return nil, fmt.Errorf("%w: drawing number", ErrConflict)
	}
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// Delete 删除设计（级联删除修订和BOM）
func (r *DesignRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&entity.Design{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
