package repository

import (
	"context"

	"github.com/bitfantasy/paramcad/internal/cad/entity"
	"gorm.io/gorm"
)

// PieceTypeRepository 零件类型（只读）
type PieceTypeRepository struct {
	db *gorm.DB
}

func NewPieceTypeRepository(db *gorm.DB) *PieceTypeRepository {
	return &PieceTypeRepository{db: db}
}

// ListActive 启用的零件类型，按专业、分类、名称排序
func (r *PieceTypeRepository) ListActive(ctx context.Context) ([]entity.PieceType, error) {
	var types []entity.PieceType
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("discipline ASC, category ASC, display_name ASC").
		Find(&types).Error
	return types, err
}

// ListByDiscipline 按专业筛选
func (r *PieceTypeRepository) ListByDiscipline(ctx context.Context, discipline string) ([]entity.PieceType, error) {
	var types []entity.PieceType
	err := r.db.WithContext(ctx).
		Where("discipline = ? AND is_active = ?", discipline, true).
		Order("category ASC, display_name ASC").
		Find(&types).Error
	return types, err
}

// FindByCode 根据编码查找
func (r *PieceTypeRepository) FindByCode(ctx context.Context, code string) (*entity.PieceType, error) {
	var pt entity.PieceType
	if err := r.db.WithContext(ctx).First(&pt, "code = ?", code).Error; err != nil {
		return nil, notFound(err)
	}
	return &pt, nil
}

// FindByID 根据ID查找
func (r *PieceTypeRepository) FindByID(ctx context.Context, id string) (*entity.PieceType, error) {
	var pt entity.PieceType
	if err := r.db.WithContext(ctx).First(&pt, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &pt, nil
}
