package repository

import (
	"context"

	"github.com/bitfantasy/paramcad/internal/cad/entity"
	"github.com/bitfantasy/paramcad/internal/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BOMRepository struct {
	db *gorm.DB
}

func NewBOMRepository(db *gorm.DB) *BOMRepository {
	return &BOMRepository{db: db}
}

// ListByRevision 修订的BOM，按行号升序
func (r *BOMRepository) ListByRevision(ctx context.Context, revisionID string) ([]entity.BOMItem, error) {
	var items []entity.BOMItem
	err := r.db.WithContext(ctx).
		Where("revision_id = ?", revisionID).
		Order("item_number ASC").
		Find(&items).Error
	return items, err
}

// Replace 以新的行项替换修订的BOM，行号按列表顺序从1开始重新编号
func (r *BOMRepository) Replace(ctx context.Context, revisionID string, items []entity.BOMItem) ([]entity.BOMItem, error) {
	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entity.Revision{}).Where("id = ?", revisionID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		if err := tx.Where("revision_id = ?", revisionID).Delete(&entity.BOMItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = uuid.New().String()[:32]
			items[i].RevisionID = revisionID
			items[i].ItemNumber = i + 1
			if items[i].Unit == "" {
				items[i].Unit = entity.DefaultBOMUnit
			}
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
