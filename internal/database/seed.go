package database

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/paramcad/internal/cad/catalog"
	"github.com/bitfantasy/paramcad/internal/cad/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedPieceTypes 把目录中尚未入库的零件类型写入 piece_types，已存在的编码保持不变
// 返回新插入的数量
func SeedPieceTypes(ctx context.Context, db *gorm.DB, c *catalog.Catalog) (int, error) {
	pieces, err := c.Pieces()
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}
	version, err := c.Version()
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}
	if len(pieces) == 0 {
		return 0, nil
	}

	now := time.Now()
	rows := make([]entity.PieceType, 0, len(pieces))
	for _, p := range pieces {
		rows = append(rows, entity.PieceType{
			ID:             uuid.New().String()[:32],
			Code:           p.Code,
			DisplayName:    p.DisplayName,
			Discipline:     p.Discipline,
			Category:       p.Category,
			Description:    p.Description,
			CatalogVersion: version,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	var inserted int64
	err = WithTx(ctx, db, func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&rows)
		inserted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("seed piece types: %w", err)
	}
	return int(inserted), nil
}
