package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("record already exists")
	ErrInvalidStatus = errors.New("invalid eco status")
)

// Repositories 仓库集合
type Repositories struct {
	PieceType *PieceTypeRepository
	Design    *DesignRepository
	Revision  *RevisionRepository
	BOM       *BOMRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		PieceType: NewPieceTypeRepository(db),
		Design:    NewDesignRepository(db),
		Revision:  NewRevisionRepository(db),
		BOM:       NewBOMRepository(db),
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
