package entity

import "time"

// Design 设计项目（绑定一个零件类型，拥有其全部修订）
type Design struct {
	ID            string    `json:"id" gorm:"primaryKey;size:32"`
	PieceTypeID   string    `json:"piece_type_id" gorm:"size:32;not null;index"`
	Name          string    `json:"name" gorm:"size:255;not null"`
	Description   string    `json:"description,omitempty" gorm:"type:text"`
	DrawingNumber *string   `json:"drawing_number,omitempty" gorm:"size:32;uniqueIndex"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// 关联
	PieceType *PieceType `json:"piece_type,omitempty" gorm:"foreignKey:PieceTypeID"`
}

func (Design) TableName() string {
	return "designs"
}
