package entity

import "time"

// PieceType 零件类型（由目录初始化，运行期只读）
type PieceType struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	Code           string    `json:"code" gorm:"size:64;not null;uniqueIndex"`
	DisplayName    string    `json:"display_name" gorm:"size:255;not null"`
	Discipline     string    `json:"discipline" gorm:"size:64;not null"`
	Category       string    `json:"category" gorm:"size:64;not null"`
	Description    string    `json:"description,omitempty" gorm:"type:text"`
	CatalogVersion string    `json:"catalog_version" gorm:"size:16;not null;default:1.0"`
	IsActive       bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (PieceType) TableName() string {
	return "piece_types"
}
