package entity

// BOMItem BOM行项（属于某个修订，item_number 从1开始）
type BOMItem struct {
	ID           string   `json:"id" gorm:"primaryKey;size:32"`
	RevisionID   string   `json:"revision_id" gorm:"size:32;not null;index"`
	ItemNumber   int      `json:"item_number" gorm:"not null"`
	PartCode     *string  `json:"part_code,omitempty" gorm:"size:64"`
	Description  string   `json:"description" gorm:"size:512;not null"`
	Quantity     float64  `json:"quantity" gorm:"not null;default:1"`
	Unit         string   `json:"unit" gorm:"size:8;not null;default:UN"`
	Material     *string  `json:"material,omitempty" gorm:"size:128"`
	Standard     *string  `json:"standard,omitempty" gorm:"size:128"`
	UnitWeightKg *float64 `json:"unit_weight_kg,omitempty"`
	Observations *string  `json:"observations,omitempty" gorm:"type:text"`
}

func (BOMItem) TableName() string {
	return "bom_items"
}

// TotalWeightKg 行项总重量，未填单重时返回 nil
func (b *BOMItem) TotalWeightKg() *float64 {
	if b.UnitWeightKg == nil {
		return nil
	}
	total := *b.UnitWeightKg * b.Quantity
	return &total
}

// DefaultBOMUnit 默认计量单位
const DefaultBOMUnit = "UN"
