package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Revision 修订：一次生成尝试的不可变快照
// 创建后只允许修改 ECO 状态（含编号/原因）与输出文件路径
type Revision struct {
	ID                 string         `json:"id" gorm:"primaryKey;size:32"`
	DesignID           string         `json:"design_id" gorm:"size:32;not null;index;uniqueIndex:uq_revisions_design_rev,priority:1;uniqueIndex:uq_revisions_design_seq,priority:1"`
	RevisionCode       string         `json:"revision_code" gorm:"size:8;not null;uniqueIndex:uq_revisions_design_rev,priority:2"`
	Sequence           int            `json:"sequence" gorm:"not null;uniqueIndex:uq_revisions_design_seq,priority:2"`
	ParametersJSON     datatypes.JSON `json:"parameters" gorm:"column:parameters_json;not null"`
	Description        string         `json:"description,omitempty" gorm:"type:text"`
	GeneratedAt        time.Time      `json:"generated_at" gorm:"not null"`
	GeneratedBy        string         `json:"generated_by" gorm:"size:64;not null"`
	FCStdPath          *string        `json:"fcstd_path,omitempty" gorm:"column:fcstd_path;size:512"`
	StepPath           *string        `json:"step_path,omitempty" gorm:"size:512"`
	DXFPath            *string        `json:"dxf_path,omitempty" gorm:"column:dxf_path;size:512"`
	PDFPath            *string        `json:"pdf_path,omitempty" gorm:"column:pdf_path;size:512"`
	BOMXLSXPath        *string        `json:"bom_xlsx_path,omitempty" gorm:"column:bom_xlsx_path;size:512"`
	BOMPDFPath         *string        `json:"bom_pdf_path,omitempty" gorm:"column:bom_pdf_path;size:512"`
	ECONumber          *string        `json:"eco_number,omitempty" gorm:"column:eco_number;size:32"`
	ECOReason          *string        `json:"eco_reason,omitempty" gorm:"column:eco_reason;type:text"`
	ECOStatus          string         `json:"eco_status" gorm:"column:eco_status;size:16;not null;default:draft;index"`
	ValidationPassed   bool           `json:"validation_passed" gorm:"not null;default:false"`
	ValidationWarnings datatypes.JSON `json:"validation_warnings,omitempty" gorm:"column:validation_warnings_json"`
	CreatedAt          time.Time      `json:"created_at"`

	// 关联
	Design   *Design   `json:"design,omitempty" gorm:"foreignKey:DesignID"`
	BOMItems []BOMItem `json:"bom_items,omitempty" gorm:"foreignKey:RevisionID"`
}

func (Revision) TableName() string {
	return "revisions"
}

// ECO状态常量
const (
	ECOStatusDraft    = "draft"
	ECOStatusIssued   = "issued"
	ECOStatusObsolete = "obsolete"
)

// ValidECOStatus 校验 ECO 状态取值
func ValidECOStatus(status string) bool {
	switch status {
	case ECOStatusDraft, ECOStatusIssued, ECOStatusObsolete:
		return true
	}
	return false
}

// SetParameters 序列化参数
func (r *Revision) SetParameters(params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	r.ParametersJSON = datatypes.JSON(data)
	return nil
}

// Parameters 反序列化参数
func (r *Revision) Parameters() (map[string]any, error) {
	params := map[string]any{}
	if len(r.ParametersJSON) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(r.ParametersJSON, &params); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return params, nil
}

// SetValidationWarnings 记录生成时的校验警告，为空时写入 NULL
func (r *Revision) SetValidationWarnings(warnings []string) error {
	if len(warnings) == 0 {
		r.ValidationWarnings = nil
		return nil
	}
	data, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	r.ValidationWarnings = datatypes.JSON(data)
	return nil
}

// Warnings 生成时记录的校验警告
func (r *Revision) Warnings() ([]string, error) {
	if len(r.ValidationWarnings) == 0 {
		return []string{}, nil
	}
	var warnings []string
	if err := json.Unmarshal(r.ValidationWarnings, &warnings); err != nil {
		return nil, fmt.Errorf("unmarshal warnings: %w", err)
	}
	return warnings, nil
}

// OutputPaths 当前记录的输出文件路径
func (r *Revision) OutputPaths() OutputPaths {
	return OutputPaths{
		FCStd:   r.FCStdPath,
		Step:    r.StepPath,
		DXF:     r.DXFPath,
		PDF:     r.PDFPath,
		BOMXLSX: r.BOMXLSXPath,
		BOMPDF:  r.BOMPDFPath,
	}
}

// OutputPaths 六个可选的输出文件路径，nil 表示不存在
type OutputPaths struct {
	FCStd   *string `json:"fcstd,omitempty"`
	Step    *string `json:"step,omitempty"`
	DXF     *string `json:"dxf,omitempty"`
	PDF     *string `json:"pdf,omitempty"`
	BOMXLSX *string `json:"bom_xlsx,omitempty"`
	BOMPDF  *string `json:"bom_pdf,omitempty"`
}

// Columns 转换为整列更新，未设置的字段写入 NULL
func (p OutputPaths) Columns() map[string]interface{} {
	return map[string]interface{}{
		"fcstd_path":    p.FCStd,
		"step_path":     p.Step,
		"dxf_path":      p.DXF,
		"pdf_path":      p.PDF,
		"bom_xlsx_path": p.BOMXLSX,
		"bom_pdf_path":  p.BOMPDF,
	}
}

// StringPtr 空字符串返回 nil
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
