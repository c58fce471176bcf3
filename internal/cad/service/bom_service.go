package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bitfantasy/paramcad/internal/cad/catalog"
	"github.com/bitfantasy/paramcad/internal/cad/entity"
	"github.com/bitfantasy/paramcad/internal/cad/repository"
	"github.com/xuri/excelize/v2"
)

// BOMService 修订物料清单
type BOMService struct {
	bomRepo      *repository.BOMRepository
	revisionRepo *repository.RevisionRepository
	designRepo   *repository.DesignRepository
	catalog      *catalog.Catalog
	outputsDir   string
}

// NewBOMService 创建BOM服务
func NewBOMService(repos *repository.Repositories, cat *catalog.Catalog, outputsDir string) *BOMService {
	return &BOMService{
		bomRepo:      repos.BOM,
		revisionRepo: repos.Revision,
		designRepo:   repos.Design,
		catalog:      cat,
		outputsDir:   outputsDir,
	}
}

// BOM 修订的物料清单及汇总
type BOM struct {
	RevisionID    string           `json:"revision_id"`
	RevisionCode  string           `json:"revision_code"`
	Items         []entity.BOMItem `json:"items"`
	TotalWeightKg float64          `json:"total_weight_kg"`
}

type revisionContext struct {
	revision  *entity.Revision
	design    *entity.Design
	pieceCode string
}

func (s *BOMService) load(ctx context.Context, revisionID string) (*revisionContext, error) {
	rev, err := s.revisionRepo.FindByID(ctx, revisionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRevisionNotFound
	}
	if err != nil {
		return nil, err
	}
	design, err := s.designRepo.FindByID(ctx, rev.DesignID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDesignNotFound
	}
	if err != nil {
		return nil, err
	}
	if design.PieceType == nil {
		return nil, ErrPieceTypeNotFound
	}
	return &revisionContext{revision: rev, design: design, pieceCode: design.PieceType.Code}, nil
}

// Build 按目录中的 BOM 模板生成修订的物料清单（替换已有行项）
func (s *BOMService) Build(ctx context.Context, revisionID string) (*BOM, error) {
	rc, err := s.load(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	piece, err := s.catalog.Piece(rc.pieceCode)
	if errors.Is(err, catalog.ErrPieceNotFound) {
		return nil, fmt.Errorf("%w: %s missing from catalog", ErrPieceTypeNotFound, rc.pieceCode)
	}
	if err != nil {
		return nil, err
	}
	params, err := rc.revision.Parameters()
	if err != nil {
		return nil, err
	}

	items := ItemsFromTemplate(piece.BOMTemplate, params)
	saved, err := s.bomRepo.Replace(ctx, revisionID, items)
	if err != nil {
		return nil, fmt.Errorf("save bom: %w", err)
	}
	return newBOM(rc.revision, saved), nil
}

// ItemsFromTemplate 模板行项转换为 BOM 行项，material_param 指定的参数值作为材料
func ItemsFromTemplate(template []catalog.BOMTemplateItem, params map[string]any) []entity.BOMItem {
	items := make([]entity.BOMItem, 0, len(template))
	for _, t := range template {
		item := entity.BOMItem{
			ItemNumber:   t.ItemNumber,
			PartCode:     entity.StringPtr(t.PartCode),
			Description:  t.Description,
			Quantity:     t.Quantity,
			Unit:         t.Unit,
			Standard:     entity.StringPtr(t.Standard),
			Observations: entity.StringPtr(t.Observations),
			UnitWeightKg: t.UnitWeightKg,
		}
		if t.MaterialParam != nil {
			if v, ok := params[*t.MaterialParam]; ok && v != nil {
				item.Material = entity.StringPtr(fmt.Sprint(v))
			}
		}
		items = append(items, item)
	}
	return items
}

// Get 修订当前的物料清单
func (s *BOMService) Get(ctx context.Context, revisionID string) (*BOM, error) {
	rev, err := s.revisionRepo.FindByID(ctx, revisionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRevisionNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := s.bomRepo.ListByRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	return newBOM(rev, items), nil
}

func newBOM(rev *entity.Revision, items []entity.BOMItem) *BOM {
	if items == nil {
		items = []entity.BOMItem{}
	}
	return &BOM{
		RevisionID:    rev.ID,
		RevisionCode:  rev.RevisionCode,
		Items:         items,
		TotalWeightKg: TotalWeightKg(items),
	}
}

// TotalWeightKg 已知单重的行项总重量
func TotalWeightKg(items []entity.BOMItem) float64 {
	total := 0.0
	for i := range items {
		if w := items[i].TotalWeightKg(); w != nil {
			total += *w
		}
	}
	return total
}

var bomHeaders = []string{"Item", "Código", "Descripción", "Cantidad", "Unidad", "Material", "Norma", "Peso unit. (kg)", "Peso total (kg)", "Observaciones"}

// ExportXLSX 导出 BOM 到修订输出目录，并记录为 bom_xlsx 输出路径（其他路径不变）
// 尚未生成 BOM 时先按模板生成
func (s *BOMService) ExportXLSX(ctx context.Context, revisionID string) (*entity.Revision, error) {
	rc, err := s.load(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	bom, err := s.Get(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if len(bom.Items) == 0 {
		if bom, err = s.Build(ctx, revisionID); err != nil {
			return nil, err
		}
	}

	dir := OutputDir(s.outputsDir, rc.pieceCode, rc.design.Name, rc.revision.RevisionCode)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_BOM.xlsx", SafeName(rc.design.Name), rc.revision.RevisionCode))

	f := BOMWorkbook(rc.design, rc.revision, bom)
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("save %s: %w", path, err)
	}

	paths := rc.revision.OutputPaths()
	paths.BOMXLSX = &path
	return s.revisionRepo.UpdateOutputPaths(ctx, revisionID, paths)
}

// BOMWorkbook 生成 BOM 工作簿
func BOMWorkbook(design *entity.Design, rev *entity.Revision, bom *BOM) *excelize.File {
	f := excelize.NewFile()
	sheet := "BOM"
	f.SetSheetName("Sheet1", sheet)

	f.SetCellValue(sheet, "A1", design.Name)
	if design.DrawingNumber != nil {
		f.SetCellValue(sheet, "D1", *design.DrawingNumber)
	}
	f.SetCellValue(sheet, "F1", "Rev. "+rev.RevisionCode)
	f.SetCellValue(sheet, "H1", rev.ECOStatus)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})
	const headerRow = 3
	for i, h := range bomHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := fmt.Sprintf("%s%d", col, headerRow)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	row := headerRow + 1
	for _, item := range bom.Items {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), item.ItemNumber)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), deref(item.PartCode))
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), item.Description)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), item.Quantity)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), item.Unit)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), deref(item.Material))
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), deref(item.Standard))
		if item.UnitWeightKg != nil {
			f.SetCellValue(sheet, fmt.Sprintf("H%d", row), *item.UnitWeightKg)
		}
		if w := item.TotalWeightKg(); w != nil {
			f.SetCellValue(sheet, fmt.Sprintf("I%d", row), *w)
		}
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), deref(item.Observations))
		row++
	}

	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Total")
	f.SetCellValue(sheet, fmt.Sprintf("I%d", row), bom.TotalWeightKg)
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("J%d", row), summaryStyle)

	widths := []float64{6, 14, 36, 10, 8, 16, 18, 14, 14, 30}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}
	return f
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
