package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/paramcad/internal/cad/entity"
	"github.com/bitfantasy/paramcad/internal/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxCreateAttempts 并发分配修订号冲突时的最大尝试次数
const maxCreateAttempts = 5

// RevisionRepository 修订仓库：只追加
// 创建后仅允许修改 ECO 状态与输出路径，没有其他更新方法
type RevisionRepository struct {
	db *gorm.DB
}

func NewRevisionRepository(db *gorm.DB) *RevisionRepository {
	return &RevisionRepository{db: db}
}

// CreateOptions 创建时一并写入的校验信息
type CreateOptions struct {
	ValidationPassed bool
	Warnings         []string
}

// Create 分配下一个修订号并插入新修订（状态 draft）
// 读取已有修订号、计算、插入在同一事务内完成；唯一约束冲突时重试
func (r *RevisionRepository) Create(ctx context.Context, designID string, parameters map[string]any, description, generatedBy string, opts ...CreateOptions) (*entity.Revision, error) {
	var opt CreateOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	var lastErr error
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		rev, err := r.create(ctx, designID, parameters, description, generatedBy, opt)
		if err == nil {
			return rev, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
	}
	return nil, fmt.Errorf("allocate revision code: %w", lastErr)
}

type codeRow struct {
	RevisionCode string
	Sequence     int
}

func (r *RevisionRepository) create(ctx context.Context, designID string, parameters map[string]any, description, generatedBy string, opt CreateOptions) (*entity.Revision, error) {
	rev := &entity.Revision{
		ID:               uuid.New().String()[:32],
		DesignID:         designID,
		Description:      description,
		GeneratedBy:      generatedBy,
		ECOStatus:        entity.ECOStatusDraft,
		ValidationPassed: opt.ValidationPassed,
	}
	if err := rev.SetParameters(parameters); err != nil {
		return nil, err
	}
	if err := rev.SetValidationWarnings(opt.Warnings); err != nil {
		return nil, err
	}

	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		now := time.Now().UTC()

		// 锁住设计行（SELECT ... FOR UPDATE），串行化同一设计的修订号分配；SQLite 单连接本身已串行
		var design entity.Design
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&design, "id = ?", designID).Error; err != nil {
			return notFound(err)
		}

		var rows []codeRow
		if err := tx.Model(&entity.Revision{}).
			Select("revision_code, sequence").
			Where("design_id = ?", designID).
			Order("sequence ASC").
			Scan(&rows).Error; err != nil {
			return err
		}
		codes := make([]string, len(rows))
		lastSeq := 0
		for i, row := range rows {
			codes[i] = row.RevisionCode
			lastSeq = row.Sequence
		}

		rev.RevisionCode = NextRevisionCode(codes)
		rev.Sequence = lastSeq + 1
		rev.GeneratedAt = now
		return tx.Create(rev).Error
	})
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// FindByID 根据ID查找
func (r *RevisionRepository) FindByID(ctx context.Context, id string) (*entity.Revision, error) {
	var rev entity.Revision
	if err := r.db.WithContext(ctx).First(&rev, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &rev, nil
}

// ListByDesign 设计的全部修订，按创建顺序升序
func (r *RevisionRepository) ListByDesign(ctx context.Context, designID string) ([]entity.Revision, error) {
	var revs []entity.Revision
	err := r.db.WithContext(ctx).
		Where("design_id = ?", designID).
		Order("sequence ASC").
		Find(&revs).Error
	return revs, err
}

// FindLatest 最近创建的修订（按序号，不按时间戳）
func (r *RevisionRepository) FindLatest(ctx context.Context, designID string) (*entity.Revision, error) {
	var rev entity.Revision
	err := r.db.WithContext(ctx).
		Where("design_id = ?", designID).
		Order("sequence DESC").
		First(&rev).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rev, nil
}

// UpdateECOStatus 修改 ECO 状态；ecoNumber / ecoReason 为 nil 时保持原值
// 任意两个合法状态之间都允许切换
func (r *RevisionRepository) UpdateECOStatus(ctx context.Context, id, status string, ecoNumber, ecoReason *string) (*entity.Revision, error) {
	if !entity.ValidECOStatus(status) {
		return nil, fmt.Errorf("%w: %q (allowed: draft, issued, obsolete)", ErrInvalidStatus, status)
	}
	updates := map[string]interface{}{"eco_status": status}
	if ecoNumber != nil {
		updates["eco_number"] = *ecoNumber
	}
	if ecoReason != nil {
		updates["eco_reason"] = *ecoReason
	}
	return r.update(ctx, id, updates)
}

// UpdateOutputPaths 覆盖六个输出路径，未设置的字段清空为 NULL
func (r *RevisionRepository) UpdateOutputPaths(ctx context.Context, id string, paths entity.OutputPaths) (*entity.Revision, error) {
	return r.update(ctx, id, paths.Columns())
}

func (r *RevisionRepository) update(ctx context.Context, id string, updates map[string]interface{}) (*entity.Revision, error) {
	var rev entity.Revision
	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		res := tx.Model(&entity.Revision{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.First(&rev, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rev, nil
}
