package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/bitfantasy/paramcad/internal/cad/entity"
	"github.com/bitfantasy/paramcad/internal/cad/repository"
	"github.com/bitfantasy/paramcad/internal/cad/sse"
)

// RevisionService 修订查询与 ECO 流程
type RevisionService struct {
	revisionRepo *repository.RevisionRepository
	designRepo   *repository.DesignRepository
	hub          *sse.Hub
}

// NewRevisionService 创建修订服务
func NewRevisionService(revisionRepo *repository.RevisionRepository, designRepo *repository.DesignRepository, hub *sse.Hub) *RevisionService {
	return &RevisionService{
		revisionRepo: revisionRepo,
		designRepo:   designRepo,
		hub:          hub,
	}
}

// ECOStatusRequest 修改 ECO 状态请求
type ECOStatusRequest struct {
	Status    string  `json:"status" binding:"required"`
	ECONumber *string `json:"eco_number"`
	ECOReason *string `json:"eco_reason"`
}

// IssueRequest 发布请求
type IssueRequest struct {
	ECONumber string `json:"eco_number" binding:"required"`
	ECOReason string `json:"eco_reason"`
}

// ObsoleteRequest 作废请求
type ObsoleteRequest struct {
	ECOReason string `json:"eco_reason"`
}

// List 设计的全部修订（A, B, C ...）
func (s *RevisionService) List(ctx context.Context, designID string) ([]entity.Revision, error) {
	if _, err := s.designRepo.FindByID(ctx, designID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDesignNotFound
		}
		return nil, err
	}
	return s.revisionRepo.ListByDesign(ctx, designID)
}

// Get 获取修订
func (s *RevisionService) Get(ctx context.Context, id string) (*entity.Revision, error) {
	rev, err := s.revisionRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRevisionNotFound
	}
	return rev, err
}

// Latest 设计的最新修订
func (s *RevisionService) Latest(ctx context.Context, designID string) (*entity.Revision, error) {
	rev, err := s.revisionRepo.FindLatest(ctx, designID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRevisionNotFound
	}
	return rev, err
}

// SetECOStatus 直接设置 ECO 状态，不限制状态间的转换
// 非法状态返回 repository.ErrInvalidStatus
func (s *RevisionService) SetECOStatus(ctx context.Context, id string, req *ECOStatusRequest) (*entity.Revision, error) {
	rev, err := s.revisionRepo.UpdateECOStatus(ctx, id, strings.TrimSpace(req.Status), req.ECONumber, req.ECOReason)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRevisionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.publish(rev)
	return rev, nil
}

// Issue 发布修订，必须提供 ECO 编号
func (s *RevisionService) Issue(ctx context.Context, id string, req *IssueRequest) (*entity.Revision, error) {
	number := strings.TrimSpace(req.ECONumber)
	if number == "" {
		return nil, fmt.Errorf("%w: eco_number is required to issue a revision", ErrInvalidInput)
	}
	return s.SetECOStatus(ctx, id, &ECOStatusRequest{
		Status:    entity.ECOStatusIssued,
		ECONumber: &number,
		ECOReason: entity.StringPtr(strings.TrimSpace(req.ECOReason)),
	})
}

// Obsolete 作废修订
func (s *RevisionService) Obsolete(ctx context.Context, id string, req *ObsoleteRequest) (*entity.Revision, error) {
	return s.SetECOStatus(ctx, id, &ECOStatusRequest{
		Status:    entity.ECOStatusObsolete,
		ECOReason: entity.StringPtr(strings.TrimSpace(req.ECOReason)),
	})
}

func (s *RevisionService) publish(rev *entity.Revision) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(sse.EventRevisionUpdate, map[string]string{
		"design_id":     rev.DesignID,
		"revision_id":   rev.ID,
		"revision_code": rev.RevisionCode,
		"eco_status":    rev.ECOStatus,
	})
}

// ParameterChange 单个参数的变化
type ParameterChange struct {
	Name string `json:"name"`
	From any    `json:"from,omitempty"`
	To   any    `json:"to,omitempty"`
}

// ParameterDelta 两个修订之间的参数差异，各列表按参数名排序
type ParameterDelta struct {
	DesignID string            `json:"design_id"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	Added    []ParameterChange `json:"added"`
	Removed  []ParameterChange `json:"removed"`
	Changed  []ParameterChange `json:"changed"`
}

// Empty 参数完全相同
func (d *ParameterDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// ParameterDelta 比较同一设计的两个修订
func (s *RevisionService) ParameterDelta(ctx context.Context, fromID, toID string) (*ParameterDelta, error) {
	from, err := s.Get(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.Get(ctx, toID)
	if err != nil {
		return nil, err
	}
	if from.DesignID != to.DesignID {
		return nil, fmt.Errorf("%w: revisions belong to different designs", ErrInvalidInput)
	}

	fromParams, err := from.Parameters()
	if err != nil {
		return nil, err
	}
	toParams, err := to.Parameters()
	if err != nil {
		return nil, err
	}
	delta := DiffParameters(fromParams, toParams)
	delta.DesignID = from.DesignID
	delta.From = from.RevisionCode
	delta.To = to.RevisionCode
	return delta, nil
}

// DiffParameters 计算参数差异
func DiffParameters(from, to map[string]any) *ParameterDelta {
	delta := &ParameterDelta{
		Added:   []ParameterChange{},
		Removed: []ParameterChange{},
		Changed: []ParameterChange{},
	}
	for name, old := range from {
		cur, ok := to[name]
		switch {
		case !ok:
			delta.Removed = append(delta.Removed, ParameterChange{Name: name, From: old})
		case !reflect.DeepEqual(old, cur):
			delta.Changed = append(delta.Changed, ParameterChange{Name: name, From: old, To: cur})
		}
	}
	for name, cur := range to {
		if _, ok := from[name]; !ok {
			delta.Added = append(delta.Added, ParameterChange{Name: name, To: cur})
		}
	}
	for _, list := range [][]ParameterChange{delta.Added, delta.Removed, delta.Changed} {
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}
	return delta
}
