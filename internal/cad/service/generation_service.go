package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/paramcad/internal/cad/catalog"
	"github.com/bitfantasy/paramcad/internal/cad/engine"
	"github.com/bitfantasy/paramcad/internal/cad/entity"
	"github.com/bitfantasy/paramcad/internal/cad/repository"
	"github.com/bitfantasy/paramcad/internal/cad/validation"
	"go.uber.org/zap"
)

// 生成流程阶段
const (
	StageResolve  = "resolve"
	StageValidate = "validate"
	StageRecord   = "record"
	StageGenerate = "generate"
	StageComplete = "complete"
)

// UnknownEngineError 引擎失败但未给出原因时的错误信息
const UnknownEngineError = "unknown engine error"

// GenerationRequest 生成请求
type GenerationRequest struct {
	DesignID    string         `json:"design_id" binding:"required"`
	Parameters  map[string]any `json:"parameters"`
	Description string         `json:"description"`
	GeneratedBy string         `json:"generated_by"`
}

// GenerationResponse 生成结果；失败时 Stage 为失败所在阶段
type GenerationResponse struct {
	Success        bool                 `json:"success"`
	Stage          string               `json:"stage"`
	RevisionID     string               `json:"revision_id,omitempty"`
	RevisionCode   string               `json:"revision_code,omitempty"`
	OutputDir      string               `json:"output_dir,omitempty"`
	Errors         []string             `json:"errors"`
	Warnings       []string             `json:"warnings"`
	Validation     []validation.Message `json:"validation,omitempty"`
	ElapsedSeconds float64              `json:"elapsed_seconds"`
	Archived       []string             `json:"archived,omitempty"`
	err            error
}

// Err 失败原因对应的哨兵错误，成功时为 nil
func (r *GenerationResponse) Err() error {
	return r.err
}

func (r *GenerationResponse) fail(stage string, err error, messages ...string) *GenerationResponse {
	r.Success = false
	r.Stage = stage
	r.err = err
	if len(messages) == 0 {
		messages = []string{err.Error()}
	}
	r.Errors = messages
	return r
}

// GenerationOptions 生成服务选项
type GenerationOptions struct {
	OutputsDir    string
	DefaultAuthor string
	Timeout       time.Duration // 引擎调用硬超时，0 表示只依赖引擎自身的超时
	Locker        DesignLocker
	Archiver      ArtifactArchiver
	Metrics       *Metrics
}

// GenerationService 生成编排：解析 → 校验 → 记录 → 生成 → 回写
type GenerationService struct {
	designs    *repository.DesignRepository
	pieceTypes *repository.PieceTypeRepository
	revisions  *repository.RevisionRepository
	catalog    *catalog.Catalog
	validator  *validation.Engine
	engine     engine.Engine
	opts       GenerationOptions
	logger     *zap.Logger
}

// NewGenerationService 创建生成服务
func NewGenerationService(repos *repository.Repositories, cat *catalog.Catalog, eng engine.Engine, opts GenerationOptions, logger *zap.Logger) *GenerationService {
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.DefaultAuthor == "" {
		opts.DefaultAuthor = "system"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{
		designs:    repos.Design,
		pieceTypes: repos.PieceType,
		revisions:  repos.Revision,
		catalog:    cat,
		validator:  validation.NewEngine(),
		engine:     eng,
		opts:       opts,
		logger:     logger,
	}
}

// Engine 当前使用的生成引擎
func (s *GenerationService) Engine() engine.Engine {
	return s.engine
}

// Generate 执行一次完整的生成流程
// 可恢复的失败体现在返回的 GenerationResponse 中；只有存储等致命错误返回 error
// 引擎失败不会回滚已创建的修订
func (s *GenerationService) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	resp := &GenerationResponse{Errors: []string{}, Warnings: []string{}}
	log := s.logger.With(zap.String("design_id", req.DesignID))

	// 1. 解析设计与零件类型
	design, pieceType, err := s.resolve(ctx, req.DesignID)
	if err != nil {
		if errors.Is(err, ErrDesignNotFound) || errors.Is(err, ErrPieceTypeNotFound) {
			s.opts.Metrics.generation("", OutcomeNotFound)
			log.Info("Generation rejected", zap.Error(err))
			return resp.fail(StageResolve, err), nil
		}
		s.opts.Metrics.generation("", OutcomeError)
		return nil, err
	}
	pieceCode := pieceType.Code
	log = log.With(zap.String("piece_code", pieceCode))

	// 2. 校验参数，无副作用
	rules, err := s.catalog.Rules(pieceCode)
	if err != nil {
		s.opts.Metrics.generation(pieceCode, OutcomeError)
		return nil, fmt.Errorf("load rules for %s: %w", pieceCode, err)
	}
	if len(rules) == 0 {
		log.Warn("Piece type has no catalog rules, parameters accepted unchecked")
	}
	result := s.validator.Validate(req.Parameters, rules)
	s.opts.Metrics.validation(pieceCode, result.IsValid)
	validationWarnings := result.WarningMessages()
	resp.Validation = result.Messages
	if !result.IsValid {
		resp.Warnings = validationWarnings
		s.opts.Metrics.generation(pieceCode, OutcomeInvalid)
		log.Info("Generation aborted by validation", zap.Strings("errors", result.ErrorMessages()))
		return resp.fail(StageValidate, ErrValidationFailed, result.ErrorMessages()...), nil
	}

	// 3. 记录修订（生成前），同一设计串行分配修订号
	rev, err := s.record(ctx, design.ID, req, validationWarnings)
	if err != nil {
		if errors.Is(err, ErrDesignNotFound) {
			s.opts.Metrics.generation(pieceCode, OutcomeNotFound)
			return resp.fail(StageResolve, err), nil
		}
		s.opts.Metrics.generation(pieceCode, OutcomeError)
		return nil, err
	}
	resp.RevisionID = rev.ID
	resp.RevisionCode = rev.RevisionCode
	resp.OutputDir = OutputDir(s.opts.OutputsDir, pieceCode, design.Name, rev.RevisionCode)
	log = log.With(zap.String("revision", rev.RevisionCode))

	// 4. 调用外部生成引擎（唯一的跨边界调用）
	out := s.runEngine(ctx, engine.Request{
		PieceCode:    pieceCode,
		Parameters:   req.Parameters,
		OutputDir:    resp.OutputDir,
		RevisionCode: rev.RevisionCode,
	})
	resp.ElapsedSeconds = out.ElapsedSeconds()
	resp.Warnings = append(append([]string{}, validationWarnings...), out.Warnings...)

	if !out.Success {
		msg := out.ErrorMessage
		if msg == "" {
			msg = UnknownEngineError
		}
		s.opts.Metrics.generation(pieceCode, OutcomeEngineFailure)
		log.Warn("Generation failed", zap.String("error", msg), zap.Float64("elapsed", resp.ElapsedSeconds))
		return resp.fail(StageGenerate, ErrGenerationFailed, msg), nil
	}

	// 5. 回写输出路径
	paths := entity.OutputPaths{
		FCStd: entity.StringPtr(out.ModelPath),
		Step:  entity.StringPtr(out.ExchangePath),
	}
	if _, err := s.revisions.UpdateOutputPaths(ctx, rev.ID, paths); err != nil {
		s.opts.Metrics.generation(pieceCode, OutcomeError)
		return nil, fmt.Errorf("record output paths for revision %s: %w", rev.RevisionCode, err)
	}
	resp.Archived = s.archive(ctx, log, pieceCode, design.Name, rev.RevisionCode, out)

	resp.Success = true
	resp.Stage = StageComplete
	s.opts.Metrics.generation(pieceCode, OutcomeSuccess)
	log.Info("Generation complete", zap.Float64("elapsed", resp.ElapsedSeconds), zap.Int("warnings", len(resp.Warnings)))
	return resp, nil
}

func (s *GenerationService) resolve(ctx context.Context, designID string) (*entity.Design, *entity.PieceType, error) {
	design, err := s.designs.FindByID(ctx, designID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrDesignNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve design %s: %w", designID, err)
	}
	if design.PieceType != nil {
		return design, design.PieceType, nil
	}
	pt, err := s.pieceTypes.FindByID(ctx, design.PieceTypeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrPieceTypeNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve piece type %s: %w", design.PieceTypeID, err)
	}
	return design, pt, nil
}

func (s *GenerationService) record(ctx context.Context, designID string, req *GenerationRequest, warnings []string) (*entity.Revision, error) {
	unlock, err := s.opts.Locker.Lock(ctx, designID)
	if err != nil {
		return nil, fmt.Errorf("lock design %s: %w", designID, err)
	}
	defer unlock()

	author := req.GeneratedBy
	if author == "" {
		author = s.opts.DefaultAuthor
	}
	rev, err := s.revisions.Create(ctx, designID, req.Parameters, req.Description, author, repository.CreateOptions{
		ValidationPassed: true,
		Warnings:         warnings,
	})
	if errors.Is(err, repository.ErrNotFound) {
		// 设计在解析之后被删除
		return nil, ErrDesignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record revision: %w", err)
	}
	return rev, nil
}

// runEngine 带超时调用引擎，引擎 panic 转换为失败结果
func (s *GenerationService) runEngine(ctx context.Context, req engine.Request) (out *engine.Result) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	s.opts.Metrics.engineStarted()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Engine panic", zap.Any("panic", r), zap.String("piece_code", req.PieceCode))
			out = engine.Failure(fmt.Sprintf("engine crashed: %v", r), time.Since(start))
		}
		if out == nil {
			out = engine.Failure(UnknownEngineError, time.Since(start))
		}
		if out.Warnings == nil {
			out.Warnings = []string{}
		}
		s.opts.Metrics.engineFinished(req.PieceCode, time.Since(start))
	}()

	return s.engine.Generate(ctx, req)
}

// archive 上传生成文件；失败只记录日志，不影响生成结果
func (s *GenerationService) archive(ctx context.Context, log *zap.Logger, pieceCode, designName, revisionCode string, out *engine.Result) []string {
	if s.opts.Archiver == nil {
		return nil
	}
	var files []string
	for _, p := range []string{out.ModelPath, out.ExchangePath} {
		if p != "" {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return nil
	}
	prefix := fmt.Sprintf("%s/%s/%s", pieceCode, SafeName(designName), revisionCode)
	keys, err := s.opts.Archiver.Archive(ctx, prefix, files)
	if err != nil {
		log.Warn("Artifact archive failed", zap.Error(err))
	}
	return keys
}
