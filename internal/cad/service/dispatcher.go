package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bitfantasy/paramcad/internal/cad/sse"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 异步任务状态
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// ErrDispatcherClosed 调度器已关闭
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Job 异步生成任务
type Job struct {
	ID          string              `json:"id"`
	DesignID    string              `json:"design_id"`
	SubmittedBy string              `json:"submitted_by,omitempty"`
	Status      string              `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	FinishedAt  *time.Time          `json:"finished_at,omitempty"`
	Response    *GenerationResponse `json:"response,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// Dispatcher 在请求协程之外执行生成，结果写入任务表并通过 SSE 推送
// 每个任务只调用一次 Generator
type Dispatcher struct {
	gen       Generator
	hub       *sse.Hub
	retention time.Duration
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	jobs   map[string]*Job
	closed bool
}

// NewDispatcher 创建调度器；retention 为已完成任务的保留时间
func NewDispatcher(gen Generator, hub *sse.Hub, retention time.Duration, logger *zap.Logger) *Dispatcher {
	if retention <= 0 {
		retention = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		gen:       gen,
		hub:       hub,
		retention: retention,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]*Job),
	}
}

// Submit 提交任务并立即返回任务快照
func (d *Dispatcher) Submit(req *GenerationRequest) (*Job, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDispatcherClosed
	}
	d.prune(time.Now())
	job := &Job{
		ID:          uuid.New().String(),
		DesignID:    req.DesignID,
		SubmittedBy: req.GeneratedBy,
		Status:      JobPending,
		CreatedAt:   time.Now(),
	}
	d.jobs[job.ID] = job
	snapshot := *job
	d.wg.Add(1)
	d.mu.Unlock()

	r := *req
	go d.run(job.ID, &r)
	return &snapshot, nil
}

// Get 查询任务
func (d *Dispatcher) Get(id string) (*Job, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	job, ok := d.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// Shutdown 停止接收新任务并等待在途任务结束；ctx 到期时取消在途任务
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) run(id string, req *GenerationRequest) {
	defer d.wg.Done()
	d.setStatus(id, JobRunning)

	resp, err := d.gen.Generate(d.ctx, req)

	now := time.Now()
	d.mu.Lock()
	job := d.jobs[id]
	job.FinishedAt = &now
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		d.logger.Error("Async generation failed", zap.String("job_id", id), zap.Error(err))
	} else {
		job.Status = JobDone
		job.Response = resp
	}
	snapshot := *job
	d.mu.Unlock()

	if d.hub != nil {
		d.hub.Publish(sse.EventGenerationComplete, snapshot)
	}
}

func (d *Dispatcher) setStatus(id, status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if job, ok := d.jobs[id]; ok {
		job.Status = status
	}
}

// prune 清理过期的已完成任务，调用方持有写锁
func (d *Dispatcher) prune(now time.Time) {
	for id, job := range d.jobs {
		if job.FinishedAt != nil && now.Sub(*job.FinishedAt) > d.retention {
			delete(d.jobs, id)
		}
	}
}
