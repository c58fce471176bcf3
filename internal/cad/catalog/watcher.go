package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 监听目录文件变化并自动 Reload
type Watcher struct {
	catalog  *Catalog
	fsw      *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration
	onReload func(*Catalog)

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// NewWatcher 监听目录文件所在目录（编辑器常以替换方式保存文件）
func NewWatcher(c *Catalog, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(c.Path())); err != nil {
		fsw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		catalog:  c,
		fsw:      fsw,
		logger:   logger,
		debounce: debounce,
		done:     make(chan struct{}),
	}, nil
}

// OnReload 成功重载后的回调
func (w *Watcher) OnReload(fn func(*Catalog)) {
	w.onReload = fn
}

// Start 在后台处理文件事件，ctx 结束或 Stop 时退出
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
	w.logger.Info("Catalog watcher started",
		zap.String("path", w.catalog.Path()),
		zap.Duration("debounce", w.debounce))
}

// Stop 停止监听
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

// Done 事件循环退出后关闭
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	target := filepath.Clean(w.catalog.Path())
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Catalog watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	if err := w.catalog.Reload(); err != nil {
		w.logger.Warn("Catalog reload failed, keeping previous version",
			zap.String("path", w.catalog.Path()),
			zap.Error(err))
		return
	}
	version, _ := w.catalog.Version()
	w.logger.Info("Catalog reloaded", zap.String("version", version))
	if w.onReload != nil {
		w.onReload(w.catalog)
	}
}
