package engine

import (
	"context"
	"time"
)

// Request 生成请求
type Request struct {
	PieceCode    string         `json:"piece_code"`
	Parameters   map[string]any `json:"parameters"`
	OutputDir    string         `json:"output_dir"`
	RevisionCode string         `json:"revision_code"`
}

// Result 生成结果；失败通过 Success=false 和 ErrorMessage 表达，不返回 error
type Result struct {
	Success      bool          `json:"success"`
	ModelPath    string        `json:"model_path,omitempty"`
	ExchangePath string        `json:"exchange_path,omitempty"`
	Warnings     []string      `json:"warnings"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Elapsed      time.Duration `json:"-"`
}

// ElapsedSeconds 耗时（秒）
func (r *Result) ElapsedSeconds() float64 {
	return r.Elapsed.Seconds()
}

// Failure 构造失败结果
func Failure(message string, elapsed time.Duration) *Result {
	return &Result{Success: false, ErrorMessage: message, Warnings: []string{}, Elapsed: elapsed}
}

// Engine 外部 CAD 生成服务
type Engine interface {
	// Generate 阻塞直到生成结束、超时或 ctx 取消
	Generate(ctx context.Context, req Request) *Result
	// Available 引擎是否已安装可用
	Available() bool
	// Name 引擎名称
	Name() string
}
