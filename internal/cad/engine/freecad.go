package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	// ParamsEnv 参数文件路径通过环境变量传给脚本（freecadcmd 会把位置参数当作文档打开）
	ParamsEnv = "FREECAD_PARAMS"
	// ResultFile 脚本在输出目录写入的结果文件
	ResultFile = "result.json"

	stderrLimit = 500
)

// FreeCADConfig FreeCAD 子进程配置
type FreeCADConfig struct {
	Bin     string
	Script  string
	Timeout time.Duration
	Name    string
}

// FreeCADEngine 以子进程方式调用 freecadcmd
type FreeCADEngine struct {
	cfg    FreeCADConfig
	logger *zap.Logger
}

// NewFreeCADEngine 创建 FreeCAD 引擎
func NewFreeCADEngine(cfg FreeCADConfig, logger *zap.Logger) *FreeCADEngine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "FreeCAD 1.0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FreeCADEngine{cfg: cfg, logger: logger}
}

func (e *FreeCADEngine) Name() string {
	return e.cfg.Name
}

// Available 可执行文件存在即视为可用
func (e *FreeCADEngine) Available() bool {
	if e.cfg.Bin == "" {
		return false
	}
	if filepath.IsAbs(e.cfg.Bin) {
		info, err := os.Stat(e.cfg.Bin)
		return err == nil && !info.IsDir()
	}
	_, err := exec.LookPath(e.cfg.Bin)
	return err == nil
}

// timeLimit 实际生效的时限：自身超时与调用方截止时间取较早者
func (e *FreeCADEngine) timeLimit(ctx context.Context, start time.Time) time.Duration {
	limit := e.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := deadline.Sub(start).Round(time.Millisecond); d < limit {
			limit = d
		}
	}
	return limit
}

type scriptResult struct {
	Success      bool     `json:"success"`
	FCStdPath    *string  `json:"fcstd_path"`
	StepPath     *string  `json:"step_path"`
	Warnings     []string `json:"warnings"`
	ErrorMessage *string  `json:"error_message"`
}

// Generate 写参数文件 -> 运行脚本 -> 读取 result.json
func (e *FreeCADEngine) Generate(ctx context.Context, req Request) *Result {
	start := time.Now()
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Failure(fmt.Sprintf("cannot create output directory: %v", err), time.Since(start))
	}

	resultPath := filepath.Join(req.OutputDir, ResultFile)
	_ = os.Remove(resultPath)

	paramsFile, err := writeParams(req)
	if err != nil {
		return Failure(err.Error(), time.Since(start))
	}
	defer os.Remove(paramsFile)

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.cfg.Bin, e.cfg.Script)
	cmd.Env = append(os.Environ(), ParamsEnv+"="+paramsFile)
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Info("Starting CAD engine",
		zap.String("engine", e.cfg.Name),
		zap.String("piece_code", req.PieceCode),
		zap.String("revision_code", req.RevisionCode),
		zap.String("output_dir", req.OutputDir))

	runErr := cmd.Run()
	elapsed := time.Since(start)

	// 截止时间可能来自调用方（编排层超时），同样视为超时
	if runErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		limit := e.timeLimit(runCtx, start)
		e.logger.Warn("CAD engine timed out", zap.Duration("timeout", limit))
		return Failure(fmt.Sprintf("FreeCAD exceeded the time limit (%s).", limit), elapsed)
	}
	if runErr != nil && ctx.Err() != nil {
		return Failure(fmt.Sprintf("generation cancelled: %v", ctx.Err()), elapsed)
	}

	data, readErr := os.ReadFile(resultPath)
	if runErr != nil || readErr != nil {
		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		e.logger.Warn("CAD engine failed",
			zap.Int("exit_code", exitCode),
			zap.NamedError("run_error", runErr),
			zap.NamedError("result_error", readErr))
		return Failure(fmt.Sprintf("FreeCAD subprocess failed (exit code %d).\nstderr: %s",
			exitCode, truncate(stderr.String(), stderrLimit)), elapsed)
	}

	var sr scriptResult
	if err := json.Unmarshal(data, &sr); err != nil {
		return Failure(fmt.Sprintf("invalid %s: %v", ResultFile, err), elapsed)
	}

	result := &Result{
		Success:  sr.Success,
		Warnings: sr.Warnings,
		Elapsed:  elapsed,
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	if sr.FCStdPath != nil {
		result.ModelPath = *sr.FCStdPath
	}
	if sr.StepPath != nil {
		result.ExchangePath = *sr.StepPath
	}
	if sr.ErrorMessage != nil {
		result.ErrorMessage = *sr.ErrorMessage
	}

	e.logger.Info("CAD engine finished",
		zap.Bool("success", result.Success),
		zap.Duration("elapsed", elapsed),
		zap.Int("warnings", len(result.Warnings)))
	return result
}

func writeParams(req Request) (string, error) {
	tmp, err := os.CreateTemp("", "paramcad-*.json")
	if err != nil {
		return "", fmt.Errorf("create params file: %w", err)
	}
	defer tmp.Close()

	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}
	if err := json.NewEncoder(tmp).Encode(req); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write params file: %w", err)
	}
	return tmp.Name(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
