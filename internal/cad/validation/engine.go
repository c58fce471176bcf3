package validation

import (
	"errors"
	"fmt"

	"github.com/bitfantasy/paramcad/internal/cad/catalog"
	"github.com/bitfantasy/paramcad/internal/cad/rule"
)

// 规则字段缺省值
const (
	DefaultRuleID     = "UNKNOWN"
	DefaultExpression = "True"
	DefaultMessage    = "Validation failed."
)

// Severity 消息级别
type Severity string

const (
	SeverityError   Severity = catalog.SeverityError
	SeverityWarning Severity = catalog.SeverityWarning
)

// Message 单条校验消息
type Message struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result 校验结果，Messages 保持规则声明顺序
type Result struct {
	IsValid  bool      `json:"is_valid"`
	Messages []Message `json:"messages"`
}

// Errors 错误级别消息
func (r *Result) Errors() []Message {
	return r.filter(SeverityError)
}

// Warnings 警告级别消息
func (r *Result) Warnings() []Message {
	return r.filter(SeverityWarning)
}

// ErrorMessages 错误消息文本
func (r *Result) ErrorMessages() []string {
	return texts(r.Errors())
}

// WarningMessages 警告消息文本
func (r *Result) WarningMessages() []string {
	return texts(r.Warnings())
}

func (r *Result) filter(sev Severity) []Message {
	out := []Message{}
	for _, m := range r.Messages {
		if m.Severity == sev {
			out = append(out, m)
		}
	}
	return out
}

func texts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Message
	}
	return out
}

// Engine 按顺序执行规则并汇总结果，无状态可并发使用
type Engine struct{}

// NewEngine 创建校验引擎
func NewEngine() *Engine {
	return &Engine{}
}

// Validate 对参数执行全部规则
// 表达式求值失败时强制记为 error，消息中同时包含失败原因和规则声明的消息
func (e *Engine) Validate(parameters map[string]any, rules []catalog.Rule) *Result {
	result := &Result{Messages: []Message{}}
	for _, r := range rules {
		id := orDefault(r.RuleID, DefaultRuleID)
		expression := orDefault(r.Expression, DefaultExpression)
		message := orDefault(r.Message, DefaultMessage)

		passed, err := rule.Evaluate(expression, parameters)
		if err != nil {
			result.Messages = append(result.Messages, Message{
				RuleID:   id,
				Severity: SeverityError,
				Message:  fmt.Sprintf("[rule evaluation error: %s] %s", reason(err), message),
			})
			continue
		}
		if !passed {
			result.Messages = append(result.Messages, Message{
				RuleID:   id,
				Severity: severityOf(r.Severity),
				Message:  message,
			})
		}
	}

	result.IsValid = true
	for _, m := range result.Messages {
		if m.Severity == SeverityError {
			result.IsValid = false
			break
		}
	}
	return result
}

// severityOf 未知级别按 error 处理
func severityOf(s string) Severity {
	if s == catalog.SeverityWarning {
		return SeverityWarning
	}
	return SeverityError
}

func reason(err error) string {
	var exprErr *rule.ExpressionError
	if errors.As(err, &exprErr) {
		return exprErr.Reason
	}
	return err.Error()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
