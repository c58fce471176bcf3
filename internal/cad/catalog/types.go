package catalog

import (
	"fmt"
	"reflect"
)

// 参数类型
const (
	ParamTypeFloat = "float"
	ParamTypeEnum  = "enum"
	ParamTypeBool  = "bool"
)

// 规则严重级别
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// File 目录文件的顶层结构
type File struct {
	CatalogVersion string      `json:"catalog_version" yaml:"catalog_version"`
	Pieces         []PieceSpec `json:"pieces" yaml:"pieces"`
}

// Option 枚举参数的可选值
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// ParameterSpec 参数定义
type ParameterSpec struct {
	Name           string         `json:"name" yaml:"name"`
	DisplayName    string         `json:"display_name" yaml:"display_name"`
	Unit           string         `json:"unit" yaml:"unit"`
	Type           string         `json:"type" yaml:"type"`
	Default        any            `json:"default" yaml:"default"`
	Description    string         `json:"description,omitempty" yaml:"description"`
	SchematicImage *string        `json:"schematic_image,omitempty" yaml:"schematic_image"`
	Min            *float64       `json:"min,omitempty" yaml:"min"`
	Max            *float64       `json:"max,omitempty" yaml:"max"`
	Step           *float64       `json:"step,omitempty" yaml:"step"`
	Options        []Option       `json:"options,omitempty" yaml:"options"`
	DependsOn      map[string]any `json:"depends_on,omitempty" yaml:"depends_on"`
}

// Rule 校验规则声明
type Rule struct {
	RuleID      string `json:"rule_id" yaml:"rule_id"`
	Description string `json:"description,omitempty" yaml:"description"`
	Expression  string `json:"expression" yaml:"expression"`
	Severity    string `json:"severity" yaml:"severity"`
	Message     string `json:"message" yaml:"message"`
}

// BOMTemplateItem BOM模板行
type BOMTemplateItem struct {
	ItemNumber    int      `json:"item_number" yaml:"item_number"`
	PartCode      string   `json:"part_code,omitempty" yaml:"part_code"`
	Description   string   `json:"description" yaml:"description"`
	Quantity      float64  `json:"quantity" yaml:"quantity"`
	Unit          string   `json:"unit" yaml:"unit"`
	MaterialParam *string  `json:"material_param,omitempty" yaml:"material_param"`
	Standard      string   `json:"standard,omitempty" yaml:"standard"`
	Observations  string   `json:"observations,omitempty" yaml:"observations"`
	UnitWeightKg  *float64 `json:"unit_weight_kg,omitempty" yaml:"unit_weight_kg"`
}

// PieceSpec 零件类型定义
type PieceSpec struct {
	Code            string            `json:"code" yaml:"code"`
	DisplayName     string            `json:"display_name" yaml:"display_name"`
	Discipline      string            `json:"discipline" yaml:"discipline"`
	Category        string            `json:"category" yaml:"category"`
	Description     string            `json:"description,omitempty" yaml:"description"`
	Parameters      []ParameterSpec   `json:"parameters" yaml:"parameters"`
	ValidationRules []Rule            `json:"validation_rules" yaml:"validation_rules"`
	BOMTemplate     []BOMTemplateItem `json:"bom_template,omitempty" yaml:"bom_template"`
	CADScript       string            `json:"cad_script,omitempty" yaml:"cad_script"`
	DrawingViews    []string          `json:"drawing_views,omitempty" yaml:"drawing_views"`
}

// Parameter 按名称查找参数定义
func (p *PieceSpec) Parameter(name string) (*ParameterSpec, bool) {
	for i := range p.Parameters {
		if p.Parameters[i].Name == name {
			return &p.Parameters[i], true
		}
	}
	return nil, false
}

// Defaults 全部参数的默认值
func (p *PieceSpec) Defaults() map[string]any {
	out := make(map[string]any, len(p.Parameters))
	for _, param := range p.Parameters {
		out[param.Name] = param.DefaultValue()
	}
	return out
}

// DefaultValue 按参数类型规整后的默认值（float 参数统一为 float64）
func (s *ParameterSpec) DefaultValue() any {
	if s.Type == ParamTypeFloat {
		if f, ok := asFloat(s.Default); ok {
			return f
		}
	}
	return s.Default
}

// Visible 依赖条件全部满足时参数可见
func (s *ParameterSpec) Visible(params map[string]any) bool {
	for name, want := range s.DependsOn {
		got, ok := params[name]
		if !ok || !sameValue(got, want) {
			return false
		}
	}
	return true
}

// Check 检查单个参数值的类型、范围与可选项
func (s *ParameterSpec) Check(value any) error {
	switch s.Type {
	case ParamTypeFloat:
		f, ok := asFloat(value)
		if !ok {
			return fmt.Errorf("parameter '%s' must be a number", s.Name)
		}
		if s.Min != nil && f < *s.Min {
			return fmt.Errorf("parameter '%s' is below the minimum %g", s.Name, *s.Min)
		}
		if s.Max != nil && f > *s.Max {
			return fmt.Errorf("parameter '%s' is above the maximum %g", s.Name, *s.Max)
		}
	case ParamTypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("parameter '%s' must be a boolean", s.Name)
		}
	case ParamTypeEnum:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("parameter '%s' must be a string", s.Name)
		}
		for _, opt := range s.Options {
			if opt.Value == str {
				return nil
			}
		}
		return fmt.Errorf("parameter '%s' has no option '%s'", s.Name, str)
	}
	return nil
}

func sameValue(a, b any) bool {
	fa, aok := asFloat(a)
	fb, bok := asFloat(b)
	if aok && bok {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}
