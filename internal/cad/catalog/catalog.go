package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrPieceNotFound 目录中不存在该零件类型
var ErrPieceNotFound = errors.New("piece not found in catalog")

// Catalog 零件目录：首次使用时加载并缓存，仅在 Reload 时失效
type Catalog struct {
	path string

	mu     sync.RWMutex
	loaded bool
	file   *File
	index  map[string]*PieceSpec
}

// New 创建目录访问对象（不立即读取文件）
func New(path string) *Catalog {
	return &Catalog{path: path}
}

// FromFile 直接使用已解析的目录内容
func FromFile(f *File) (*Catalog, error) {
	index, err := buildIndex(f)
	if err != nil {
		return nil, err
	}
	return &Catalog{loaded: true, file: f, index: index}, nil
}

// Path 目录文件路径
func (c *Catalog) Path() string {
	return c.path
}

// Reload 重新读取目录文件；解析失败时保留原有缓存
func (c *Catalog) Reload() error {
	f, err := LoadFile(c.path)
	if err != nil {
		return err
	}
	index, err := buildIndex(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.file, c.index, c.loaded = f, index, true
	c.mu.Unlock()
	return nil
}

func (c *Catalog) ensureLoaded() error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	f, err := LoadFile(c.path)
	if err != nil {
		return err
	}
	index, err := buildIndex(f)
	if err != nil {
		return err
	}
	c.file, c.index, c.loaded = f, index, true
	return nil
}

func (c *Catalog) snapshot() (*File, map[string]*PieceSpec, error) {
	if err := c.ensureLoaded(); err != nil {
		return nil, nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file, c.index, nil
}

// Version 目录版本
func (c *Catalog) Version() (string, error) {
	f, _, err := c.snapshot()
	if err != nil {
		return "", err
	}
	return f.CatalogVersion, nil
}

// Pieces 全部零件类型（保持文件中的顺序）
func (c *Catalog) Pieces() ([]*PieceSpec, error) {
	f, _, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]*PieceSpec, len(f.Pieces))
	for i := range f.Pieces {
		out[i] = &f.Pieces[i]
	}
	return out, nil
}

// Piece 按编码获取零件类型
func (c *Catalog) Piece(code string) (*PieceSpec, error) {
	_, index, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	p, ok := index[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPieceNotFound, code)
	}
	return p, nil
}

// Parameters 零件参数定义，未知编码返回空列表
func (c *Catalog) Parameters(code string) ([]ParameterSpec, error) {
	_, index, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	if p, ok := index[code]; ok {
		return p.Parameters, nil
	}
	return []ParameterSpec{}, nil
}

// Rules 零件校验规则（按声明顺序），未知编码返回空列表
func (c *Catalog) Rules(code string) ([]Rule, error) {
	_, index, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	if p, ok := index[code]; ok {
		return p.ValidationRules, nil
	}
	return []Rule{}, nil
}

// Disciplines 去重排序后的专业列表
func (c *Catalog) Disciplines() ([]string, error) {
	pieces, err := c.Pieces()
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, p := range pieces {
		if !seen[p.Discipline] {
			seen[p.Discipline] = true
			out = append(out, p.Discipline)
		}
	}
	sort.Strings(out)
	return out, nil
}

// PiecesByDiscipline 按专业筛选
func (c *Catalog) PiecesByDiscipline(discipline string) ([]*PieceSpec, error) {
	return c.filter(func(p *PieceSpec) bool { return p.Discipline == discipline })
}

// PiecesByCategory 按专业和分类筛选
func (c *Catalog) PiecesByCategory(discipline, category string) ([]*PieceSpec, error) {
	return c.filter(func(p *PieceSpec) bool {
		return p.Discipline == discipline && p.Category == category
	})
}

func (c *Catalog) filter(keep func(*PieceSpec) bool) ([]*PieceSpec, error) {
	pieces, err := c.Pieces()
	if err != nil {
		return nil, err
	}
	out := []*PieceSpec{}
	for _, p := range pieces {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// LoadFile 读取并解析目录文件（.json 或 .yaml/.yml）
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse 解析目录内容，format 为文件扩展名
func Parse(data []byte, format string) (*File, error) {
	var f File
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
	}
	normalize(&f)
	return &f, nil
}

// normalize 补齐可省略字段的默认值
func normalize(f *File) {
	if f.CatalogVersion == "" {
		f.CatalogVersion = "1.0"
	}
	for i := range f.Pieces {
		p := &f.Pieces[i]
		for j := range p.ValidationRules {
			if p.ValidationRules[j].Severity == "" {
				p.ValidationRules[j].Severity = SeverityError
			}
		}
		for j := range p.BOMTemplate {
			item := &p.BOMTemplate[j]
			if item.ItemNumber == 0 {
				item.ItemNumber = j + 1
			}
			if item.Quantity == 0 {
				item.Quantity = 1
			}
			if item.Unit == "" {
				item.Unit = "UN"
			}
		}
	}
}

func buildIndex(f *File) (map[string]*PieceSpec, error) {
	index := make(map[string]*PieceSpec, len(f.Pieces))
	for i := range f.Pieces {
		p := &f.Pieces[i]
		if p.Code == "" {
			return nil, fmt.Errorf("catalog piece #%d has no code", i+1)
		}
		if _, dup := index[p.Code]; dup {
			return nil, fmt.Errorf("catalog piece code '%s' is duplicated", p.Code)
		}
		for _, param := range p.Parameters {
			switch param.Type {
			case ParamTypeFloat, ParamTypeEnum, ParamTypeBool:
			default:
				return nil, fmt.Errorf("piece '%s' parameter '%s' has unknown type '%s'", p.Code, param.Name, param.Type)
			}
		}
		index[p.Code] = p
	}
	return index, nil
}
