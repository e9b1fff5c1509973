// Package schema 定义动态表的结构描述：表配置、字段配置以及配置级校验。
// 所有运行时建表、校验、导出逻辑都以这里的类型为唯一依据。
package schema

import (
	"regexp"

	"github.com/hatlonely/dyntab/formula"
	"github.com/pkg/errors"
)

// FieldType 字段语义类型
type FieldType string

const (
	FieldTypeText        FieldType = "text"
	FieldTypeNumber      FieldType = "number"
	FieldTypeBoolean     FieldType = "boolean"
	FieldTypeDate        FieldType = "date"
	FieldTypeTimestamp   FieldType = "timestamp"
	FieldTypeEmail       FieldType = "email"
	FieldTypeURL         FieldType = "url"
	FieldTypeTextarea    FieldType = "textarea"
	FieldTypeSelect      FieldType = "select"
	FieldTypeMultiSelect FieldType = "multiselect"
	FieldTypeFile        FieldType = "file"
	FieldTypeImage       FieldType = "image"
)

// 数字字段的展示格式，currency/decimal 采用浮点存储
const (
	FormatCurrency   = "currency"
	FormatDecimal    = "decimal"
	FormatPercentage = "percentage"
)

// 默认值哨兵，建表时不落到 DDL，由应用层在写入时生成
const (
	DefaultAuto = "auto"
	DefaultNow  = "now"
)

// identRE 表名和字段名的合法模式
var identRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidIdent 判断表名/字段名是否合法
func ValidIdent(name string) bool {
	return identRE.MatchString(name)
}

var fieldTypes = map[FieldType]bool{
	FieldTypeText:        true,
	FieldTypeNumber:      true,
	FieldTypeBoolean:     true,
	FieldTypeDate:        true,
	FieldTypeTimestamp:   true,
	FieldTypeEmail:       true,
	FieldTypeURL:         true,
	FieldTypeTextarea:    true,
	FieldTypeSelect:      true,
	FieldTypeMultiSelect: true,
	FieldTypeFile:        true,
	FieldTypeImage:       true,
}

// FieldConfig 单个字段的配置
type FieldConfig struct {
	Type        FieldType `json:"type"`
	DisplayName string    `json:"displayName,omitempty"`

	Required   bool `json:"required,omitempty"`
	PrimaryKey bool `json:"primaryKey,omitempty"`
	Unique     bool `json:"unique,omitempty"`
	Readonly   bool `json:"readonly,omitempty"`
	Calculated bool `json:"calculated,omitempty"`

	// Default 字面默认值，或者哨兵 "auto"/"now"
	Default any `json:"default,omitempty"`

	// Format 数字展示格式：currency/decimal/percentage
	Format string `json:"format,omitempty"`

	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`

	// Options select/multiselect 的取值集合
	Options []string `json:"options,omitempty"`

	// Formula calculated 字段的算术表达式，只读路径求值
	Formula string `json:"formula,omitempty"`
}

// HasOption 判断 value 是否属于 Options
func (f *FieldConfig) HasOption(value string) bool {
	for _, o := range f.Options {
		if o == value {
			return true
		}
	}
	return false
}

// IsTextual 判断字段是否按文本存储并参与模糊搜索
func (f *FieldConfig) IsTextual() bool {
	switch f.Type {
	case FieldTypeText, FieldTypeEmail, FieldTypeTextarea:
		return true
	}
	return false
}

// HasSentinelDefault 默认值是否为应用层哨兵
func (f *FieldConfig) HasSentinelDefault() bool {
	s, ok := f.Default.(string)
	return ok && (s == DefaultAuto || s == DefaultNow)
}

// Permissions 表级操作权限，未设置的操作默认允许
type Permissions struct {
	Create *bool `json:"create,omitempty"`
	Read   *bool `json:"read,omitempty"`
	Update *bool `json:"update,omitempty"`
	Delete *bool `json:"delete,omitempty"`
	Export *bool `json:"export,omitempty"`
}

// Operation 表级操作类型
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpExport Operation = "export"
)

// TableConfig 一张动态表的完整配置
type TableConfig struct {
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`

	// Fields 按配置顺序排列的字段集合
	Fields Fields `json:"fields"`

	// 能力开关，缺省为 true
	Sortable   *bool `json:"sortable,omitempty"`
	Filterable *bool `json:"filterable,omitempty"`
	Searchable *bool `json:"searchable,omitempty"`
	Paginated  *bool `json:"paginated,omitempty"`
	Exportable *bool `json:"exportable,omitempty"`

	DefaultSort      string `json:"defaultSort,omitempty"`
	DefaultSortOrder string `json:"defaultSortOrder,omitempty"`

	DisplayFields  []string `json:"displayFields,omitempty"`
	EditableFields []string `json:"editableFields,omitempty"`

	Permissions *Permissions `json:"permissions,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (c *TableConfig) CanSort() bool     { return boolOr(c.Sortable, true) }
func (c *TableConfig) CanFilter() bool   { return boolOr(c.Filterable, true) }
func (c *TableConfig) CanSearch() bool   { return boolOr(c.Searchable, true) }
func (c *TableConfig) CanPaginate() bool { return boolOr(c.Paginated, true) }
func (c *TableConfig) CanExport() bool   { return boolOr(c.Exportable, true) }

// Allowed 判断操作是否被权限配置允许
func (c *TableConfig) Allowed(op Operation) bool {
	if c.Permissions == nil {
		return true
	}
	switch op {
	case OpCreate:
		return boolOr(c.Permissions.Create, true)
	case OpRead:
		return boolOr(c.Permissions.Read, true)
	case OpUpdate:
		return boolOr(c.Permissions.Update, true)
	case OpDelete:
		return boolOr(c.Permissions.Delete, true)
	case OpExport:
		return boolOr(c.Permissions.Export, true)
	}
	return false
}

// PrimaryKey 返回主键字段，配置合法时有且仅有一个
func (c *TableConfig) PrimaryKey() (string, *FieldConfig, bool) {
	for _, f := range c.Fields {
		if f.Config.PrimaryKey {
			return f.Name, f.Config, true
		}
	}
	return "", nil, false
}

// DisplayFieldNames 展示字段列表，未配置时为全部字段
func (c *TableConfig) DisplayFieldNames() []string {
	if len(c.DisplayFields) > 0 {
		return c.DisplayFields
	}
	return c.Fields.Names()
}

// EditableFieldNames 可编辑字段列表，未配置时为全部字段去掉
// readonly/calculated/primaryKey
func (c *TableConfig) EditableFieldNames() []string {
	if len(c.EditableFields) > 0 {
		return c.EditableFields
	}
	var names []string
	for _, f := range c.Fields {
		if f.Config.Readonly || f.Config.Calculated || f.Config.PrimaryKey {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}

// Validate 校验表配置自身的不变量，违反任何一条都拒绝保存
func (c *TableConfig) Validate() error {
	if c.Fields.Len() == 0 {
		return errors.New("table config requires at least one field")
	}

	pkCount := 0
	for _, f := range c.Fields {
		if !ValidIdent(f.Name) {
			return errors.Errorf("invalid field name: %s", f.Name)
		}
		fc := f.Config
		if !fieldTypes[fc.Type] {
			return errors.Errorf("field %s: unknown type %q", f.Name, fc.Type)
		}
		if fc.PrimaryKey {
			pkCount++
		}
		if (fc.Type == FieldTypeSelect || fc.Type == FieldTypeMultiSelect) && len(fc.Options) == 0 {
			return errors.Errorf("field %s: %s type requires non-empty options", f.Name, fc.Type)
		}
		if fc.Calculated {
			if fc.Formula == "" {
				return errors.Errorf("field %s: calculated field requires a formula", f.Name)
			}
			expr, err := formula.Parse(fc.Formula)
			if err != nil {
				return errors.Wrapf(err, "field %s: invalid formula", f.Name)
			}
			for _, ref := range expr.Vars() {
				if !c.Fields.Has(ref) {
					return errors.Errorf("field %s: formula references unknown field: %s", f.Name, ref)
				}
			}
		}
		if fc.Pattern != "" {
			if _, err := regexp.Compile(fc.Pattern); err != nil {
				return errors.Wrapf(err, "field %s: invalid pattern", f.Name)
			}
		}
	}
	if pkCount != 1 {
		return errors.Errorf("table config requires exactly one primary key field, got %d", pkCount)
	}

	if c.DefaultSort != "" && !c.Fields.Has(c.DefaultSort) {
		return errors.Errorf("defaultSort references unknown field: %s", c.DefaultSort)
	}
	for _, name := range c.DisplayFields {
		if !c.Fields.Has(name) {
			return errors.Errorf("displayFields references unknown field: %s", name)
		}
	}
	for _, name := range c.EditableFields {
		if !c.Fields.Has(name) {
			return errors.Errorf("editableFields references unknown field: %s", name)
		}
	}
	return nil
}

// Document 配置文件的顶层结构
type Document struct {
	Tables map[string]*TableConfig `json:"tables"`
}

// NewDocument 创建空配置文档
func NewDocument() *Document {
	return &Document{Tables: map[string]*TableConfig{}}
}
