package record

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/dyntab/schema"
	"github.com/hatlonely/dyntab/uid"
)

// Mode 校验模式，创建和更新的必填语义不同
type Mode int

const (
	ModeCreate Mode = iota
	ModeUpdate
)

// FieldError 单个字段的校验错误
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result 校验结果，Valid 为 true 时只有 Sanitized，为 false 时只有 Errors
type Result struct {
	Valid     bool         `json:"valid"`
	Errors    []FieldError `json:"errors,omitempty"`
	Sanitized Record       `json:"-"`
}

// ValidatorOptions Validator 的配置
type ValidatorOptions struct {
	// IDGenerator auto 默认值的 id 生成器，默认 TimeRandGenerator
	IDGenerator uid.Generator
	// Now 取当前时间，默认 time.Now
	Now func() time.Time
}

// Validator 按表配置校验并清洗记录数据
type Validator struct {
	idGen uid.Generator
	now   func() time.Time
}

func NewValidatorWithOptions(options *ValidatorOptions) *Validator {
	if options == nil {
		options = &ValidatorOptions{}
	}
	idGen := options.IDGenerator
	if idGen == nil {
		idGen = uid.NewTimeRandGeneratorWithOptions(nil)
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Validator{idGen: idGen, now: now}
}

var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// 常见的"最后修改时间"字段名，now 默认值在更新时也会刷新这些字段
var lastModifiedNames = map[string]bool{
	"updatedAt":    true,
	"updated_at":   true,
	"lastModified": true,
	"lastmodified": true,
	"modifiedAt":   true,
	"modified_at":  true,
}

// Validate 校验 payload。错误按字段累积，单个字段首个失败即停止该字段的
// 后续检查。校验通过时返回清洗后的记录并注入 auto/now 默认值。
func (v *Validator) Validate(cfg *schema.TableConfig, payload map[string]any, mode Mode) *Result {
	var fieldErrors []FieldError
	sanitized := Record{}

	for _, f := range cfg.Fields {
		fc := f.Config
		if fc.Calculated {
			continue
		}
		if mode == ModeUpdate && fc.Readonly {
			continue
		}

		raw, supplied := payload[f.Name]
		empty := !supplied || raw == nil || raw == ""

		if fc.Required && empty {
			// 部分更新不会因为未携带的必填字段报错
			if mode == ModeUpdate && !supplied {
				continue
			}
			// 创建时缺失但有默认值的必填字段，由默认值补齐
			if !supplied && fc.Default != nil {
				continue
			}
			fieldErrors = append(fieldErrors, FieldError{Field: f.Name, Message: "field is required"})
			continue
		}

		if !supplied {
			continue
		}

		if raw == nil {
			sanitized[f.Name] = Null()
			continue
		}
		if raw == "" && !fc.IsTextual() && fc.Type != schema.FieldTypeURL &&
			fc.Type != schema.FieldTypeFile && fc.Type != schema.FieldTypeImage {
			sanitized[f.Name] = Null()
			continue
		}

		value, ferr := sanitizeField(f.Name, fc, raw)
		if ferr != nil {
			fieldErrors = append(fieldErrors, *ferr)
			continue
		}
		sanitized[f.Name] = value
	}

	if len(fieldErrors) > 0 {
		return &Result{Valid: false, Errors: fieldErrors}
	}

	v.applyDefaults(cfg, sanitized, mode)
	return &Result{Valid: true, Sanitized: sanitized}
}

// applyDefaults 注入默认值：创建时补齐字面默认值和 auto/now 哨兵，
// 更新时只刷新约定的最后修改时间字段
func (v *Validator) applyDefaults(cfg *schema.TableConfig, sanitized Record, mode Mode) {
	for _, f := range cfg.Fields {
		fc := f.Config
		if fc.Calculated || fc.Default == nil {
			continue
		}

		current, present := sanitized[f.Name]
		absent := !present || current.IsNull() ||
			(current.Kind() == KindString && current.Str() == "")

		switch {
		case fc.Default == schema.DefaultAuto:
			if mode == ModeCreate && absent {
				sanitized[f.Name] = String(v.idGen.Generate(f.Name))
			}
		case fc.Default == schema.DefaultNow:
			if mode == ModeCreate && absent {
				sanitized[f.Name] = Time(v.now())
			}
			if mode == ModeUpdate && lastModifiedNames[f.Name] {
				sanitized[f.Name] = Time(v.now())
			}
		default:
			if mode == ModeCreate && !present {
				if value, ferr := sanitizeField(f.Name, fc, fc.Default); ferr == nil {
					sanitized[f.Name] = value
				}
			}
		}
	}
}

// sanitizeField 类型检查加清洗，首个失败即返回
func sanitizeField(name string, fc *schema.FieldConfig, raw any) (Value, *FieldError) {
	fail := func(format string, args ...any) (Value, *FieldError) {
		return Null(), &FieldError{Field: name, Message: fmt.Sprintf(format, args...)}
	}

	switch fc.Type {
	case schema.FieldTypeNumber:
		n, ok := coerceFloat(raw)
		if !ok {
			return fail("must be a number")
		}
		if fc.Min != nil && n < *fc.Min {
			return fail("must be at least %v", *fc.Min)
		}
		if fc.Max != nil && n > *fc.Max {
			return fail("must be at most %v", *fc.Max)
		}
		return Number(n), nil

	case schema.FieldTypeBoolean:
		b, ok := coerceBool(raw)
		if !ok {
			return fail("must be a boolean")
		}
		return Bool(b), nil

	case schema.FieldTypeDate, schema.FieldTypeTimestamp:
		s, ok := coerceString(raw)
		if !ok {
			return fail("must be a valid date")
		}
		t, err := parseTime(s)
		if err != nil {
			return fail("must be a valid date")
		}
		return Time(t), nil

	case schema.FieldTypeEmail:
		s, ok := coerceString(raw)
		if !ok || !emailRE.MatchString(s) {
			return fail("must be a valid email address")
		}
		return checkText(name, fc, s)

	case schema.FieldTypeURL:
		s, ok := coerceString(raw)
		if !ok {
			return fail("must be a valid URL")
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fail("must be a valid URL")
		}
		return checkText(name, fc, s)

	case schema.FieldTypeSelect:
		s, ok := coerceString(raw)
		if !ok || !fc.HasOption(s) {
			return fail("must be one of: %s", strings.Join(fc.Options, ", "))
		}
		return String(s), nil

	case schema.FieldTypeMultiSelect:
		items := coerceList(raw)
		for _, item := range items {
			if !fc.HasOption(item) {
				return fail("contains invalid option: %s", item)
			}
		}
		return List(items), nil

	default:
		// text/textarea/file/image 以及其余按文本处理的类型
		s, ok := coerceString(raw)
		if !ok {
			s = fmt.Sprintf("%v", raw)
		}
		return checkText(name, fc, s)
	}
}

// checkText 文本值的长度和模式约束
func checkText(name string, fc *schema.FieldConfig, s string) (Value, *FieldError) {
	fail := func(format string, args ...any) (Value, *FieldError) {
		return Null(), &FieldError{Field: name, Message: fmt.Sprintf(format, args...)}
	}
	if fc.MinLength != nil && len(s) < *fc.MinLength {
		return fail("must be at least %d characters", *fc.MinLength)
	}
	if fc.MaxLength != nil && len(s) > *fc.MaxLength {
		return fail("must be at most %d characters", *fc.MaxLength)
	}
	if fc.Pattern != "" {
		re, err := regexp.Compile(fc.Pattern)
		if err != nil || !re.MatchString(s) {
			return fail("does not match required pattern")
		}
	}
	return String(s), nil
}

func coerceFloat(raw any) (float64, bool) {
	switch x := raw.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func coerceBool(raw any) (bool, bool) {
	switch x := raw.(type) {
	case bool:
		return x, true
	case float64:
		return x != 0, true
	case int:
		return x != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	}
	return false, false
}

func coerceString(raw any) (string, bool) {
	switch x := raw.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	}
	return "", false
}

func coerceList(raw any) []string {
	switch x := raw.(type) {
	case []string:
		return x
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return items
	default:
		// 标量包装成单元素列表
		return []string{fmt.Sprintf("%v", raw)}
	}
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range []string{
		time.RFC3339,
		dateLayout,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
