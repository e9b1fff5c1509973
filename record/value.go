// Package record 实现记录的值模型、按 schema 的校验清洗以及 calculated
// 字段的读路径求值。记录没有静态结构，合法性完全由所属表配置决定。
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hatlonely/dyntab/schema"
	"github.com/pkg/errors"
)

// Kind 值的类型标签
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindTime
	KindList
)

// Value 带类型标签的记录值，代替 any，写入存储前必须经过校验清洗
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
	list []string
}

func Null() Value               { return Value{kind: KindNull} }
func String(s string) Value     { return Value{kind: KindString, str: s} }
func Number(n float64) Value    { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value    { return Value{kind: KindTime, t: t} }
func List(items []string) Value { return Value{kind: KindList, list: items} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) Str() string     { return v.str }
func (v Value) Num() float64    { return v.num }
func (v Value) Boolean() bool   { return v.b }
func (v Value) Time() time.Time { return v.t }
func (v Value) Items() []string { return v.list }

// timeLayout 存储层统一使用的时间格式
const timeLayout = time.RFC3339

// dateLayout date 类型的存储格式
const dateLayout = "2006-01-02"

// Text 值的展示字符串
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(timeLayout)
	case KindList:
		data, _ := json.Marshal(v.list)
		return string(data)
	}
	return ""
}

// Float 值在公式求值时的数字视图
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		return f, err == nil
	}
	return 0, false
}

// MarshalJSON 按标签类型序列化，时间统一输出 ISO-8601
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindTime:
		return json.Marshal(v.t.Format(timeLayout))
	case KindList:
		return json.Marshal(v.list)
	}
	return nil, errors.Errorf("unknown value kind: %d", v.kind)
}

// UnmarshalJSON 从 JSON 还原值，对象类型不支持
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny 将 JSON 反序列化出来的原生值转成 Value
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Null(), errors.Wrapf(err, "invalid number %q", x.String())
		}
		return Number(f), nil
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return List(items), nil
	case []string:
		return List(x), nil
	}
	return Null(), errors.Errorf("unsupported value type: %T", raw)
}

// SQLValue 值在参数化 SQL 里的表现形式
func (v Value) SQLValue() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindTime:
		return v.t.Format(timeLayout)
	case KindList:
		data, _ := json.Marshal(v.list)
		return string(data)
	}
	return nil
}

// FromSQL 按字段类型解释存储层扫描出来的原始值
func FromSQL(fc *schema.FieldConfig, raw any) Value {
	if raw == nil {
		return Null()
	}

	switch fc.Type {
	case schema.FieldTypeNumber:
		switch x := raw.(type) {
		case int64:
			return Number(float64(x))
		case float64:
			return Number(x)
		case []byte:
			if f, err := strconv.ParseFloat(string(x), 64); err == nil {
				return Number(f)
			}
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return Number(f)
			}
		}
	case schema.FieldTypeBoolean:
		switch x := raw.(type) {
		case bool:
			return Bool(x)
		case int64:
			return Bool(x != 0)
		case []byte:
			return Bool(string(x) == "1" || string(x) == "true")
		}
	case schema.FieldTypeDate, schema.FieldTypeTimestamp:
		if s, ok := rawString(raw); ok {
			for _, layout := range []string{timeLayout, dateLayout, "2006-01-02 15:04:05"} {
				if t, err := time.Parse(layout, s); err == nil {
					return Time(t)
				}
			}
			return String(s)
		}
	case schema.FieldTypeMultiSelect:
		if s, ok := rawString(raw); ok {
			var items []string
			if err := json.Unmarshal([]byte(s), &items); err == nil {
				return List(items)
			}
			return List([]string{s})
		}
	}

	if s, ok := rawString(raw); ok {
		return String(s)
	}
	return String(fmt.Sprintf("%v", raw))
}

func rawString(raw any) (string, bool) {
	switch x := raw.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}

// Record 一条记录，字段名到值的映射
type Record map[string]Value

// FromPayload 将 JSON body 反序列化结果转成 Record，遇到不支持的类型报错
func FromPayload(payload map[string]any) (Record, error) {
	rec := make(Record, len(payload))
	for name, raw := range payload {
		v, err := FromAny(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", name)
		}
		rec[name] = v
	}
	return rec, nil
}
