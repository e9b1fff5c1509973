package schema

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Field 字段名和配置的组合
type Field struct {
	Name   string
	Config *FieldConfig
}

// Fields 有序字段集合。JSON 表现为对象，反序列化时保留键的出现顺序，
// 这样 DDL 的列顺序与配置文件里的书写顺序一致。
type Fields []Field

// Get 按名称查找字段配置
func (fs Fields) Get(name string) (*FieldConfig, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Config, true
		}
	}
	return nil, false
}

// Has 判断字段是否存在
func (fs Fields) Has(name string) bool {
	_, ok := fs.Get(name)
	return ok
}

// Names 按顺序返回字段名
func (fs Fields) Names() []string {
	names := make([]string, 0, len(fs))
	for _, f := range fs {
		names = append(names, f.Name)
	}
	return names
}

// Len 字段数量
func (fs Fields) Len() int {
	return len(fs)
}

// MarshalJSON 按字段顺序输出 JSON 对象
func (fs Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Config)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 用 token 流解析对象，保留键顺序并拒绝重复键
func (fs *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "failed to parse fields")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("fields must be a JSON object")
	}

	seen := map[string]bool{}
	var out Fields
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "failed to parse field name")
		}
		name, ok := tok.(string)
		if !ok {
			return errors.New("field name must be a string")
		}
		if seen[name] {
			return errors.Errorf("duplicate field name: %s", name)
		}
		seen[name] = true

		var cfg FieldConfig
		if err := dec.Decode(&cfg); err != nil {
			return errors.Wrapf(err, "failed to parse field %s", name)
		}
		out = append(out, Field{Name: name, Config: &cfg})
	}

	if _, err := dec.Token(); err != nil {
		return errors.Wrap(err, "failed to parse fields")
	}

	*fs = out
	return nil
}
