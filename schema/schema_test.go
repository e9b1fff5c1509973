package schema

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func validConfig() *TableConfig {
	return &TableConfig{
		DisplayName: "员工",
		Fields: Fields{
			{Name: "id", Config: &FieldConfig{Type: FieldTypeText, PrimaryKey: true, Default: DefaultAuto}},
			{Name: "name", Config: &FieldConfig{Type: FieldTypeText, Required: true}},
			{Name: "salary", Config: &FieldConfig{Type: FieldTypeNumber, Format: FormatCurrency}},
			{Name: "active", Config: &FieldConfig{Type: FieldTypeBoolean, Default: false}},
		},
	}
}

func TestTableConfigValidate(t *testing.T) {
	Convey("测试 TableConfig Validate 方法", t, func() {
		Convey("合法配置", func() {
			So(validConfig().Validate(), ShouldBeNil)
		})

		Convey("没有字段", func() {
			cfg := &TableConfig{}
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("主键必须有且仅有一个", func() {
			cfg := validConfig()
			cfg.Fields[0].Config.PrimaryKey = false
			err := cfg.Validate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "exactly one primary key")

			cfg = validConfig()
			cfg.Fields[1].Config.PrimaryKey = true
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("非法字段名", func() {
			cfg := validConfig()
			cfg.Fields = append(cfg.Fields, Field{Name: "1bad", Config: &FieldConfig{Type: FieldTypeText}})
			err := cfg.Validate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "invalid field name")
		})

		Convey("未知字段类型", func() {
			cfg := validConfig()
			cfg.Fields[1].Config.Type = "unknown"
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("select 必须有 options", func() {
			cfg := validConfig()
			cfg.Fields = append(cfg.Fields, Field{Name: "status", Config: &FieldConfig{Type: FieldTypeSelect}})
			err := cfg.Validate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "options")
		})

		Convey("calculated 必须有 formula", func() {
			cfg := validConfig()
			cfg.Fields = append(cfg.Fields, Field{Name: "total", Config: &FieldConfig{Type: FieldTypeNumber, Calculated: true}})
			err := cfg.Validate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "formula")
		})

		Convey("formula 语法错误在保存时就被拒绝", func() {
			cfg := validConfig()
			cfg.Fields = append(cfg.Fields, Field{Name: "total", Config: &FieldConfig{Type: FieldTypeNumber, Calculated: true, Formula: "salary *"}})
			err := cfg.Validate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "invalid formula")
		})

		Convey("formula 引用未知字段被拒绝", func() {
			cfg := validConfig()
			cfg.Fields = append(cfg.Fields, Field{Name: "total", Config: &FieldConfig{Type: FieldTypeNumber, Calculated: true, Formula: "salary * bonus"}})
			err := cfg.Validate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "references unknown field")
		})

		Convey("非法正则模式", func() {
			cfg := validConfig()
			cfg.Fields[1].Config.Pattern = "["
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("defaultSort 引用未知字段", func() {
			cfg := validConfig()
			cfg.DefaultSort = "missing"
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("displayFields 引用未知字段", func() {
			cfg := validConfig()
			cfg.DisplayFields = []string{"name", "missing"}
			So(cfg.Validate(), ShouldNotBeNil)
		})
	})
}

func TestTableConfigDerivedFields(t *testing.T) {
	Convey("测试派生字段列表", t, func() {
		cfg := validConfig()
		cfg.Fields = append(cfg.Fields, Field{
			Name:   "total",
			Config: &FieldConfig{Type: FieldTypeNumber, Calculated: true, Formula: "salary * 12"},
		})

		Convey("displayFields 缺省为全部字段", func() {
			So(cfg.DisplayFieldNames(), ShouldResemble, []string{"id", "name", "salary", "active", "total"})
		})

		Convey("editableFields 缺省排除主键和 calculated", func() {
			So(cfg.EditableFieldNames(), ShouldResemble, []string{"name", "salary", "active"})
		})

		Convey("显式配置优先", func() {
			cfg.DisplayFields = []string{"name"}
			So(cfg.DisplayFieldNames(), ShouldResemble, []string{"name"})
		})
	})
}

func TestTableConfigFlags(t *testing.T) {
	Convey("测试能力开关和权限", t, func() {
		cfg := validConfig()

		Convey("缺省全部允许", func() {
			So(cfg.CanSort(), ShouldBeTrue)
			So(cfg.CanFilter(), ShouldBeTrue)
			So(cfg.CanSearch(), ShouldBeTrue)
			So(cfg.CanPaginate(), ShouldBeTrue)
			So(cfg.CanExport(), ShouldBeTrue)
			So(cfg.Allowed(OpCreate), ShouldBeTrue)
			So(cfg.Allowed(OpDelete), ShouldBeTrue)
		})

		Convey("显式关闭后拒绝", func() {
			f := false
			cfg.Exportable = &f
			cfg.Permissions = &Permissions{Delete: &f}
			So(cfg.CanExport(), ShouldBeFalse)
			So(cfg.Allowed(OpDelete), ShouldBeFalse)
			So(cfg.Allowed(OpCreate), ShouldBeTrue)
		})
	})
}

func TestFieldsJSON(t *testing.T) {
	Convey("测试 Fields JSON 序列化", t, func() {
		Convey("反序列化保留键顺序", func() {
			data := `{"zeta":{"type":"text","primaryKey":true},"alpha":{"type":"number"},"beta":{"type":"boolean"}}`
			var fs Fields
			So(json.Unmarshal([]byte(data), &fs), ShouldBeNil)
			So(fs.Names(), ShouldResemble, []string{"zeta", "alpha", "beta"})
		})

		Convey("序列化再反序列化保持顺序", func() {
			cfg := validConfig()
			data, err := json.Marshal(cfg)
			So(err, ShouldBeNil)

			var parsed TableConfig
			So(json.Unmarshal(data, &parsed), ShouldBeNil)
			So(parsed.Fields.Names(), ShouldResemble, cfg.Fields.Names())
			So(parsed.Fields[0].Config.PrimaryKey, ShouldBeTrue)
		})

		Convey("重复字段名报错", func() {
			data := `{"a":{"type":"text"},"a":{"type":"number"}}`
			var fs Fields
			So(json.Unmarshal([]byte(data), &fs), ShouldNotBeNil)
		})

		Convey("非对象报错", func() {
			var fs Fields
			So(json.Unmarshal([]byte(`[1,2]`), &fs), ShouldNotBeNil)
		})
	})
}

func TestValidIdent(t *testing.T) {
	Convey("测试标识符校验", t, func() {
		So(ValidIdent("employees"), ShouldBeTrue)
		So(ValidIdent("Table_1"), ShouldBeTrue)
		So(ValidIdent("1table"), ShouldBeFalse)
		So(ValidIdent("drop table"), ShouldBeFalse)
		So(ValidIdent(""), ShouldBeFalse)
	})
}
