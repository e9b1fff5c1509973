package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hatlonely/dyntab/record"
	"github.com/hatlonely/dyntab/schema"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"
)

func TestCellValue(t *testing.T) {
	Convey("测试单元格取值", t, func() {
		Convey("数字按展示格式渲染", func() {
			fc := &schema.FieldConfig{Type: schema.FieldTypeNumber, Format: schema.FormatCurrency}
			So(CellValue(fc, record.Number(1234.5)), ShouldEqual, "$1234.50")

			fc.Format = schema.FormatPercentage
			So(CellValue(fc, record.Number(85)), ShouldEqual, "85.00%")

			fc.Format = schema.FormatDecimal
			So(CellValue(fc, record.Number(3.14)), ShouldEqual, 3.14)

			fc.Format = ""
			So(CellValue(fc, record.Number(42)), ShouldEqual, 42.0)
		})

		Convey("布尔渲染成 Yes/No", func() {
			fc := &schema.FieldConfig{Type: schema.FieldTypeBoolean}
			So(CellValue(fc, record.Bool(true)), ShouldEqual, "Yes")
			So(CellValue(fc, record.Bool(false)), ShouldEqual, "No")
		})

		Convey("multiselect 用逗号连接", func() {
			fc := &schema.FieldConfig{Type: schema.FieldTypeMultiSelect}
			So(CellValue(fc, record.List([]string{"a", "b"})), ShouldEqual, "a, b")
		})

		Convey("日期和时间戳按各自布局格式化", func() {
			ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

			fc := &schema.FieldConfig{Type: schema.FieldTypeDate}
			So(CellValue(fc, record.Time(ts)), ShouldEqual, "2024-05-01")

			fc.Type = schema.FieldTypeTimestamp
			So(CellValue(fc, record.Time(ts)), ShouldEqual, "2024-05-01 12:30:00")
		})

		Convey("null 渲染成空串", func() {
			fc := &schema.FieldConfig{Type: schema.FieldTypeText}
			So(CellValue(fc, record.Null()), ShouldEqual, "")
		})
	})
}

func TestSheetName(t *testing.T) {
	Convey("测试 sheet 命名", t, func() {
		So(sheetName("orders", &schema.TableConfig{}), ShouldEqual, "orders")
		So(sheetName("orders", &schema.TableConfig{DisplayName: "订单"}), ShouldEqual, "订单")

		long := strings.Repeat("甲", 40)
		So(sheetName("orders", &schema.TableConfig{DisplayName: long}),
			ShouldEqual, strings.Repeat("甲", 31))
	})
}

func TestWriteXLSX(t *testing.T) {
	Convey("测试 xlsx 导出", t, func() {
		cfg := &schema.TableConfig{
			DisplayName: "订单",
			Fields: schema.Fields{
				{Name: "id", Config: &schema.FieldConfig{Type: schema.FieldTypeText, PrimaryKey: true}},
				{Name: "item", Config: &schema.FieldConfig{Type: schema.FieldTypeText, DisplayName: "商品"}},
				{Name: "amount", Config: &schema.FieldConfig{Type: schema.FieldTypeNumber, Format: schema.FormatCurrency}},
				{Name: "paid", Config: &schema.FieldConfig{Type: schema.FieldTypeBoolean}},
			},
		}
		records := []record.Record{
			{
				"id":     record.String("o1"),
				"item":   record.String("shirt"),
				"amount": record.Number(19.9),
				"paid":   record.Bool(true),
			},
			{
				"id":   record.String("o2"),
				"item": record.String("pants"),
				"paid": record.Bool(false),
			},
		}

		var buf bytes.Buffer
		So(WriteXLSX(&buf, "orders", cfg, records), ShouldBeNil)

		f, err := excelize.OpenReader(&buf)
		So(err, ShouldBeNil)
		defer f.Close()

		So(f.GetSheetList(), ShouldResemble, []string{"订单"})

		rows, err := f.GetRows("订单")
		So(err, ShouldBeNil)
		So(rows, ShouldHaveLength, 3)

		// 表头取 displayName，未配置的退回字段名
		So(rows[0], ShouldResemble, []string{"id", "商品", "amount", "paid"})
		So(rows[1], ShouldResemble, []string{"o1", "shirt", "$19.90", "Yes"})
		So(rows[2][0], ShouldEqual, "o2")
		So(rows[2][3], ShouldEqual, "No")
	})
}
