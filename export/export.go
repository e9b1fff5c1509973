// Package export 把查询结果写成 xlsx。列顺序取 displayFields，表头取字段
// 的 displayName，单元格按字段的展示格式渲染。
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/hatlonely/dyntab/record"
	"github.com/hatlonely/dyntab/schema"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// CellValue 单元格取值。普通数字保留数字类型，其余按展示格式转成字符串。
func CellValue(fc *schema.FieldConfig, v record.Value) any {
	if v.IsNull() {
		return ""
	}

	switch fc.Type {
	case schema.FieldTypeNumber:
		n, ok := v.Float()
		if !ok {
			return v.Text()
		}
		switch fc.Format {
		case schema.FormatCurrency:
			return fmt.Sprintf("$%.2f", n)
		case schema.FormatPercentage:
			return fmt.Sprintf("%.2f%%", n)
		case schema.FormatDecimal:
			return n
		default:
			return n
		}
	case schema.FieldTypeBoolean:
		if v.Boolean() {
			return "Yes"
		}
		return "No"
	case schema.FieldTypeMultiSelect:
		return strings.Join(v.Items(), ", ")
	case schema.FieldTypeDate:
		if v.Kind() == record.KindTime {
			return v.Time().Format("2006-01-02")
		}
		return v.Text()
	case schema.FieldTypeTimestamp:
		if v.Kind() == record.KindTime {
			return v.Time().Format("2006-01-02 15:04:05")
		}
		return v.Text()
	default:
		return v.Text()
	}
}

// sheetName xlsx 的 sheet 名最长 31 个字符
func sheetName(name string, cfg *schema.TableConfig) string {
	s := cfg.DisplayName
	if s == "" {
		s = name
	}
	if r := []rune(s); len(r) > 31 {
		s = string(r[:31])
	}
	return s
}

// WriteXLSX 把记录写成 xlsx 并输出到 w
func WriteXLSX(w io.Writer, name string, cfg *schema.TableConfig, records []record.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(name, cfg)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return errors.Wrap(err, "failed to rename sheet")
	}

	fields := cfg.DisplayFieldNames()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "failed to create header style")
	}

	for col, field := range fields {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return errors.Wrap(err, "failed to build cell name")
		}
		header := field
		if fc, ok := cfg.Fields.Get(field); ok && fc.DisplayName != "" {
			header = fc.DisplayName
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return errors.Wrapf(err, "failed to write header %s", field)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return errors.Wrap(err, "failed to style header")
		}
	}

	for row, rec := range records {
		for col, field := range fields {
			fc, ok := cfg.Fields.Get(field)
			if !ok {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return errors.Wrap(err, "failed to build cell name")
			}
			if err := f.SetCellValue(sheet, cell, CellValue(fc, rec[field])); err != nil {
				return errors.Wrapf(err, "failed to write cell %s", cell)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "failed to write xlsx")
	}
	return nil
}
