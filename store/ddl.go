package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/hatlonely/dyntab/schema"
	"github.com/pkg/errors"
)

// BuildCreateTableSQL 按 schema 顺序生成建表语句，calculated 字段不落列。
// 列约束固定顺序：PRIMARY KEY（蕴含非空唯一）> NOT NULL > UNIQUE，
// 字面默认值生成 DEFAULT 子句，auto/now 哨兵由应用层处理不进 DDL。
func (s *Store) BuildCreateTableSQL(table string, cfg *schema.TableConfig) string {
	var columns []string
	for _, f := range cfg.Fields {
		if f.Config.Calculated {
			continue
		}
		columns = append(columns, s.buildColumnDefinition(f.Name, f.Config))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		table, strings.Join(columns, ",\n  "))
}

// buildColumnDefinition 构建单个列定义
func (s *Store) buildColumnDefinition(name string, fc *schema.FieldConfig) string {
	parts := []string{name, s.columnType(fc)}

	if fc.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	} else if fc.Required {
		parts = append(parts, "NOT NULL")
	} else if fc.Unique {
		parts = append(parts, "UNIQUE")
	}

	if fc.Default != nil && !fc.HasSentinelDefault() {
		parts = append(parts, fmt.Sprintf("DEFAULT %s", formatDefaultValue(fc.Default)))
	}

	return strings.Join(parts, " ")
}

// columnType 语义类型到存储类型的映射
func (s *Store) columnType(fc *schema.FieldConfig) string {
	switch fc.Type {
	case schema.FieldTypeNumber:
		if fc.Format == schema.FormatCurrency || fc.Format == schema.FormatDecimal {
			if s.driver == "mysql" {
				return "DOUBLE"
			}
			return "REAL"
		}
		if s.driver == "mysql" {
			return "INT"
		}
		return "INTEGER"
	case schema.FieldTypeBoolean:
		if s.driver == "mysql" {
			return "BOOLEAN"
		}
		return "INTEGER"
	case schema.FieldTypeTextarea:
		return "TEXT"
	default:
		// text/email/url/select/multiselect/date/timestamp/file/image
		// 一律按字符串存储，时间由应用层负责 ISO-8601 序列化
		if s.driver == "mysql" {
			return "VARCHAR(255)"
		}
		return "TEXT"
	}
}

func formatDefaultValue(value any) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(v, "'", "''"))
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CreateTable 建表，IF NOT EXISTS 保证幂等
func (s *Store) CreateTable(ctx context.Context, table string, cfg *schema.TableConfig) error {
	if _, err := s.db.ExecContext(ctx, s.BuildCreateTableSQL(table, cfg)); err != nil {
		return errors.Wrapf(err, "failed to create table %s", table)
	}
	return nil
}

// DropTable 删表，IF EXISTS 保证幂等
func (s *Store) DropTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return errors.Wrapf(err, "failed to drop table %s", table)
	}
	return nil
}

// Clear 清空全部行，保留表结构
func (s *Store) Clear(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return errors.Wrapf(err, "failed to clear table %s", table)
	}
	return nil
}

// ColumnInfo 列的展示元数据
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"notnull"`
	PrimaryKey bool   `json:"pk"`
}

// TableStats 表的统计信息，仅用于展示
type TableStats struct {
	RowCount int64        `json:"rowCount"`
	Columns  []ColumnInfo `json:"columns"`
}

// Stats 返回行数和列元数据
func (s *Store) Stats(ctx context.Context, table string) (*TableStats, error) {
	stats := &TableStats{}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	if err := row.Scan(&stats.RowCount); err != nil {
		return nil, errors.Wrapf(err, "failed to count rows of table %s", table)
	}

	switch s.driver {
	case "mysql":
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SHOW COLUMNS FROM %s", table))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to inspect table %s", table)
		}
		defer rows.Close()
		for rows.Next() {
			var field, colType, null, key string
			var def, extra any
			if err := rows.Scan(&field, &colType, &null, &key, &def, &extra); err != nil {
				return nil, errors.Wrap(err, "failed to scan column info")
			}
			stats.Columns = append(stats.Columns, ColumnInfo{
				Name:       field,
				Type:       colType,
				NotNull:    null == "NO",
				PrimaryKey: key == "PRI",
			})
		}
		return stats, rows.Err()
	default:
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to inspect table %s", table)
		}
		defer rows.Close()
		for rows.Next() {
			var cid int
			var name, colType string
			var notnull, pk int
			var def any
			if err := rows.Scan(&cid, &name, &colType, &notnull, &def, &pk); err != nil {
				return nil, errors.Wrap(err, "failed to scan column info")
			}
			stats.Columns = append(stats.Columns, ColumnInfo{
				Name:       name,
				Type:       colType,
				NotNull:    notnull != 0,
				PrimaryKey: pk != 0,
			})
		}
		return stats, rows.Err()
	}
}
