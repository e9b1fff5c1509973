package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hatlonely/dyntab/record"
	"github.com/hatlonely/dyntab/schema"
	"github.com/pkg/errors"
)

// FindOptions 列表查询参数
type FindOptions struct {
	Limit     int
	Offset    int
	Sort      string
	SortOrder string
	Search    string
	// Filters 字段名到精确匹配值的映射
	Filters map[string]record.Value
}

// buildWhere 组合等值过滤和跨文本字段的模糊搜索，二者 AND 连接
func buildWhere(cfg *schema.TableConfig, opts *FindOptions) (string, []any) {
	var conds []string
	var args []any

	for _, f := range cfg.Fields {
		v, ok := opts.Filters[f.Name]
		if !ok {
			continue
		}
		conds = append(conds, fmt.Sprintf("%s = ?", f.Name))
		args = append(args, v.SQLValue())
	}

	if opts.Search != "" {
		var searchConds []string
		for _, f := range cfg.Fields {
			if f.Config.Calculated || !f.Config.IsTextual() {
				continue
			}
			searchConds = append(searchConds, fmt.Sprintf("%s LIKE ?", f.Name))
			args = append(args, "%"+opts.Search+"%")
		}
		if len(searchConds) > 0 {
			conds = append(conds, "("+strings.Join(searchConds, " OR ")+")")
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Find 列表查询。排序优先取请求参数，其次表配置的 defaultSort，都没有则
// 不排序。只有显式传 limit 时才分页。总数用同一 WHERE 再跑一次 COUNT。
func (s *Store) Find(ctx context.Context, table string, cfg *schema.TableConfig, opts *FindOptions) ([]record.Record, int64, error) {
	if opts == nil {
		opts = &FindOptions{}
	}

	where, args := buildWhere(cfg, opts)
	sqlStr := fmt.Sprintf("SELECT * FROM %s%s", table, where)

	sort := opts.Sort
	order := opts.SortOrder
	if sort == "" {
		sort = cfg.DefaultSort
		order = cfg.DefaultSortOrder
	}
	if sort != "" && cfg.Fields.Has(sort) {
		if strings.ToUpper(order) != "DESC" {
			order = "ASC"
		} else {
			order = "DESC"
		}
		sqlStr += fmt.Sprintf(" ORDER BY %s %s", sort, order)
	}

	if opts.Limit > 0 {
		sqlStr += fmt.Sprintf(" LIMIT %d", opts.Limit)
		if opts.Offset > 0 {
			sqlStr += fmt.Sprintf(" OFFSET %d", opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to query table %s", table)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		rec, err := s.scanRow(rows, cfg)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrapf(err, "failed to iterate rows of table %s", table)
	}

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where)
	var total int64
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrapf(err, "failed to count rows of table %s", table)
	}

	return records, total, nil
}

// Get 按主键读取单条记录
func (s *Store) Get(ctx context.Context, table string, cfg *schema.TableConfig, id record.Value) (record.Record, error) {
	pk, _, ok := cfg.PrimaryKey()
	if !ok {
		return nil, errors.Wrapf(ErrNoPrimaryKey, "table %s", table)
	}

	sqlStr := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", table, pk)
	rows, err := s.db.QueryContext(ctx, sqlStr, id.SQLValue())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query table %s", table)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrapf(err, "failed to query table %s", table)
		}
		return nil, errors.Wrapf(ErrRecordNotFound, "table %s", table)
	}
	return s.scanRow(rows, cfg)
}

// Insert 写入一条清洗后的记录，按 schema 顺序取非 calculated 字段。
// 返回解析出的主键值：payload 里带了主键用主键，否则用引擎自增 rowid。
func (s *Store) Insert(ctx context.Context, table string, cfg *schema.TableConfig, rec record.Record) (record.Value, error) {
	var columns []string
	var placeholders []string
	var args []any

	for _, f := range cfg.Fields {
		if f.Config.Calculated {
			continue
		}
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		columns = append(columns, f.Name)
		placeholders = append(placeholders, "?")
		args = append(args, v.SQLValue())
	}
	if len(columns) == 0 {
		return record.Null(), errors.New("no fields to insert")
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	result, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return record.Null(), errors.Wrapf(err, "failed to insert into table %s", table)
	}

	if pk, _, ok := cfg.PrimaryKey(); ok {
		if v, ok := rec[pk]; ok && !v.IsNull() {
			return v, nil
		}
	}
	rowID, err := result.LastInsertId()
	if err != nil {
		return record.Null(), errors.Wrapf(err, "failed to resolve inserted id of table %s", table)
	}
	return record.Number(float64(rowID)), nil
}

// Update 按主键更新，SET 列表排除 calculated 和主键字段，
// 没有可更新字段时直接报错
func (s *Store) Update(ctx context.Context, table string, cfg *schema.TableConfig, id record.Value, rec record.Record) error {
	pk, _, ok := cfg.PrimaryKey()
	if !ok {
		return errors.Wrapf(ErrNoPrimaryKey, "table %s", table)
	}

	var setParts []string
	var args []any
	for _, f := range cfg.Fields {
		if f.Config.Calculated || f.Name == pk {
			continue
		}
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		setParts = append(setParts, fmt.Sprintf("%s = ?", f.Name))
		args = append(args, v.SQLValue())
	}
	if len(setParts) == 0 {
		return errors.Wrapf(ErrNoUpdatableFields, "table %s", table)
	}
	args = append(args, id.SQLValue())

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		table, strings.Join(setParts, ", "), pk)

	result, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to update table %s", table)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "failed to update table %s", table)
	}
	if affected == 0 {
		return errors.Wrapf(ErrRecordNotFound, "table %s", table)
	}
	return nil
}

// Delete 按主键删除，没有命中任何行按失败处理
func (s *Store) Delete(ctx context.Context, table string, cfg *schema.TableConfig, id record.Value) error {
	pk, _, ok := cfg.PrimaryKey()
	if !ok {
		return errors.Wrapf(ErrNoPrimaryKey, "table %s", table)
	}

	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, pk)
	result, err := s.db.ExecContext(ctx, sqlStr, id.SQLValue())
	if err != nil {
		return errors.Wrapf(err, "failed to delete from table %s", table)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "failed to delete from table %s", table)
	}
	if affected == 0 {
		return errors.Wrapf(ErrRecordNotFound, "table %s", table)
	}
	return nil
}

// scanRow 扫描一行并按字段配置解释原始值
func (s *Store) scanRow(rows *sql.Rows, cfg *schema.TableConfig) (record.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read columns")
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, errors.Wrap(err, "failed to scan row")
	}

	rec := record.Record{}
	for i, col := range columns {
		fc, ok := cfg.Fields.Get(col)
		if !ok {
			fc = &schema.FieldConfig{Type: schema.FieldTypeText}
		}
		rec[col] = record.FromSQL(fc, values[i])
	}
	return rec, nil
}
