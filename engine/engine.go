// Package engine 把配置存储、校验清洗和记录访问层串成完整的操作流：
// 处理器拿到表名 -> 解析配置 -> 校验清洗 -> 参数化 SQL -> calculated
// 字段后处理。表的建删是"存配置 + 执行 DDL"两步，失败时执行补偿动作，
// 不留下孤儿状态。
package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hatlonely/dyntab/log"
	"github.com/hatlonely/dyntab/record"
	"github.com/hatlonely/dyntab/schema"
	"github.com/hatlonely/dyntab/store"
	"github.com/hatlonely/dyntab/tableconf"
	"github.com/pkg/errors"
)

var (
	ErrTableNotConfigured = errors.New("table not configured")
	ErrTableExists        = errors.New("table already configured")
	ErrPermissionDenied   = errors.New("operation not permitted")
)

// ValidationError 记录校验失败，携带按字段累积的错误
type ValidationError struct {
	Fields []record.FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field error(s)", len(e.Fields))
}

// Engine 动态表引擎
type Engine struct {
	confs     *tableconf.Store
	store     *store.Store
	validator *record.Validator
	calc      *record.Calculator
	logger    log.Logger
}

func NewEngine(confs *tableconf.Store, st *store.Store, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		confs:     confs,
		store:     st,
		validator: record.NewValidatorWithOptions(nil),
		calc:      record.NewCalculator(),
		logger:    logger,
	}
}

// resolve 解析表配置并检查操作权限
func (e *Engine) resolve(name string, op schema.Operation) (*schema.TableConfig, error) {
	cfg, err := e.confs.Get(name)
	if err != nil {
		if errors.Is(err, tableconf.ErrNotFound) {
			return nil, errors.Wrapf(ErrTableNotConfigured, "table %s", name)
		}
		return nil, err
	}
	if !cfg.Allowed(op) {
		return nil, errors.Wrapf(ErrPermissionDenied, "%s on table %s", op, name)
	}
	return cfg, nil
}

// Configs 全部表配置
func (e *Engine) Configs() (*schema.Document, error) {
	return e.confs.Load()
}

// TableConfig 单表配置
func (e *Engine) TableConfig(name string) (*schema.TableConfig, error) {
	cfg, err := e.confs.Get(name)
	if err != nil && errors.Is(err, tableconf.ErrNotFound) {
		return nil, errors.Wrapf(ErrTableNotConfigured, "table %s", name)
	}
	return cfg, err
}

// CreateTable 保存配置并创建底层表。DDL 失败时回滚已保存的配置。
func (e *Engine) CreateTable(ctx context.Context, name string, cfg *schema.TableConfig) error {
	if _, err := e.confs.Get(name); err == nil {
		return errors.Wrapf(ErrTableExists, "table %s", name)
	}

	if err := e.confs.Set(name, cfg); err != nil {
		return err
	}
	if err := e.store.CreateTable(ctx, name, cfg); err != nil {
		if rbErr := e.confs.Delete(name); rbErr != nil {
			e.logger.Error("failed to roll back config after ddl failure",
				"table", name, "error", rbErr)
		}
		return err
	}

	e.logger.Info("table created", "table", name, "fields", cfg.Fields.Len())
	return nil
}

// UpdateTable 更新配置并重新执行建表 DDL（IF NOT EXISTS，已有表结构不迁移）。
// DDL 失败时恢复之前的配置。
func (e *Engine) UpdateTable(ctx context.Context, name string, cfg *schema.TableConfig) error {
	prev, err := e.confs.Get(name)
	if err != nil {
		if errors.Is(err, tableconf.ErrNotFound) {
			return errors.Wrapf(ErrTableNotConfigured, "table %s", name)
		}
		return err
	}

	if err := e.confs.Set(name, cfg); err != nil {
		return err
	}
	if err := e.store.CreateTable(ctx, name, cfg); err != nil {
		if rbErr := e.confs.Set(name, prev); rbErr != nil {
			e.logger.Error("failed to restore config after ddl failure",
				"table", name, "error", rbErr)
		}
		return err
	}

	e.logger.Info("table updated", "table", name)
	return nil
}

// DropTable 删除底层表和配置。配置删除失败时重建表作为补偿。
func (e *Engine) DropTable(ctx context.Context, name string) error {
	cfg, err := e.TableConfig(name)
	if err != nil {
		return err
	}

	if err := e.store.DropTable(ctx, name); err != nil {
		return err
	}
	if err := e.confs.Delete(name); err != nil {
		if rbErr := e.store.CreateTable(ctx, name, cfg); rbErr != nil {
			e.logger.Error("failed to recreate table after config delete failure",
				"table", name, "error", rbErr)
		}
		return err
	}

	e.logger.Info("table dropped", "table", name)
	return nil
}

// ClearTable 清空数据，保留表结构和配置
func (e *Engine) ClearTable(ctx context.Context, name string) error {
	if _, err := e.resolve(name, schema.OpDelete); err != nil {
		return err
	}
	if err := e.store.Clear(ctx, name); err != nil {
		return err
	}
	e.logger.Info("table cleared", "table", name)
	return nil
}

// TableStats 表统计信息，仅展示用途
func (e *Engine) TableStats(ctx context.Context, name string) (*store.TableStats, error) {
	if _, err := e.resolve(name, schema.OpRead); err != nil {
		return nil, err
	}
	return e.store.Stats(ctx, name)
}

// Query 列表查询请求
type Query struct {
	Limit     int
	Offset    int
	Sort      string
	SortOrder string
	Search    string
	// Filters 字段名到等值过滤条件（字符串形式，按字段类型转换）
	Filters map[string]string
}

// ListResult 列表查询结果
type ListResult struct {
	Records []record.Record `json:"records"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// buildFindOptions 按表的能力开关过滤查询参数
func buildFindOptions(cfg *schema.TableConfig, q *Query) *store.FindOptions {
	opts := &store.FindOptions{}
	if q == nil {
		return opts
	}
	if cfg.CanPaginate() {
		opts.Limit = q.Limit
		opts.Offset = q.Offset
	}
	if cfg.CanSort() {
		opts.Sort = q.Sort
		opts.SortOrder = q.SortOrder
	}
	if cfg.CanSearch() {
		opts.Search = q.Search
	}
	if cfg.CanFilter() && len(q.Filters) > 0 {
		opts.Filters = map[string]record.Value{}
		for name, raw := range q.Filters {
			fc, ok := cfg.Fields.Get(name)
			if !ok {
				continue
			}
			opts.Filters[name] = coerceFilterValue(fc, raw)
		}
	}
	return opts
}

// coerceFilterValue 查询参数都是字符串，按字段类型转成比较值
func coerceFilterValue(fc *schema.FieldConfig, raw string) record.Value {
	switch fc.Type {
	case schema.FieldTypeNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return record.Number(f)
		}
	case schema.FieldTypeBoolean:
		if b, err := strconv.ParseBool(raw); err == nil {
			return record.Bool(b)
		}
	}
	return record.String(raw)
}

// ListRecords 过滤/搜索/排序/分页查询，结果经过 calculated 字段后处理
func (e *Engine) ListRecords(ctx context.Context, name string, q *Query) (*ListResult, error) {
	cfg, err := e.resolve(name, schema.OpRead)
	if err != nil {
		return nil, err
	}

	opts := buildFindOptions(cfg, q)
	records, total, err := e.store.Find(ctx, name, cfg, opts)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i] = e.calc.Apply(cfg, records[i])
	}
	if records == nil {
		records = []record.Record{}
	}

	return &ListResult{Records: records, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

// pkValue 把路径/查询参数里的 id 字符串转成主键类型的值
func pkValue(cfg *schema.TableConfig, id string) record.Value {
	if _, fc, ok := cfg.PrimaryKey(); ok && fc.Type == schema.FieldTypeNumber {
		if f, err := strconv.ParseFloat(id, 64); err == nil {
			return record.Number(f)
		}
	}
	return record.String(id)
}

// GetRecord 按主键读取单条记录
func (e *Engine) GetRecord(ctx context.Context, name string, id string) (record.Record, error) {
	cfg, err := e.resolve(name, schema.OpRead)
	if err != nil {
		return nil, err
	}
	rec, err := e.store.Get(ctx, name, cfg, pkValue(cfg, id))
	if err != nil {
		return nil, err
	}
	return e.calc.Apply(cfg, rec), nil
}

// CreateRecord 创建记录：创建模式校验 -> 写入清洗后的非 calculated 字段 ->
// 按解析出的主键回读完整记录
func (e *Engine) CreateRecord(ctx context.Context, name string, payload map[string]any) (record.Record, error) {
	cfg, err := e.resolve(name, schema.OpCreate)
	if err != nil {
		return nil, err
	}

	result := e.validator.Validate(cfg, payload, record.ModeCreate)
	if !result.Valid {
		return nil, &ValidationError{Fields: result.Errors}
	}

	id, err := e.store.Insert(ctx, name, cfg, result.Sanitized)
	if err != nil {
		return nil, err
	}

	rec, err := e.store.Get(ctx, name, cfg, id)
	if err != nil {
		return nil, err
	}
	e.logger.Info("record created", "table", name, "id", id.Text())
	return e.calc.Apply(cfg, rec), nil
}

// UpdateRecord 更新记录：更新模式校验 -> 按主键更新 -> 回读
func (e *Engine) UpdateRecord(ctx context.Context, name string, id string, payload map[string]any) (record.Record, error) {
	cfg, err := e.resolve(name, schema.OpUpdate)
	if err != nil {
		return nil, err
	}

	result := e.validator.Validate(cfg, payload, record.ModeUpdate)
	if !result.Valid {
		return nil, &ValidationError{Fields: result.Errors}
	}

	key := pkValue(cfg, id)
	if err := e.store.Update(ctx, name, cfg, key, result.Sanitized); err != nil {
		return nil, err
	}

	rec, err := e.store.Get(ctx, name, cfg, key)
	if err != nil {
		return nil, err
	}
	e.logger.Info("record updated", "table", name, "id", id)
	return e.calc.Apply(cfg, rec), nil
}

// DeleteRecord 按主键删除记录
func (e *Engine) DeleteRecord(ctx context.Context, name string, id string) error {
	cfg, err := e.resolve(name, schema.OpDelete)
	if err != nil {
		return err
	}
	if err := e.store.Delete(ctx, name, cfg, pkValue(cfg, id)); err != nil {
		return err
	}
	e.logger.Info("record deleted", "table", name, "id", id)
	return nil
}

// ExportRecords 导出查询，受 export 权限和 exportable 能力开关约束
func (e *Engine) ExportRecords(ctx context.Context, name string, q *Query) (*schema.TableConfig, []record.Record, error) {
	cfg, err := e.resolve(name, schema.OpExport)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.CanExport() {
		return nil, nil, errors.Wrapf(ErrPermissionDenied, "export on table %s", name)
	}

	opts := buildFindOptions(cfg, q)
	records, _, err := e.store.Find(ctx, name, cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	for i := range records {
		records[i] = e.calc.Apply(cfg, records[i])
	}
	return cfg, records, nil
}
