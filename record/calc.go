package record

import (
	"sync"

	"github.com/hatlonely/dyntab/formula"
	"github.com/hatlonely/dyntab/schema"
)

// Calculator 读路径上的 calculated 字段求值器，解析结果按公式文本缓存
type Calculator struct {
	mu    sync.RWMutex
	cache map[string]*formula.Expr
}

func NewCalculator() *Calculator {
	return &Calculator{cache: map[string]*formula.Expr{}}
}

func (c *Calculator) parse(src string) (*formula.Expr, error) {
	c.mu.RLock()
	expr, ok := c.cache[src]
	c.mu.RUnlock()
	if ok {
		return expr, nil
	}

	expr, err := formula.Parse(src)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[src] = expr
	c.mu.Unlock()
	return expr, nil
}

// Apply 为记录填充所有 calculated 字段的值。公式解析或求值失败时该字段
// 置为 null，不影响其余字段。
func (c *Calculator) Apply(cfg *schema.TableConfig, rec Record) Record {
	for _, f := range cfg.Fields {
		fc := f.Config
		if !fc.Calculated || fc.Formula == "" {
			continue
		}

		expr, err := c.parse(fc.Formula)
		if err != nil {
			rec[f.Name] = Null()
			continue
		}

		vars := map[string]float64{}
		for _, name := range expr.Vars() {
			if v, ok := rec[name]; ok {
				if n, ok := v.Float(); ok {
					vars[name] = n
				}
			}
		}

		result, err := expr.Eval(vars)
		if err != nil {
			rec[f.Name] = Null()
			continue
		}
		rec[f.Name] = Number(result)
	}
	return rec
}
