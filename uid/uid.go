// Package uid 生成记录标识。auto 默认值字段在创建记录时通过这里取得唯一 id。
package uid

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Generator 字符串 id 生成接口，field 为触发生成的字段名
type Generator interface {
	Generate(field string) string
}

// TimeRandOptions TimeRandGenerator 的配置
type TimeRandOptions struct {
	// Now 取当前时间，默认 time.Now，测试时可注入
	Now func() time.Time
}

// TimeRandGenerator 生成 "<field>_<毫秒时间戳>_<随机后缀>" 形式的 id。
// 不保证密码学意义上的唯一，碰撞概率低但非零。
type TimeRandGenerator struct {
	now func() time.Time
}

func NewTimeRandGeneratorWithOptions(options *TimeRandOptions) *TimeRandGenerator {
	now := time.Now
	if options != nil && options.Now != nil {
		now = options.Now
	}
	return &TimeRandGenerator{now: now}
}

func (g *TimeRandGenerator) Generate(field string) string {
	return fmt.Sprintf("%s_%d_%06d", field, g.now().UnixMilli(), rand.Intn(1000000))
}

// UUIDOptions UUIDGenerator 的配置
type UUIDOptions struct {
	// WithHyphens 是否保留中划线，默认不保留
	WithHyphens bool
}

// UUIDGenerator 基于 uuid v4 的生成器
type UUIDGenerator struct {
	withHyphens bool
}

func NewUUIDGeneratorWithOptions(options *UUIDOptions) *UUIDGenerator {
	if options == nil {
		options = &UUIDOptions{}
	}
	return &UUIDGenerator{withHyphens: options.WithHyphens}
}

func (g *UUIDGenerator) Generate(string) string {
	u := uuid.New()
	if g.withHyphens {
		return u.String()
	}
	return hex.EncodeToString(u[:])
}
