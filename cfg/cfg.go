// Package cfg 加载服务配置：配置文件按扩展名解码（json/yaml/toml），
// 环境变量覆盖文件值，最后做结构体校验。
package cfg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load 依次应用配置文件、环境变量和校验。path 为空时跳过文件解码。
func Load(path string, v any) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "failed to read config file")
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			if err := json.Unmarshal(data, v); err != nil {
				return errors.Wrap(err, "failed to parse json config")
			}
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, v); err != nil {
				return errors.Wrap(err, "failed to parse yaml config")
			}
		case ".toml":
			if err := toml.Unmarshal(data, v); err != nil {
				return errors.Wrap(err, "failed to parse toml config")
			}
		default:
			return errors.Errorf("unsupported config file extension: %s", filepath.Ext(path))
		}
	}

	if err := env.Parse(v); err != nil {
		return errors.Wrap(err, "failed to parse environment variables")
	}

	if err := validator.New().Struct(v); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
