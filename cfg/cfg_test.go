package cfg

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type testOptions struct {
	Addr     string `cfg:"addr" env:"CFGTEST_ADDR" validate:"required"`
	Driver   string `cfg:"driver" env:"CFGTEST_DRIVER" validate:"omitempty,oneof=sqlite3 mysql"`
	MaxConns int    `cfg:"maxConns" env:"CFGTEST_MAX_CONNS"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("测试配置加载", t, func() {
		Reset(func() {
			os.Unsetenv("CFGTEST_ADDR")
			os.Unsetenv("CFGTEST_DRIVER")
		})

		Convey("json 配置文件", func() {
			path := writeFile(t, "conf.json", `{"addr": ":8080", "maxConns": 3}`)

			var opts testOptions
			So(Load(path, &opts), ShouldBeNil)
			So(opts.Addr, ShouldEqual, ":8080")
			So(opts.MaxConns, ShouldEqual, 3)
		})

		Convey("yaml 配置文件", func() {
			path := writeFile(t, "conf.yaml", "addr: \":8080\"\ndriver: mysql\n")

			var opts testOptions
			So(Load(path, &opts), ShouldBeNil)
			So(opts.Addr, ShouldEqual, ":8080")
			So(opts.Driver, ShouldEqual, "mysql")
		})

		Convey("toml 配置文件", func() {
			path := writeFile(t, "conf.toml", "Addr = \":8080\"\nMaxConns = 7\n")

			var opts testOptions
			So(Load(path, &opts), ShouldBeNil)
			So(opts.Addr, ShouldEqual, ":8080")
			So(opts.MaxConns, ShouldEqual, 7)
		})

		Convey("环境变量覆盖文件值", func() {
			path := writeFile(t, "conf.json", `{"addr": ":8080", "driver": "sqlite3"}`)
			t.Setenv("CFGTEST_DRIVER", "mysql")

			var opts testOptions
			So(Load(path, &opts), ShouldBeNil)
			So(opts.Driver, ShouldEqual, "mysql")
		})

		Convey("path 为空时只用环境变量", func() {
			t.Setenv("CFGTEST_ADDR", ":9090")

			var opts testOptions
			So(Load("", &opts), ShouldBeNil)
			So(opts.Addr, ShouldEqual, ":9090")
		})

		Convey("不支持的扩展名报错", func() {
			path := writeFile(t, "conf.ini", "addr=:8080")

			var opts testOptions
			So(Load(path, &opts), ShouldNotBeNil)
		})

		Convey("校验失败报错", func() {
			path := writeFile(t, "conf.json", `{"addr": ":8080", "driver": "postgres"}`)

			var opts testOptions
			err := Load(path, &opts)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "invalid config")
		})
	})
}
