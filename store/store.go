// Package store 实现对嵌入式关系存储的通用访问：按表配置生成 DDL，
// 以及完全由 schema 元数据驱动的参数化 CRUD。没有任何写死的表结构。
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrNoPrimaryKey      = errors.New("no primary key defined")
	ErrNoUpdatableFields = errors.New("no updatable fields in payload")
)

// Options 存储连接配置
type Options struct {
	Driver   string `cfg:"driver" env:"DRIVER" validate:"omitempty,oneof=sqlite3 mysql"`
	DSN      string `cfg:"dsn" env:"DSN"`
	Host     string `cfg:"host" env:"HOST"`
	Port     string `cfg:"port" env:"PORT"`
	Database string `cfg:"database" env:"DATABASE"`
	Username string `cfg:"username" env:"USERNAME"`
	Password string `cfg:"password" env:"PASSWORD"`
	Charset  string `cfg:"charset" env:"CHARSET"`
	MaxConns int    `cfg:"maxConns" env:"MAX_CONNS"`
	MaxIdle  int    `cfg:"maxIdle" env:"MAX_IDLE"`
}

// Store 进程内唯一的数据库访问对象，启动时构造一次并注入使用方
type Store struct {
	db     *sql.DB
	driver string
}

func NewStoreWithOptions(options *Options) (*Store, error) {
	if options.Driver == "" {
		options.Driver = "sqlite3"
	}
	if options.Host == "" {
		options.Host = "localhost"
	}
	if options.Port == "" {
		options.Port = "3306"
	}
	if options.Charset == "" {
		options.Charset = "utf8mb4"
	}

	dsn := options.DSN
	if dsn == "" {
		switch options.Driver {
		case "sqlite3":
			dsn = options.Database
		case "mysql":
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
				options.Username, options.Password, options.Host, options.Port, options.Database, options.Charset)
		default:
			return nil, errors.Errorf("unsupported driver: %s", options.Driver)
		}
	}

	// sqlite 文件库启用 WAL，读并发由引擎自身保证
	if options.Driver == "sqlite3" && dsn != "" && !strings.Contains(dsn, ":memory:") &&
		!strings.Contains(dsn, "_journal_mode") {
		if strings.Contains(dsn, "?") {
			dsn += "&_journal_mode=WAL"
		} else {
			dsn += "?_journal_mode=WAL"
		}
	}

	db, err := sql.Open(options.Driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	maxConns := options.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	maxIdle := options.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &Store{db: db, driver: options.Driver}, nil
}

// DB 暴露底层连接，仅供测试使用
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}
