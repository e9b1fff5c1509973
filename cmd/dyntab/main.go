package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hatlonely/dyntab/api"
	"github.com/hatlonely/dyntab/cfg"
	"github.com/hatlonely/dyntab/engine"
	"github.com/hatlonely/dyntab/log"
	"github.com/hatlonely/dyntab/store"
	"github.com/hatlonely/dyntab/tableconf"
)

// Options 服务全量配置
type Options struct {
	Server api.ServerOptions      `cfg:"server" envPrefix:"DYNTAB_SERVER_"`
	Store  store.Options          `cfg:"store" envPrefix:"DYNTAB_STORE_"`
	Conf   tableconf.StoreOptions `cfg:"conf" envPrefix:"DYNTAB_CONF_"`
	Log    log.Options            `cfg:"log" envPrefix:"DYNTAB_LOG_"`
}

func main() {
	confPath := flag.String("conf", "", "config file path (json/yaml/toml)")
	flag.Parse()

	options := &Options{
		Store: store.Options{Driver: "sqlite3", Database: "dyntab.db"},
		Conf:  tableconf.StoreOptions{FilePath: "table-configs.json"},
	}
	if err := cfg.Load(*confPath, options); err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger, err := log.NewSLogWithOptions(&options.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}

	confs, err := tableconf.NewStoreWithOptions(&options.Conf)
	if err != nil {
		logger.Error("failed to create config store", "error", err)
		os.Exit(1)
	}
	if err := confs.Watch(); err != nil {
		logger.Warn("config file watch unavailable", "error", err)
	}
	defer confs.Close()

	st, err := store.NewStoreWithOptions(&options.Store)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	eng := engine.NewEngine(confs, st, logger)
	server := api.NewServerWithOptions(&options.Server, eng, logger)
	if err := server.Run(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
