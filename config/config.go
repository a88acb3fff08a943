// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config loads the daemon configuration from command line flags.
package config

import (
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultDataDirname = ".bigbang"
	defaultLogFilename = "bigbang.log"
)

// Config holds the options of the chain core. Options of out-of-scope
// subsystems (network, rpc, wallet) live with those subsystems.
type Config struct {
	DataDir      string `short:"b" long:"datadir" description:"Directory to store data"`
	TestNet      bool   `long:"testnet" description:"Use the test network"`
	Debug        bool   `short:"d" long:"debug" description:"Enable verbose diagnostic logging"`
	DBCheckLevel int    `long:"dbchecklevel" description:"Depth of the startup consistency check (0-3)"`
	DBCheckDepth int    `long:"dbcheckdepth" description:"How many recent blocks the startup check covers (0 = all)"`
}

// DefaultDataDir returns the platform default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDataDirname
	}
	return filepath.Join(home, defaultDataDirname)
}

// LogFile returns the log file path under the data directory.
func (c *Config) LogFile() string {
	return filepath.Join(c.DataDir, "logs", defaultLogFilename)
}

// Load parses the given command line arguments.
func Load(args []string) (*Config, error) {
	cfg := &Config{
		DataDir:      DefaultDataDir(),
		DBCheckLevel: 1,
		DBCheckDepth: 1440,
	}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, errors.WithStack(err)
	}
	if cfg.TestNet {
		cfg.DataDir = filepath.Join(cfg.DataDir, "testnet")
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, errors.WithStack(err)
	}
	return cfg, nil
}
