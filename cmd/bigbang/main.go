// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bigbangcore/bigbang/blockchain"
	"github.com/bigbangcore/bigbang/config"
	"github.com/bigbangcore/bigbang/logger"
	"github.com/bigbangcore/bigbang/params"
)

var log = logger.Get("BGBD")

func realMain() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	if err := logger.InitLogRotator(cfg.LogFile()); err != nil {
		return err
	}
	defer logger.Close()
	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	if err := logger.SetLogLevels(level); err != nil {
		return err
	}

	chain, err := blockchain.New(&blockchain.Config{
		Params:   params.Select(cfg.TestNet),
		DataDir:  cfg.DataDir,
		Debug:    cfg.Debug,
		CheckLvl: cfg.DBCheckLevel,
		CheckDep: cfg.DBCheckDepth,
	})
	if err != nil {
		return err
	}
	defer chain.Close()

	hash, height, _, err := chain.GetLastBlock(chain.GetGenesisBlockHash())
	if err != nil {
		return err
	}
	log.Infof("Chain open, tip %s at height %d", hash, height)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	log.Infof("Shutting down")
	return nil
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
