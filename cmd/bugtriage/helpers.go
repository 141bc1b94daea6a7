package main

import (
	"fmt"

	"bugtriage/internal/pipeline"
	"bugtriage/internal/store"
)

// app bundles the store and pipeline every command needs.
type app struct {
	st   *store.SqlStore
	pipe *pipeline.Pipeline
}

// openApp opens the database and loads any persisted model.
func openApp() (*app, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pipe := pipeline.New(st, cfg)
	if err := pipe.LoadModels(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return &app{st: st, pipe: pipe}, nil
}

func (a *app) Close() {
	_ = a.st.Close()
}
