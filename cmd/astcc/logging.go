package main

import "astctool.dev/astc/internal/clog"

func setupLogging(verbose bool) (func(), error) {
	if _, err := clog.New(verbose); err != nil {
		return nil, err
	}
	return func() { _ = clog.Sync() }, nil
}
