package clog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"astctool.dev/astc/internal/clog"
)

func TestNamedWithoutSetupReturnsNopLogger(t *testing.T) {
	l := clog.Named("test")
	assert.NotNil(t, l)
	// A nop logger must not panic on use.
	l.Info("should be discarded")
}

func TestNewBuildsAUsableLogger(t *testing.T) {
	logger, err := clog.New(true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer clog.Sync()

	l := clog.Named("pipeline")
	l.Info("ready", zap.String("stage", "compile"))
}
