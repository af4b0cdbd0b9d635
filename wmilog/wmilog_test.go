package wmilog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/runetale/wmiq/wmilog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		wmilog.DebugLevelStr:   zapcore.DebugLevel,
		wmilog.InfoLevelStr:    zapcore.InfoLevel,
		wmilog.WarningLevelStr: zapcore.WarnLevel,
		wmilog.ErrorLevelStr:   zapcore.ErrorLevel,
	}
	for s, want := range cases {
		got, err := wmilog.ParseLevel(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got)
	}

	_, err := wmilog.ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewWmilogUnknownLevel(t *testing.T) {
	l, err := wmilog.NewWmilog("test", "loud", "", false)
	assert.Nil(t, l)
	assert.Error(t, err)
}

func TestNewWmilogWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wmiq.log")

	l, err := wmilog.NewWmilog("test", wmilog.InfoLevelStr, path, false)
	require.NoError(t, err)

	l.Logger.Infof("connected to %s", `ROOT\CIMV2`)
	l.Logger.Debugf("not written")
	_ = l.Logger.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `connected to ROOT\CIMV2`)
	assert.NotContains(t, string(b), "not written")
}
