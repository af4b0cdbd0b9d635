package wmi_test

import (
	"errors"
	"testing"

	"github.com/runetale/wmiq/wmi"
	"github.com/runetale/wmiq/wmi/wmitest"
	"github.com/runetale/wmiq/wmilog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedChannelRefCounting(t *testing.T) {
	b := wmitest.New(wmitest.Config{})
	shared := wmi.NewSharedChannel(b)

	first, err := shared.Acquire()
	require.NoError(t, err)
	second, err := shared.Acquire()
	require.NoError(t, err)

	assert.Equal(t, 2, shared.Refs())
	assert.Equal(t, 1, b.Acquired(wmitest.HandleChannel))

	first.Release()
	first.Release()
	assert.Equal(t, 1, shared.Refs())
	assert.Zero(t, b.Released(wmitest.HandleChannel))

	second.Release()
	assert.Zero(t, shared.Refs())
	assert.Equal(t, 1, b.Released(wmitest.HandleChannel))
	require.NoError(t, b.Balanced())
}

func TestSharedChannelAcrossClients(t *testing.T) {
	b := wmitest.New(wmitest.Config{Records: wmitest.Records("A")})
	shared := wmi.NewSharedChannel(b)

	held, err := shared.Acquire()
	require.NoError(t, err)

	c := wmi.NewClient(b, wmi.DefaultQuery(), wmi.DefaultOptions(), wmilog.NewNop()).WithSharedChannel(shared)
	for i := 0; i < 2; i++ {
		fields, err := c.ExecQuery()
		require.NoError(t, err)
		assert.Equal(t, "A", fields["Name"])
	}

	assert.Equal(t, 1, shared.Refs())
	assert.Equal(t, 1, b.Acquired(wmitest.HandleChannel))
	assert.Zero(t, b.Released(wmitest.HandleChannel))
	assert.Equal(t, 2, b.Released(wmitest.HandleLocator))

	held.Release()
	require.NoError(t, b.Balanced())
}

func TestSharedChannelSecurityFailure(t *testing.T) {
	b := wmitest.New(wmitest.Config{FailAt: wmitest.StageSecurity})
	shared := wmi.NewSharedChannel(b)

	_, err := shared.Acquire()
	require.True(t, errors.Is(err, wmi.ErrInitSecurity))
	assert.Zero(t, shared.Refs())
	assert.Equal(t, 1, b.Released(wmitest.HandleChannel))
	require.NoError(t, b.Balanced())
}
