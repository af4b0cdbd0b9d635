package wmi_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/runetale/wmiq/wmi"
	"github.com/runetale/wmiq/wmi/wmitest"
	"github.com/runetale/wmiq/wmilog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newClient(t *testing.T, b wmi.Backend, opts wmi.Options) *wmi.Client {
	t.Helper()
	return wmi.NewClient(b, wmi.DefaultQuery(), opts, wmilog.FromZap(zaptest.NewLogger(t)))
}

func TestExecQueryTwoRecords(t *testing.T) {
	b := wmitest.New(wmitest.Config{Records: wmitest.Records("A", "B")})

	fields, err := newClient(t, b, wmi.DefaultOptions()).ExecQuery()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Name": "B"}, fields)

	assert.Equal(t, 2, b.Gets())
	assert.Equal(t, []wmitest.CursorState{
		wmitest.CursorOpen,
		wmitest.CursorOpen,
		wmitest.CursorExhausted,
	}, b.Cursor())
	require.NoError(t, b.Balanced())

	got := b.Captured()
	assert.Equal(t, `ROOT\CIMV2`, got.Namespace)
	assert.Nil(t, got.Credentials)
	assert.Equal(t, "WQL", got.Language)
	assert.Equal(t, "SELECT * FROM Win32_OperatingSystem", got.Query)
	assert.Equal(t, wmi.FlagForwardOnly|wmi.FlagReturnImmediately, got.Flags)
	assert.Equal(t, wmi.AuthLevelCall, got.Auth)
	assert.Equal(t, wmi.ImpersonationImpersonate, got.Imp)
	assert.Equal(t, wmi.WaitInfinite, got.Timeout)
}

func TestRunKeepsEveryRecord(t *testing.T) {
	b := wmitest.New(wmitest.Config{Records: wmitest.Records("A", "B")})

	res, err := newClient(t, b, wmi.DefaultOptions()).Run()
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"Name": "A"}, {"Name": "B"}}, res.Records)
	assert.Equal(t, `ROOT\CIMV2`, res.Namespace)
	assert.Zero(t, res.Skipped)
}

func TestTeardownOrder(t *testing.T) {
	b := wmitest.New(wmitest.Config{Records: wmitest.Records("A")})

	_, err := newClient(t, b, wmi.DefaultOptions()).Run()
	require.NoError(t, err)

	calls := b.Calls()
	require.GreaterOrEqual(t, len(calls), 4)
	assert.Equal(t, []string{
		"Release(enumerator)",
		"Release(services)",
		"Release(locator)",
		"Release(channel)",
	}, calls[len(calls)-4:])
}

func TestStageFailures(t *testing.T) {
	order := []wmitest.Stage{
		wmitest.StageInitialize,
		wmitest.StageSecurity,
		wmitest.StageLocator,
		wmitest.StageConnect,
		wmitest.StageProxyBlanket,
		wmitest.StageQuery,
		wmitest.StageNext,
	}

	tests := []struct {
		stage    wmitest.Stage
		kind     wmi.Kind
		sentinel error
		acquired map[string]int
	}{
		{wmitest.StageInitialize, wmi.InitComFailed, wmi.ErrInitCom, map[string]int{}},
		{wmitest.StageSecurity, wmi.InitSecurityFailed, wmi.ErrInitSecurity, map[string]int{
			wmitest.HandleChannel: 1,
		}},
		{wmitest.StageLocator, wmi.InitLocatorFailed, wmi.ErrInitLocator, map[string]int{
			wmitest.HandleChannel: 1,
		}},
		{wmitest.StageConnect, wmi.ConnectFailed, wmi.ErrConnect, map[string]int{
			wmitest.HandleChannel: 1,
			wmitest.HandleLocator: 1,
		}},
		{wmitest.StageProxyBlanket, wmi.ConfigFailed, wmi.ErrConfig, map[string]int{
			wmitest.HandleChannel:  1,
			wmitest.HandleLocator:  1,
			wmitest.HandleServices: 1,
		}},
		{wmitest.StageQuery, wmi.QueryFailed, wmi.ErrQuery, map[string]int{
			wmitest.HandleChannel:  1,
			wmitest.HandleLocator:  1,
			wmitest.HandleServices: 1,
		}},
		{wmitest.StageNext, wmi.QueryFailed, wmi.ErrQuery, map[string]int{
			wmitest.HandleChannel:    1,
			wmitest.HandleLocator:    1,
			wmitest.HandleServices:   1,
			wmitest.HandleEnumerator: 1,
		}},
	}

	for i, tt := range tests {
		t.Run(tt.stage.Call(), func(t *testing.T) {
			b := wmitest.New(wmitest.Config{
				Records: wmitest.Records("A"),
				FailAt:  tt.stage,
				Code:    0x80041003,
			})

			fields, err := newClient(t, b, wmi.DefaultOptions()).ExecQuery()
			require.Error(t, err)
			assert.Nil(t, fields)

			var se *wmi.StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.kind, se.Kind)
			assert.Equal(t, uint32(0x80041003), se.Code)
			assert.True(t, errors.Is(err, tt.sentinel))
			assert.Contains(t, err.Error(), tt.kind.String())
			assert.Contains(t, err.Error(), "0x80041003")

			for _, kind := range []string{
				wmitest.HandleChannel,
				wmitest.HandleLocator,
				wmitest.HandleServices,
				wmitest.HandleEnumerator,
				wmitest.HandleRecord,
			} {
				assert.Equal(t, tt.acquired[kind], b.Acquired(kind), "acquired %s", kind)
				assert.Equal(t, tt.acquired[kind], b.Released(kind), "released %s", kind)
			}
			require.NoError(t, b.Balanced())

			for _, later := range order[i+1:] {
				assert.False(t, b.Called(later.Call()), "%s must not run after %s fails", later.Call(), tt.stage.Call())
			}
			assert.False(t, b.Called("Get"))
		})
	}
}

func TestSecurityFailureReleasesChannel(t *testing.T) {
	b := wmitest.New(wmitest.Config{FailAt: wmitest.StageSecurity})

	_, err := newClient(t, b, wmi.DefaultOptions()).Run()
	require.ErrorIs(t, err, wmi.ErrInitSecurity)

	assert.Equal(t, 1, b.Acquired(wmitest.HandleChannel))
	assert.Equal(t, 1, b.Released(wmitest.HandleChannel))
	assert.Equal(t, []string{"Initialize", "InitializeSecurity", "Release(channel)"}, b.Calls())
}

func TestSecurityAlreadyConfigured(t *testing.T) {
	b := wmitest.New(wmitest.Config{
		Records: wmitest.Records("A"),
		FailAt:  wmitest.StageSecurity,
		Code:    uint32(wmi.StatusTooLate),
	})

	fields, err := newClient(t, b, wmi.DefaultOptions()).ExecQuery()
	require.NoError(t, err)
	assert.Equal(t, "A", fields["Name"])
	require.NoError(t, b.Balanced())
}

func TestEmptyResult(t *testing.T) {
	b := wmitest.New(wmitest.Config{})

	res, err := newClient(t, b, wmi.DefaultOptions()).Run()
	require.NoError(t, err)
	assert.Empty(t, res.Fields)
	assert.Empty(t, res.Records)

	assert.Equal(t, []wmitest.CursorState{wmitest.CursorExhausted}, b.Cursor())
	assert.Zero(t, b.Gets())
	assert.Equal(t, 1, b.Released(wmitest.HandleChannel))
	require.NoError(t, b.Balanced())
}

func TestExtractFailureIsNotFatal(t *testing.T) {
	b := wmitest.New(wmitest.Config{
		Records: wmitest.Records("A", "B"),
		FieldError: func(index int, field string) error {
			if index == 0 {
				return wmi.StatusNotFound
			}
			return nil
		},
	})

	res, err := newClient(t, b, wmi.DefaultOptions()).Run()
	require.NoError(t, err)
	assert.Equal(t, "B", res.Fields["Name"])
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.Records, 2)
	assert.Empty(t, res.Records[0])
	assert.Equal(t, 2, b.Gets())
	assert.Equal(t, 2, b.Released(wmitest.HandleRecord))
	require.NoError(t, b.Balanced())
}

func TestMissingFieldIsSkipped(t *testing.T) {
	b := wmitest.New(wmitest.Config{Records: []map[string]any{{"Caption": "Windows"}}})

	res, err := newClient(t, b, wmi.DefaultOptions()).Run()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, res.Fields)
}

func TestSequentialCallsAreIndependent(t *testing.T) {
	b := wmitest.New(wmitest.Config{Records: wmitest.Records("Microsoft Windows 11 Pro")})
	c := newClient(t, b, wmi.DefaultOptions())

	first, err := c.ExecQuery()
	require.NoError(t, err)
	second, err := c.ExecQuery()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	for _, kind := range []string{
		wmitest.HandleChannel,
		wmitest.HandleLocator,
		wmitest.HandleServices,
		wmitest.HandleEnumerator,
	} {
		assert.Equal(t, 2, b.Acquired(kind), kind)
		assert.Equal(t, 2, b.Released(kind), kind)
	}
	require.NoError(t, b.Balanced())
}

func TestNextTimeoutIsTransient(t *testing.T) {
	b := wmitest.New(wmitest.Config{Records: wmitest.Records("A"), Timeouts: 2})
	opts := wmi.DefaultOptions()
	opts.NextTimeout = 50 * time.Millisecond

	fields, err := newClient(t, b, opts).ExecQuery()
	require.NoError(t, err)
	assert.Equal(t, "A", fields["Name"])
	assert.Equal(t, 50*time.Millisecond, b.Captured().Timeout)
	require.NoError(t, b.Balanced())
}

func TestNextTimeoutLimit(t *testing.T) {
	b := wmitest.New(wmitest.Config{Records: wmitest.Records("A"), Timeouts: 10})
	opts := wmi.DefaultOptions()
	opts.NextTimeout = time.Millisecond
	opts.MaxTimeouts = 3

	_, err := newClient(t, b, opts).Run()
	require.ErrorIs(t, err, wmi.ErrQuery)
	assert.Equal(t, uint32(wmi.StatusTimedOut), wmi.StatusCode(err))
	assert.False(t, b.Called("Get"))
	require.NoError(t, b.Balanced())
}

func TestRemoteCredentials(t *testing.T) {
	b := wmitest.New(wmitest.Config{Records: wmitest.Records("A")})
	creds := &wmi.Credentials{User: `CORP\svc`, Password: "secret"}

	c := newClient(t, b, wmi.Options{Host: "db01", Credentials: creds})
	assert.Equal(t, `\\db01\ROOT\CIMV2`, c.NamespacePath())

	_, err := c.Run()
	require.NoError(t, err)

	got := b.Captured()
	assert.Equal(t, `\\db01\ROOT\CIMV2`, got.Namespace)
	assert.Same(t, creds, got.Credentials)
	assert.Equal(t, wmi.ImpersonationIdentify, got.Imp)
	assert.Equal(t, wmi.AuthLevelCall, got.Auth)
}

func TestLocalCredentialsAreIgnored(t *testing.T) {
	b := wmitest.New(wmitest.Config{Records: wmitest.Records("A")})

	opts := wmi.DefaultOptions()
	opts.Credentials = &wmi.Credentials{User: "someone", Password: "secret"}
	_, err := newClient(t, b, opts).Run()
	require.NoError(t, err)

	got := b.Captured()
	assert.Nil(t, got.Credentials)
	assert.Equal(t, wmi.ImpersonationImpersonate, got.Imp)
}

func TestFieldValuesAreNormalized(t *testing.T) {
	boot := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	b := wmitest.New(wmitest.Config{Records: []map[string]any{{
		"Name":           "Microsoft Windows 10 Enterprise",
		"LastBootUpTime": boot,
		"MUILanguages":   []string{"en-US", "ja-JP"},
		"OSType":         uint16(18),
	}}})

	q := wmi.DefaultQuery()
	q.Fields = []string{"Name", "LastBootUpTime", "MUILanguages", "OSType"}
	res, err := wmi.NewClient(b, q, wmi.DefaultOptions(), wmilog.NewNop()).Run()
	require.NoError(t, err)

	assert.Equal(t, "2024-03-01T08:30:00Z", res.Fields["LastBootUpTime"])
	assert.Equal(t, []any{"en-US", "ja-JP"}, res.Fields["MUILanguages"])
	assert.Equal(t, uint16(18), res.Fields["OSType"])
}

func TestSystemBackendOnThisPlatform(t *testing.T) {
	if wmi.NewSystemBackend() == nil {
		t.Fatal("nil backend")
	}
	ch, err := wmi.NewSystemBackend().Initialize()
	if err == nil {
		ch.Release()
		t.Skip("running against a live WMI service")
	}
	assert.True(t, errors.Is(err, wmi.ErrNotSupported), fmt.Sprint(err))
	assert.Equal(t, uint32(wmi.StatusNotImpl), wmi.StatusCode(err))
}
