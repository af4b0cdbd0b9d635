package conf_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/runetale/wmiq/conf"
	"github.com/runetale/wmiq/wmi"
	"github.com/runetale/wmiq/wmilog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s, err := conf.Load(filepath.Join(t.TempDir(), "nope.json"), wmilog.NewNop())
	require.NoError(t, err)
	assert.Equal(t, conf.Default(), s)

	q := s.WmiQuery()
	assert.Equal(t, wmi.DefaultQuery(), q)

	opts, err := s.WmiOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, "", opts.Host)
	assert.Nil(t, opts.Credentials)
	assert.Equal(t, wmi.WaitInfinite, opts.NextTimeout)
	assert.Equal(t, wmi.ImpersonationDefault, opts.Impersonation)
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wmiq", "config.json")

	s := conf.Default()
	s.Host = "db01"
	s.Fields = []string{"Caption", "Version"}
	s.NextTimeout = "5s"
	s.MaxTimeouts = 3
	s.Impersonation = "identify"
	require.NoError(t, s.Write(path))

	got, err := conf.Load(path, wmilog.NewNop())
	require.NoError(t, err)
	assert.Equal(t, s, got)

	opts, err := got.WmiOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, opts.NextTimeout)
	assert.Equal(t, 3, opts.MaxTimeouts)
	assert.Equal(t, wmi.ImpersonationIdentify, opts.Impersonation)
	assert.Equal(t, []string{"Caption", "Version"}, got.WmiQuery().Fields)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"host":"db01"}`), 0600))

	s, err := conf.Load(path, wmilog.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "db01", s.Host)
	assert.Equal(t, wmi.DefaultQueryText, s.Query)
	assert.Equal(t, []string{"Name"}, s.Fields)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"json":          `{`,
		"impersonation": `{"impersonation":"delegate"}`,
		"timeout":       `{"next_timeout":"soon"}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0600))

			_, err := conf.Load(path, wmilog.NewNop())
			assert.Error(t, err)
		})
	}
}

func TestInlineCredentials(t *testing.T) {
	s := conf.Default()
	s.Host = "db01"
	s.User = `CORP\svc`
	s.Password = "secret"
	s.CredentialTarget = "ignored"

	opts, err := s.WmiOptions(func(string) (*wmi.Credentials, error) {
		t.Fatal("credential store must not be consulted")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, &wmi.Credentials{User: `CORP\svc`, Password: "secret"}, opts.Credentials)
}

func TestStoredCredentials(t *testing.T) {
	s := conf.Default()
	s.Host = "db01"
	s.Authority = "ntlmdomain:CORP"
	s.CredentialTarget = "wmiq/db01"

	opts, err := s.WmiOptions(func(target string) (*wmi.Credentials, error) {
		assert.Equal(t, "wmiq/db01", target)
		return &wmi.Credentials{User: "svc", Password: "secret"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, &wmi.Credentials{User: "svc", Password: "secret", Authority: "ntlmdomain:CORP"}, opts.Credentials)

	notFound := errors.New("not found")
	_, err = s.WmiOptions(func(string) (*wmi.Credentials, error) { return nil, notFound })
	assert.ErrorIs(t, err, notFound)

	_, err = s.WmiOptions(nil)
	assert.Error(t, err)
}
