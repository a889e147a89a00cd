package connstr_test

import (
	"errors"
	"testing"

	"github.com/straye-as/device-importer/internal/connstr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	values, err := connstr.Parse("HostName=hub.azure-devices.net;SharedAccessKeyName=iothubowner;SharedAccessKey=c2VjcmV0a2V5PT0=;")
	require.NoError(t, err)

	host, ok := values.Get("hostname")
	assert.True(t, ok)
	assert.Equal(t, "hub.azure-devices.net", host)

	key, ok := values.Get("SharedAccessKey")
	assert.True(t, ok)
	assert.Equal(t, "c2VjcmV0a2V5PT0=", key, "base64 padding must be kept")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "only separators", input: ";;"},
		{name: "missing equals", input: "HostName=hub;garbage"},
		{name: "missing key", input: "=value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := connstr.Parse(tt.input)

			require.Error(t, err)
			assert.True(t, errors.Is(err, connstr.ErrInvalid))
		})
	}
}

func TestRequire(t *testing.T) {
	values, err := connstr.Parse("AccountName=acct;AccountKey=;EndpointSuffix=core.windows.net")
	require.NoError(t, err)

	got, err := values.Require("AccountName", "EndpointSuffix")
	require.NoError(t, err)
	assert.Equal(t, []string{"acct", "core.windows.net"}, got)

	_, err = values.Require("AccountName", "AccountKey")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing AccountKey")
}

func TestParse_DoesNotLeakValues(t *testing.T) {
	_, err := connstr.Parse("SharedAccessKeyTopSecret")

	require.Error(t, err)
	assert.NotContains(t, err.Error(), "TopSecret")
}
