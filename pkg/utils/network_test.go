package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		want    int
		wantErr bool
	}{
		{name: "ipv4", addr: "127.0.0.1:10942", want: 10942},
		{name: "ipv6", addr: "[::1]:8080", want: 8080},
		{name: "zero", addr: "127.0.0.1:0", want: 0},
		{name: "missing port", addr: "127.0.0.1", wantErr: true},
		{name: "not a number", addr: "127.0.0.1:http", wantErr: true},
		{name: "out of range", addr: "127.0.0.1:70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := PortOf(tt.addr)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateEndpoint("127.0.0.1:10942"))
	assert.NoError(t, ValidateEndpoint("localhost:1"))
	assert.Error(t, ValidateEndpoint(":10942"))
	assert.Error(t, ValidateEndpoint("127.0.0.1:0"))
	assert.Error(t, ValidateEndpoint("127.0.0.1:"))
	assert.Error(t, ValidateEndpoint(""))
}

func TestNewListener_EphemeralPort(t *testing.T) {
	t.Parallel()

	l, err := NewListener(JoinHostPort(Loopback, 0))
	require.NoError(t, err)
	defer l.Close()

	port, err := PortOf(l.Addr().String())
	require.NoError(t, err)
	assert.NotZero(t, port)
}

func TestJoinHostPort(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "127.0.0.1:80", JoinHostPort("127.0.0.1", 80))
	assert.Equal(t, "[::1]:80", JoinHostPort("::1", 80))
	assert.Equal(t, "[::1]:80", JoinHostPort("[::1]", 80))
}

func TestJitter(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	assert.Equal(t, base, Jitter(base, 0))
	for range 100 {
		d := Jitter(base, 0.2)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestEnsureWritableDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir() + "/nested/data"
	require.NoError(t, EnsureWritableDir(dir))
	// Second call on an existing directory is fine.
	require.NoError(t, EnsureWritableDir(dir))
}
