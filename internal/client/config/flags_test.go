package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected *Config
		wantErr  bool
	}{
		{
			name:     "both flags",
			args:     []string{"-d", "/tmp/x.db", "-l", "debug"},
			expected: &Config{DatabasePath: "/tmp/x.db", LogLevel: "debug"},
		},
		{
			name:     "foreign flags ignored",
			args:     []string{"-a", "127.0.0.1:9090", "-d=/tmp/y.db"},
			expected: &Config{DatabasePath: "/tmp/y.db", LogLevel: "info"},
		},
		{
			name:    "missing value",
			args:    []string{"-d"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: "info"}
			err := parseFlags(cfg, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Empty(t, cmp.Diff(tt.expected, cfg))
		})
	}
}
