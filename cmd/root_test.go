package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/anomaly-cli/internal/loader"
	"github.com/sells-group/anomaly-cli/internal/lof"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"detect", "serve", "version"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "anomaly-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.Equal(t, version, rootCmd.Version)
	assert.Contains(t, rootCmd.Example, "anomaly-cli detect --source")
}

func TestRootCommand_LogLevelFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag, "root command should have --log-level flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestDetectCommand_Flags(t *testing.T) {
	tests := []struct {
		name string
		def  string
	}{
		{"source", ""},
		{"neighbors", "20"},
		{"contamination", "0.05"},
		{"timestamp-field", "timestamp"},
		{"value-field", "value"},
		{"timestamp-layout", ""},
		{"format", ""},
		{"sheet", ""},
		{"table", ""},
		{"query", ""},
		{"encoding", ""},
		{"index", "auto"},
		{"workers", "0"},
		{"plot", ""},
		{"output", ""},
		{"output-format", ""},
		{"preview", "0"},
		{"max-listed", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := detectCmd.Flags().Lookup(tt.name)
			require.NotNil(t, flag, "detect command should have --%s flag", tt.name)
			assert.Equal(t, tt.def, flag.DefValue)
		})
	}
}

func TestDetectCommand_SourceRequired(t *testing.T) {
	flag := detectCmd.Flags().Lookup("source")
	require.NotNil(t, flag)
	assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"])
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "anomaly-cli dev")
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
		sentinel error
	}{
		{
			name:     "not found",
			err:      &loader.SourceNotFoundError{Source: "x.csv"},
			contains: "source not found: x.csv",
			sentinel: loader.ErrSourceNotFound,
		},
		{
			name:     "empty",
			err:      &loader.EmptySourceError{Source: "x.csv"},
			contains: "no data rows",
			sentinel: loader.ErrEmptySource,
		},
		{
			name:     "schema",
			err:      &loader.SchemaError{Source: "x.csv", Missing: []string{"timestamp", "value"}},
			contains: "missing required field(s): timestamp, value",
			sentinel: loader.ErrSchema,
		},
		{
			name:     "parse",
			err:      &loader.ParseError{Source: "x.csv", Row: 3, Field: "value", Value: "abc", Reason: "not a number"},
			contains: `cannot parse value "abc" at row 3 of x.csv: not a number`,
			sentinel: loader.ErrParse,
		},
		{
			name:     "invalid parameter",
			err:      &lof.InvalidParameterError{Name: "contamination", Value: 0.7, Reason: "must be in (0, 0.5]"},
			contains: "invalid parameter contamination=0.7",
			sentinel: lof.ErrInvalidParameter,
		},
		{
			name:     "insufficient data",
			err:      &lof.InsufficientDataError{Points: 5, NeighborhoodSize: 20},
			contains: "5 point(s) but neighborhood size 20 needs at least 21",
			sentinel: lof.ErrInsufficientData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := describeError(tt.err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.True(t, errors.Is(err, tt.sentinel))
		})
	}
}

func TestDescribeError_PassesThroughOthers(t *testing.T) {
	other := errors.New("boom")
	assert.Same(t, other, describeError(other))
}
