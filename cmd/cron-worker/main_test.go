package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	var out bytes.Buffer

	opts, err := parseOptions(nil, &out)
	require.NoError(t, err)
	require.False(t, opts.once)
	require.Empty(t, opts.jobs)

	opts, err = parseOptions([]string{"-once", "-jobs", "outbox-retention, ,reconciliation-report"}, &out)
	require.NoError(t, err)
	require.True(t, opts.once)
	require.Equal(t, []string{"outbox-retention", "reconciliation-report"}, opts.jobs)

	_, err = parseOptions([]string{"-bogus"}, &out)
	require.Error(t, err)
}

func TestLockNameIsScopedPerEnvironment(t *testing.T) {
	require.Equal(t, "cron-worker:prod", lockName("prod"))
	require.Equal(t, "cron-worker:local", lockName("  "))
}
