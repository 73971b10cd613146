package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunPrintsEmptyTrialBalance(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ENABLED", "false")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"report", "tb", "-to", "2025-04-30"}, &out))
	require.Contains(t, out.String(), "Total")
	require.Contains(t, out.String(), "0.00")
}

func TestRunVerifyOnEmptyLedger(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ENABLED", "false")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"verify"}, &out))
	require.Equal(t, "integrity OK: 0 entries, last sequence 0, debit 0.00, credit 0.00\n", out.String())
}

func TestRunRejectsBadInput(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ENABLED", "false")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), nil, &out))
	require.Contains(t, out.String(), "usage: booksctl")

	require.ErrorContains(t, run(context.Background(), []string{"report", "tb", "-to", "April"}, &out), "-to")
	require.ErrorContains(t, run(context.Background(), []string{"report", "cf"}, &out), "unknown kind")
	require.ErrorContains(t, run(context.Background(), []string{"frobnicate"}, &out), "unknown command")
}
