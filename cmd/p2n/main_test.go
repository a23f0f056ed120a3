package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunFailsWithNoArgs(t *testing.T) {
	err := run(nil)
	require.Error(t, err)
}

func TestCmdIngestFailsWithTooFewArgs(t *testing.T) {
	err := cmdIngest(context.Background(), nil, []string{"only-path"})
	require.Error(t, err)
}

func TestCmdIngestFailsWhenPDFPathMissing(t *testing.T) {
	err := cmdIngest(context.Background(), nil, []string{"/nonexistent/path.pdf", "Some Title"})
	require.Error(t, err)
}

func TestCmdExtractFailsWithNoArgs(t *testing.T) {
	err := cmdExtract(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestCmdPlanFailsWhenNoClaimIDsGiven(t *testing.T) {
	err := cmdPlan(context.Background(), nil, []string{"--budget", "5"})
	require.Error(t, err)
}

func TestCmdPlanFailsWithNoArgs(t *testing.T) {
	err := cmdPlan(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestCmdMaterializeFailsWithNoArgs(t *testing.T) {
	err := cmdMaterialize(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestCmdRunFailsWithNoArgs(t *testing.T) {
	err := cmdRun(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestCmdReportFailsWithNoArgs(t *testing.T) {
	err := cmdReport(context.Background(), nil, nil)
	require.Error(t, err)
}
