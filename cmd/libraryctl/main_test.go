package main

import (
	"bytes"
	"testing"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIds(t *testing.T) {
	ids, err := parseIds([]string{"3", "7", "3"})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7}, ids)

	ids, err = parseIds(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, bad := range []string{"x", "0", "-2"} {
		_, err := parseIds([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestPrintCounts(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	printCounts(cmd, map[models.OutboxStatus]int64{
		models.OutboxStatusPending: 4,
		models.OutboxStatusDead:    1,
	})
	assert.Equal(t, "STATUS   COUNT\nDead     1\nPending  4\n", out.String())
}

func newTestRoot() (*cobra.Command, *bytes.Buffer) {
	logger, _ := test.NewNullLogger()
	root := newRootCmd(&app{logger: logger})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	return root, &out
}

func TestRootCommands(t *testing.T) {
	root, _ := newTestRoot()
	for _, path := range [][]string{
		{"migrate"},
		{"run-job"},
		{"outbox", "status"},
		{"outbox", "requeue"},
		{"config", "list"},
		{"config", "set"},
		{"token"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

// Argument errors are reported before any connection is attempted.
func TestArgumentValidation(t *testing.T) {
	tests := [][]string{
		{"run-job"},
		{"config", "set", "PenaltyPerDay"},
		{"outbox", "requeue", "abc"},
		{"token", "--user", "1", "--role", "Librarian"},
		{"token"},
	}
	for _, args := range tests {
		root, _ := newTestRoot()
		root.SetArgs(args)
		assert.Error(t, root.Execute(), args)
	}
}
