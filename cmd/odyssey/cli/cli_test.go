package cli

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-console/internal/calendar"
	"github.com/odyssey-erp/odyssey-console/internal/roles"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "odysseyctl", cmd.Use)
	for _, name := range []string{"roles", "deadline", "jobs"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestGoldenOutputs(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"roles_tree", []string{"roles", "tree", "--file", "testdata/roles.yaml"}},
		{"roles_tree_cycle", []string{"roles", "tree", "-f", "testdata/cycle.yaml"}},
		{"roles_effective_clerk", []string{"roles", "effective", "-f", "testdata/roles.yaml", "--role", "3"}},
		{"roles_effective_contractor", []string{"roles", "effective", "-f", "testdata/roles.yaml", "--role", "5"}},
		{"roles_effective_cycle", []string{"roles", "effective", "-f", "testdata/cycle.yaml", "--role", "1"}},
		{"deadline_compute_weekend", []string{"deadline", "compute", "-f", "testdata/offices.yaml", "--office", "hq", "--submitted", "2025-01-03T16:00:00Z", "--hours", "8"}},
		{"deadline_adjust_holiday", []string{"deadline", "adjust", "-f", "testdata/offices.yaml", "--office", "hq", "--at", "2025-12-25T12:00:00Z"}},
		{"deadline_adjust_weekend", []string{"deadline", "adjust", "-f", "testdata/offices.yaml", "--office", "hq", "--at", "2025-12-27T09:30:00Z"}},
		{"deadline_adjust_opted_out", []string{"deadline", "adjust", "-f", "testdata/offices.yaml", "--office", "strict", "--at", "2025-01-04T10:00:00Z"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(t, tc.args...)
			require.NoError(t, err)
			golden(t).Assert(t, tc.name, []byte(out))
		})
	}
}

func TestRolesEffectiveJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "roles", "effective", "-f", "testdata/roles.yaml", "--role", "2")
	require.NoError(t, err)
	var res roles.Resolution
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, int64(2), res.RoleID)
	assert.Equal(t, []string{"calendar.edit", "roles.edit"}, res.Inherited)
	assert.Equal(t, 1, res.HighRiskCount)
}

func TestRolesTreeJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "roles", "tree", "-f", "testdata/roles.yaml")
	require.NoError(t, err)
	var nodes []treeNode
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "Admin", nodes[0].Name)
	require.Len(t, nodes[0].Children, 1)
	assert.Len(t, nodes[0].Children[0].Children, 2)
}

func TestDeadlineComputeJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "deadline", "compute", "-f", "testdata/offices.yaml",
		"--office", "hq", "--submitted", "2025-12-24T10:00:00Z", "--hours", "12")
	require.NoError(t, err)
	var res calendar.DeadlineResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.BusinessDays)
	assert.True(t, res.OriginalDeadline.Equal(time.Date(2025, 12, 29, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, calendar.OutcomeUnchanged, res.Outcome())
}

func TestCommandErrors(t *testing.T) {
	cases := map[string][]string{
		"bad format":     {"--format", "xml", "roles", "tree", "-f", "testdata/roles.yaml"},
		"missing file":   {"roles", "tree", "-f", "testdata/nope.yaml"},
		"unknown role":   {"roles", "effective", "-f", "testdata/roles.yaml", "--role", "99"},
		"unknown office": {"deadline", "adjust", "-f", "testdata/offices.yaml", "--office", "mars", "--at", "2025-01-01T00:00:00Z"},
		"bad time":       {"deadline", "adjust", "-f", "testdata/offices.yaml", "--office", "hq", "--at", "tomorrow"},
		"negative hours": {"deadline", "compute", "-f", "testdata/offices.yaml", "--office", "hq", "--submitted", "2025-01-01T00:00:00Z", "--hours", "-1"},
		"unknown job":    {"jobs", "trigger", "mail:send"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, args...)
			require.Error(t, err)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	cases := map[string]time.Weekday{"monday": time.Monday, "Sun": time.Sunday, "6": time.Saturday, " friday ": time.Friday}
	for in, want := range cases {
		got, err := parseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"7", "-1", "someday"} {
		_, err := parseWeekday(bad)
		assert.Error(t, err, bad)
	}
}
