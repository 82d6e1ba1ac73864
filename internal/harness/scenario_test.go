package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/concurrent_tabs.yaml")
	require.NoError(t, err)

	assert.Equal(t, "concurrent_tabs", s.Name)
	assert.Equal(t, []string{"a", "b"}, s.tabNames())
	require.Len(t, s.Steps, 4)
	assert.Equal(t, OpReconcile, s.Steps[2].Op)
	require.NotNil(t, s.Steps[3].Expect)
	assert.Equal(t, "clamped", s.Steps[3].Expect.Kind)
	require.NotNil(t, s.Steps[3].Expect.Applied)
	assert.Equal(t, 0, *s.Steps[3].Expect.Applied)
}

func TestLoadScenario_Defaults(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/clamp_on_add.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"main"}, s.tabNames())
	assert.Equal(t, UserDef{ID: "1"}, s.userDef())
}

func TestLoadScenario_SeedResolvedAgainstFile(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/price_change.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "shop"), s.Seed)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{
			name:     "unknown field",
			body:     "name: x\ndescription: y\nstep: []\n",
			contains: "field step not found",
		},
		{
			name:     "missing name",
			body:     "description: y\nsteps: [{op: clear}]\n",
			contains: "name is required",
		},
		{
			name:     "missing description",
			body:     "name: x\nsteps: [{op: clear}]\n",
			contains: "description is required",
		},
		{
			name:     "no steps",
			body:     "name: x\ndescription: y\n",
			contains: "steps list is required",
		},
		{
			name:     "unknown op",
			body:     "name: x\ndescription: y\nsteps: [{op: checkout}]\n",
			contains: `unknown op "checkout"`,
		},
		{
			name:     "unknown tab",
			body:     "name: x\ndescription: y\nsteps: [{tab: z, op: clear}]\n",
			contains: `unknown tab "z"`,
		},
		{
			name:     "reserved tab",
			body:     "name: x\ndescription: y\ntabs: [admin]\nsteps: [{op: clear}]\n",
			contains: "reserved",
		},
		{
			name:     "duplicate tab",
			body:     "name: x\ndescription: y\ntabs: [a, a]\nsteps: [{op: clear}]\n",
			contains: `duplicate tab "a"`,
		},
		{
			name:     "add without product",
			body:     "name: x\ndescription: y\nsteps: [{op: add, quantity: 1}]\n",
			contains: "add: product is required",
		},
		{
			name:     "dec without index",
			body:     "name: x\ndescription: y\nsteps: [{op: dec}]\n",
			contains: "dec: index is required",
		},
		{
			name:     "set_available without flag",
			body:     "name: x\ndescription: y\nsteps: [{op: set_available, product: 1}]\n",
			contains: "available is required",
		},
		{
			name:     "bad product price",
			body:     "name: x\ndescription: y\nproducts: [{id: 1, name: A, price: abc, stock: 1}]\nsteps: [{op: clear}]\n",
			contains: `products[0]: price "abc"`,
		},
		{
			name:     "bad direction",
			body:     "name: x\ndescription: y\nprices: [{product: 1, current: \"1\", direction: \"*\"}]\nsteps: [{op: clear}]\n",
			contains: `direction "*"`,
		},
		{
			name:     "missing seed",
			body:     "name: x\ndescription: y\nseed: nowhere\nsteps: [{op: clear}]\n",
			contains: "seed directory not found",
		},
		{
			name:     "unknown assertion",
			body:     "name: x\ndescription: y\nsteps: [{op: clear}]\nassertions: [{type: final_state}]\n",
			contains: `unknown assertion type "final_state"`,
		},
		{
			name:     "trace_count without count",
			body:     "name: x\ndescription: y\nsteps: [{op: clear}]\nassertions: [{type: trace_count, op: clear}]\n",
			contains: "count must be non-negative",
		},
		{
			name:     "notice without kind",
			body:     "name: x\ndescription: y\nsteps: [{op: clear}]\nassertions: [{type: notice}]\n",
			contains: "kind is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
