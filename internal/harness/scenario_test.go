package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/disjoint-keys.yaml")
	require.NoError(t, err)
	assert.Equal(t, "disjoint-keys", s.Name)
	assert.Len(t, s.Branches, 2)
	require.Len(t, s.Merges, 1)
	assert.Equal(t, "main", s.Merges[0].Into)
	require.NotNil(t, s.Expect)
	assert.Equal(t, map[string]string{"x": "1", "y": "2"}, s.Expect.State)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	assert.Error(t, err)
}

func TestParseScenarioRejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: has a misspelled section
branches:
  - name: main
    commits: []
mergess:
  - into: main
    from: [feature]
`))
	assert.Error(t, err, "unknown top-level field must be rejected")
}

func TestParseScenarioSchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing name", `
description: d
branches:
  - name: main
    commits: []
`},
		{"bad op", `
name: s
description: d
branches:
  - name: main
    commits:
      - op: increment
        key: x
`},
		{"bad reducer", `
name: s
description: d
reducer: sql
branches:
  - name: main
    commits: []
`},
		{"empty branches", `
name: s
description: d
branches: []
`},
		{"merge without sources", `
name: s
description: d
branches:
  - name: main
    commits: []
merges:
  - into: main
    from: []
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseScenarioMinimal(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: minimal
description: a single empty branch is a valid scenario
branches:
  - name: main
    commits: []
`))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	assert.Empty(t, s.Merges)
	assert.Nil(t, s.Expect)
}
