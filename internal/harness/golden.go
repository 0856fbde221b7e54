package harness

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares its trace against the
// golden file testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	res, err := Run(s)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, s.Name, []byte(strings.Join(res.Trace, "\n")+"\n"))
	return res, nil
}
