package app

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tchmukai/rsf"
)

func writeInput(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Test_Input.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n
}

// lastPosition parses the final "position t x y z" row written by
// rsfio.WriteOutput (rows are sorted ascending by time, so the last
// scanned line is the latest epoch).
func lastPosition(t *testing.T, path string) rsf.PosXYZ {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var pos rsf.PosXYZ
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var tag string
		var ts float64
		n, err := fmt.Sscanf(scanner.Text(), "%s %f %f %f %f", &tag, &ts, &pos.X, &pos.Y, &pos.Z)
		require.NoError(t, err)
		require.Equal(t, 5, n)
	}
	return pos
}

func TestRunProducesOneOutputRowPerEpoch(t *testing.T) {
	input := writeInput(t, `
pseudorange3 0.0 21170326.89 1.0 20000000 0 5000000 0
pseudorange3 0.0 21170326.89 1.0 0 20000000 5000000 0
pseudorange3 0.0 21170326.89 1.0 -20000000 5000000 0 0
pseudorange3 0.0 21170326.89 1.0 5000000 -20000000 0 0
pseudorange3 1.0 21170326.89 1.0 20000000 0 5000000 0
pseudorange3 1.0 21170326.89 1.0 0 20000000 5000000 0
pseudorange3 1.0 21170326.89 1.0 -20000000 5000000 0 0
pseudorange3 1.0 21170326.89 1.0 5000000 -20000000 0 0
odom3 1.0 1.0 0.0 0.0 0.0 0.1 0.1 0.1 0.01
`)
	out := filepath.Join(t.TempDir(), "out.txt")

	err := Run(Config{
		InputFile:       input,
		OutputFile:      out,
		ErrorModelToken: "gauss",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(t, out))
}

func TestRunRejectsUnknownErrorModel(t *testing.T) {
	input := writeInput(t, "pseudorange3 0.0 21170326.89 1.0 20000000 0 5000000 0\n")
	out := filepath.Join(t.TempDir(), "out.txt")
	err := Run(Config{InputFile: input, OutputFile: out, ErrorModelToken: "nope"})
	assert.Error(t, err)
}

// TestRunConvergesOdometryStep is scenario S2: the same four-satellite
// geometry as the trilateration fix, stepped forward one second by a
// pure-East odometry reading (vx=1, heading 0), expecting the solved
// t1 position within 2 m of truth. The satellite/truth geometry is
// S1's own, rotated 90 degrees about Z so truth sits at longitude -90,
// where the odometry frame's East axis lines up with ECEF +X — the
// same line-of-sight quality S1 already proves converges, placed where
// a 1 m East step reads as a 1 m ECEF X step.
func TestRunConvergesOdometryStep(t *testing.T) {
	truth0 := rsf.PosXYZ{X: 0, Y: -rsf.Re, Z: 0}
	truth1 := rsf.PosXYZ{X: 1, Y: -rsf.Re, Z: 0}
	sats := []rsf.PosXYZ{
		{X: 0, Y: -20000000, Z: 5000000},
		{X: 20000000, Y: 0, Z: 5000000},
		{X: 5000000, Y: 20000000, Z: 0},
		{X: -20000000, Y: -5000000, Z: 0},
	}

	var lines []string
	for _, sat := range sats {
		rng := rsf.EucDist(&sat, &truth0)
		lines = append(lines, fmt.Sprintf("pseudorange3 0.0 %.6f 1.0 %.1f %.1f %.1f 0", rng, sat.X, sat.Y, sat.Z))
	}
	for _, sat := range sats {
		rng := rsf.EucDist(&sat, &truth1)
		lines = append(lines, fmt.Sprintf("pseudorange3 1.0 %.6f 1.0 %.1f %.1f %.1f 0", rng, sat.X, sat.Y, sat.Z))
	}
	lines = append(lines, "odom3 1.0 1.0 0.0 0.0 0.0 0.01 0.01 0.01 0.01")

	input := writeInput(t, strings.Join(lines, "\n"))
	out := filepath.Join(t.TempDir(), "out.txt")

	err := Run(Config{InputFile: input, OutputFile: out, ErrorModelToken: "gauss"})
	require.NoError(t, err)

	pos := lastPosition(t, out)
	dist := rsf.EucDist(&pos, &truth1)
	assert.Less(t, dist, 2.0)
}

// TestRunRejectsOutlierWithDCS is scenario S3: five pseudoranges at one
// epoch where one carries an added +50 m bias, solved under the `dcs`
// token (phi=1). DCS's dynamic scaling shrinks the outlier's
// contribution enough that the solved position stays within 5 m of
// truth.
func TestRunRejectsOutlierWithDCS(t *testing.T) {
	truth := rsf.PosXYZ{X: 6378137, Y: 0, Z: 0}
	sats := []rsf.PosXYZ{
		{X: 20000000, Y: 0, Z: 5000000},
		{X: 0, Y: 20000000, Z: 5000000},
		{X: -20000000, Y: 5000000, Z: 0},
		{X: 5000000, Y: -20000000, Z: 0},
		{X: 0, Y: -20000000, Z: 5000000},
	}

	var lines []string
	for i, sat := range sats {
		rng := rsf.EucDist(&sat, &truth)
		if i == 0 {
			rng += 50
		}
		lines = append(lines, fmt.Sprintf("pseudorange3 0.0 %.6f 1.0 %.1f %.1f %.1f 0", rng, sat.X, sat.Y, sat.Z))
	}

	input := writeInput(t, strings.Join(lines, "\n"))
	out := filepath.Join(t.TempDir(), "out.txt")

	err := Run(Config{InputFile: input, OutputFile: out, ErrorModelToken: "dcs"})
	require.NoError(t, err)

	pos := lastPosition(t, out)
	dist := rsf.EucDist(&pos, &truth)
	assert.Less(t, dist, 5.0)
}

func TestScenarioForKnownFile(t *testing.T) {
	scn := scenarioFor("/some/path/Chemnitz_Input.txt")
	assert.InDelta(t, 0.1, scn.ClockErrSigma, 1e-9)
	assert.InDelta(t, 0.009, scn.ClockDriftSigma, 1e-9)

	scn = scenarioFor("/some/path/other.txt")
	assert.InDelta(t, 0.05, scn.ClockErrSigma, 1e-9)
}
