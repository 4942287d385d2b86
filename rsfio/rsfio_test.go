package rsfio

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tchmukai/rsf"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestReadInputParsesBothRecordTypes(t *testing.T) {
	path := writeTemp(t, `# comment
pseudorange3 0.0 20900000 1.0 20000000 0 5000000 0.001
odom3 0.0 1.0 0.0 0.0 0.0 0.01 0.01 0.01 0.001
`)
	in, err := ReadInput(path)
	require.NoError(t, err)
	epochs := in.EpochTimes()
	require.Len(t, epochs, 1)
	require.Len(t, in.PseudorangesAt(0), 1)
	require.True(t, in.HasOdom())

	p := in.PseudorangesAt(0)[0]
	assert.Equal(t, 0.0, p.Time)
	assert.Equal(t, 20900000.0, p.Range)
	assert.Equal(t, 1.0, p.Sigma)
	assert.Equal(t, rsf.PosXYZ{X: 20000000, Y: 0, Z: 5000000}, p.SatPos)
	assert.Equal(t, 0.001, p.SatClockBias)

	o, ok := in.FirstOdom()
	require.True(t, ok)
	assert.Equal(t, 0.0, o.Time)
	assert.Equal(t, 1.0, o.Vx)
	assert.Equal(t, 0.0, o.Vy)
	assert.Equal(t, 0.0, o.Vz)
	assert.Equal(t, 0.0, o.YawRate)
	assert.Equal(t, 0.01, o.StdVx)
	assert.Equal(t, 0.001, o.StdYawRate)
}

func TestReadInputRejectsUnknownTag(t *testing.T) {
	path := writeTemp(t, "bogus 1 2 3\n")
	_, err := ReadInput(path)
	assert.ErrorIs(t, err, ErrParse)
}

func TestReadInputRejectsShortRecord(t *testing.T) {
	path := writeTemp(t, "pseudorange3 0.0 1 2\n")
	_, err := ReadInput(path)
	assert.ErrorIs(t, err, ErrParse)
}

func TestWriteOutputSortsByTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	rows := []PositionRecord{
		{Time: 2, Pos: rsf.PosXYZ{X: 1, Y: 2, Z: 3}},
		{Time: 1, Pos: rsf.PosXYZ{X: 4, Y: 5, Z: 6}},
	}
	require.NoError(t, WriteOutput(path, rows))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	assert.Contains(t, scanner.Text(), "position 1.000000")
	require.True(t, scanner.Scan())
	assert.Contains(t, scanner.Text(), "position 2.000000")
}
