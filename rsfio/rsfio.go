// Package rsfio reads the line-oriented measurement input file and
// writes the solved position output file. Parsing follows the
// teacher's rinex.go idiom: split each line on whitespace with
// strings.Fields, then strconv.ParseFloat each numeric column, wrapping
// failures with the line number for debuggability.
package rsfio

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tchmukai/rsf"
	"github.com/tchmukai/rsf/dataset"
)

// ErrParse is returned, wrapped with line context, for any malformed
// input line.
var ErrParse = fmt.Errorf("rsfio: parse error")

// PseudorangeMeasurement is one pseudorange3 input record: a scalar
// mean (range), a scalar std-dev, then the satellite-specific extras
// (ECEF position and clock bias), per the record layout §6 describes.
type PseudorangeMeasurement struct {
	Time         float64
	Range        float64 // mean vector
	Sigma        float64 // std-dev vector
	SatPos       rsf.PosXYZ
	SatClockBias float64
}

// OdomMeasurement is one odom3 input record: a single epoch's 3-D
// body-frame velocity and yaw-rate (the mean vector) plus their
// per-axis std-devs, matching Odom3's "3D velocity + yaw-rate with
// per-axis std-devs" definition. The Odom4_ECEF factor differences this
// against the previous epoch to predict a pose transition.
type OdomMeasurement struct {
	Time                            float64
	Vx, Vy, Vz, YawRate             float64 // mean vector
	StdVx, StdVy, StdVz, StdYawRate float64 // std-dev vector
}

// streamID keys the single chronological multimap each measurement type
// is stored in; there is exactly one logical stream per type, but the
// dataset.DataSet backing them keeps every same-timestamp record
// distinct and insertion-ordered, which is what multi-satellite
// pseudorange epochs need.
type streamID int

const streamAll streamID = 0

// Input is the full parsed measurement stream, held in the same
// keyed, time-indexed multimap shape (dataset.DataSet) the factor
// graph's own state storage and the teacher's Obs/Nav containers use,
// so epoch lookups share one query vocabulary across the codebase.
type Input struct {
	pseudoranges *dataset.DataSet[streamID, PseudorangeMeasurement]
	odom         *dataset.DataSet[streamID, OdomMeasurement]
}

// EpochTimes returns the distinct, ascending timestamps carrying at
// least one pseudorange record.
func (in *Input) EpochTimes() []float64 {
	return in.pseudoranges.TimesOf(streamAll)
}

// PseudorangesAt returns every pseudorange record at t, in the order
// they appeared in the input file.
func (in *Input) PseudorangesAt(t float64) []PseudorangeMeasurement {
	return in.pseudoranges.ElementsBetween(streamAll, t, t)
}

// OdomAt returns every odometry record at t.
func (in *Input) OdomAt(t float64) []OdomMeasurement {
	return in.odom.ElementsBetween(streamAll, t, t)
}

// FirstOdom returns the earliest odometry record, used once by the
// application driver to fix Odom4_ECEF's noise for the whole run.
func (in *Input) FirstOdom() (OdomMeasurement, bool) {
	t, ok := in.odom.First(streamAll)
	if !ok {
		return OdomMeasurement{}, false
	}
	rec, err := in.odom.Get(streamAll, t)
	return rec, err == nil
}

// HasOdom reports whether any odometry record was parsed.
func (in *Input) HasOdom() bool {
	return in.odom.Count(streamAll) > 0
}

// ReadInput parses path, a whitespace-separated file where each
// non-blank, non-comment line starts with a record tag ("pseudorange3"
// or "odom3") followed by its numeric fields.
func ReadInput(path string) (*Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rsfio: open %s: %w", path, err)
	}
	defer f.Close()

	in := &Input{
		pseudoranges: dataset.New[streamID, PseudorangeMeasurement](),
		odom:         dataset.New[streamID, OdomMeasurement](),
	}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "pseudorange3":
			rec, err := parsePseudorange(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("rsfio: line %d: %w", lineNo, err)
			}
			in.pseudoranges.Add(streamAll, rec.Time, rec)
		case "odom3":
			rec, err := parseOdom(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("rsfio: line %d: %w", lineNo, err)
			}
			in.odom.Add(streamAll, rec.Time, rec)
		default:
			return nil, fmt.Errorf("rsfio: line %d: %w: unknown record tag %q", lineNo, ErrParse, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("rsfio: read %s: %w", path, err)
	}
	return in, nil
}

func parseFloats(fields []string, n int) ([]float64, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("%w: want %d fields, got %d", ErrParse, n, len(fields))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrParse, i, err)
		}
		out[i] = v
	}
	return out, nil
}

// parsePseudorange reads: timestamp, range (mean), sigma (std-dev),
// satellite ECEF position, satellite clock bias (extras) — 7 fields.
func parsePseudorange(fields []string) (PseudorangeMeasurement, error) {
	v, err := parseFloats(fields, 7)
	if err != nil {
		return PseudorangeMeasurement{}, err
	}
	return PseudorangeMeasurement{
		Time:         v[0],
		Range:        v[1],
		Sigma:        v[2],
		SatPos:       rsf.PosXYZ{X: v[3], Y: v[4], Z: v[5]},
		SatClockBias: v[6],
	}, nil
}

// parseOdom reads: timestamp, vx, vy, vz, yaw-rate (mean vector), then
// their four std-devs — 9 fields.
func parseOdom(fields []string) (OdomMeasurement, error) {
	v, err := parseFloats(fields, 9)
	if err != nil {
		return OdomMeasurement{}, err
	}
	return OdomMeasurement{
		Time: v[0], Vx: v[1], Vy: v[2], Vz: v[3], YawRate: v[4],
		StdVx: v[5], StdVy: v[6], StdVz: v[7], StdYawRate: v[8],
	}, nil
}

// PositionRecord is one solved epoch, ready for output.
type PositionRecord struct {
	Time float64
	Pos  rsf.PosXYZ
}

// WriteOutput writes rows to path, one "position" record per line,
// sorted ascending by timestamp.
func WriteOutput(path string, rows []PositionRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rsfio: create %s: %w", path, err)
	}
	defer f.Close()

	sort.Slice(rows, func(i, j int) bool { return rows[i].Time < rows[j].Time })

	w := bufio.NewWriter(f)
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "position %.6f %.4f %.4f %.4f\n", r.Time, r.Pos.X, r.Pos.Y, r.Pos.Z); err != nil {
			return fmt.Errorf("rsfio: write %s: %w", path, err)
		}
	}
	return w.Flush()
}
