// Package command parses the line protocol: case-sensitive keywords with
// space-separated arguments, plus the bare "x,y" point shape used while a
// graph upload is in progress.
package command

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"hulld/geo"
)

// Kind enumerates the recognized command keywords.
type Kind int

const (
	Unknown Kind = iota
	Newgraph
	Newpoint
	Removepoint
	Hull
)

var (
	// ErrPointFormat means the argument is not shaped like "x,y".
	ErrPointFormat = errors.New("invalid point format")
	// ErrPointValues means the argument has the right shape but one side
	// is not a finite floating-point number.
	ErrPointValues = errors.New("invalid point values")
	// ErrCount means the Newgraph argument is not a positive integer.
	ErrCount = errors.New("invalid count")
)

// Command is one parsed input line. N carries the announced point count of
// a Newgraph, P the coordinates of a Newpoint/Removepoint. Err is set when
// the keyword was recognized but its argument was not.
type Command struct {
	Kind Kind
	N    int
	P    geo.Point
	Err  error
}

// Parse classifies a single line. Leading and trailing whitespace is
// ignored; keywords are case-sensitive; anything unrecognized comes back
// as Unknown.
func Parse(line string) Command {
	line = strings.TrimSpace(line)
	keyword, args := line, ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		keyword, args = line[:i], strings.TrimSpace(line[i+1:])
	}

	switch keyword {
	case "Newgraph":
		n, err := parseCount(args)
		return Command{Kind: Newgraph, N: n, Err: err}
	case "Newpoint":
		p, err := ParsePoint(args)
		return Command{Kind: Newpoint, P: p, Err: err}
	case "Removepoint":
		p, err := ParsePoint(args)
		return Command{Kind: Removepoint, P: p, Err: err}
	case "CH":
		// trailing arguments are tolerated and ignored
		return Command{Kind: Hull}
	}
	return Command{Kind: Unknown}
}

// ParsePoint parses an "x,y" pair. The string is split on the first comma,
// both sides are trimmed and must parse as finite floats with nothing left
// over ("1.5abc" is invalid).
func ParsePoint(s string) (geo.Point, error) {
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return geo.Point{}, ErrPointFormat
	}
	x, okX := parseCoord(s[:comma])
	y, okY := parseCoord(s[comma+1:])
	if !okX || !okY {
		return geo.Point{}, ErrPointValues
	}
	return geo.Point{X: x, Y: y}, nil
}

func parseCoord(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, ErrCount
	}
	return n, nil
}
