// Package tre reads and writes MetaIO tube files (.tre), the interchange
// format consumed and produced by the tubes-to-tree tool.
package tre

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/seantiz/tubetree/internal/model"
)

// defaultPointDim is the column layout written for every tube.
const defaultPointDim = "x y z r"

// ErrMalformed is wrapped by every parse error.
var ErrMalformed = errors.New("malformed tre file")

// Scene is the content of a parsed tube file.
type Scene struct {
	Tubes []model.Tube
}

// Write serializes tubes as a MetaIO scene with one Tube object per tube.
func Write(w io.Writer, tubes []model.Tube) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "ObjectType = Scene\n")
	fmt.Fprintf(bw, "NDims = 3\n")
	fmt.Fprintf(bw, "NObjects = %d\n", len(tubes))

	for _, t := range tubes {
		fmt.Fprintf(bw, "ObjectType = Tube\n")
		fmt.Fprintf(bw, "NDims = 3\n")
		fmt.Fprintf(bw, "ID = %d\n", t.ID)
		fmt.Fprintf(bw, "ParentID = %d\n", t.ParentID)
		if t.Root {
			fmt.Fprintf(bw, "Root = True\n")
		} else {
			fmt.Fprintf(bw, "Root = False\n")
		}
		fmt.Fprintf(bw, "Color = %s %s %s %s\n",
			formatFloat(t.Color[0]), formatFloat(t.Color[1]), formatFloat(t.Color[2]), formatFloat(t.Color[3]))
		fmt.Fprintf(bw, "PointDim = %s\n", defaultPointDim)
		fmt.Fprintf(bw, "NPoints = %d\n", len(t.Points))
		fmt.Fprintf(bw, "Points = \n")
		for _, p := range t.Points {
			fmt.Fprintf(bw, "%s %s %s %s\n",
				formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z), formatFloat(p.Radius))
		}
	}

	return bw.Flush()
}

// Read parses a MetaIO tube file. Objects other than tubes are skipped, and
// unknown header keys are ignored.
func Read(r io.Reader) (*Scene, error) {
	p := &parser{sc: bufio.NewScanner(r)}
	p.sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return p.parse()
}

type parser struct {
	sc     *bufio.Scanner
	lineNo int

	// pending holds numeric tokens left over from the last points line.
	pending []string
}

// tubeHeader accumulates the header fields of one object.
type tubeHeader struct {
	objectType string
	tube       model.Tube
	nDims      int
	nPoints    int
	pointDim   []string
}

func (p *parser) parse() (*Scene, error) {
	scene := &Scene{}
	var cur *tubeHeader

	for p.next() {
		line := strings.TrimSpace(p.sc.Text())
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, p.errorf("expected key = value, got %q", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "ObjectType":
			cur = &tubeHeader{
				objectType: value,
				tube:       model.Tube{ParentID: -1, Color: [4]float64{1, 0, 0, 1}},
				nDims:      3,
				pointDim:   strings.Fields(defaultPointDim),
			}
			continue
		}
		if cur == nil {
			return nil, p.errorf("%s before ObjectType", key)
		}

		var err error
		switch key {
		case "NDims":
			cur.nDims, err = strconv.Atoi(value)
		case "ID":
			cur.tube.ID, err = strconv.Atoi(value)
		case "ParentID":
			cur.tube.ParentID, err = strconv.Atoi(value)
		case "Root":
			cur.tube.Root = strings.EqualFold(value, "true") || value == "1"
		case "Color":
			err = p.parseColor(&cur.tube, value)
		case "PointDim":
			cur.pointDim = strings.Fields(value)
		case "NPoints":
			cur.nPoints, err = strconv.Atoi(value)
		case "Points":
			if !strings.EqualFold(cur.objectType, "Tube") {
				return nil, p.errorf("points for unsupported object type %q", cur.objectType)
			}
			if cur.nDims != 3 {
				return nil, p.errorf("tube %d has NDims = %d, want 3", cur.tube.ID, cur.nDims)
			}
			if err := p.readPoints(cur, value); err != nil {
				return nil, err
			}
			scene.Tubes = append(scene.Tubes, cur.tube)
			cur = nil
		}
		if err != nil {
			return nil, p.errorf("%s: %v", key, err)
		}
	}
	if err := p.sc.Err(); err != nil {
		return nil, fmt.Errorf("read tre: %w", err)
	}
	if cur != nil && strings.EqualFold(cur.objectType, "Tube") && cur.nPoints > 0 {
		return nil, p.errorf("tube %d ends before its points", cur.tube.ID)
	}
	return scene, nil
}

func (p *parser) next() bool {
	if !p.sc.Scan() {
		return false
	}
	p.lineNo++
	return true
}

func (p *parser) parseColor(t *model.Tube, value string) error {
	fields := strings.Fields(value)
	if len(fields) != 4 {
		return fmt.Errorf("want 4 components, got %d", len(fields))
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return err
		}
		t.Color[i] = v
	}
	return nil
}

// readPoints consumes nPoints*len(pointDim) numbers, which may start on the
// "Points =" line itself and may span any number of lines.
func (p *parser) readPoints(h *tubeHeader, inline string) error {
	cols := make(map[string]int, len(h.pointDim))
	for i, name := range h.pointDim {
		cols[strings.ToLower(name)] = i
	}
	for _, name := range []string{"x", "y", "z", "r"} {
		if _, ok := cols[name]; !ok {
			return p.errorf("tube %d PointDim lacks %q", h.tube.ID, name)
		}
	}

	width := len(h.pointDim)
	need := h.nPoints * width
	p.pending = append(p.pending[:0], strings.Fields(inline)...)
	for len(p.pending) < need {
		if !p.next() {
			return p.errorf("tube %d: expected %d points, file ended", h.tube.ID, h.nPoints)
		}
		p.pending = append(p.pending, strings.Fields(p.sc.Text())...)
	}
	if len(p.pending) > need {
		return p.errorf("tube %d: more values than NPoints = %d", h.tube.ID, h.nPoints)
	}

	h.tube.Points = make([]model.TubePoint, h.nPoints)
	row := make([]float64, width)
	for i := range h.nPoints {
		for j := range width {
			v, err := strconv.ParseFloat(p.pending[i*width+j], 64)
			if err != nil {
				return p.errorf("tube %d point %d: %v", h.tube.ID, i, err)
			}
			row[j] = v
		}
		h.tube.Points[i] = model.TubePoint{
			X:      row[cols["x"]],
			Y:      row[cols["y"]],
			Z:      row[cols["z"]],
			Radius: row[cols["r"]],
		}
	}
	p.pending = p.pending[:0]
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformed, p.lineNo, fmt.Sprintf(format, args...))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
