// Package stash locates the stash grid on screen from two reference markers
// and converts cell indices into click positions.
package stash

import (
	"errors"
	"fmt"
	"image"
	"math"
)

var (
	ErrNotEnoughMarkers = errors.New("not enough markers")
	ErrAmbiguousMarkers = errors.New("ambiguous markers")
	ErrInvalidGeometry  = errors.New("invalid grid geometry")
	ErrCellOutOfRange   = errors.New("cell index out of range")
)

// Supported grid sizes. A stash tab is either a normal or a quad tab.
const (
	NormalGrid = 12
	QuadGrid   = 24
)

// AmbiguousMarkersError names the role pool that ended up empty.
type AmbiguousMarkersError struct {
	Pool        string
	TopLeft     int
	BottomRight int
}

func (e *AmbiguousMarkersError) Error() string {
	return fmt.Sprintf("ambiguous markers: %s pool is empty (top-left %d, bottom-right %d)",
		e.Pool, e.TopLeft, e.BottomRight)
}

func (e *AmbiguousMarkersError) Unwrap() error {
	return ErrAmbiguousMarkers
}

// MarkerDetection is one template match of the reference marker.
type MarkerDetection struct {
	Position image.Point // top-left pixel of the match
	Scale    float64
	Size     image.Point // matched template width and height
	Score    float64
}

func (d MarkerDetection) Area() int {
	return d.Size.X * d.Size.Y
}

// Max returns the bottom-right pixel of the match.
func (d MarkerDetection) Max() image.Point {
	return d.Position.Add(d.Size)
}

// Geometry describes a square grid of Columns x Rows cells.
type Geometry struct {
	OriginX  float64 `json:"origin_x"`
	OriginY  float64 `json:"origin_y"`
	CellSize float64 `json:"cell_size"`
	Columns  int     `json:"columns"`
	Rows     int     `json:"rows"`
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d grid at (%.1f, %.1f), cell %.2fpx", g.Columns, g.Rows, g.OriginX, g.OriginY, g.CellSize)
}

// Validate checks the invariants every derived geometry holds.
func (g Geometry) Validate() error {
	if g.CellSize <= 0 || math.IsNaN(g.CellSize) || math.IsInf(g.CellSize, 0) {
		return fmt.Errorf("%w: cell size %v", ErrInvalidGeometry, g.CellSize)
	}
	if g.Columns != g.Rows || (g.Columns != NormalGrid && g.Columns != QuadGrid) {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, g.Columns, g.Rows)
	}
	return nil
}

// Cells returns the number of cells in the grid.
func (g Geometry) Cells() int {
	return g.Columns * g.Rows
}

// CellCenter returns the pixel center of the 1-based, row-major cell index.
func (g Geometry) CellCenter(index int) (x, y float64, err error) {
	if index < 1 || index > g.Cells() {
		return 0, 0, fmt.Errorf("%w: %d not in [1, %d]", ErrCellOutOfRange, index, g.Cells())
	}
	row := (index - 1) / g.Columns
	col := (index - 1) % g.Columns
	x = g.OriginX + float64(col)*g.CellSize + g.CellSize/2
	y = g.OriginY + float64(row)*g.CellSize + g.CellSize/2
	return x, y, nil
}

// CellIndex converts a 1-based column and row, as given in a trade whisper
// ("left 3, top 10"), into the linear index used by CellCenter.
func (g Geometry) CellIndex(col, row int) (int, error) {
	if col < 1 || col > g.Columns || row < 1 || row > g.Rows {
		return 0, fmt.Errorf("%w: column %d row %d on a %dx%d grid", ErrCellOutOfRange, col, row, g.Columns, g.Rows)
	}
	return (row-1)*g.Columns + col, nil
}

// ClassifyGrid picks the supported grid size closest to the approximate
// column and row counts. Quad wins only when strictly closer.
func ClassifyGrid(approxCols, approxRows float64) int {
	score24 := math.Abs(approxCols-QuadGrid) + math.Abs(approxRows-QuadGrid)
	score12 := math.Abs(approxCols-NormalGrid) + math.Abs(approxRows-NormalGrid)
	if score24 < score12 {
		return QuadGrid
	}
	return NormalGrid
}

// Params tunes how detections are split into corner pools.
type Params struct {
	// PoolThreshold is the minimum score for a detection to join a pool.
	PoolThreshold float64
	// AreaTolerance drops pool members whose area deviates from the pool
	// mean by more than this fraction. Zero disables pruning.
	AreaTolerance float64
}

func DefaultParams() Params {
	return Params{PoolThreshold: 0.75, AreaTolerance: 0.7}
}

// Result is a successful localization.
type Result struct {
	Geometry    Geometry
	TopLeft     MarkerDetection
	BottomRight MarkerDetection
	Candidates  int
}

// Derive computes the grid from marker detections found in a search region
// of regionW x regionH pixels.
func Derive(detections []MarkerDetection, regionW, regionH int, p Params) (*Result, error) {
	if len(detections) < 2 {
		return nil, fmt.Errorf("%w: found %d", ErrNotEnoughMarkers, len(detections))
	}

	var topLeft, bottomRight []MarkerDetection
	for _, d := range detections {
		if d.Score < p.PoolThreshold {
			continue
		}
		x, y := float64(d.Position.X), float64(d.Position.Y)
		if x < 0.5*float64(regionW) && y < 0.5*float64(regionH) {
			topLeft = append(topLeft, d)
		}
		if x > 0.2*float64(regionW) && y > 0.2*float64(regionH) {
			bottomRight = append(bottomRight, d)
		}
	}

	topLeft = pruneByArea(topLeft, p.AreaTolerance)
	bottomRight = pruneByArea(bottomRight, p.AreaTolerance)

	switch {
	case len(topLeft) == 0:
		return nil, &AmbiguousMarkersError{Pool: "top-left", TopLeft: 0, BottomRight: len(bottomRight)}
	case len(bottomRight) == 0:
		return nil, &AmbiguousMarkersError{Pool: "bottom-right", TopLeft: len(topLeft), BottomRight: 0}
	}

	tl := topLeft[0]
	for _, d := range topLeft[1:] {
		if d.Position.X+d.Position.Y < tl.Position.X+tl.Position.Y {
			tl = d
		}
	}
	br := bottomRight[0]
	for _, d := range bottomRight[1:] {
		if d.Position.X+d.Position.Y > br.Position.X+br.Position.Y {
			br = d
		}
	}

	if br.Position.X <= tl.Position.X || br.Position.Y <= tl.Position.Y {
		return nil, fmt.Errorf("%w: bottom-right marker %v is not below and right of top-left marker %v",
			ErrInvalidGeometry, br.Position, tl.Position)
	}

	dx := float64(br.Position.X - tl.Position.X)
	dy := float64(br.Position.Y - tl.Position.Y)
	approxCell := float64(tl.Size.X+tl.Size.Y+br.Size.X+br.Size.Y) / 4
	if approxCell <= 0 {
		return nil, fmt.Errorf("%w: marker size is zero", ErrInvalidGeometry)
	}

	n := ClassifyGrid(dx/approxCell, dy/approxCell)

	end := br.Max()
	extentX := float64(end.X - tl.Position.X)
	extentY := float64(end.Y - tl.Position.Y)

	g := Geometry{
		OriginX:  float64(tl.Position.X),
		OriginY:  float64(tl.Position.Y),
		CellSize: math.Min(extentX/float64(n), extentY/float64(n)),
		Columns:  n,
		Rows:     n,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	return &Result{
		Geometry:    g,
		TopLeft:     tl,
		BottomRight: br,
		Candidates:  len(detections),
	}, nil
}

// pruneByArea drops outliers by marker area. A pool that would end up
// empty is returned unchanged.
func pruneByArea(pool []MarkerDetection, tolerance float64) []MarkerDetection {
	if tolerance <= 0 || len(pool) < 2 {
		return pool
	}

	var sum float64
	for _, d := range pool {
		sum += float64(d.Area())
	}
	mean := sum / float64(len(pool))
	if mean == 0 {
		return pool
	}

	kept := make([]MarkerDetection, 0, len(pool))
	for _, d := range pool {
		if math.Abs(float64(d.Area())-mean)/mean <= tolerance {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		return pool
	}
	return kept
}

// Scales returns samples evenly spaced factors from min to max inclusive.
func Scales(min, max float64, samples int) []float64 {
	if samples <= 1 || max <= min {
		return []float64{min}
	}
	out := make([]float64, samples)
	step := (max - min) / float64(samples-1)
	for i := range out {
		out[i] = min + float64(i)*step
	}
	return out
}
