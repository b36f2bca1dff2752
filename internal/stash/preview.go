package stash

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"
)

var (
	markerColor = color.RGBA{255, 0, 0, 0}
	gridColor   = color.RGBA{0, 255, 0, 0}
)

// WritePreview draws both markers and the grid lines over a copy of the
// screenshot and writes it as a PNG under dir. It returns the file path.
func WritePreview(dir string, screenshot gocv.Mat, res *Result) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create preview directory: %w", err)
	}

	img := screenshot.Clone()
	defer img.Close()

	for _, m := range []MarkerDetection{res.TopLeft, res.BottomRight} {
		gocv.Rectangle(&img, image.Rectangle{Min: m.Position, Max: m.Max()}, markerColor, 2)
	}

	g := res.Geometry
	right := int(g.OriginX + g.CellSize*float64(g.Columns))
	bottom := int(g.OriginY + g.CellSize*float64(g.Rows))
	for i := 0; i <= g.Columns; i++ {
		x := int(g.OriginX + g.CellSize*float64(i))
		gocv.Line(&img, image.Pt(x, int(g.OriginY)), image.Pt(x, bottom), gridColor, 1)
	}
	for i := 0; i <= g.Rows; i++ {
		y := int(g.OriginY + g.CellSize*float64(i))
		gocv.Line(&img, image.Pt(int(g.OriginX), y), image.Pt(right, y), gridColor, 1)
	}

	path := filepath.Join(dir, fmt.Sprintf("grid-%s.png", time.Now().Format("20060102-150405.000")))
	if ok := gocv.IMWrite(path, img); !ok {
		return "", fmt.Errorf("failed to write preview %s", path)
	}
	return path, nil
}
