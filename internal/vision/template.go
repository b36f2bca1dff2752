package vision

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

var ErrTemplateNotFound = errors.New("template not found")

// Match is the best location of a template in an image.
type Match struct {
	Rect  image.Rectangle
	Scale float64
	Score float64
}

// Center returns the middle of the matched rectangle.
func (m Match) Center() image.Point {
	return image.Pt((m.Rect.Min.X+m.Rect.Max.X)/2, (m.Rect.Min.Y+m.Rect.Max.Y)/2)
}

// Template is a grayscale UI element searched over a range of scales.
type Template struct {
	name      string
	mat       gocv.Mat
	scales    []float64
	threshold float64
}

// LoadTemplate reads the image at path as grayscale.
func LoadTemplate(name, path string, scales []float64, threshold float64) (*Template, error) {
	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to load %s template %s", name, path)
	}
	return NewTemplate(name, mat, scales, threshold), nil
}

// NewTemplate takes ownership of mat, which must be grayscale.
func NewTemplate(name string, mat gocv.Mat, scales []float64, threshold float64) *Template {
	if len(scales) == 0 {
		scales = []float64{1}
	}
	return &Template{name: name, mat: mat, scales: scales, threshold: threshold}
}

func (t *Template) Name() string {
	return t.name
}

func (t *Template) Close() error {
	return t.mat.Close()
}

// Find returns the best match of the template in a BGR or grayscale image.
// Scores below the template threshold yield ErrTemplateNotFound.
func (t *Template) Find(img gocv.Mat) (Match, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	switch img.Channels() {
	case 1:
		img.CopyTo(&gray)
	case 4:
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}

	best := Match{Score: -1}
	for _, scale := range t.scales {
		w := int(math.Round(float64(t.mat.Cols()) * scale))
		h := int(math.Round(float64(t.mat.Rows()) * scale))
		if w < 1 || h < 1 || w > gray.Cols() || h > gray.Rows() {
			continue
		}

		score, loc := matchAt(gray, t.mat, image.Pt(w, h))
		if score > best.Score {
			best = Match{
				Rect:  image.Rectangle{Min: loc, Max: loc.Add(image.Pt(w, h))},
				Scale: scale,
				Score: score,
			}
		}
	}

	if best.Score < t.threshold {
		return best, fmt.Errorf("%w: %s best score %.3f below %.3f", ErrTemplateNotFound, t.name, best.Score, t.threshold)
	}
	return best, nil
}

func matchAt(gray, tmpl gocv.Mat, size image.Point) (float64, image.Point) {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(tmpl, &resized, size, 0, 0, gocv.InterpolationLinear)

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(gray, resized, &result, gocv.TmCcoeffNormed, mask)

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
	if math.IsNaN(float64(maxVal)) {
		return -1, maxLoc
	}
	return float64(maxVal), maxLoc
}
