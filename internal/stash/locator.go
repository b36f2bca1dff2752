package stash

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"poe-autotrade/pkg/logger"
)

// minTemplateSide is the smallest resized marker worth matching.
const minTemplateSide = 10

// Options configures a Locator.
type Options struct {
	MinScale        float64
	MaxScale        float64
	ScaleSamples    int
	DetectThreshold float64
	Params          Params
	// PreviewDir receives an annotated PNG per successful localization.
	// Empty disables previews.
	PreviewDir string
}

func DefaultOptions() Options {
	return Options{
		MinScale:        0.2,
		MaxScale:        2.5,
		ScaleSamples:    47,
		DetectThreshold: 0.65,
		Params:          DefaultParams(),
	}
}

// Locator finds the stash grid in screenshots. The marker template is read
// only after construction, so one Locator may serve concurrent callers.
type Locator struct {
	marker gocv.Mat
	opts   Options
	log    *logger.Logger
}

// NewLocator loads the marker image from path as grayscale.
func NewLocator(path string, opts Options, log *logger.Logger) (*Locator, error) {
	marker := gocv.IMRead(path, gocv.IMReadGrayScale)
	if marker.Empty() {
		marker.Close()
		return nil, fmt.Errorf("failed to load marker template %s", path)
	}
	log.Debug("Loaded marker template", "path", path, "width", marker.Cols(), "height", marker.Rows())
	return &Locator{marker: marker, opts: opts, log: log}, nil
}

// NewLocatorFromMat uses a copy of marker, converted to grayscale if needed.
func NewLocatorFromMat(marker gocv.Mat, opts Options, log *logger.Logger) (*Locator, error) {
	if marker.Empty() {
		return nil, fmt.Errorf("empty marker template")
	}
	return &Locator{marker: toGray(marker), opts: opts, log: log}, nil
}

func (l *Locator) Close() error {
	return l.marker.Close()
}

// Locate searches the left half of a BGR screenshot for the two markers and
// derives the grid. Coordinates in the result are screenshot pixels.
func (l *Locator) Locate(screenshot gocv.Mat) (*Result, error) {
	if screenshot.Empty() {
		return nil, fmt.Errorf("%w: empty screenshot", ErrNotEnoughMarkers)
	}

	half := image.Rect(0, 0, screenshot.Cols()/2, screenshot.Rows())
	region := screenshot.Region(half)
	defer region.Close()

	gray := toGray(region)
	defer gray.Close()

	detections := l.Detect(gray)
	l.log.Debug("Marker scan finished",
		"candidates", len(detections),
		"region_width", half.Dx(),
		"region_height", half.Dy())

	res, err := Derive(detections, half.Dx(), half.Dy(), l.opts.Params)
	if err != nil {
		return nil, err
	}

	l.log.Info("Stash grid located",
		"columns", res.Geometry.Columns,
		"cell_size", res.Geometry.CellSize,
		"origin_x", res.Geometry.OriginX,
		"origin_y", res.Geometry.OriginY,
		"top_left_score", res.TopLeft.Score,
		"bottom_right_score", res.BottomRight.Score)

	if l.opts.PreviewDir != "" {
		if path, err := WritePreview(l.opts.PreviewDir, screenshot, res); err != nil {
			l.log.Warn("Failed to write grid preview", "error", err.Error())
		} else {
			l.log.Debug("Wrote grid preview", "path", path)
		}
	}

	return res, nil
}

// Detect runs the multi-scale marker match over a grayscale image. Each
// pixel above the detection threshold keeps only its best-scoring scale.
func (l *Locator) Detect(gray gocv.Mat) []MarkerDetection {
	best := make(map[image.Point]MarkerDetection)

	for _, scale := range Scales(l.opts.MinScale, l.opts.MaxScale, l.opts.ScaleSamples) {
		w := int(math.Round(float64(l.marker.Cols()) * scale))
		h := int(math.Round(float64(l.marker.Rows()) * scale))
		if w < minTemplateSide || h < minTemplateSide || w > gray.Cols() || h > gray.Rows() {
			continue
		}

		l.matchScale(gray, scale, image.Pt(w, h), best)
	}

	out := make([]MarkerDetection, 0, len(best))
	for _, d := range best {
		out = append(out, d)
	}
	return out
}

func (l *Locator) matchScale(gray gocv.Mat, scale float64, size image.Point, best map[image.Point]MarkerDetection) {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(l.marker, &resized, size, 0, 0, gocv.InterpolationLinear)

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(gray, resized, &result, gocv.TmCcoeffNormed, mask)

	scores, err := result.DataPtrFloat32()
	if err != nil {
		l.log.Warn("Failed to read match scores", "scale", scale, "error", err.Error())
		return
	}

	threshold := float32(l.opts.DetectThreshold)
	cols := result.Cols()
	for i, v := range scores {
		// NaN scores from flat regions compare false and are skipped.
		if !(v > threshold) {
			continue
		}
		pos := image.Pt(i%cols, i/cols)
		if prev, ok := best[pos]; ok && prev.Score >= float64(v) {
			continue
		}
		best[pos] = MarkerDetection{
			Position: pos,
			Scale:    scale,
			Size:     size,
			Score:    float64(v),
		}
	}
}

func toGray(src gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&gray)
	case 4:
		gocv.CvtColor(src, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	}
	return gray
}
