// Package vision captures the game window and finds single UI elements in it.
package vision

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
	"gocv.io/x/gocv"
)

// Capturer grabs a screen rectangle as a BGR Mat.
type Capturer interface {
	Capture(rect image.Rectangle) (gocv.Mat, error)
}

// ScreenCapturer captures from the display with kbinani/screenshot.
type ScreenCapturer struct{}

func (ScreenCapturer) Capture(rect image.Rectangle) (gocv.Mat, error) {
	if rect.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty capture rectangle %v", rect)
	}

	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to capture screen: %w", err)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to convert screenshot: %w", err)
	}
	return mat, nil
}

// EncodePNG encodes a Mat for transport, e.g. to the classifier.
func EncodePNG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
