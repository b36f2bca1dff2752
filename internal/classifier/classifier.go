// Package classifier talks to an external object detection service that
// labels items and currency in a screenshot.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
)

var ErrUnavailable = errors.New("classifier unavailable")

// Detection is one labeled bounding box.
type Detection struct {
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Detector labels objects in a PNG encoded image.
type Detector interface {
	Detect(ctx context.Context, png []byte) ([]Detection, error)
	Close() error
}

// NoOp is used when the classifier is disabled.
type NoOp struct{}

func (NoOp) Detect(context.Context, []byte) ([]Detection, error) { return nil, ErrUnavailable }
func (NoOp) Close() error { return nil }

// HTTPDetector posts images to the detection service.
type HTTPDetector struct {
	baseURL   string
	threshold float64
	client    *http.Client
	log       *logger.Logger
}

func NewHTTPDetector(cfg config.ClassifierConfig, log *logger.Logger) *HTTPDetector {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDetector{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		threshold: cfg.DetectionThreshold,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

type wireDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        [4]int  `json:"box"`
}

// Detect uploads png and returns detections at or above the threshold.
func (d *HTTPDetector) Detect(ctx context.Context, png []byte) ([]Detection, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", "screenshot.png")
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to add image field: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	if err := writer.WriteField("threshold", strconv.FormatFloat(d.threshold, 'f', -1, 64)); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write threshold: %w", err)
	}
	contentType := writer.FormDataContentType()
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/detect", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Detections []wireDetection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}

	detections := make([]Detection, 0, len(out.Detections))
	for _, w := range out.Detections {
		if w.Confidence < d.threshold {
			continue
		}
		detections = append(detections, Detection{
			Label:      w.Label,
			Confidence: w.Confidence,
			Box:        image.Rect(w.Box[0], w.Box[1], w.Box[2], w.Box[3]),
		})
	}
	d.log.Debug("Classifier detections", "count", len(detections))
	return detections, nil
}

// Healthy pings the service.
func (d *HTTPDetector) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// WatchHealth logs availability changes until ctx is done.
func (d *HTTPDetector) WatchHealth(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := true
	for {
		err := d.Healthy(ctx)
		switch {
		case err != nil && healthy:
			d.log.Warn("Classifier unreachable", "url", d.baseURL, "error", err)
		case err == nil && !healthy:
			d.log.Info("Classifier reachable", "url", d.baseURL)
		}
		healthy = err == nil

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *HTTPDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// Summarize counts detections per label, mapping labels through normalize.
// The result is sorted by label.
func Summarize(detections []Detection, normalize func(string) string) []LabelCount {
	counts := make(map[string]int)
	for _, det := range detections {
		label := det.Label
		if normalize != nil {
			label = normalize(label)
		}
		counts[label]++
	}

	out := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}
