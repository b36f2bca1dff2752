package classifier

import (
	"sync"

	"poe-autotrade/pkg/logger"
)

// Handle shares one Detector between users. The detector is built on the
// first Acquire and closed when the last user releases it.
type Handle struct {
	mu       sync.Mutex
	factory  func() (Detector, error)
	detector Detector
	refs     int
	log      *logger.Logger
}

func NewHandle(factory func() (Detector, error), log *logger.Logger) *Handle {
	return &Handle{factory: factory, log: log}
}

// Acquire returns the shared detector and a release func that must be
// called exactly once.
func (h *Handle) Acquire() (Detector, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.detector == nil {
		d, err := h.factory()
		if err != nil {
			return nil, nil, err
		}
		h.detector = d
		h.log.Debug("Classifier created")
	}
	h.refs++

	var once sync.Once
	return h.detector, func() { once.Do(h.release) }, nil
}

func (h *Handle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.refs--
	if h.refs > 0 || h.detector == nil {
		return
	}
	if err := h.detector.Close(); err != nil {
		h.log.Warn("Failed to close classifier", "error", err)
	}
	h.detector = nil
	h.log.Debug("Classifier released")
}

// Refs reports the number of outstanding users.
func (h *Handle) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}
