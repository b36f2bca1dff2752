package sound

import (
	"fmt"
	"os"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

const (
	sampleRate = beep.SampleRate(44100)
	bufferSize = 4096
)

// SoundNotifier plays the trade alert. The speaker is initialized on first
// use so a machine without audio only fails when a sound is requested.
type SoundNotifier struct {
	path string

	initOnce sync.Once
	initErr  error
}

func NewSoundNotifier(path string) (*SoundNotifier, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sound file %s: %w", path, err)
	}
	return &SoundNotifier{path: path}, nil
}

// PlayTradeSound starts playback and returns without waiting for it to end.
func (s *SoundNotifier) PlayTradeSound() error {
	s.initOnce.Do(func() {
		s.initErr = speaker.Init(sampleRate, bufferSize)
	})
	if s.initErr != nil {
		return fmt.Errorf("failed to initialize audio: %w", s.initErr)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open sound file: %w", err)
	}

	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode WAV: %w", err)
	}

	var out beep.Streamer = streamer
	if format.SampleRate != sampleRate {
		out = beep.Resample(4, format.SampleRate, sampleRate, streamer)
	}

	// wav.Decode closes the file along with the streamer.
	speaker.Play(beep.Seq(out, beep.Callback(func() {
		streamer.Close()
	})))
	return nil
}
