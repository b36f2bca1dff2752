package poe_log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/fsnotify/fsnotify"

	"poe-autotrade/internal/models"
	"poe-autotrade/pkg/logger"
)

// Only lines that start with a timestamp carry one
var timestampRegex = regexp.MustCompile(`^(\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2})`)

const (
	timestampLayout = "2006/01/02 15:04:05"
	retryDelay      = 500 * time.Millisecond
	maxLineSize     = 1024 * 1024 // 1MB
)

// Handler receives each new log line in file order.
type Handler func(models.LogLine)

// LogWatcher tails Client.txt from its end, waking on fsnotify events and on
// a poll interval.
type LogWatcher struct {
	path     string
	interval time.Duration
	handler  Handler
	log      *logger.Logger
	decoder  *Decoder

	file     *os.File
	offset   int64
	lastSize int64

	// lastTS is the newest timestamp handed out. After a truncation or
	// rotation, replayCutoff holds it so re-read lines are skipped.
	lastTS       time.Time
	replayCutoff time.Time
}

func NewLogWatcher(path string, interval time.Duration, handler Handler, log *logger.Logger) *LogWatcher {
	if interval <= 0 {
		interval = retryDelay
	}
	return &LogWatcher{
		path:     filepath.Clean(path),
		interval: interval,
		handler:  handler,
		log:      log,
		decoder:  NewDecoder(),
	}
}

// Run tails the file until ctx is cancelled. Errors inside one iteration are
// logged and the loop continues.
func (w *LogWatcher) Run(ctx context.Context) error {
	w.log.Info("Starting log watch routine", "path", w.path)

	for w.file == nil {
		if err := w.open(); err != nil {
			w.log.Error("Failed to open log file, retrying", err, "path", w.path)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.interval * 4):
			}
		}
	}
	defer w.close()

	var events <-chan fsnotify.Event
	var watchErrors <-chan error
	if fw, err := fsnotify.NewWatcher(); err != nil {
		w.log.Warn("fsnotify unavailable, polling only", "error", err.Error())
	} else {
		defer fw.Close()
		if err := fw.Add(filepath.Dir(w.path)); err != nil {
			w.log.Warn("Failed to watch log directory, polling only", "error", err.Error())
		} else {
			events, watchErrors = fw.Events, fw.Errors
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Log watcher stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == w.path && ev.Has(fsnotify.Write|fsnotify.Create) {
				w.safePoll()
			}
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			w.log.Warn("fsnotify error", "error", err.Error())
		case <-ticker.C:
			w.safePoll()
		}
	}
}

func (w *LogWatcher) safePoll() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Recovered from panic while reading log", fmt.Errorf("%v", r))
		}
	}()
	if err := w.poll(); err != nil {
		w.log.Error("Failed to read log file", err, "path", w.path)
	}
}

// open opens the file and starts reading from its current end.
func (w *LogWatcher) open() error {
	file, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	w.file = file
	w.offset = stat.Size()
	w.lastSize = stat.Size()
	w.log.Info("Initial file size", "size", stat.Size())
	return nil
}

func (w *LogWatcher) close() {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}

// reset rereads the file from its start, skipping lines already delivered.
func (w *LogWatcher) reset(reason string, oldSize, newSize int64) {
	w.log.Info("Log file reset, rereading", "reason", reason, "old_size", oldSize, "new_size", newSize)
	w.offset = 0
	w.lastSize = 0
	w.replayCutoff = w.lastTS
}

// poll reads every complete line appended since the last call.
func (w *LogWatcher) poll() error {
	if w.file == nil {
		if err := w.open(); err != nil {
			return err
		}
		// A file that appears later is read from its start.
		w.offset, w.lastSize = 0, 0
	}

	stat, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	// Rotation: the path now names a different file.
	if pathStat, err := os.Stat(w.path); err == nil && !os.SameFile(stat, pathStat) {
		w.close()
		file, err := os.Open(w.path)
		if err != nil {
			return fmt.Errorf("failed to reopen rotated log: %w", err)
		}
		w.file = file
		w.reset("rotated", w.lastSize, pathStat.Size())
		stat = pathStat
	}

	currentSize := stat.Size()
	if currentSize < w.lastSize {
		w.reset("truncated", w.lastSize, currentSize)
	}
	if currentSize <= w.offset {
		return nil
	}

	chunk := make([]byte, currentSize-w.offset)
	n, err := w.file.ReadAt(chunk, w.offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read log file: %w", err)
	}
	chunk = chunk[:n]

	// A trailing partial line stays unread until its newline is written.
	end := bytes.LastIndexByte(chunk, '\n')
	if end < 0 {
		if len(chunk) <= maxLineSize {
			return nil
		}
		// Runaway line without a newline: hand it out as is.
		w.emit(chunk)
		w.offset += int64(len(chunk))
		w.lastSize = currentSize
		return nil
	}

	for _, raw := range bytes.Split(chunk[:end], []byte{'\n'}) {
		w.emit(bytes.TrimRight(raw, "\r"))
	}

	w.offset += int64(end + 1)
	w.lastSize = currentSize
	return nil
}

func (w *LogWatcher) emit(raw []byte) {
	if len(raw) == 0 {
		return
	}

	text, enc := w.decoder.Decode(raw)
	ts := ParseTimestamp(text)

	if !w.replayCutoff.IsZero() {
		if ts.IsZero() || !ts.After(w.replayCutoff) {
			return
		}
		w.replayCutoff = time.Time{}
	}
	if !ts.IsZero() && ts.After(w.lastTS) {
		w.lastTS = ts
	}

	if enc != "utf-8" {
		w.log.Debug("Decoded non UTF-8 line", "encoding", enc)
	}

	if w.handler != nil {
		w.handler(models.LogLine{Text: text, Timestamp: ts})
	}
}

// ParseTimestamp reads the leading "2006/01/02 15:04:05" stamp of a client
// log line in local time. It returns the zero time when there is none.
func ParseTimestamp(line string) time.Time {
	m := timestampRegex.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}
	}
	ts, err := time.ParseInLocation(timestampLayout, m[1], time.Local)
	if err != nil {
		return time.Time{}
	}
	return ts
}
