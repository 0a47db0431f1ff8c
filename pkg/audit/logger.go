package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsconf-network/fsconf/pkg/util"
)

// Logger records audit events and answers queries over them.
type Logger interface {
	Log(event *Event) error
	Query(filter Filter) ([]*Event, error)
	Close() error
}

// backupStamp names rotated files. Names sort in rotation order.
const backupStamp = "20060102T150405.000000000"

// RotationConfig bounds the audit log on disk. A zero MaxSize never
// rotates; a zero MaxBackups keeps every rotated file.
type RotationConfig struct {
	MaxSize    int64
	MaxBackups int
}

// FileLogger appends events as JSON lines to path. When the file reaches
// MaxSize it is renamed to path.<stamp> and a fresh file is started;
// Query reads the rotated files before the live one.
type FileLogger struct {
	mu       sync.RWMutex
	path     string
	file     *os.File
	enc      *json.Encoder
	rotation RotationConfig
}

// NewFileLogger opens (or creates) the audit log at path.
func NewFileLogger(path string, rotation RotationConfig) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	l := &FileLogger{path: path, rotation: rotation}
	if err := l.open(); err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	l.enc = json.NewEncoder(f)
	return nil
}

// Log appends event, rotating first when the live file is full.
func (l *FileLogger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.full() {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotating audit log: %w", err)
		}
	}
	return l.enc.Encode(event)
}

func (l *FileLogger) full() bool {
	if l.rotation.MaxSize <= 0 {
		return false
	}
	info, err := l.file.Stat()
	return err == nil && info.Size() >= l.rotation.MaxSize
}

// Query returns the events matching filter, oldest first, across the
// rotated files and the live file.
func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	files := append(l.backups(), l.path)
	events := []*Event{}
	for _, path := range files {
		err := readEvents(path, func(e *Event) {
			if filter.Match(e) {
				events = append(events, e)
			}
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return filter.page(events), nil
}

// readEvents decodes each JSON line of path. Malformed lines are skipped.
func readEvents(path string, fn func(*Event)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			util.Warnf("audit: skipping malformed entry %s:%d: %v", filepath.Base(path), n, err)
			continue
		}
		fn(&e)
	}
	return scanner.Err()
}

// backups lists rotated files, oldest first.
func (l *FileLogger) backups() []string {
	matches, err := filepath.Glob(l.path + ".*")
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// Close closes the live file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.path, l.path+"."+time.Now().Format(backupStamp)); err != nil {
		return err
	}
	if err := l.open(); err != nil {
		return err
	}

	if keep := l.rotation.MaxBackups; keep > 0 {
		old := l.backups()
		for len(old) > keep {
			if err := os.Remove(old[0]); err != nil {
				util.Warnf("audit: removing %s: %v", old[0], err)
			}
			old = old[1:]
		}
	}
	return nil
}

// The process-wide logger. atomic.Value needs one concrete type, so the
// interface is boxed.
type loggerBox struct{ Logger }

var defaultLogger atomic.Value

// SetDefaultLogger installs the logger used by Log and Query. nil
// disables auditing.
func SetDefaultLogger(logger Logger) {
	defaultLogger.Store(loggerBox{logger})
}

func current() Logger {
	if v, ok := defaultLogger.Load().(loggerBox); ok {
		return v.Logger
	}
	return nil
}

// Log records event with the default logger, if one is set.
func Log(event *Event) error {
	if l := current(); l != nil {
		return l.Log(event)
	}
	return nil
}

// Query searches the default logger. Without one it finds nothing.
func Query(filter Filter) ([]*Event, error) {
	if l := current(); l != nil {
		return l.Query(filter)
	}
	return []*Event{}, nil
}
