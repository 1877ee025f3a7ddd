// Package storage writes the daemon's on-disk side records: the activity
// journal and export archives. The session catalog itself lives in
// internal/catalog.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const journalFile = "activity.jsonl"

// Entry is one journal line.
type Entry struct {
	Time      time.Time `json:"time"`
	Action    string    `json:"action"`
	Domain    string    `json:"domain,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	TabID     string    `json:"tab_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	Detail    any       `json:"detail,omitempty"`
}

// Journal writes entries asynchronously as JSON lines into one file per UTC
// day: baseDir/2006-01-02/activity.jsonl. A full buffer drops the entry.
type Journal struct {
	baseDir     string
	maxSizeMB   int
	writeCh     chan Entry
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
	now         func() time.Time
}

func NewJournal(baseDir string, bufferSize, maxSizeMB int) *Journal {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	j := &Journal{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan Entry, bufferSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}

	j.wg.Add(1)
	go j.writeLoop()

	return j
}

// Record queues an entry. It never blocks.
func (j *Journal) Record(e Entry) error {
	if e.Time.IsZero() {
		e.Time = j.now().UTC()
	}
	select {
	case <-j.done:
		return fmt.Errorf("journal is closed")
	default:
	}
	select {
	case j.writeCh <- e:
		return nil
	default:
		slog.Warn("journal buffer full, dropping entry", "action", e.Action, "domain", e.Domain)
		return fmt.Errorf("buffer full")
	}
}

// Close stops the writer after flushing queued entries.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() { close(j.done) })
	j.wg.Wait()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.logger != nil {
		err := j.logger.Close()
		j.logger = nil
		return err
	}
	return nil
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()

	for {
		select {
		case e := <-j.writeCh:
			j.write(e)
		case <-j.done:
			j.drain()
			return
		}
	}
}

func (j *Journal) drain() {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-j.writeCh:
			j.write(e)
		case <-timeout:
			slog.Warn("journal close timeout, some entries may be lost")
			return
		default:
			return
		}
	}
}

func (j *Journal) write(e Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("journal marshal failed", "action", e.Action, "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	date := e.Time.UTC().Format("2006-01-02")
	if date != j.currentDate || j.logger == nil {
		if err := j.rotateForDate(date); err != nil {
			slog.Error("journal rotate failed", "date", date, "error", err)
			return
		}
	}

	if _, err := j.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "action", e.Action, "error", err)
	}
}

func (j *Journal) rotateForDate(date string) error {
	if j.logger != nil {
		_ = j.logger.Close()
		j.logger = nil
	}

	dir := filepath.Join(j.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	filename := filepath.Join(dir, journalFile)
	j.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    j.maxSizeMB,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	}
	j.currentDate = date
	slog.Debug("journal file opened", "file", filename)
	return nil
}
