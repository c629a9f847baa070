package logger

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lucasbrambrink/deepvariant/pkg/mmath"
)

// Entry captures the interesting attributes of logrus.Entry.
type Entry struct {
	ID      int          `json:"id"`
	Message string       `json:"message"`
	Time    time.Time    `json:"time"`
	Level   logrus.Level `json:"level"`
}

// LogBuffer is a logrus hook that retains the most recent entries in a ring,
// so a crashing process can dump its tail of logs for post-mortem inspection.
type LogBuffer struct {
	lock         sync.RWMutex
	buffer       []*Entry
	totalEntries int
}

// NewLogBuffer creates a new LogBuffer retaining up to capacity entries.
func NewLogBuffer(capacity int) *LogBuffer {
	return &LogBuffer{
		buffer: make([]*Entry, capacity),
	}
}

func (lb *LogBuffer) write(entry *Entry) {
	lb.lock.Lock()
	defer lb.lock.Unlock()
	entry.ID = lb.totalEntries
	lb.buffer[lb.totalEntries%len(lb.buffer)] = entry
	lb.totalEntries++
}

// Entries returns the retained entries, oldest first.
func (lb *LogBuffer) Entries() []*Entry {
	lb.lock.RLock()
	defer lb.lock.RUnlock()

	count := mmath.Min(lb.totalEntries, len(lb.buffer))
	entries := make([]*Entry, 0, count)
	for i := lb.totalEntries - count; i < lb.totalEntries; i++ {
		entries = append(entries, lb.buffer[i%len(lb.buffer)])
	}
	return entries
}

// Len returns the total number of entries written to the buffer.
func (lb *LogBuffer) Len() int {
	lb.lock.RLock()
	defer lb.lock.RUnlock()
	return lb.totalEntries
}

// Dump writes the retained entries to w, oldest first.
func (lb *LogBuffer) Dump(w io.Writer) error {
	for _, entry := range lb.Entries() {
		_, err := fmt.Fprintf(w, "%s %s %s\n",
			entry.Time.Format(time.RFC3339), entry.Level, entry.Message)
		if err != nil {
			return err
		}
	}
	return nil
}

// Fire implements the logrus.Hook interface.
func (lb *LogBuffer) Fire(entry *logrus.Entry) error {
	lb.write(&Entry{
		Message: messageAndData(entry),
		Time:    entry.Time,
		Level:   entry.Level,
	})
	return nil
}

// Levels implements the logrus.Hook interface.
func (lb *LogBuffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

func messageAndData(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return entry.Message
	}

	// Stringify the fields in a sorted order.
	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, fmt.Sprintf("%s=%q", key, fmt.Sprintf("%v", entry.Data[key])))
	}

	return entry.Message + "  " + strings.Join(fields, " ")
}
