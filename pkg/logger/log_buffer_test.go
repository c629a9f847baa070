package logger

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gotest.tools/assert"
)

func TestLogBufferWraps(t *testing.T) {
	buffer := NewLogBuffer(3)
	assert.Equal(t, len(buffer.Entries()), 0)

	for i := 0; i < 5; i++ {
		buffer.write(&Entry{Message: "entry"})
	}
	assert.Equal(t, buffer.Len(), 5)

	entries := buffer.Entries()
	assert.Equal(t, len(entries), 3)
	for i, entry := range entries {
		assert.Equal(t, entry.ID, 2+i)
	}
}

func TestLogBufferFireSortsFields(t *testing.T) {
	buffer := NewLogBuffer(8)
	err := buffer.Fire(&logrus.Entry{
		Message: "finished train step",
		Time:    time.Now(),
		Level:   logrus.InfoLevel,
		Data:    logrus.Fields{"step": 3, "loss": 0.25},
	})
	assert.NilError(t, err)

	entries := buffer.Entries()
	assert.Equal(t, len(entries), 1)
	assert.Equal(t, entries[0].Message, `finished train step  loss="0.25" step="3"`)
}

func TestLogBufferDump(t *testing.T) {
	buffer := NewLogBuffer(4)
	buffer.write(&Entry{Message: "starting epoch 0", Level: logrus.InfoLevel})
	buffer.write(&Entry{Message: "training failed", Level: logrus.ErrorLevel})

	var sb strings.Builder
	assert.NilError(t, buffer.Dump(&sb))
	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	assert.Equal(t, len(lines), 2)
	assert.Assert(t, strings.HasSuffix(lines[0], "starting epoch 0"))
	assert.Assert(t, strings.HasSuffix(lines[1], "training failed"))
}
