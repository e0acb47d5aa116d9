package global

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFormat(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local),
		Level:   logrus.WarnLevel,
		Message: "hello",
		Data:    logrus.Fields{"b": 2, "a": 1},
	}
	b, err := LogFormat{}.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2024-01-02 03:04:05] [WARNING]: hello a=1 b=2\n", string(b))

	b, err = LogFormat{EnableColor: true}.Format(entry)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte(colorCodeWarn)))
}

func TestLocalHookWritesFile(t *testing.T) {
	var out bytes.Buffer
	hook := &LocalHook{lock: new(sync.Mutex), formatter: LogFormat{}, writer: &out, levels: GetLogLevel("error")}
	assert.NotContains(t, hook.Levels(), logrus.InfoLevel)
	require.NoError(t, hook.Fire(&logrus.Entry{Time: time.Now(), Level: logrus.ErrorLevel, Message: "boom"}))
	assert.Contains(t, out.String(), "[ERROR]: boom")
}

func TestWriteFileAtomic(t *testing.T) {
	p := t.TempDir() + "/sub/votes.json"
	require.NoError(t, WriteFileAtomic(p, []byte("{}")))
	assert.True(t, PathExists(p))
	require.NoError(t, WriteFileAtomic(p, []byte(`{"1":2}`)))
}
