package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerFallsBackToGlobal(t *testing.T) {
	ctx := context.Background()
	entry := G(ctx)
	require.NotNil(t, entry)
	assert.Equal(t, L.Logger, entry.Logger)
}

func TestWithLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.InfoLevel)

	ctx := WithLogger(context.Background(), logrus.NewEntry(l).WithField("skill", "demo"))
	G(ctx).Info("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "demo")
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	assert.Error(t, SetLogLevel("not-a-level"))

	require.NoError(t, SetLogLevel("warn"))
}

func TestSetLogFormat(t *testing.T) {
	SetLogFormat("json")
	_, ok := L.Logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)

	SetLogFormat("text")
	_, ok = L.Logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}
