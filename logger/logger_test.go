package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecretKeys(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Info("login", "email", "a@b.com", "password", "hunter2", "jwt_token", "abc")

	entries := logs.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "a@b.com", fields["email"])
	assert.Equal(t, redacted, fields["password"])
	assert.Equal(t, redacted, fields["jwt_token"])
}

func TestWithKeepsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := (&Logger{SugaredLogger: zap.New(core).Sugar()}).With("component", "queue")

	l.Warn("retrying", "attempt", 2)

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "queue", fields["component"])
	assert.EqualValues(t, 2, fields["attempt"])
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"production", "development", ""} {
		l, err := New(mode)
		assert.NoError(t, err)
		assert.NotNil(t, l.SugaredLogger)
	}
}
