package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })
	var lines []string
	SetLogger(func(format string, v ...any) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := captureLogs(t)
	Logf("skipping %s", "kappa")
	assert.Equal(t, []string{"skipping kappa"}, *lines)

	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("muted") })
	assert.Len(t, *lines, 1)
}

func TestComponent(t *testing.T) {
	logf := Component("pipeline")

	lines := captureLogs(t)
	logf("aborting observable %s", "zg")
	assert.Equal(t, []string{"[pipeline] aborting observable zg"}, *lines)

	// Loggers created before a SetLogger follow it.
	SetLogger(nil)
	logf("muted")
	assert.Len(t, *lines, 1)
}
