package core

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogKeepsPercentSignsInArguments(t *testing.T) {
	var out bytes.Buffer
	SetLogOutput(&out)
	t.Cleanup(func() { SetLogOutput(io.Discard) })

	LogError("%s", errors.New("upload 100% failed: %d"))
	assert.Contains(t, out.String(), "upload 100% failed: %d")
	assert.NotContains(t, out.String(), "%!")
}
