package printer

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prevOut, prevErr, prevNoColor := Out, Err, color.NoColor
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	Out, Err, color.NoColor = out, errOut, true
	t.Cleanup(func() { Out, Err, color.NoColor = prevOut, prevErr, prevNoColor })
	return out, errOut
}

func TestMessages(t *testing.T) {
	out, _ := capture(t)

	Success("hosting %s", "default")
	Step("connecting")
	Warning("redis not set")
	Info("%d hosts", 2)
	Link("Share:", "tileboard://10.0.0.2:8888/default")

	assert.Equal(t, "✓ hosting default\n→ connecting\n! redis not set\n2 hosts\nShare: tileboard://10.0.0.2:8888/default\n", out.String())
}

func TestError(t *testing.T) {
	_, errOut := capture(t)

	err := Error("Cannot reach redis", "The host needs redis to store tiles.", map[string]string{
		"url":    "redis://localhost:6379",
		"canvas": "default",
	})
	require.EqualError(t, err, "Cannot reach redis")
	assert.True(t, Printed(err))
	assert.True(t, Printed(fmt.Errorf("host: %w", err)))
	assert.False(t, Printed(errors.New("other")))
	assert.Equal(t, "Cannot reach redis\n\nThe host needs redis to store tiles.\n\n  canvas: default\n  url: redis://localhost:6379\n", errOut.String())
}
