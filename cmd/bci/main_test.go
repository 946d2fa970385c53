package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	// check if commands are registered
	assert.Len(t, newRootCommand().Commands(), 3)
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	out, err := execute("list")
	require.NoError(t, err)
	assert.Contains(t, out, "tournament [int float float uint uint int]")
	assert.Contains(t, out, "trained-emitter [any]")
}

func TestInspect(t *testing.T) {
	out, err := execute("inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "artifacts")
	assert.Contains(t, out, "BCIAdapter")

	_, err = execute("inspect", "--pipeline", "missing.yaml")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	err := run(context.Background(), runOptions{
		channels:   2,
		sampleRate: 200,
		seed:       1,
		duration:   200 * time.Millisecond,
		artifacts:  50 * time.Millisecond,
	})
	assert.NoError(t, err)

	err = run(context.Background(), runOptions{channels: 0, sampleRate: 200})
	assert.Error(t, err)
}
