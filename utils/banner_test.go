package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	scripts []string
}

func (r *recordingRunner) Evaluate(ctx context.Context, expression string) error {
	r.scripts = append(r.scripts, expression)
	return nil
}

func TestBannerRenderer_ShowActive(t *testing.T) {
	runner := &recordingRunner{}
	r := NewBannerRenderer(runner)

	require.NoError(t, r.ShowActive(context.Background(), 30))
	require.Len(t, runner.scripts, 1)
	assert.Contains(t, runner.scripts[0], "Monitoring every 30s")
	assert.Contains(t, runner.scripts[0], "restock-monitor-indicator")
}

func TestBannerRenderer_ShowSequential(t *testing.T) {
	runner := &recordingRunner{}
	r := NewBannerRenderer(runner)

	require.NoError(t, r.ShowSequential(context.Background(), 1, 3))
	require.Len(t, runner.scripts, 1)
	// The index is zero-based internally, one-based on screen.
	assert.Contains(t, runner.scripts[0], "Monitoring 2/3")
}

func TestBannerRenderer_ShowStopped(t *testing.T) {
	runner := &recordingRunner{}
	r := NewBannerRenderer(runner)

	require.NoError(t, r.ShowStopped(context.Background()))
	require.Len(t, runner.scripts, 1)
	assert.Contains(t, runner.scripts[0], "Monitoring stopped")
	// The stopped indicator self-hides.
	assert.Contains(t, runner.scripts[0], "setTimeout")
}

func TestBannerRenderer_Notify(t *testing.T) {
	runner := &recordingRunner{}
	r := NewBannerRenderer(runner)

	require.NoError(t, r.Notify(context.Background(), "Linen Shirt is in stock!"))
	require.Len(t, runner.scripts, 1)
	assert.Contains(t, runner.scripts[0], "Linen Shirt is in stock!")
	assert.Contains(t, runner.scripts[0], "restock-monitor-notification")
}
