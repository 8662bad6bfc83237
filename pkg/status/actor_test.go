package status_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-dev/screenlens/pkg/status"
)

func TestActorRecordsCaptureAndProcessState(t *testing.T) {
	a := status.New()
	defer a.Stop()

	now := time.Now()
	a.SetCapturing(true)
	a.RecordCapture(now)
	a.SetProcessing(true)
	a.SetSessionFrames(42)
	a.SetStorageUsage(1024 * 1024)
	a.SetError("boom")

	// send() is fire-and-forget; give the actor loop a turn to drain.
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := a.Get(ctx)
	require.NoError(t, err)

	assert.True(t, snap.IsCapturing)
	assert.True(t, snap.IsProcessing)
	assert.Equal(t, 42, snap.CurrentSessionFrames)
	assert.Equal(t, int64(1024*1024), snap.StorageUsageBytes)
	assert.Equal(t, "boom", snap.LastError)
	assert.WithinDuration(t, now, snap.LastCaptureTime, time.Second)
}

func TestActorClearError(t *testing.T) {
	a := status.New()
	defer a.Stop()

	a.SetError("oops")
	a.ClearError()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := a.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.LastError)
}

func TestActorGetRespectsContextCancellation(t *testing.T) {
	a := status.New()
	defer a.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Get(ctx)
	assert.Error(t, err)
}
