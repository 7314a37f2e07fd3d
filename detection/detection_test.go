package detection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	err       error
	name      string
	devices   []DeviceInfo
	callCount int
}

func (s *stubDetector) Transport() string { return s.name }

func (s *stubDetector) Detect(context.Context, *Options) ([]DeviceInfo, error) {
	s.callCount++
	return s.devices, s.err
}

// The registry is global, so these tests use transport names no real
// detector registers and always filter on them.

func TestDetectAll(t *testing.T) {
	low := &stubDetector{name: "stub-low", devices: []DeviceInfo{{Path: "a", Confidence: Low}}}
	high := &stubDetector{name: "stub-high", devices: []DeviceInfo{{Path: "b", Confidence: High}}}
	empty := &stubDetector{name: "stub-empty", err: ErrNoDevicesFound}
	RegisterDetector(low)
	RegisterDetector(high)
	RegisterDetector(empty)

	opts := DefaultOptions()
	opts.Transports = []string{"stub-low", "stub-high", "stub-empty"}

	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "b", devices[0].Path)
	assert.Equal(t, "a", devices[1].Path)
	assert.Equal(t, 1, empty.callCount)

	opts.Transports = []string{"stub-low"}
	devices, err = DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.Equal(t, 2, low.callCount)
	assert.Equal(t, 1, high.callCount)
}

func TestDetectAll_Errors(t *testing.T) {
	failure := errors.New("permission denied")
	RegisterDetector(&stubDetector{name: "stub-failing", err: failure})
	RegisterDetector(&stubDetector{name: "stub-none", err: ErrNoDevicesFound})

	opts := DefaultOptions()
	opts.Transports = []string{"stub-none"}
	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)

	opts.Transports = []string{"stub-none", "stub-failing"}
	_, err = DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, failure)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = DetectAll(ctx, &opts)
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

func TestModeAndConfidenceNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "passive", Passive.String())
	assert.Equal(t, "safe", Safe.String())
	assert.Equal(t, "full", Full.String())
	assert.Equal(t, "low", Low.String())
	assert.Equal(t, "medium", Medium.String())
	assert.Equal(t, "high", High.String())
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()
	opts := DefaultOptions()
	assert.Equal(t, Passive, opts.Mode)
	assert.Nil(t, opts.IgnorePaths)
	assert.NotEmpty(t, opts.Blocklist)
}
