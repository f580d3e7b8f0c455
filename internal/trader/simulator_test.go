package trader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSteps = []string{"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9"}

func TestSimulator_ProgressAt(t *testing.T) {
	sim := NewSimulator(SimulatorConfig{Duration: 60 * time.Second, Steps: testSteps}, NewRand(1))

	testCases := []struct {
		elapsed time.Duration
		percent int
		step    int
	}{
		{elapsed: 0, percent: 0, step: 0},
		{elapsed: 6 * time.Second, percent: 10, step: 1},
		{elapsed: 30 * time.Second, percent: 50, step: 5},
		{elapsed: 59900 * time.Millisecond, percent: 99, step: 9},
		{elapsed: 60 * time.Second, percent: 100, step: 9},
		{elapsed: 90 * time.Second, percent: 100, step: 9},
	}

	for _, tc := range testCases {
		p := sim.ProgressAt(tc.elapsed)
		assert.Equal(t, tc.percent, p.Percent, "elapsed %v", tc.elapsed)
		assert.Equal(t, tc.step, p.StepIndex, "elapsed %v", tc.elapsed)
		assert.Equal(t, testSteps[tc.step], p.StepName)
	}
}

func fastSimulator(sampleEvery time.Duration) *Simulator {
	return NewSimulator(SimulatorConfig{
		Duration:       30 * time.Millisecond,
		TickInterval:   2 * time.Millisecond,
		GraceDelay:     5 * time.Millisecond,
		SampleInterval: sampleEvery,
		Steps:          testSteps,
	}, NewRand(7))
}

func TestSimulator_RunCompletes(t *testing.T) {
	sim := fastSimulator(0)
	var reports []Progress

	outcome := sim.Run(context.Background(), testAssets[1], testAssets, func(p Progress) {
		reports = append(reports, p)
	})

	assert.False(t, outcome.Cancelled)
	assert.Equal(t, testAssets[1], outcome.Asset)
	assert.GreaterOrEqual(t, outcome.Elapsed, 35*time.Millisecond)
	require.NotEmpty(t, reports)
	assert.Equal(t, 100, reports[len(reports)-1].Percent)
	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i].Percent, reports[i-1].Percent)
		assert.GreaterOrEqual(t, reports[i].StepIndex, reports[i-1].StepIndex)
	}
}

func TestSimulator_RunCancelled(t *testing.T) {
	sim := fastSimulator(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var reports int

	outcome := sim.Run(ctx, testAssets[0], testAssets, func(p Progress) {
		reports++
		cancel()
	})

	assert.True(t, outcome.Cancelled)
	assert.Equal(t, 1, reports)
}

func TestSimulator_Samples(t *testing.T) {
	sim := fastSimulator(time.Nanosecond)
	var samples []*ComparisonSample

	sim.Run(context.Background(), testAssets[0], testAssets, func(p Progress) {
		if p.Sample != nil {
			samples = append(samples, p.Sample)
		}
	})

	require.NotEmpty(t, samples)
	for _, s := range samples {
		assert.NotEqual(t, s.Left, s.Right)
		assert.Contains(t, DefaultMetrics, s.Metric)
		assert.GreaterOrEqual(t, s.LeftScore, 0.0)
		assert.LessOrEqual(t, s.RightScore, 100.0)
	}
}

func TestSimulator_NoSamplesForSingleAsset(t *testing.T) {
	sim := fastSimulator(time.Nanosecond)

	sim.Run(context.Background(), testAssets[0], testAssets[:1], func(p Progress) {
		assert.Nil(t, p.Sample)
	})
}
