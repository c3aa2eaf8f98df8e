package metricsbridge

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnstream-go/cnstream/pkg/profiler"
)

func TestObserveSetsGaugesFromSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := New()
	require.NoError(t, b.Register(reg))

	b.Observe(profiler.PipelineProfile{
		ModuleProfiles: []profiler.ModuleProfile{
			{
				ModuleName: "decode",
				ProcessProfiles: []profiler.ProcessProfile{
					{ProcessName: "PROCESS", Completed: 10, Dropped: 1, Counter: 11, FPS: 30.5, Latency: 12.5},
				},
			},
		},
		Overall: profiler.ProcessProfile{Completed: 10, FPS: 30.5, Latency: 50},
	})

	metrics, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metrics)

	var sawDecodeCompleted bool
	for _, mf := range metrics {
		if mf.GetName() == "cnstream_stage_completed_total" {
			for _, m := range mf.GetMetric() {
				if m.GetGauge().GetValue() == 10 {
					sawDecodeCompleted = true
				}
			}
		}
	}
	assert.True(t, sawDecodeCompleted)
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := New()
	require.NoError(t, b.Register(reg))
	assert.Error(t, b.Register(reg))
}
