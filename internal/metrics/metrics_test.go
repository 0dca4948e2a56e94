package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistryRegistersTasksAssignedCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.TasksAssigned.WithLabelValues("proj-1").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	var found bool
	for _, mf := range families {
		if mf.GetName() != "marcus_scheduler_tasks_assigned_total" {
			continue
		}
		found = true
		if len(mf.Metric) != 1 || mf.Metric[0].GetCounter().GetValue() != 1 {
			t.Fatalf("expected a single sample with value 1, got %+v", mf.Metric)
		}
	}
	if !found {
		t.Fatalf("expected marcus_scheduler_tasks_assigned_total to be registered")
	}
}

func TestNewMeterProviderBridgesOntoSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	provider, err := NewMeterProvider(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider == nil {
		t.Fatalf("expected a non-nil provider")
	}
}
