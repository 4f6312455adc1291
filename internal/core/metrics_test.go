package core

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestMetrics_SnapshotReflectsCounters(t *testing.T) {
	m := NewMetrics()

	m.AlertReceived()
	m.AlertReceived()
	m.AlertMatched("critical-threats")
	m.ActionExecuted(ActionKill)
	m.ActionExecuted(ActionKill)
	m.ActionExecuted(ActionLogOnly)
	m.ActionFailed()
	m.SkippedCooldown()
	m.SkippedExcluded()

	snap := m.Snapshot()
	if snap.AlertsReceived != 2 {
		t.Errorf("alerts_received = %d, want 2", snap.AlertsReceived)
	}
	if snap.AlertsMatched != 1 {
		t.Errorf("alerts_matched = %d, want 1", snap.AlertsMatched)
	}
	if snap.ActionsExecuted["kill"] != 2 || snap.ActionsExecuted["log_only"] != 1 {
		t.Errorf("actions_executed = %v", snap.ActionsExecuted)
	}
	if snap.ActionsFailed != 1 || snap.ActionsSkippedCooldown != 1 || snap.ActionsSkippedExcluded != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}
}

func TestMetrics_SnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	m.ActionExecuted(ActionKill)

	snap := m.Snapshot()
	snap.ActionsExecuted["kill"] = 999

	if m.Snapshot().ActionsExecuted["kill"] != 1 {
		t.Error("mutating a snapshot must not affect live counters")
	}
}

func TestMetrics_JSONFieldNames(t *testing.T) {
	m := NewMetrics()
	m.AlertReceived()

	data, err := json.Marshal(m.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{
		"alerts_received", "alerts_matched", "actions_executed",
		"actions_skipped_cooldown", "actions_skipped_excluded", "actions_failed",
	} {
		if _, ok := raw[key]; !ok {
			t.Errorf("snapshot JSON missing %q", key)
		}
	}
}

func TestMetrics_ConcurrentUpdates(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.AlertReceived()
				m.ActionExecuted(ActionLogOnly)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.AlertsReceived != 1000 {
		t.Errorf("alerts_received = %d, want 1000", snap.AlertsReceived)
	}
	if snap.ActionsExecuted["log_only"] != 1000 {
		t.Errorf("actions_executed[log_only] = %d, want 1000", snap.ActionsExecuted["log_only"])
	}
}
