package core

import (
	"testing"
	"time"
)

// ─── Severity ───────────────────────────────────────────────────────────────

func TestParseSeverity_FalcoScale(t *testing.T) {
	cases := []struct {
		in   string
		want Severity
	}{
		{"debug", SeverityDebug},
		{"informational", SeverityInformational},
		{"info", SeverityInformational},
		{"notice", SeverityNotice},
		{"warning", SeverityWarning},
		{"error", SeverityError},
		{"critical", SeverityCritical},
		{"alert", SeverityAlert},
		{"emergency", SeverityEmergency},
		{"CRITICAL", SeverityCritical},
		{"  Warning  ", SeverityWarning},
	}
	for _, tc := range cases {
		if got := ParseSeverity(tc.in); got != tc.want {
			t.Errorf("ParseSeverity(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseSeverity_UnknownDefaultsToWarning(t *testing.T) {
	for _, in := range []string{"", "bogus", "CRIT!"} {
		if got := ParseSeverity(in); got != SeverityWarning {
			t.Errorf("ParseSeverity(%q) = %v, want warning", in, got)
		}
	}
}

func TestSeverity_Ordering(t *testing.T) {
	if !(SeverityDebug < SeverityInformational &&
		SeverityInformational < SeverityNotice &&
		SeverityNotice < SeverityWarning &&
		SeverityWarning < SeverityError &&
		SeverityError < SeverityCritical &&
		SeverityCritical < SeverityAlert &&
		SeverityAlert < SeverityEmergency) {
		t.Fatal("severity levels are not strictly ordered on the Falco scale")
	}
}

// ─── Falco payload normalization ────────────────────────────────────────────

func TestUnmarshalFalcoAlert_FullPayload(t *testing.T) {
	payload := []byte(`{
		"uuid": "e1d5a9f0-0000-0000-0000-000000000001",
		"rule": "Ghost EDR - Reverse Shell Detected",
		"priority": "Critical",
		"output": "Reverse shell spawned",
		"time": "2025-06-01T12:00:00.123456789Z",
		"hostname": "node-1",
		"source": "syscall",
		"tags": ["mitre_execution", "T1059", "container"],
		"output_fields": {
			"container.id": "abc123def456abc123def456",
			"container.name": "web-frontend",
			"container.image.repository": "nginx",
			"proc.name": "bash",
			"proc.cmdline": "bash -i",
			"proc.pid": 4242,
			"proc.ppid": 4100,
			"proc.pname": "nc",
			"user.name": "www-data",
			"user.uid": 33,
			"fd.name": "10.0.0.5:44321->203.0.113.9:4444",
			"fd.type": "ipv4"
		}
	}`)

	alert, err := UnmarshalFalcoAlert(payload)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if alert.ID != "e1d5a9f0-0000-0000-0000-000000000001" {
		t.Errorf("ID not taken from uuid field: %q", alert.ID)
	}
	if alert.Rule != "Ghost EDR - Reverse Shell Detected" {
		t.Errorf("wrong rule: %q", alert.Rule)
	}
	if alert.Severity != SeverityCritical {
		t.Errorf("wrong severity: %v", alert.Severity)
	}
	if alert.ContainerID != "abc123def456abc123def456" {
		t.Errorf("wrong container ID: %q", alert.ContainerID)
	}
	if alert.ContainerName != "web-frontend" {
		t.Errorf("wrong container name: %q", alert.ContainerName)
	}
	if alert.ContainerImage != "nginx" {
		t.Errorf("wrong image: %q", alert.ContainerImage)
	}
	if alert.ProcName != "bash" || alert.ProcCmdline != "bash -i" {
		t.Errorf("wrong process context: %q %q", alert.ProcName, alert.ProcCmdline)
	}
	if alert.ProcPID != 4242 || alert.ProcPPID != 4100 {
		t.Errorf("wrong pids: %d %d", alert.ProcPID, alert.ProcPPID)
	}
	if alert.ParentName != "nc" {
		t.Errorf("wrong parent: %q", alert.ParentName)
	}
	if alert.UserName != "www-data" || alert.UserUID != 33 {
		t.Errorf("wrong user context: %q %d", alert.UserName, alert.UserUID)
	}
	if alert.FDName == "" || alert.FDType != "ipv4" {
		t.Errorf("wrong network context: %q %q", alert.FDName, alert.FDType)
	}

	want := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	if !alert.Time.Equal(want) {
		t.Errorf("wrong time: %v", alert.Time)
	}
}

func TestParseFalcoAlert_DefaultsForMissingFields(t *testing.T) {
	alert := ParseFalcoAlert(map[string]interface{}{})

	if alert.ID == "" {
		t.Error("expected a generated id")
	}
	if alert.Rule != "Unknown" {
		t.Errorf("expected rule to default to Unknown, got %q", alert.Rule)
	}
	if alert.Severity != SeverityWarning {
		t.Errorf("expected severity to default to warning, got %v", alert.Severity)
	}
	if alert.Source != "syscall" {
		t.Errorf("expected source to default to syscall, got %q", alert.Source)
	}
	if alert.Time.IsZero() {
		t.Error("expected time to default to now")
	}
	if alert.ContainerID != "" || alert.ContainerName != "" {
		t.Error("missing container context should stay empty")
	}
}

func TestParseFalcoAlert_AlternateFieldNames(t *testing.T) {
	alert := ParseFalcoAlert(map[string]interface{}{
		"rule":     "Some Rule",
		"priority": "error",
		"output_fields": map[string]interface{}{
			"container_id":   "fedcba987654",
			"container_name": "alt-name",
			"image":          "redis:7",
			"process":        "redis-server",
		},
	})

	if alert.ContainerID != "fedcba987654" {
		t.Errorf("container_id fallback not honored: %q", alert.ContainerID)
	}
	if alert.ContainerName != "alt-name" {
		t.Errorf("container_name fallback not honored: %q", alert.ContainerName)
	}
	if alert.ContainerImage != "redis:7" {
		t.Errorf("image fallback not honored: %q", alert.ContainerImage)
	}
	if alert.ProcName != "redis-server" {
		t.Errorf("process fallback not honored: %q", alert.ProcName)
	}
}

func TestParseFalcoAlert_BadTimeFallsBackToNow(t *testing.T) {
	before := time.Now().UTC()
	alert := ParseFalcoAlert(map[string]interface{}{"time": "not a timestamp"})
	after := time.Now().UTC()

	if alert.Time.Before(before) || alert.Time.After(after) {
		t.Errorf("unparseable time should fall back to now, got %v", alert.Time)
	}
}

func TestUnmarshalFalcoAlert_InvalidJSON(t *testing.T) {
	if _, err := UnmarshalFalcoAlert([]byte("{not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// ─── Derived accessors ──────────────────────────────────────────────────────

func TestShortContainerID(t *testing.T) {
	a := &Alert{ContainerID: "abc123def456abc123def456"}
	if got := a.ShortContainerID(); got != "abc123def456" {
		t.Errorf("ShortContainerID() = %q", got)
	}

	a = &Alert{ContainerID: "short"}
	if got := a.ShortContainerID(); got != "short" {
		t.Errorf("short IDs pass through, got %q", got)
	}

	a = &Alert{}
	if got := a.ShortContainerID(); got != "" {
		t.Errorf("empty ID stays empty, got %q", got)
	}
}

func TestMitreTagAccessors(t *testing.T) {
	a := &Alert{Tags: []string{"mitre_execution", "mitre_persistence", "T1059", "T1610", "container"}}

	tactics := a.MitreTactics()
	if len(tactics) != 2 {
		t.Errorf("expected 2 tactics, got %v", tactics)
	}
	techniques := a.TechniqueIDs()
	if len(techniques) != 2 {
		t.Errorf("expected 2 technique IDs, got %v", techniques)
	}
}
