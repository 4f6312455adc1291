package core

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity represents an alert priority level. The eight levels and their
// ordering follow the Falco priority scale: higher values are more severe.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInformational
	SeverityNotice
	SeverityWarning
	SeverityError
	SeverityCritical
	SeverityAlert
	SeverityEmergency
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInformational:
		return "informational"
	case SeverityNotice:
		return "notice"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	case SeverityAlert:
		return "alert"
	case SeverityEmergency:
		return "emergency"
	default:
		return "warning"
	}
}

// ParseSeverity maps a priority string to a Severity. Unrecognized or empty
// strings degrade to SeverityWarning so that a malformed alert never fails
// a severity comparison.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return SeverityDebug
	case "informational", "info":
		return SeverityInformational
	case "notice":
		return SeverityNotice
	case "warning":
		return SeverityWarning
	case "error":
		return SeverityError
	case "critical":
		return SeverityCritical
	case "alert":
		return SeverityAlert
	case "emergency":
		return SeverityEmergency
	default:
		return SeverityWarning
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseSeverity(str)
	return nil
}

// Alert is the normalized, immutable representation of one security event.
// Rule and Severity are always present (defaulted when the source omits
// them); every other field is optional and may be the zero value.
type Alert struct {
	ID       string    `json:"id"`
	Rule     string    `json:"rule"`
	Severity Severity  `json:"severity"`
	Output   string    `json:"output,omitempty"`
	Time     time.Time `json:"time"`

	// Container context
	ContainerID    string `json:"container_id,omitempty"`
	ContainerName  string `json:"container_name,omitempty"`
	ContainerImage string `json:"container_image,omitempty"`

	// Process context
	ProcName    string `json:"proc_name,omitempty"`
	ProcCmdline string `json:"proc_cmdline,omitempty"`
	ProcPID     int    `json:"proc_pid,omitempty"`
	ProcPPID    int    `json:"proc_ppid,omitempty"`
	ParentName  string `json:"parent_name,omitempty"`

	// User context
	UserName string `json:"user_name,omitempty"`
	UserUID  int    `json:"user_uid,omitempty"`

	// Network context
	FDName string `json:"fd_name,omitempty"`
	FDType string `json:"fd_type,omitempty"`

	// Classification tags (may carry MITRE tactics and technique IDs)
	Tags []string `json:"tags,omitempty"`

	// Raw output fields not promoted to first-class attributes
	OutputFields map[string]interface{} `json:"output_fields,omitempty"`

	Source   string `json:"source,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// ParseFalcoAlert normalizes a decoded Falco JSON payload into an Alert.
// Missing fields fall back to safe defaults: rule "Unknown", severity
// warning, a generated event ID, and the current time.
func ParseFalcoAlert(data map[string]interface{}) *Alert {
	fields, _ := data["output_fields"].(map[string]interface{})
	if fields == nil {
		fields = map[string]interface{}{}
	}

	alert := &Alert{
		ID:       stringField(data, "uuid"),
		Rule:     stringField(data, "rule"),
		Severity: ParseSeverity(stringField(data, "priority")),
		Output:   stringField(data, "output"),
		Time:     parseTime(stringField(data, "time")),

		ContainerID:    firstField(fields, "container.id", "container_id"),
		ContainerName:  firstField(fields, "container.name", "container_name"),
		ContainerImage: firstField(fields, "container.image.repository", "container.image", "image"),

		ProcName:    firstField(fields, "proc.name", "process"),
		ProcCmdline: firstField(fields, "proc.cmdline", "cmdline"),
		ProcPID:     intField(fields, "proc.pid"),
		ProcPPID:    intField(fields, "proc.ppid"),
		ParentName:  firstField(fields, "proc.pname", "parent"),

		UserName: firstField(fields, "user.name", "user"),
		UserUID:  intField(fields, "user.uid"),

		FDName: firstField(fields, "fd.name", "connection"),
		FDType: firstField(fields, "fd.type"),

		Tags:         stringSlice(data["tags"]),
		OutputFields: fields,
		Source:       stringField(data, "source"),
		Hostname:     stringField(data, "hostname"),
	}

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Rule == "" {
		alert.Rule = "Unknown"
	}
	if alert.Source == "" {
		alert.Source = "syscall"
	}
	return alert
}

// UnmarshalFalcoAlert decodes raw JSON bytes and normalizes them.
func UnmarshalFalcoAlert(data []byte) (*Alert, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return ParseFalcoAlert(raw), nil
}

// Marshal serializes the alert to JSON.
func (a *Alert) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// ShortContainerID returns the first 12 characters of the container ID for
// log output, or an empty string if the alert has no container context.
func (a *Alert) ShortContainerID() string {
	if len(a.ContainerID) > 12 {
		return a.ContainerID[:12]
	}
	return a.ContainerID
}

// MitreTactics returns the MITRE ATT&CK tactic tags carried by the alert.
func (a *Alert) MitreTactics() []string {
	var out []string
	for _, t := range a.Tags {
		if strings.HasPrefix(t, "mitre_") {
			out = append(out, t)
		}
	}
	return out
}

// TechniqueIDs returns the MITRE ATT&CK technique ID tags (T-prefixed).
func (a *Alert) TechniqueIDs() []string {
	var out []string
	for _, t := range a.Tags {
		if strings.HasPrefix(t, "T") {
			out = append(out, t)
		}
	}
	return out
}

func parseTime(s string) time.Time {
	if s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// firstField returns the first non-empty value among the given keys,
// coerced to a string.
func firstField(fields map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := fields[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func intField(fields map[string]interface{}, key string) int {
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
