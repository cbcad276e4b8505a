// Package agentcard checks Agent Card documents: a lint-style structural
// validator, and JWS signature verification for signed cards.
package agentcard

import (
	"fmt"

	"github.com/hybroai/a2a-agent-inspector/internal/protocol"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

var statusMarkers = map[Status]string{
	StatusPass: "✓",
	StatusWarn: "⚠",
	StatusFail: "✗",
}

// Finding is one line of a validation report.
type Finding struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// String renders the finding with its marker, e.g. "✓ Required field 'name' is present".
func (f Finding) String() string {
	return statusMarkers[f.Status] + " " + f.Message
}

// Report is the ordered result of validating one card.
type Report struct {
	Findings []Finding `json:"findings"`
}

// Lines renders every finding as a human-readable line.
func (r Report) Lines() []string {
	lines := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		lines[i] = f.String()
	}
	return lines
}

// Count returns how many findings have status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, f := range r.Findings {
		if f.Status == s {
			n++
		}
	}
	return n
}

func (r *Report) add(s Status, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{Status: s, Message: fmt.Sprintf(format, args...)})
}

// RequiredFields are checked for presence in this order.
var RequiredFields = []string{
	protocol.CardFieldName,
	protocol.CardFieldVersion,
	protocol.CardFieldCapabilities,
	protocol.CardFieldURL,
}

// Validate runs the structural checks over card. It never fails: problems
// are reported as findings. Unknown fields and individual skill entries
// are not inspected.
func Validate(card protocol.Document) Report {
	var r Report

	for _, field := range RequiredFields {
		if present(card[field]) {
			r.add(StatusPass, "Required field '%s' is present", field)
		} else {
			r.add(StatusFail, "Missing required field: %s", field)
		}
	}

	if raw, ok := card[protocol.CardFieldCapabilities]; ok {
		if caps, isObj := raw.(map[string]any); isObj {
			r.add(StatusPass, "Capabilities structure is valid")
			if truthy(caps["streaming"]) {
				r.add(StatusPass, "Streaming capability supported")
			} else {
				r.add(StatusWarn, "Streaming capability not supported")
			}
			if truthy(caps["pushNotifications"]) {
				r.add(StatusPass, "Push notifications supported")
			} else {
				r.add(StatusWarn, "Push notifications not supported")
			}
		} else {
			r.add(StatusFail, "Capabilities must be an object")
		}
	}

	if raw, ok := card[protocol.CardFieldSkills]; ok {
		if skills, isList := raw.([]any); isList {
			if len(skills) > 0 {
				r.add(StatusPass, "Agent has %d skills defined", len(skills))
			} else {
				r.add(StatusWarn, "No skills defined")
			}
		} else {
			r.add(StatusFail, "Skills must be an array")
		}
	}

	r.add(StatusPass, "Agent card validation completed")
	return r
}

// present reports whether a required field carries a value. Objects and
// arrays count even when empty; scalars must be non-zero.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case map[string]any, []any:
		return true
	default:
		return truthy(x)
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	}
	return true
}
