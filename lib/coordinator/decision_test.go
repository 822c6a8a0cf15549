// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/bureau-foundation/foreman/lib/coordinator"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want coordinator.Decision
	}{
		{
			name: "plain respond",
			raw:  `{"action":"respond","response":"y","reasoning":"the prompt asks to proceed with the assigned change"}`,
			want: coordinator.Decision{
				Action:    coordinator.ActionRespond,
				Response:  "y",
				Reasoning: "the prompt asks to proceed with the assigned change",
			},
		},
		{
			name: "respond with keys",
			raw:  `{"action":"respond","useKeys":true,"keys":["Down","Enter"],"reasoning":"menu selection"}`,
			want: coordinator.Decision{
				Action:    coordinator.ActionRespond,
				UseKeys:   true,
				Keys:      []string{"Down", "Enter"},
				Reasoning: "menu selection",
			},
		},
		{
			name: "complete",
			raw:  `{"action":"complete","reasoning":"done"}`,
			want: coordinator.Decision{
				Action:    coordinator.ActionComplete,
				Reasoning: "done",
			},
		},
		{
			name: "escalate",
			raw:  `{"action":"escalate","reasoning":"prompt asks to force-push to main"}`,
			want: coordinator.Decision{
				Action:    coordinator.ActionEscalate,
				Reasoning: "prompt asks to force-push to main",
			},
		},
		{
			name: "ignore",
			raw:  `{"action":"ignore","reasoning":"tests are still running"}`,
			want: coordinator.Decision{
				Action:    coordinator.ActionIgnore,
				Reasoning: "tests are still running",
			},
		},
		{
			name: "object wrapped in prose and fences",
			raw: "Here is my decision:\n```json\n" +
				`{"action":"respond","response":"2","reasoning":"second option matches the task"}` +
				"\n```\nLet me know if you need anything else.",
			want: coordinator.Decision{
				Action:    coordinator.ActionRespond,
				Response:  "2",
				Reasoning: "second option matches the task",
			},
		},
		{
			name: "missing reasoning gets a placeholder",
			raw:  `{"action":"ignore"}`,
			want: coordinator.Decision{
				Action:    coordinator.ActionIgnore,
				Reasoning: "(none given)",
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := coordinator.ParseDecision(test.raw)
			if err != nil {
				t.Fatalf("ParseDecision: %v", err)
			}
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("decision = %+v, want %+v", got, test.want)
			}
		})
	}
}

func TestParseDecisionRejects(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		detail string
	}{
		{
			name:   "respond without response or keys",
			raw:    `{"action":"respond","reasoning":"x"}`,
			detail: "neither response text nor keys",
		},
		{
			name:   "respond with useKeys but no keys",
			raw:    `{"action":"respond","useKeys":true,"reasoning":"menu"}`,
			detail: "no keys",
		},
		{
			name:   "unknown action",
			raw:    `{"action":"retry","reasoning":"maybe it works this time"}`,
			detail: `unknown action "retry"`,
		},
		{
			name:   "missing action",
			raw:    `{"response":"y","reasoning":"forgot the action"}`,
			detail: "missing action",
		},
		{
			name:   "no JSON object at all",
			raw:    "I would just keep waiting and see what happens.",
			detail: "no JSON object",
		},
		{
			name:   "balanced braces but invalid JSON",
			raw:    `{"action": respond}`,
			detail: "",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := coordinator.ParseDecision(test.raw)
			if err == nil {
				t.Fatalf("ParseDecision(%q) succeeded, want error", test.raw)
			}
			if !errors.Is(err, coordinator.ErrUnparseableDecision) {
				t.Errorf("error = %v, want ErrUnparseableDecision", err)
			}
			if test.detail != "" && !strings.Contains(err.Error(), test.detail) {
				t.Errorf("error %q does not mention %q", err, test.detail)
			}
		})
	}
}

func TestParseSupervision(t *testing.T) {
	for _, valid := range []string{"autonomous", "confirm", "notify"} {
		level, err := coordinator.ParseSupervision(valid)
		if err != nil {
			t.Errorf("ParseSupervision(%q): %v", valid, err)
		}
		if string(level) != valid {
			t.Errorf("ParseSupervision(%q) = %q", valid, level)
		}
	}

	for _, invalid := range []string{"", "full-auto", "Confirm", "manual"} {
		_, err := coordinator.ParseSupervision(invalid)
		if !errors.Is(err, coordinator.ErrInvalidSupervision) {
			t.Errorf("ParseSupervision(%q) error = %v, want ErrInvalidSupervision", invalid, err)
		}
	}
}
