// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bureau-foundation/foreman/lib/llm"
)

// ErrUnparseableDecision reports a reasoning answer that did not
// contain a valid decision object. The caller treats it as "no
// decision" and escalates; it never guesses at intent.
var ErrUnparseableDecision = errors.New("unparseable coordination decision")

// ParseDecision extracts the decision from a reasoning call's raw
// answer. The answer may wrap the JSON object in prose or markdown
// fences; the first balanced top-level object is taken. The action
// must be one of the four known values, and a respond decision must
// carry either response text or useKeys with a non-empty keys array.
// Missing reasoning is replaced with a placeholder rather than
// rejected.
func ParseDecision(raw string) (Decision, error) {
	object, found := llm.FirstJSONObject(raw)
	if !found {
		return Decision{}, fmt.Errorf("%w: no JSON object in answer", ErrUnparseableDecision)
	}

	var decision Decision
	if err := json.Unmarshal(object, &decision); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnparseableDecision, err)
	}

	switch decision.Action {
	case ActionRespond:
		if decision.UseKeys && len(decision.Keys) == 0 {
			return Decision{}, fmt.Errorf("%w: respond with useKeys carries no keys", ErrUnparseableDecision)
		}
		if !decision.UseKeys && decision.Response == "" {
			return Decision{}, fmt.Errorf("%w: respond carries neither response text nor keys", ErrUnparseableDecision)
		}
	case ActionEscalate, ActionIgnore, ActionComplete:
	case "":
		return Decision{}, fmt.Errorf("%w: missing action", ErrUnparseableDecision)
	default:
		return Decision{}, fmt.Errorf("%w: unknown action %q", ErrUnparseableDecision, decision.Action)
	}

	if decision.Reasoning == "" {
		decision.Reasoning = "(none given)"
	}
	return decision, nil
}
