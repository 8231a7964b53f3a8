// Package cognitivefriction provides a minimal stand-in for the
// cognitive-friction heuristic: an external collaborator whose policy is
// intentionally opaque to the daemon. The daemon only depends on
// acceptance.FrictionGate's narrow interface; this package supplies the
// simplest implementation that satisfies it so the feature flag has
// something real to instantiate.
package cognitivefriction

import (
	"strings"

	"github.com/agenthub/hub/internal/acceptance"
	"github.com/agenthub/hub/internal/types"
)

// ReviewMarker is the literal token a handoff payload's content can carry
// to force human review, e.g. from a delegator that already suspects the
// change needs extra scrutiny.
const ReviewMarker = "NEEDS_HUMAN_REVIEW"

// Heuristic blocks auto-acceptance when a handoff has no run commands at
// all (nothing to verify against) or explicitly asks for review.
type Heuristic struct{}

func New() *Heuristic { return &Heuristic{} }

func (Heuristic) Evaluate(h types.Handoff) acceptance.FrictionVerdict {
	if strings.Contains(h.Goal, ReviewMarker) {
		return acceptance.FrictionVerdict{
			Blocked: true,
			Reason:  "payload requests human review",
			Level:   "high",
		}
	}
	if len(h.RunCommands) == 0 {
		return acceptance.FrictionVerdict{
			Blocked: true,
			Reason:  "no run commands to verify against",
			Level:   "medium",
		}
	}
	return acceptance.FrictionVerdict{Blocked: false}
}
