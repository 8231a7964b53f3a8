package eventbus

import (
	"encoding/json"
	"strings"

	"github.com/agenthub/hub/internal/obs"
	"github.com/agenthub/hub/internal/types"
)

// subjectForEvent maps an event to a NATS subject, scoped by event type and,
// when present, the task id — mirrors the teacher's per-decision subject
// scoping so multiple daemon instances can share a JetStream deployment
// without cross-subscribing each other's unrelated task streams.
func subjectForEvent(evt types.Event) string {
	t := strings.ToLower(strings.ReplaceAll(string(evt.Type), "_", "."))
	if evt.TaskID != "" {
		return "hub.events." + t + "." + evt.TaskID
	}
	return "hub.events." + t
}

// publishToJetStream mirrors the event onto the optional durable stream.
// Publish failures are logged and otherwise ignored — JetStream mirroring
// is fire-and-forget, never a precondition for in-process dispatch.
func (b *Bus) publishToJetStream(js JetStreamPublisher, evt types.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		obs.Warnf("eventbus: failed to marshal event for jetstream: %v", err)
		return
	}
	if err := js.Publish(subjectForEvent(evt), data); err != nil {
		obs.Warnf("eventbus: jetstream publish failed for %s: %v", evt.Type, err)
	}
}
