// Package event provides the callback-event channel that lets a pipeline
// suspend on an external system: an Await step subscribes to a named
// event, and the external system publishes it when its side completes.
package event

import (
	"time"

	"github.com/xraph/procession/id"
)

// Event represents a named event published by an external system.
// Pipelines wait for events via Await steps; the payload, if any, is a
// JSON object merged into the process state on receipt.
type Event struct {
	ID        id.EventID `json:"id"`
	Name      string     `json:"name"`
	Payload   []byte     `json:"payload,omitempty"`
	Acked     bool       `json:"acked"`
	CreatedAt time.Time  `json:"created_at"`
}
