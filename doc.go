// Package procession is a library-first provisioning-workflow engine for Go.
// It pairs a suspend/resume form-collection wizard with a durable, resumable
// step pipeline that drives a provisioned entity through its lifecycle
// states.
//
// Procession is a library, not a service. Import it, configure a store,
// register workflow definitions (wizard pages plus a step plan), and drive
// them from whatever surface renders your forms.
//
// # Quick Start
//
//	eng, err := engine.New(memory.New())
//	if err != nil { ... }
//	err = eng.Register(&engine.Definition{
//	    Name:  "provision-port",
//	    Pages: pages,
//	    Plan:  plan,
//	})
//
//	sess, prompt, err := eng.Begin(ctx, "provision-port")
//	// render prompt, collect fields, then:
//	res, err := eng.Submit(ctx, sess.ID, fields)
//
// # Architecture
//
// Procession follows a composable store pattern where each subsystem
// (process, forms, event, inventory) defines its own store interface.
// A single backend implements all of them.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package procession
