// Package server provides the HTTP server for the Legion API.
//
// It exposes the v2 REST surface of spec §6 over the four core domain
// components (Channel Service, Persona & Emotional Engine, Memory Engine,
// Agent Runtime) plus the Orchestrator that wires them together, and a
// single SSE endpoint mirroring the event bus for real-time push.
//
// # API Endpoints
//
//   - /channels, /channels/{id}, /channels/{id}/members,
//     /channels/{id}/messages: channel lifecycle, membership, and message
//     history.
//   - /agents, /agents/{id}, /agents/{id}/persona,
//     /agents/{id}/emotional-state: agent spawn/despawn, persona update,
//     and emotional-state admin override.
//   - /events: a single SSE stream of every bus event, enveloped as
//     {event_type, payload, timestamp, event_id, message_id}.
//
// # Usage Example
//
//	cfg := server.DefaultConfig()
//	srv := server.New(cfg, bus, channels, personas, memory, invoker, orch)
//	orch.Start(ctx)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//
// # Architecture Notes
//
// Handlers are thin: they decode the request, call straight through to the
// owning component (Channel Service, Persona Engine, ...), and translate a
// returned legionerr.Kind into an HTTP status. No business logic lives in
// this package.
package server
