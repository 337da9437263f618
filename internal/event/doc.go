/*
Package event implements the Event Bus (C1): the sole internal propagation
channel between Gemini Legion's components.

# Architecture

InProcessBus preserves the teacher's direct-call, type-safe dispatch —
handlers receive the original Go value, not a JSON round-trip — while
maintaining a watermill gochannel underneath for future middleware or
routing needs. Each subscription owns its own FIFO queue and a dedicated
goroutine, so publication never blocks on handler work and every subscriber
sees events of a matching type in publication order.

RedisBus implements the same Bus interface over Redis pub/sub for the
optional distributed transport named in spec §1 and §4.1 — swap backends by
configuration (the "eventBus.backend" key of types.Config) without touching any
caller.

# Event types

The closed set lives in pkg/types (types.EventChannelCreated, ...); this
package only adds the per-type payload structs (ChannelCreatedData,
MessagePostedData, ...) and the Bus plumbing.

# Failure policy

A handler that panics is recovered, logged with the event id, and its
subscription remains active — consistent with spec §4.1: "a handler that
throws is logged with the event id and skipped; its subscription remains
active." This implementation does not auto-pause after repeated failures;
that policy is left to a future middleware layer over PubSub().
*/
package event
