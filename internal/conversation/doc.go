// Package conversation provides the per-thread session controller.
//
// # Overview
//
// A Session sits behind one mounted conversation view. On activation it
// joins the conversation's push scope, fetches the authoritative message
// history over REST, and then reconciles two independent producers into
// one ordered sequence:
//
//   - push-delivered messages, appended immediately for latency
//   - a fixed-interval poller, the safety net for missed push delivery
//
// Neither path orders ahead of the other; an id-based seen-set guarantees
// each message is applied exactly once no matter how the two interleave.
//
// # Staleness gates
//
// An authoritative fetch replaces the local sequence only when its length
// differs from the last applied fetch. This is deliberately cheap and
// cannot detect same-count edits; it mirrors the behavior the views were
// built against. Overlapping fetches are ordered by sequence number and a
// completion that lost the race to a newer one is discarded.
//
// # Draft sessions
//
// A session activated with no conversation id is a draft. The first Send
// creates the conversation and transitions the session into joined mode
// exactly once; teardown after that always leaves the assigned id.
package conversation
