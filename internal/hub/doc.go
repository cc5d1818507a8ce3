// Package hub owns the single push-channel connection to the conversations
// hub and fans its inbound events out to any number of subscribers.
//
// # Connection lifecycle
//
// One Conn exists per process. Connect is idempotent and memoized: calls
// while a handshake is in flight share its result, and calls after success
// return immediately. Sessions never construct their own connection; they
// share the one Conn and hold independent subscriptions on it.
//
//	Disconnected -> Connecting -> Connected
//	Connected -> Reconnecting -> Connected     (transport drop, retry wins)
//	Connected -> Reconnecting -> Disconnected  (retry window exhausted)
//
// Reconnect retries use a random delay up to ReconnectMaxDelay and give up
// ReconnectWindow after the drop. The terminal Disconnected state is
// observable through the event stream; re-connecting after that is the
// caller's decision.
//
// # Delivery contract
//
// Outbound invocations are at-most-once and best-effort: when the
// connection is down they are silent no-ops, and failures are logged, not
// returned. Inbound delivery is not guaranteed either; consumers reconcile
// against the REST API (see conversation) rather than trusting the stream.
//
// # Fan-out
//
// Every subscriber receives every event and filters by Kind and
// conversation id on its own side. Publishing never blocks: a subscriber
// that stops draining loses events instead of stalling the rest.
package hub
