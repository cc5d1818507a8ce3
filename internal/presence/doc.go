// Package presence handles the ephemeral signals of the realtime channel:
// typing indicators that expire on their own and the set of online users.
// Nothing here is persisted or reconciled against the REST API.
package presence
