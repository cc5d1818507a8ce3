// Package api wraps the conversations REST API consumed by the client.
//
// The REST surface is the authoritative source of conversation state; the
// realtime hub only accelerates its delivery. See hub and conversation for
// how the two paths are reconciled.
package api
