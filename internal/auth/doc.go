// Package auth resolves the stored session credential for the supportchat
// client. The token is treated as opaque except for a local, unverified
// expiry peek that keeps anonymous and stale sessions off the push channel.
package auth
