// Package inbox keeps conversation summary lists in sync with the backend.
//
// The synchronizer has two producers: coarse list-changed signals trigger a
// full re-fetch, and push message events patch the matching entry in place
// (last message plus unread badge) for immediacy. The currently open
// conversation is exempt from unread increments. Substring filtering is a
// projection over the synced list and never mutates it.
package inbox
