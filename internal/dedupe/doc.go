// Package dedupe provides a time-bounded set of already-applied message IDs
// so the push and poll delivery paths cannot double-apply the same message.
package dedupe
