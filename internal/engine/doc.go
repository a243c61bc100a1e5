// Package engine keeps the local mirror of the image store consistent.
//
// The mirror is an image cache plus a category registry. It changes only by
// applying events: confirmations of the user's own mutations, push events
// from the live channel, and the results of pulls. Applying an event is
// idempotent, so a push event that echoes a mutation this client already
// applied changes nothing.
//
// Ordering:
// Events pushed by the live channel are enqueued and drained in FIFO order
// by a single Run goroutine. Pulls requested on reconnect or by a reload
// message run inline in that goroutine, so a push event enqueued after a
// pull request is applied on top of the pull result, never underneath it.
//
// Every applied event is stamped by a logical Clock. When a Journal is
// configured the event is recorded under that sequence number so a session
// can be replayed.
package engine
