// Package engine ties a computation channel and a dispatcher into a session
// that an interactive caller can drive.
//
// A caller dispatches parameter changes as fast as they happen and reads
// results from Accepted. The mailbox behind Accepted holds one response: a
// newer result replaces an unread older one, which is released.
package engine
