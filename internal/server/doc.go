// Package server exposes a computation channel over HTTP.
//
// Requests from independent clients share one channel. The server numbers
// them itself and hands each reply to the handler waiting for that number;
// replies nobody waits for any more are released. The client's own sequence
// number is echoed back unchanged.
package server
