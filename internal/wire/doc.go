// Package wire frames grid requests and replies as little-endian binary
// messages.
//
// Every frame starts with a one-byte kind. A request is followed by 80 bytes:
//
//	logTMin, logTMax, logRhoMin, logRhoMax  f64
//	cols, rows                              u32
//	X, Y, Z, eta                            f64
//	seq                                     u64
//
// A response carries cols u32, rows u32, elapsed f64 (ms) and seq u64,
// followed by cols*rows raster bytes. A failure carries seq u64 and a
// length-prefixed (u16) message.
package wire
