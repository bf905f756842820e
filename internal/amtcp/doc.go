// Package amtcp implements asymmetric multiplexing over a single byte stream.
//
// One peer (the server) owns a Muxer. It writes to either of two logical
// channels, MAIN and EVENT, and every write goes out as a frame:
//
//	[int32 version][int32 tag][int32 length][length bytes of payload]
//
// All integers are big-endian. The Muxer's reads are raw: the other peer
// writes unframed bytes.
//
// The other peer (the client) owns a Demuxer. A background loop reads frames
// and routes each payload into a bounded channel per tag, so MAIN replies and
// EVENT pushes can be consumed independently. Writes from the client are raw.
//
// Before any framing, the connecting side sends one mode byte selecting the
// chat protocol or the file transfer protocol; see WriteMode and ReadMode.
package amtcp
