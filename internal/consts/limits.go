package consts

import "time"

// Wire protocol
const (
	// ProtocolVersion is written into every frame header
	ProtocolVersion = 1
	// FrameHeaderSize is the size of a frame header: version, tag and length, 4 bytes each
	FrameHeaderSize = 12
	// ChannelCapacity is the capacity of each logical channel buffer and the
	// largest payload a single frame may carry
	ChannelCapacity = 8192
	// MaxStringLength bounds every encoded string
	MaxStringLength = ChannelCapacity
	// MaxCommandFields is the split limit applied to command and event strings
	MaxCommandFields = 10
)

// Network defaults
const (
	// DefaultPort is the chat server's default TCP port
	DefaultPort = 12589
	// DefaultHost is the address the client connects to by default
	DefaultHost = "127.0.0.1"
	// DefaultMaxConnections caps concurrently served connections
	DefaultMaxConnections = 256
)

// Buffer sizes for various operations
const (
	// BufferSize64KB is 64 kilobytes
	BufferSize64KB = 64 * 1024
	// BufferSize1MB is 1 megabyte, the file transfer chunk size
	BufferSize1MB = 1024 * 1024
)

// Timeouts for various operations
const (
	// Timeout1Second is a 1 second timeout
	Timeout1Second = 1 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
)
