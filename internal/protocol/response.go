package protocol

import (
	"fmt"
	"strings"
)

const (
	replyAck  = "ack"
	replyNack = "nack"
)

// Response is the outcome of one command. Message is empty on unqualified
// success.
type Response struct {
	Success bool
	Message string
}

// Ack returns a successful response.
func Ack(message string) Response {
	return Response{Success: true, Message: message}
}

// Nack returns a failed response.
func Nack(message string) Response {
	return Response{Success: false, Message: message}
}

// Nackf returns a failed response with a formatted message.
func Nackf(format string, args ...interface{}) Response {
	return Nack(fmt.Sprintf(format, args...))
}

// String renders the wire form of the reply.
func (r Response) String() string {
	return EncodeReply(r)
}

// EncodeReply renders r as "ack", "ack:<message>" or "nack:<message>".
func EncodeReply(r Response) string {
	verb := replyNack
	if r.Success {
		verb = replyAck
	}
	if r.Message == "" {
		return verb
	}
	return verb + Delimiter + r.Message
}

// ParseReply interprets a server reply string.
func ParseReply(reply string) Response {
	fields := SplitN(reply, 2)
	message := ""
	if len(fields) > 1 {
		message = fields[1]
	}

	switch strings.ToLower(fields[0]) {
	case replyAck:
		return Ack(message)
	case replyNack:
		if strings.TrimSpace(message) == "" {
			message = "Server sent no explanation."
		}
		return Nack(message)
	default:
		return Nackf("Server sent unexpected response '%s'.", reply)
	}
}
