// Package chatserver implements the amchat server.
//
// # Architecture
//
//   - Server: accepts TCP (optionally TLS) connections and WebSocket streams
//     handed over by the HTTP gateway, and serves each one on its own goroutine
//   - Hub: the connection registry mapping user names to live sessions
//   - Session: one registered chat connection; replies and events are framed
//     through an amtcp.Muxer, commands are read raw
//   - ChatCommandHandler: the application; Application is the default one,
//     backed by a rooms.Registry
//
// # Connection lifecycle
//
// The first byte a client sends selects the mode: 0 for chat, 1 for file
// transfer. A chat connection must register with connect:<name> before any
// other command. Every command then receives exactly one reply on the MAIN
// channel:
//
//	ack
//	ack:<message>
//	nack:<message>
//
// Events are pushed on the EVENT channel and never answered:
//
//	event_disconnect
//	event_message_room:<room>:<from>:<text>
//	event_message_personal:<from>:<text>
//	event_room_deleted:<room>
//
// When a command causes events (delete_room, send_message_room,
// send_message_personal), all pushes complete before the reply is written.
// A room message is relayed to every member except its sender.
//
// Closing the transport at any point removes the user from the hub and from
// every room, exactly as a graceful disconnect would.
//
// # Usage
//
//	srv, err := chatserver.NewServer(&cfg.Server, log)
//	if err != nil {
//	    return err
//	}
//	go srv.ListenAndServe(ctx)
//	<-ctx.Done()
//	srv.Stop()
package chatserver
