// Package chatclient implements the client side of the chat protocol.
//
// A Client owns the demultiplexing end of the connection: a background loop
// splits the server's frames into the MAIN channel, which carries one reply
// per command, and the EVENT channel, which carries pushed events. Commands
// are written raw and serialized so that each reply pairs with its command.
//
// Usage:
//
//	cfg, err := chatclient.NewConfig(conf.Client)
//	if err != nil {
//		return err
//	}
//	client := chatclient.New(cfg, sink, log)
//	if err := client.Connect(ctx, "alice"); err != nil {
//		return err
//	}
//	defer client.Close()
//
//	if err := client.SubscribeRoom("lobby"); err != nil {
//		var nack *chatclient.CommandError
//		if errors.As(err, &nack) {
//			fmt.Println(nack.Message)
//		}
//	}
package chatclient
