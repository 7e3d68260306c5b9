// Package relayclient connects Go programs to a relay hub as peers.
//
// A client speaks either raw TCP with 4-byte big-endian length prefixed
// frames (Dial) or WebSocket binary messages through the hub gateway
// (DialWebSocket). Both reach the same set of peers.
//
//	c, err := relayclient.Dial(ctx, "localhost:4444")
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	if err := c.Send([]byte("hello")); err != nil {
//		return err
//	}
//
//	msgs, reason := c.Messages(ctx)
//	for msg := range msgs {
//		fmt.Printf("%s\n", msg)
//	}
//	return reason()
//
// A peer never receives its own messages. The hub may drop messages for a
// peer that reads too slowly.
package relayclient
