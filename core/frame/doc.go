// Package frame implements the relay wire format: each message is a 4-byte
// big-endian unsigned length followed by exactly that many payload bytes.
// There is no other delimiter and no escaping.
//
//	r := frame.NewReader(conn, frame.WithMaxFrameSize(1<<20))
//	for {
//		msg, err := r.ReadFrame()
//		if errors.Is(err, io.EOF) {
//			return nil // peer closed cleanly
//		}
//		if err != nil {
//			return err // frame.IsFramingError(err) for protocol violations
//		}
//		handle(msg)
//	}
//
// The length limit protects the hub from a hostile header asking for a huge
// allocation. It defaults to DefaultMaxFrameSize and applies to both directions.
package frame
