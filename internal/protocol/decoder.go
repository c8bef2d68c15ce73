package protocol

// StreamDecoder reassembles complete frames from an ordered byte stream.
// One decoder exclusively owns the pending buffer for one TCP connection;
// it is not safe for concurrent use.
//
// An incomplete frame is never an error: Feed simply returns the frames it
// could complete and carries the rest (header bytes included, re-parsed on
// the next call) until more data arrives. A truncated trailing frame at
// end-of-stream is silently dropped with the connection.
type StreamDecoder struct {
	remain []byte
}

// Feed consumes one socket read and returns zero or more complete frames.
// Payload slices are copies; callers may retain them.
func (d *StreamDecoder) Feed(p []byte) []Frame {
	buf := make([]byte, 0, len(d.remain)+len(p))
	buf = append(buf, d.remain...)
	buf = append(buf, p...)

	var frames []Frame
	offset := 0
	for offset+HeaderLen <= len(buf) {
		head := ParseHeader(buf[offset : offset+HeaderLen])
		if offset+HeaderLen+int(head.Length) > len(buf) {
			break
		}

		payload := make([]byte, head.Length)
		copy(payload, buf[offset+HeaderLen:offset+HeaderLen+int(head.Length)])
		frames = append(frames, Frame{Header: head, Payload: payload})
		offset += HeaderLen + int(head.Length)
	}

	d.remain = buf[offset:]
	return frames
}

// Pending returns the number of carried-over bytes awaiting completion.
func (d *StreamDecoder) Pending() int {
	return len(d.remain)
}
