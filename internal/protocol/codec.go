package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// PutHeader encodes a frame header into a 6-byte buffer.
func PutHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Length)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(h.Format))
}

// ParseHeader decodes a frame header from the first 6 bytes of buf.
func ParseHeader(buf []byte) Header {
	return Header{
		Length: binary.LittleEndian.Uint16(buf[0:2]),
		Format: DataFormat(binary.LittleEndian.Uint32(buf[2:6])),
	}
}

// EncodeFrame prepends a header to an already serialized payload.
func EncodeFrame(format DataFormat, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	out := make([]byte, HeaderLen+len(payload))
	PutHeader(out, Header{Length: uint16(len(payload)), Format: format})
	copy(out[HeaderLen:], payload)
	return out, nil
}

// Encode serializes a message body and wraps it in a frame.
func Encode(format DataFormat, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", body, err)
	}
	return EncodeFrame(format, payload)
}

// DecodeBody deserializes a frame payload into the given message type.
// A payload that does not match its declared format is a fatal error for
// the connection that produced it.
func DecodeBody(frame Frame, body any) error {
	if err := json.Unmarshal(frame.Payload, body); err != nil {
		return fmt.Errorf("malformed %v payload (%d bytes): %w", frame.Header.Format, len(frame.Payload), err)
	}
	return nil
}
