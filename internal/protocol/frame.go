package protocol

import (
	"encoding/binary"
	"errors"
)

// Input frame types
const (
	FrameMouse    uint8 = 0x01
	FrameKeyboard uint8 = 0x02
	FrameHitTest  uint8 = 0x03
)

// Header: [type(1)] [seq(4)] [timestamp(8)] = 13 bytes
const FrameHeaderSize = 13

// FrameSize is the full size of every input frame:
// header + msg(uint32) + wParam(uint64) + lParam(int64) = 33 bytes
const FrameSize = FrameHeaderSize + 4 + 8 + 8

var (
	ErrFrameShort = errors.New("frame: too short")
	ErrFrameType  = errors.New("frame: unknown type")
)

// Frame is one forwarded window message, sent as a binary websocket message.
type Frame struct {
	Type      uint8
	Seq       uint32
	Timestamp int64 // unix nanoseconds
	Msg       uint32
	WParam    uint64
	LParam    int64
}

// EncodeFrame serializes a Frame to wire format.
func EncodeFrame(f *Frame) []byte {
	buf := make([]byte, FrameSize)
	buf[0] = f.Type
	binary.BigEndian.PutUint32(buf[1:5], f.Seq)
	binary.BigEndian.PutUint64(buf[5:13], uint64(f.Timestamp))

	payload := buf[FrameHeaderSize:]
	binary.BigEndian.PutUint32(payload[0:4], f.Msg)
	binary.BigEndian.PutUint64(payload[4:12], f.WParam)
	binary.BigEndian.PutUint64(payload[12:20], uint64(f.LParam))
	return buf
}

// DecodeFrame deserializes wire bytes into a Frame.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FrameSize {
		return nil, ErrFrameShort
	}
	f := &Frame{
		Type:      data[0],
		Seq:       binary.BigEndian.Uint32(data[1:5]),
		Timestamp: int64(binary.BigEndian.Uint64(data[5:13])),
	}
	switch f.Type {
	case FrameMouse, FrameKeyboard, FrameHitTest:
	default:
		return nil, ErrFrameType
	}

	payload := data[FrameHeaderSize:]
	f.Msg = binary.BigEndian.Uint32(payload[0:4])
	f.WParam = binary.BigEndian.Uint64(payload[4:12])
	f.LParam = int64(binary.BigEndian.Uint64(payload[12:20]))
	return f, nil
}
