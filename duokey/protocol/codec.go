package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFramePayload limits a single protocol frame payload, before and
	// after decompression.
	MaxFramePayload = 1 << 20 // 1 MiB

	// CompressThreshold is the smallest payload WriteFrame tries to
	// compress.
	CompressThreshold = 512

	headerSize = 6
)

// FlagCompressed marks an LZ4 compressed payload.
const FlagCompressed byte = 1 << 0

var (
	ErrFrameTooLarge  = errors.New("protocol: frame payload too large")
	ErrInvalidType    = errors.New("protocol: invalid message type")
	ErrInvalidFlags   = errors.New("protocol: invalid frame flags")
	ErrUnexpectedType = errors.New("protocol: unexpected message type")
	ErrClosed         = errors.New("protocol: peer closed the stream")
)

// Frame is the basic wire container.
// Format:
//
//	1 byte: type
//	1 byte: flags
//	4 bytes: payload length (big endian)
//	N bytes: payload
type Frame struct {
	Type    MessageType
	Payload []byte
}

// WriteFrame writes f in a single Write call. Payloads of at least
// CompressThreshold bytes are sent compressed when that makes them
// smaller.
func WriteFrame(w io.Writer, f Frame) error {
	if !f.Type.valid() {
		return ErrInvalidType
	}
	if len(f.Payload) > MaxFramePayload {
		return ErrFrameTooLarge
	}

	payload := f.Payload
	var flags byte
	if len(payload) >= CompressThreshold {
		if c, err := Compress(payload, CompressionDefault); err == nil {
			payload = c
			flags |= FlagCompressed
		}
	}

	buf := make([]byte, headerSize, headerSize+len(payload))
	buf[0] = byte(f.Type)
	buf[1] = flags
	binary.BigEndian.PutUint32(buf[2:], uint32(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	mt := MessageType(hdr[0])
	if !mt.valid() {
		return Frame{}, fmt.Errorf("%w: %d", ErrInvalidType, hdr[0])
	}
	flags := hdr[1]
	if flags&^FlagCompressed != 0 {
		return Frame{}, fmt.Errorf("%w: %#x", ErrInvalidFlags, flags)
	}
	payloadLen := binary.BigEndian.Uint32(hdr[2:])
	if payloadLen > MaxFramePayload {
		return Frame{}, fmt.Errorf("%w: %d", ErrFrameTooLarge, payloadLen)
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	if flags&FlagCompressed != 0 {
		var err error
		if payload, err = Decompress(payload, MaxFramePayload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: mt, Payload: payload}, nil
}

// WriteMessage writes v as the JSON payload of a frame of type t.
func WriteMessage(w io.Writer, t MessageType, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, Frame{Type: t, Payload: payload})
}

// ReadMessage reads one frame of type want and decodes its JSON payload
// into v. A close frame yields ErrClosed.
func ReadMessage(r io.Reader, want MessageType, v interface{}) error {
	f, err := ReadFrame(r)
	if err != nil {
		return err
	}
	if f.Type == MessageTypeClose {
		return ErrClosed
	}
	if f.Type != want {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedType, f.Type, want)
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("protocol: decode %s: %w", want, err)
	}
	return nil
}

// WriteClose tells the peer no further frames follow on the stream.
func WriteClose(w io.Writer) error {
	return WriteFrame(w, Frame{Type: MessageTypeClose})
}
