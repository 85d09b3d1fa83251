// Package protocol implements JDWP packet framing.
//
// Every JDWP packet starts with a fixed 11-byte header followed by a variable-length
// data section. The length field covers the whole packet including the header, so the
// receiver reads the header first and then exactly length-11 more bytes.
//
// Packet format:
//
//	0         4         8  9     11
//	┌─────────┬─────────┬──┬─────┬───────────────┐
//	│ length  │   id    │fl│ cmd │    data ...   │   command packet (flags = 0x00)
//	│ uint32  │ uint32  │  │set,c│               │
//	└─────────┴─────────┴──┴─────┴───────────────┘
//	┌─────────┬─────────┬──┬─────┬───────────────┐
//	│ length  │   id    │fl│ err │    data ...   │   reply packet (flags = 0x80)
//	│ uint32  │ uint32  │  │u16  │               │
//	└─────────┴─────────┴──┴─────┴───────────────┘
//
// All integers are big-endian. Before the first packet both sides exchange the ASCII
// string "JDWP-Handshake".
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	HeaderSize int   = 11 // 4 (length) + 4 (id) + 1 (flags) + 2 (command or error code)
	FlagReply  uint8 = 0x80

	// MaxPacketSize bounds the length field so a corrupt stream cannot make Decode
	// allocate gigabytes.
	MaxPacketSize uint32 = 64 << 20
)

// Handshake is the string both peers send before any packet.
var Handshake = []byte("JDWP-Handshake")

var (
	ErrBadHandshake   = errors.New("jdwp: bad handshake")
	ErrPacketTooShort = errors.New("jdwp: packet length shorter than header")
	ErrPacketTooLarge = errors.New("jdwp: packet length exceeds limit")
)

// Packet is a decoded JDWP packet. For command packets CommandSet and Command are set,
// for replies ErrorCode is.
type Packet struct {
	ID         uint32
	Flags      uint8
	CommandSet uint8
	Command    uint8
	ErrorCode  uint16
	Data       []byte
}

// IsReply reports whether the reply flag is set.
func (p *Packet) IsReply() bool {
	return p.Flags&FlagReply != 0
}

func (p *Packet) String() string {
	if p.IsReply() {
		return fmt.Sprintf("reply{id=%d err=%d len=%d}", p.ID, p.ErrorCode, len(p.Data))
	}
	return fmt.Sprintf("command{id=%d %d/%d len=%d}", p.ID, p.CommandSet, p.Command, len(p.Data))
}

// Encode writes a complete packet (header + data) to w.
// The caller must serialize calls that share one writer, otherwise packets from
// different goroutines interleave and corrupt the stream.
func Encode(w io.Writer, p *Packet) error {
	total := HeaderSize + len(p.Data)
	if uint64(total) > uint64(MaxPacketSize) {
		return ErrPacketTooLarge
	}
	buf := make([]byte, total)

	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint32(buf[4:8], p.ID)
	buf[8] = p.Flags
	if p.IsReply() {
		binary.BigEndian.PutUint16(buf[9:11], p.ErrorCode)
	} else {
		buf[9] = p.CommandSet
		buf[10] = p.Command
	}
	copy(buf[HeaderSize:], p.Data)

	// One Write per packet so a concurrent reader on the other end never sees a header
	// without its data.
	_, err := w.Write(buf)
	return err
}

// Decode reads one complete packet from r.
// io.ReadFull guarantees the header and data are read in full; a stream that ends
// mid-packet yields io.ErrUnexpectedEOF.
func Decode(r io.Reader) (*Packet, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[0:4])
	if length < uint32(HeaderSize) {
		return nil, fmt.Errorf("%w: %d", ErrPacketTooShort, length)
	}
	if length > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d", ErrPacketTooLarge, length)
	}

	p := &Packet{
		ID:    binary.BigEndian.Uint32(header[4:8]),
		Flags: header[8],
	}
	if p.IsReply() {
		p.ErrorCode = binary.BigEndian.Uint16(header[9:11])
	} else {
		p.CommandSet = header[9]
		p.Command = header[10]
	}

	p.Data = make([]byte, length-uint32(HeaderSize))
	if _, err := io.ReadFull(r, p.Data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return p, nil
}

// WriteHandshake sends the handshake string.
func WriteHandshake(w io.Writer) error {
	_, err := w.Write(Handshake)
	return err
}

// ReadHandshake reads and verifies the peer's handshake string.
func ReadHandshake(r io.Reader) error {
	buf := make([]byte, len(Handshake))
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("reading handshake: %w", err)
	}
	if !bytes.Equal(buf, Handshake) {
		return fmt.Errorf("%w: %q", ErrBadHandshake, buf)
	}
	return nil
}

// ClientHandshake performs the debugger side of the handshake: send, then verify the echo.
func ClientHandshake(rw io.ReadWriter) error {
	if err := WriteHandshake(rw); err != nil {
		return err
	}
	return ReadHandshake(rw)
}

// ServerHandshake performs the target VM side: verify the debugger's string, then echo it.
func ServerHandshake(rw io.ReadWriter) error {
	if err := ReadHandshake(rw); err != nil {
		return err
	}
	return WriteHandshake(rw)
}
