package protocol

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
)

func TestEncodeDecodeCommand(t *testing.T) {
	packet := &Packet{
		ID:         12345,
		CommandSet: 1,
		Command:    7,
		Data:       []byte("hello world"),
	}

	var buf bytes.Buffer
	if err := Encode(&buf, packet); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() != HeaderSize+11 {
		t.Fatalf("encoded length: got %d, want %d", buf.Len(), HeaderSize+11)
	}

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.IsReply() {
		t.Error("command packet decoded as reply")
	}
	if decoded.ID != packet.ID {
		t.Errorf("ID mismatch: got %d, want %d", decoded.ID, packet.ID)
	}
	if decoded.CommandSet != 1 || decoded.Command != 7 {
		t.Errorf("command mismatch: got %d/%d", decoded.CommandSet, decoded.Command)
	}
	if !bytes.Equal(decoded.Data, packet.Data) {
		t.Errorf("Data mismatch: got %s, want %s", decoded.Data, packet.Data)
	}
}

func TestEncodeDecodeReply(t *testing.T) {
	packet := &Packet{ID: 9, Flags: FlagReply, ErrorCode: 101}

	var buf bytes.Buffer
	if err := Encode(&buf, packet); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !decoded.IsReply() {
		t.Fatal("reply flag lost")
	}
	if decoded.ErrorCode != 101 {
		t.Errorf("ErrorCode mismatch: got %d, want 101", decoded.ErrorCode)
	}
	if len(decoded.Data) != 0 {
		t.Errorf("expected empty data, got length %d", len(decoded.Data))
	}
}

func TestWireLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Packet{ID: 1, CommandSet: 1, Command: 1}); err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0, 0, 11, 0, 0, 0, 1, 0, 1, 1}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("wire bytes: got % x, want % x", buf.Bytes(), want)
	}
}

func TestDecodeShortLength(t *testing.T) {
	buf := bytes.NewReader([]byte{0, 0, 0, 5, 0, 0, 0, 1, 0, 1, 1})
	_, err := Decode(buf)
	if !errors.Is(err, ErrPacketTooShort) {
		t.Fatalf("expected ErrPacketTooShort, got %v", err)
	}
}

func TestDecodeTruncatedData(t *testing.T) {
	// Header announces 4 bytes of data but only 2 follow.
	buf := bytes.NewReader([]byte{0, 0, 0, 15, 0, 0, 0, 1, 0, 1, 1, 0xaa, 0xbb})
	_, err := Decode(buf)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestDecodeTooLarge(t *testing.T) {
	buf := bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 1, 0, 1, 1})
	_, err := Decode(buf)
	if !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("expected ErrPacketTooLarge, got %v", err)
	}
}

func TestHandshake(t *testing.T) {
	debugger, vm := net.Pipe()
	defer debugger.Close()
	defer vm.Close()

	done := make(chan error, 1)
	go func() { done <- ServerHandshake(vm) }()

	if err := ClientHandshake(debugger); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server handshake: %v", err)
	}
}

func TestBadHandshake(t *testing.T) {
	err := ReadHandshake(bytes.NewReader([]byte("HTTP/1.1 200 OK")))
	if !errors.Is(err, ErrBadHandshake) {
		t.Fatalf("expected ErrBadHandshake, got %v", err)
	}
}
