package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		tag     MessageType
		payload []byte
	}{
		{"choke", MsgChoke, nil},
		{"have", MsgHave, FormatHave(7)},
		{"request", MsgRequest, FormatRequest(1, 16384, 16384)},
		{"piece", MsgPiece, FormatPiece(1, 0, []byte("block-data"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.tag, tt.payload)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			msg, err := Decode(bytes.NewReader(frame))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if msg.Type != tt.tag {
				t.Errorf("type = %v, want %v", msg.Type, tt.tag)
			}
			if !bytes.Equal(msg.Payload, tt.payload) {
				t.Errorf("payload = %v, want %v", msg.Payload, tt.payload)
			}
		})
	}
}

func TestDecodeKeepAlive(t *testing.T) {
	msg, err := Decode(bytes.NewReader(EncodeKeepAlive()))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg != nil {
		t.Errorf("expected nil message for keep-alive, got %+v", msg)
	}
}

func TestReadMessageSkipsKeepAlives(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(EncodeKeepAlive())
	buf.Write(EncodeKeepAlive())
	frame, _ := Encode(MsgUnchoke, nil)
	buf.Write(frame)

	msg, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msg.Type != MsgUnchoke {
		t.Errorf("type = %v, want Unchoke", msg.Type)
	}
}

func TestEncodeRejectsOverlongPayload(t *testing.T) {
	_, err := Encode(MsgPiece, make([]byte, MaxPayloadLength))
	if err != ErrFrameTooLarge {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodeRejectsOverlongFrame(t *testing.T) {
	var lenBuf [4]byte
	lenBuf[0] = 0xFF // absurd length, far past MaxPayloadLength
	_, err := Decode(bytes.NewReader(lenBuf[:]))
	if err != ErrFrameTooLarge {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodeRejectsInvalidTag(t *testing.T) {
	frame, _ := Encode(MsgCancel, nil)
	frame[4] = 200 // corrupt the tag byte beyond {0..8}
	_, err := Decode(bytes.NewReader(frame))
	var tagErr *ErrInvalidMessageType
	if err == nil {
		t.Fatal("expected error for invalid tag")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("invalid message type")) {
		t.Errorf("err = %v, want invalid message type error", err)
	}
	_ = tagErr
}

func TestParseRequestRoundTrip(t *testing.T) {
	payload := FormatRequest(3, 32768, 16384)
	index, begin, length, err := ParseRequest(payload)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if index != 3 || begin != 32768 || length != 16384 {
		t.Errorf("got (%d, %d, %d)", index, begin, length)
	}
}

func TestParsePieceRoundTrip(t *testing.T) {
	payload := FormatPiece(5, 16384, []byte("hello"))
	index, begin, data, err := ParsePiece(payload)
	if err != nil {
		t.Fatalf("ParsePiece: %v", err)
	}
	if index != 5 || begin != 16384 || string(data) != "hello" {
		t.Errorf("got (%d, %d, %q)", index, begin, data)
	}
}

func TestParsePieceRejectsShortPayload(t *testing.T) {
	if _, _, _, err := ParsePiece([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short piece payload")
	}
}
