package serialtx

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"reflect"
	"strings"
	"testing"
)

func appendChecksum(head []byte) []byte {
	var crc [4]byte
	binary.LittleEndian.PutUint32(crc[:], crc32.ChecksumIEEE(head))
	return append(head, crc[:]...)
}

func TestFrameWireLayout(t *testing.T) {
	var buf bytes.Buffer
	p := FramePacket{WordBits: 24, Words: []uint32{0x001900, 0x190000, 0x000019}}
	if err := WriteIncomingPacket(&buf, p); err != nil {
		t.Fatalf("WriteIncomingPacket failed: %v", err)
	}
	want := appendChecksum([]byte{
		byte(TypeFramePacket),
		24,         // word width
		0x03, 0x00, // word count
		0x00, 0x19, 0x00, // green, red, blue
		0x19, 0x00, 0x00,
		0x00, 0x00, 0x19,
	})
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("frame bytes got: %x, want: %x", buf.Bytes(), want)
	}
}

func TestErrorWireLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOutgoingPacket(&buf, ErrorPacket{Message: "boom"}); err != nil {
		t.Fatalf("WriteOutgoingPacket failed: %v", err)
	}
	want := appendChecksum(append([]byte{
		byte(TypeErrorPacket),
		0x04, 0x00,
	}, "boom"...))
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("error bytes got: %x, want: %x", buf.Bytes(), want)
	}
}

func TestIncomingRoundTrip(t *testing.T) {
	packets := []IncomingPacket{
		ConfigPacket{MaxWords: 300},
		OffPacket{},
		FramePacket{WordBits: 24, Words: []uint32{0x001900, 0xffffff, 0}},
		FramePacket{WordBits: 8, Words: []uint32{0xa5, 0x5a}},
		FramePacket{WordBits: 32, Words: []uint32{0xdeadbeef}},
	}
	for _, p := range packets {
		var buf bytes.Buffer
		if err := WriteIncomingPacket(&buf, p); err != nil {
			t.Errorf("%s: write failed: %v", p.Type(), err)
			continue
		}
		got, err := ReadIncomingPacket(&buf)
		if err != nil {
			t.Errorf("%s: read failed: %v", p.Type(), err)
			continue
		}
		if !reflect.DeepEqual(got, p) {
			t.Errorf("%s: got: %#v, want: %#v", p.Type(), got, p)
		}
	}
}

func TestOutgoingRoundTrip(t *testing.T) {
	packets := []OutgoingPacket{
		AckPacket{},
		ErrorPacket{Message: "frame too long"},
		LogPacket{Message: "ready"},
	}
	for _, p := range packets {
		var buf bytes.Buffer
		if err := WriteOutgoingPacket(&buf, p); err != nil {
			t.Errorf("%s: write failed: %v", p.Type(), err)
			continue
		}
		got, err := ReadOutgoingPacket(&buf)
		if err != nil {
			t.Errorf("%s: read failed: %v", p.Type(), err)
			continue
		}
		if !reflect.DeepEqual(got, p) {
			t.Errorf("%s: got: %#v, want: %#v", p.Type(), got, p)
		}
	}
}

func TestChecksumRejected(t *testing.T) {
	var buf bytes.Buffer
	p := FramePacket{WordBits: 24, Words: []uint32{0x001900}}
	if err := WriteIncomingPacket(&buf, p); err != nil {
		t.Fatalf("WriteIncomingPacket failed: %v", err)
	}
	raw := buf.Bytes()
	raw[5] ^= 0x01 // corrupt a payload byte
	_, err := ReadIncomingPacket(bytes.NewReader(raw))
	if err == nil || !strings.Contains(err.Error(), "checksum") {
		t.Errorf("corrupted packet got: %v, want checksum mismatch", err)
	}
}

func TestUnknownTypeRejected(t *testing.T) {
	raw := appendChecksum([]byte{0x77})
	if _, err := ReadIncomingPacket(bytes.NewReader(raw)); err == nil {
		t.Errorf("unknown incoming type was accepted")
	}
	if _, err := ReadOutgoingPacket(bytes.NewReader(raw)); err == nil {
		t.Errorf("unknown outgoing type was accepted")
	}
}

func TestFrameRejectsBadWidth(t *testing.T) {
	for _, bits := range []uint8{0, 33, 64} {
		var buf bytes.Buffer
		err := WriteIncomingPacket(&buf, FramePacket{WordBits: bits, Words: []uint32{1}})
		if err == nil {
			t.Errorf("write accepted word width %d", bits)
		}
		raw := appendChecksum([]byte{byte(TypeFramePacket), bits, 0x01, 0x00})
		if _, err := ReadIncomingPacket(bytes.NewReader(raw)); err == nil {
			t.Errorf("read accepted word width %d", bits)
		}
	}
}

func TestTruncatedFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	p := FramePacket{WordBits: 24, Words: []uint32{0x001900, 0x190000}}
	if err := WriteIncomingPacket(&buf, p); err != nil {
		t.Fatalf("WriteIncomingPacket failed: %v", err)
	}
	raw := buf.Bytes()
	for _, n := range []int{0, 1, 4, len(raw) - 1} {
		if _, err := ReadIncomingPacket(bytes.NewReader(raw[:n])); err == nil {
			t.Errorf("accepted packet truncated to %d bytes", n)
		}
	}
}

func TestWordSize(t *testing.T) {
	cases := []struct {
		bits uint8
		want int
	}{
		{1, 1},
		{8, 1},
		{9, 2},
		{16, 2},
		{24, 3},
		{25, 4},
		{32, 4},
	}
	for _, c := range cases {
		if got := wordSize(c.bits); got != c.want {
			t.Errorf("wordSize(%d) got: %d, want: %d", c.bits, got, c.want)
		}
	}
}
