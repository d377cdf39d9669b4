package serialtx

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.LittleEndian

// IncomingPacketType is a type of packet sent to the device.
type IncomingPacketType uint8

const (
	TypeConfigPacket IncomingPacketType = iota
	TypeFramePacket
	TypeOffPacket
)

// String returns a string representation of the packet type.
func (t IncomingPacketType) String() string {
	switch t {
	case TypeConfigPacket:
		return "config"
	case TypeFramePacket:
		return "frame"
	case TypeOffPacket:
		return "off"
	default:
		return fmt.Sprintf("IncomingPacketType(%d)", t)
	}
}

// IncomingPacket is a packet sent over the wire to the device.
type IncomingPacket interface {
	// Type returns the type of packet.
	Type() IncomingPacketType
}

// ConfigPacket tells the device the largest frame it will be asked to
// shift out, so it can size its buffers once up front.
type ConfigPacket struct {
	MaxWords uint16
}

// FramePacket carries one frame of transmit words. Each word is written
// as its low WordBits bits, most significant byte first, which for the
// usual 24-bit words puts the bytes on the wire in the same order the
// LEDs consume them.
type FramePacket struct {
	WordBits uint8
	Words    []uint32
}

// OffPacket tells the device to blank the strip.
type OffPacket struct{}

func (p ConfigPacket) Type() IncomingPacketType { return TypeConfigPacket }
func (p FramePacket) Type() IncomingPacketType  { return TypeFramePacket }
func (p OffPacket) Type() IncomingPacketType    { return TypeOffPacket }

// OutgoingPacketType is a type of packet sent by the device.
type OutgoingPacketType uint8

const (
	TypeAckPacket OutgoingPacketType = iota
	TypeErrorPacket
	TypeLogPacket
)

// String returns a string representation of the packet type.
func (t OutgoingPacketType) String() string {
	switch t {
	case TypeAckPacket:
		return "ack"
	case TypeErrorPacket:
		return "error"
	case TypeLogPacket:
		return "log"
	default:
		return fmt.Sprintf("OutgoingPacketType(%d)", t)
	}
}

// OutgoingPacket is a packet sent over the wire by the device.
type OutgoingPacket interface {
	// Type returns the type of packet.
	Type() OutgoingPacketType
}

// AckPacket confirms that the previous incoming packet was applied.
type AckPacket struct{}

// ErrorPacket is a packet that indicates an error occurred.
type ErrorPacket struct {
	Message string
}

// LogPacket is a packet that contains a log message.
type LogPacket struct {
	Message string
}

func (p AckPacket) Type() OutgoingPacketType   { return TypeAckPacket }
func (p ErrorPacket) Type() OutgoingPacketType { return TypeErrorPacket }
func (p LogPacket) Type() OutgoingPacketType   { return TypeLogPacket }

// wordSize returns the number of bytes one transmit word occupies on the
// wire.
func wordSize(wordBits uint8) int {
	return (int(wordBits) + 7) / 8
}

// ReadIncomingPacket reads an incoming packet from the given reader. The
// trailing checksum covers the type byte and the payload; it is read
// from the raw reader so it doesn't feed back into the hash.
func ReadIncomingPacket(r io.Reader) (IncomingPacket, error) {
	hash := crc32.NewIEEE()
	tr := io.TeeReader(r, hash)

	var packet IncomingPacket
	var ptypeBuf [1]byte
	if _, err := io.ReadFull(tr, ptypeBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to read incoming packet type: %w", err)
	}

	switch ptype := IncomingPacketType(ptypeBuf[0]); ptype {
	case TypeConfigPacket:
		var p ConfigPacket
		if err := binary.Read(tr, Endianness, &p); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		packet = p

	case TypeFramePacket:
		var p FramePacket
		if err := binary.Read(tr, Endianness, &p.WordBits); err != nil {
			return nil, fmt.Errorf("failed to read word width: %w", err)
		}
		if p.WordBits == 0 || p.WordBits > 32 {
			return nil, fmt.Errorf("invalid word width: %d", p.WordBits)
		}
		var count uint16
		if err := binary.Read(tr, Endianness, &count); err != nil {
			return nil, fmt.Errorf("failed to read frame length: %w", err)
		}
		size := wordSize(p.WordBits)
		buf := make([]byte, int(count)*size)
		if _, err := io.ReadFull(tr, buf); err != nil {
			return nil, fmt.Errorf("failed to read frame data: %w", err)
		}
		p.Words = make([]uint32, count)
		for i := range p.Words {
			var word uint32
			for _, b := range buf[i*size : (i+1)*size] {
				word = word<<8 | uint32(b)
			}
			p.Words[i] = word
		}
		packet = p

	case TypeOffPacket:
		var p OffPacket
		packet = p

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	var checksum uint32
	if err := binary.Read(r, Endianness, &checksum); err != nil {
		return nil, fmt.Errorf("failed to read packet checksum: %w", err)
	}

	if checksum != hash.Sum32() {
		return nil, fmt.Errorf("packet checksum mismatch")
	}

	return packet, nil
}

// WriteIncomingPacket writes an incoming packet to the given writer.
func WriteIncomingPacket(w io.Writer, p IncomingPacket) error {
	hash := crc32.NewIEEE()
	tw := io.MultiWriter(w, hash)

	switch p := p.(type) {
	case ConfigPacket:
		if err := binary.Write(tw, Endianness, TypeConfigPacket); err != nil {
			return fmt.Errorf("failed to write packet type: %w", err)
		}
		if err := binary.Write(tw, Endianness, p); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

	case FramePacket:
		if p.WordBits == 0 || p.WordBits > 32 {
			return fmt.Errorf("invalid word width: %d", p.WordBits)
		}
		if len(p.Words) > 0xffff {
			return fmt.Errorf("frame too long: %d words", len(p.Words))
		}
		if err := binary.Write(tw, Endianness, TypeFramePacket); err != nil {
			return fmt.Errorf("failed to write packet type: %w", err)
		}
		if err := binary.Write(tw, Endianness, p.WordBits); err != nil {
			return fmt.Errorf("failed to write word width: %w", err)
		}
		if err := binary.Write(tw, Endianness, uint16(len(p.Words))); err != nil {
			return fmt.Errorf("failed to write frame length: %w", err)
		}
		size := wordSize(p.WordBits)
		buf := make([]byte, size)
		for _, word := range p.Words {
			for i := range buf {
				buf[i] = byte(word >> (8 * uint(size-1-i)))
			}
			if _, err := tw.Write(buf); err != nil {
				return fmt.Errorf("failed to write frame data: %w", err)
			}
		}

	case OffPacket:
		if err := binary.Write(tw, Endianness, TypeOffPacket); err != nil {
			return fmt.Errorf("failed to write packet type: %w", err)
		}

	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	if err := binary.Write(w, Endianness, hash.Sum32()); err != nil {
		return fmt.Errorf("failed to write packet checksum: %w", err)
	}

	return nil
}

// ReadOutgoingPacket reads an outgoing packet from the given reader.
func ReadOutgoingPacket(r io.Reader) (OutgoingPacket, error) {
	hash := crc32.NewIEEE()
	tr := io.TeeReader(r, hash)

	var packet OutgoingPacket
	var ptypeBuf [1]byte
	if _, err := io.ReadFull(tr, ptypeBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to read outgoing packet type: %w", err)
	}

	switch ptype := OutgoingPacketType(ptypeBuf[0]); ptype {
	case TypeAckPacket:
		var p AckPacket
		packet = p

	case TypeErrorPacket:
		var p ErrorPacket
		msg, err := readMessage(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read error message: %w", err)
		}
		p.Message = msg
		packet = p

	case TypeLogPacket:
		var p LogPacket
		msg, err := readMessage(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read log message: %w", err)
		}
		p.Message = msg
		packet = p

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	var checksum uint32
	if err := binary.Read(r, Endianness, &checksum); err != nil {
		return nil, fmt.Errorf("failed to read packet checksum: %w", err)
	}

	if checksum != hash.Sum32() {
		return nil, fmt.Errorf("packet checksum mismatch")
	}

	return packet, nil
}

// WriteOutgoingPacket writes an outgoing packet to the given writer.
func WriteOutgoingPacket(w io.Writer, p OutgoingPacket) error {
	hash := crc32.NewIEEE()
	tw := io.MultiWriter(w, hash)

	switch p := p.(type) {
	case AckPacket:
		if err := binary.Write(tw, Endianness, TypeAckPacket); err != nil {
			return fmt.Errorf("failed to write packet type: %w", err)
		}

	case ErrorPacket:
		if err := binary.Write(tw, Endianness, TypeErrorPacket); err != nil {
			return fmt.Errorf("failed to write packet type: %w", err)
		}
		if err := writeMessage(tw, p.Message); err != nil {
			return fmt.Errorf("failed to write error message: %w", err)
		}

	case LogPacket:
		if err := binary.Write(tw, Endianness, TypeLogPacket); err != nil {
			return fmt.Errorf("failed to write packet type: %w", err)
		}
		if err := writeMessage(tw, p.Message); err != nil {
			return fmt.Errorf("failed to write log message: %w", err)
		}

	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	if err := binary.Write(w, Endianness, hash.Sum32()); err != nil {
		return fmt.Errorf("failed to write packet checksum: %w", err)
	}

	return nil
}

func readMessage(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, Endianness, &length); err != nil {
		return "", fmt.Errorf("failed to read length: %w", err)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeMessage(w io.Writer, msg string) error {
	if len(msg) > 0xffff {
		msg = msg[:0xffff]
	}
	if err := binary.Write(w, Endianness, uint16(len(msg))); err != nil {
		return fmt.Errorf("failed to write length: %w", err)
	}
	_, err := io.WriteString(w, msg)
	return err
}
