package main

// Packet types shared with the host's serialtx protocol.

// IncomingPacketType is a type of packet sent by the host.
type IncomingPacketType uint8

const (
	TypeConfigPacket IncomingPacketType = iota
	TypeFramePacket
	TypeOffPacket
)

// IncomingPacket is a packet sent by the host.
type IncomingPacket interface {
	// Type returns the type of packet.
	Type() IncomingPacketType
}

// ConfigPacket sizes the device's frame buffer.
type ConfigPacket struct {
	MaxWords uint16
}

// FramePacket carries one frame's transmit bytes in wire order.
type FramePacket struct {
	WordBits uint8
	Data     []byte
}

// OffPacket blanks the strip.
type OffPacket struct{}

func (p ConfigPacket) Type() IncomingPacketType { return TypeConfigPacket }
func (p FramePacket) Type() IncomingPacketType  { return TypeFramePacket }
func (p OffPacket) Type() IncomingPacketType    { return TypeOffPacket }

// OutgoingPacketType is a type of packet sent to the host.
type OutgoingPacketType uint8

const (
	TypeAckPacket OutgoingPacketType = iota
	TypeErrorPacket
	TypeLogPacket
)

// OutgoingPacket is a packet sent to the host.
type OutgoingPacket interface {
	// Type returns the type of packet.
	Type() OutgoingPacketType
}

// AckPacket confirms the previous packet was applied.
type AckPacket struct{}

// ErrorPacket reports a failure to the host.
type ErrorPacket struct {
	Message string
}

// LogPacket carries a log message.
type LogPacket struct {
	Message string
}

func (p AckPacket) Type() OutgoingPacketType   { return TypeAckPacket }
func (p ErrorPacket) Type() OutgoingPacketType { return TypeErrorPacket }
func (p LogPacket) Type() OutgoingPacketType   { return TypeLogPacket }

// wordSize returns the number of bytes one word occupies on the wire.
func wordSize(wordBits uint8) int {
	return (int(wordBits) + 7) / 8
}
