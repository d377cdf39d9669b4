package main

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"machine"
	"runtime/interrupt"

	"tinygo.org/x/drivers/ws2812"
)

// Device runs the bridge: it reads packets from the host and shifts
// frames out to the strip.
type Device struct {
	serial io.ReadWriter
	led    ws2812.Device

	maxWords int
	frame    []byte
}

// NewDevice creates a new device driving the strip on ledPin.
func NewDevice(serial machine.Serialer, ledPin machine.Pin) *Device {
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &Device{
		serial: wrapSerial(serial),
		led:    ws2812.New(ledPin),
	}
}

// Run runs the device loop forever. Every host packet is answered with
// an ack or an error.
func (d *Device) Run() {
	d.log("bridge ready")
	for {
		p, err := d.readPacket()
		if err != nil {
			d.logError(err)
			continue
		}
		if err := d.handlePacket(p); err != nil {
			d.logError(err)
			continue
		}
		d.sendPacket(AckPacket{})
	}
}

func (d *Device) log(msg string) {
	d.sendPacket(LogPacket{Message: msg})
}

func (d *Device) logError(err error) {
	d.sendPacket(ErrorPacket{Message: err.Error()})
}

// readPacket reads one host packet. The trailing checksum covers the
// type byte and payload and is read from the raw stream, outside the
// hash. Oversized frames are consumed in full so the stream stays
// aligned.
func (d *Device) readPacket() (IncomingPacket, error) {
	hash := crc32.NewIEEE()
	tr := io.TeeReader(d.serial, hash)

	var ptypeBuf [1]byte
	if _, err := io.ReadFull(tr, ptypeBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to read packet type: %w", err)
	}

	var packet IncomingPacket
	var oversized bool
	switch IncomingPacketType(ptypeBuf[0]) {
	case TypeConfigPacket:
		var p ConfigPacket
		if err := binary.Read(tr, binary.LittleEndian, &p); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		packet = p

	case TypeFramePacket:
		var p FramePacket
		if err := binary.Read(tr, binary.LittleEndian, &p.WordBits); err != nil {
			return nil, fmt.Errorf("failed to read word width: %w", err)
		}
		var count uint16
		if err := binary.Read(tr, binary.LittleEndian, &count); err != nil {
			return nil, fmt.Errorf("failed to read frame length: %w", err)
		}
		n := int(count) * wordSize(p.WordBits)
		if n <= len(d.frame) {
			p.Data = d.frame[:n]
			if _, err := io.ReadFull(tr, p.Data); err != nil {
				return nil, fmt.Errorf("failed to read frame data: %w", err)
			}
		} else {
			if err := discard(tr, n); err != nil {
				return nil, fmt.Errorf("failed to read frame data: %w", err)
			}
			oversized = true
		}
		packet = p

	case TypeOffPacket:
		packet = OffPacket{}

	default:
		return nil, fmt.Errorf("unknown packet type: %d", ptypeBuf[0])
	}

	var checksum uint32
	if err := binary.Read(d.serial, binary.LittleEndian, &checksum); err != nil {
		return nil, fmt.Errorf("failed to read packet checksum: %w", err)
	}
	if checksum != hash.Sum32() {
		return nil, fmt.Errorf("packet checksum mismatch")
	}
	if oversized {
		return nil, fmt.Errorf("frame exceeds capacity %d", d.maxWords)
	}
	return packet, nil
}

func (d *Device) handlePacket(p IncomingPacket) error {
	switch p := p.(type) {
	case ConfigPacket:
		if p.MaxWords < 1 {
			return fmt.Errorf("invalid capacity: %d", p.MaxWords)
		}
		d.maxWords = int(p.MaxWords)
		d.frame = make([]byte, 4*d.maxWords)
		d.blank()
		return nil

	case FramePacket:
		if p.WordBits == 0 || p.WordBits > 32 || p.WordBits%8 != 0 {
			return fmt.Errorf("unsupported word width: %d", p.WordBits)
		}
		d.shiftOut(p.Data)
		return nil

	case OffPacket:
		if d.maxWords == 0 {
			return fmt.Errorf("not configured")
		}
		d.blank()
		return nil

	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}
}

// blank shifts out one dark 24-bit word per configured LED.
func (d *Device) blank() {
	critical(func() {
		for i := 0; i < 3*d.maxWords; i++ {
			d.led.WriteByte(0)
		}
	})
}

// shiftOut plays a frame's bytes to the strip. Interrupts stay off for
// the duration; a pause would latch the strip mid-frame.
func (d *Device) shiftOut(data []byte) {
	critical(func() {
		for _, b := range data {
			d.led.WriteByte(b)
		}
	})
}

func critical(f func()) {
	state := interrupt.Disable()
	f()
	interrupt.Restore(state)
}

func (d *Device) sendPacket(p OutgoingPacket) {
	hash := crc32.NewIEEE()
	tw := io.MultiWriter(d.serial, hash)

	switch p := p.(type) {
	case AckPacket:
		binary.Write(tw, binary.LittleEndian, TypeAckPacket)
	case ErrorPacket:
		binary.Write(tw, binary.LittleEndian, TypeErrorPacket)
		writeMessage(tw, p.Message)
	case LogPacket:
		binary.Write(tw, binary.LittleEndian, TypeLogPacket)
		writeMessage(tw, p.Message)
	}

	binary.Write(d.serial, binary.LittleEndian, hash.Sum32())
}

func writeMessage(w io.Writer, msg string) {
	binary.Write(w, binary.LittleEndian, uint16(len(msg)))
	io.WriteString(w, msg)
}

func discard(r io.Reader, n int) error {
	var scratch [16]byte
	for n > 0 {
		chunk := n
		if chunk > len(scratch) {
			chunk = len(scratch)
		}
		if _, err := io.ReadFull(r, scratch[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
