// Package rpi drives WS2812-family LED strips from a Raspberry Pi's PWM
// block. Frames of logical words are rasterized into pulse ticks and fed to
// the PWM FIFO by DMA, with the strip's low latch period appended to every
// frame. Peripheral registers are reached through /dev/mem mappings and
// frame memory comes from the Videocore via its mailbox, so everything here
// needs root.
package rpi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// RPi is a handle on the BCM283x peripherals: the mailbox plus register
// windows for DMA, PWM, GPIO and the clock manager, mapped as needed.
type RPi struct {
	mbox     *os.File
	hw       *hw
	dmaBuf   mmap.MMap
	dma      *dmaT
	pwmBuf   mmap.MMap
	pwm      *pwmT
	gpioBuf  mmap.MMap
	gpio     *gpioT
	cmClkBuf mmap.MMap
	cmClk    *cmClkT
}

func NewRPi() (*RPi, error) {
	hw, err := detectHardware()
	if err != nil {
		return nil, fmt.Errorf("couldn't detect RPi hardware: %v", err)
	}
	rp := RPi{
		hw: hw,
	}
	err = rp.mboxOpen()
	if err != nil {
		return nil, fmt.Errorf("couldn't open mailbox: %v", err)
	}
	return &rp, nil
}

// Board returns the detected board name, e.g. "Pi Zero W v1.1".
func (rp *RPi) Board() string {
	return rp.hw.name
}

// Close stops the PWM and its clock so the pin stops toggling, then releases
// every register mapping and the mailbox.
func (rp *RPi) Close() error {
	rp.stopPWM()
	err := rp.mboxClose()
	for _, m := range []*mmap.MMap{&rp.dmaBuf, &rp.pwmBuf, &rp.gpioBuf, &rp.cmClkBuf} {
		if *m == nil {
			continue
		}
		te := m.Unmap()
		if err == nil {
			err = te
		}
		*m = nil
	}
	rp.dma, rp.pwm, rp.gpio, rp.cmClk = nil, nil, nil, nil
	return err
}

func (rp *RPi) oscFreq() uint32 {
	if rp.hw.hwType == RPI_HWVER_TYPE_PI4 {
		return OSC_FREQ_PI4
	}
	return OSC_FREQ
}

type hw struct {
	hwType     int
	periphBase uintptr
	vcBase     uintptr
	name       string
}

const (
	RPI_HWVER_TYPE_UNKNOWN = iota
	RPI_HWVER_TYPE_PI1
	RPI_HWVER_TYPE_PI2
	RPI_HWVER_TYPE_PI4

	PERIPH_BASE_RPI  = 0x20000000
	PERIPH_BASE_RPI2 = 0x3f000000
	PERIPH_BASE_RPI4 = 0xfe000000

	VIDEOCORE_BASE_RPI  = 0x40000000
	VIDEOCORE_BASE_RPI2 = 0xc0000000
)

// detectHardware reads the board revision the firmware leaves in the device
// tree and maps it to peripheral and Videocore base addresses. Works the
// same on 32- and 64-bit kernels.
func detectHardware() (*hw, error) {
	f, err := os.Open("/proc/device-tree/system/linux,revision")
	if err != nil {
		return nil, fmt.Errorf("couldn't open linux revision file: %v", err)
	}
	b := make([]byte, 4)
	n, err := f.Read(b)
	f.Close() // Ignore error
	if err != nil {
		return nil, fmt.Errorf("couldn't read revision: %v", err)
	}
	if n != 4 {
		return nil, fmt.Errorf("revision file got %d instead of 4 bytes", n)
	}
	r := bytes.NewReader(b)
	var ver uint32
	err = binary.Read(r, binary.BigEndian, &ver)
	if err != nil {
		return nil, fmt.Errorf("somehow couldn't convert 4 bytes to a uint32: %v", err)
	}
	if rp, ok := rasPiVariants[ver]; ok {
		return &rp, nil
	}
	return nil, fmt.Errorf("couldn't identify hardware revision %X", ver)
}

var rasPiVariants = map[uint32]hw{}

func registerVariants(hwType int, periphBase, vcBase uintptr, boards map[uint32]string) {
	for rev, name := range boards {
		rasPiVariants[rev] = hw{
			hwType:     hwType,
			periphBase: periphBase,
			vcBase:     vcBase,
			name:       name,
		}
	}
}

func init() {
	registerVariants(RPI_HWVER_TYPE_PI1, PERIPH_BASE_RPI, VIDEOCORE_BASE_RPI, map[uint32]string{
		0x02:     "Model B",
		0x03:     "Model B",
		0x04:     "Model B",
		0x05:     "Model B",
		0x06:     "Model B",
		0x07:     "Model A",
		0x08:     "Model A",
		0x09:     "Model A",
		0x0d:     "Model B",
		0x0e:     "Model B",
		0x0f:     "Model B",
		0x10:     "Model B+",
		0x13:     "Model B+",
		0x900032: "Model B+",
		0x11:     "Compute Module 1",
		0x14:     "Compute Module 1",
		0x12:     "Model A+",
		0x15:     "Model A+",
		0x900021: "Model A+",
		0x900092: "Pi Zero v1.2",
		0x900093: "Pi Zero v1.3",
		0x920093: "Pi Zero v1.3",
		0x9200c1: "Pi Zero W v1.1",
		0x9000c1: "Pi Zero W v1.1",
	})
	registerVariants(RPI_HWVER_TYPE_PI2, PERIPH_BASE_RPI2, VIDEOCORE_BASE_RPI2, map[uint32]string{
		0xA01040: "Pi 2",
		0xA01041: "Pi 2",
		0xA21041: "Pi 2",
		0xA22042: "Pi 2",
		0xA02082: "Pi 3",
		0xA02083: "Pi 3",
		0xA22082: "Pi 3",
		0xA22083: "Pi 3",
		0xA020D3: "Pi 3 B+",
		0x9020e0: "Model 3 A+",
		0xA020A0: "Compute Module 3/L3",
		0xA02100: "Compute Module 3+",
	})
	registerVariants(RPI_HWVER_TYPE_PI4, PERIPH_BASE_RPI4, VIDEOCORE_BASE_RPI2, map[uint32]string{
		0xA03111: "Pi 4 Model B - 1GB v1.1",
		0xB03111: "Pi 4 Model B - 2GB v1.1",
		0xC03111: "Pi 4 Model B - 4GB v1.1",
		0xA03112: "Pi 4 Model B - 1GB v1.2",
		0xB03112: "Pi 4 Model B - 2GB v1.2",
		0xC03112: "Pi 4 Model B - 4GB v1.2",
		0xB03114: "Pi 4 Model B - 2GB v1.4",
		0xD03114: "Pi 4 Model B - 8GB v1.2",
		0xC03130: "Pi 400 - 4GB v1.0",
	})
}
