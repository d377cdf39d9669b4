package rpi

import (
	"fmt"
	"time"
	"unsafe"
)

const RPI_PWM_CHANNELS = 2

type pwmPin struct {
	channel int
	pin     int
}

// Mapping of PWM channel/pin numbers to which "alt" function means "PWM". See p102 of datasheet.
var pwmPinToAlt = map[pwmPin]int{
	{0, 12}: 0,
	{0, 18}: 5,
	{0, 40}: 0,
	{1, 13}: 0,
	{1, 19}: 0,
	{1, 41}: 0,
	{1, 45}: 0,
}

// pwmChannelForPin returns the PWM channel that can drive pin, preferring
// channel 0 where a pin could serve either.
func pwmChannelForPin(pin int) (int, bool) {
	for ch := 0; ch < RPI_PWM_CHANNELS; ch++ {
		if _, ok := pwmPinToAlt[pwmPin{ch, pin}]; ok {
			return ch, true
		}
	}
	return 0, false
}

const (
	RPI_PWM_CTL_USEF2 = 1 << 13
	RPI_PWM_CTL_MODE2 = 1 << 9
	RPI_PWM_CTL_PWEN2 = 1 << 8
	RPI_PWM_CTL_CLRF1 = 1 << 6
	RPI_PWM_CTL_USEF1 = 1 << 5
	RPI_PWM_CTL_MODE1 = 1 << 1
	RPI_PWM_CTL_PWEN1 = 1 << 0
	RPI_PWM_DMAC_ENAB = uint32(1 << 31)
)

type pwmT struct {
	ctl        uint32
	sta        uint32
	dmac       uint32
	resvd_0x0c uint32
	rng1       uint32
	dat1       uint32
	fif1       uint32
	resvd_0x1c uint32
	rng2       uint32
	dat2       uint32
}

func rpiPwmDmacPanic(val uint32) uint32 {
	return (val & 0xff) << 8
}

func rpiPwmDmacDreq(val uint32) uint32 {
	return (val & 0xff) << 0
}

func rpiDmaTiPerMap(val uint32) uint32 {
	return (val & 0x1f) << 16
}

// ensurePWM maps the PWM register window on first use.
func (rp *RPi) ensurePWM() error {
	if rp.pwm != nil {
		return nil
	}
	var (
		bufOffs uintptr
		err     error
	)
	rp.pwmBuf, bufOffs, err = rp.mapMem(PWM_OFFSET+rp.hw.periphBase, int(unsafe.Sizeof(pwmT{})))
	if err != nil {
		return fmt.Errorf("couldn't map pwmT at %08X: %v", PWM_OFFSET+rp.hw.periphBase, err)
	}
	rp.pwm = (*pwmT)(unsafe.Pointer(&rp.pwmBuf[bufOffs]))
	return nil
}

// initPWM switches pin to its PWM function and brings up one channel of the
// PWM block in serializer mode at tickHz, fed from buf's tick data over DMA.
// Both channels share one FIFO; only the selected channel is enabled, so the
// other pin stays quiet.
func (rp *RPi) initPWM(tickHz uint32, buf *DMABuf, bytes uint, channel, pin int) error {
	alt, ok := pwmPinToAlt[pwmPin{channel, pin}]
	if !ok {
		return fmt.Errorf("pin %d can't carry PWM channel %d", pin, channel)
	}
	if err := rp.gpioSetAltFunction(pin, alt); err != nil {
		return fmt.Errorf("couldn't set pin %d to alt %d: %v", pin, alt, err)
	}
	if err := rp.ensurePWM(); err != nil {
		return err
	}
	if err := rp.ensureClock(); err != nil {
		return err
	}

	rp.stopPWM()
	if err := rp.startClock(tickHz); err != nil {
		return err
	}

	// Set up the PWM, use delays as the block is rumored to lock up without them. Make
	// sure to use a high enough priority to avoid any FIFO underruns, especially if
	// the CPU is busy doing lots of memory accesses, or another DMA controller is
	// busy. The FIFO will clock out data at a much slower rate (2.6Mhz max), so
	// the odds of a DMA priority boost are extremely low.

	var use, mode, pwen uint32
	if channel == 0 {
		use, mode, pwen = RPI_PWM_CTL_USEF1, RPI_PWM_CTL_MODE1, RPI_PWM_CTL_PWEN1
		rp.pwm.rng1 = 32 // 32 bits per word to serialize
	} else {
		use, mode, pwen = RPI_PWM_CTL_USEF2, RPI_PWM_CTL_MODE2, RPI_PWM_CTL_PWEN2
		rp.pwm.rng2 = 32
	}
	time.Sleep(10 * time.Microsecond)
	rp.pwm.ctl = RPI_PWM_CTL_CLRF1
	time.Sleep(10 * time.Microsecond)
	rp.pwm.dmac = RPI_PWM_DMAC_ENAB | rpiPwmDmacPanic(7) | rpiPwmDmacDreq(3)
	time.Sleep(10 * time.Microsecond)
	rp.pwm.ctl = use | mode
	time.Sleep(10 * time.Microsecond)
	rp.pwm.ctl |= pwen

	// Initialize the DMA control block
	buf.c.ti = RPI_DMA_TI_NO_WIDE_BURSTS | // 32-bit transfers
		RPI_DMA_TI_WAIT_RESP | // wait for write complete
		RPI_DMA_TI_DEST_DREQ | // user peripheral flow control
		rpiDmaTiPerMap(5) | // PWM peripheral
		RPI_DMA_TI_SRC_INC // Increment src addr

	buf.c.sourceAd = uint32(buf.pb.busAddr + unsafe.Sizeof(dmaControl{}))
	buf.c.destAd = PWM_PERIPH_PHYS + uint32(unsafe.Offsetof(rp.pwm.fif1))
	buf.c.txLen = uint32(bytes)
	buf.c.stride = 0
	buf.c.nextconbk = 0

	rp.dma.cs = 0
	rp.dma.txLen = 0
	return nil
}

// stopPWM turns off the PWM and its clock. Safe to call before either has
// been mapped.
func (rp *RPi) stopPWM() {
	if rp.pwm != nil {
		rp.pwm.ctl = 0
		time.Sleep(10 * time.Microsecond)
	}
	rp.stopClock()
}
