package rpi

import (
	"fmt"
	"time"
	"unsafe"
)

const (
	CM_CLK_CTL_PASSWD  = 0x5a << 24
	CM_CLK_CTL_MASH1   = 1 << 9
	CM_CLK_CTL_BUSY    = 1 << 7
	CM_CLK_CTL_KILL    = 1 << 5
	CM_CLK_CTL_ENAB    = 1 << 4
	CM_CLK_CTL_SRC_OSC = 1 << 0
	CM_CLK_DIV_PASSWD  = uint32(0x5a << 24)
)

type cmClkT struct {
	ctl uint32
	div uint32
}

func cmClkDivI(val uint32) uint32 {
	return (val & 0xfff) << 12
}

func cmClkDivF(val uint32) uint32 {
	return val & 0xfff
}

// clockDivisor splits the oscillator-to-tick ratio into the integer and
// 12-bit fractional parts of the clock manager's divisor register. A
// non-zero fraction needs MASH-1 filtering, and MASH-1 needs the integer
// part to be at least 2 so it has a whole step of headroom.
func clockDivisor(oscFreq, tickHz uint32) (uint32, uint32, error) {
	if oscFreq == 0 || tickHz == 0 {
		return 0, 0, fmt.Errorf("bad clock ratio %d/%d", oscFreq, tickHz)
	}
	divI := oscFreq / tickHz
	divF := uint32((uint64(oscFreq%tickHz) << 12) / uint64(tickHz))
	if divI < 1 || divI > 0xfff {
		return 0, 0, fmt.Errorf("divisor %d out of range for %dHz from %dHz oscillator", divI, tickHz, oscFreq)
	}
	if divF != 0 && divI < 2 {
		return 0, 0, fmt.Errorf("fractional divisor %d+%d/4096 too small for MASH", divI, divF)
	}
	return divI, divF, nil
}

// ensureClock maps the PWM clock manager registers on first use.
func (rp *RPi) ensureClock() error {
	if rp.cmClk != nil {
		return nil
	}
	var (
		bufOffs uintptr
		err     error
	)
	rp.cmClkBuf, bufOffs, err = rp.mapMem(CM_PWM_OFFSET+rp.hw.periphBase, int(unsafe.Sizeof(cmClkT{})))
	if err != nil {
		return fmt.Errorf("couldn't map cmClkT at %08X: %v", CM_PWM_OFFSET+rp.hw.periphBase, err)
	}
	rp.cmClk = (*cmClkT)(unsafe.Pointer(&rp.cmClkBuf[bufOffs]))
	return nil
}

// startClock programs the PWM clock to tick at tickHz off the crystal
// oscillator and waits for it to come up. The clock must be stopped first.
func (rp *RPi) startClock(tickHz uint32) error {
	if err := rp.ensureClock(); err != nil {
		return err
	}
	divI, divF, err := clockDivisor(rp.oscFreq(), tickHz)
	if err != nil {
		return fmt.Errorf("couldn't derive PWM clock: %v", err)
	}
	ctl := uint32(CM_CLK_CTL_SRC_OSC)
	if divF != 0 {
		ctl |= CM_CLK_CTL_MASH1
	}
	rp.cmClk.div = CM_CLK_DIV_PASSWD | cmClkDivI(divI) | cmClkDivF(divF)
	rp.cmClk.ctl = CM_CLK_CTL_PASSWD | ctl
	rp.cmClk.ctl = CM_CLK_CTL_PASSWD | ctl | CM_CLK_CTL_ENAB
	time.Sleep(10 * time.Microsecond)
	for i := 0; (rp.cmClk.ctl & CM_CLK_CTL_BUSY) == 0; i++ {
		if i == 100000 {
			return fmt.Errorf("PWM clock never came up, ctl %08X", rp.cmClk.ctl)
		}
		time.Sleep(time.Microsecond)
	}
	return nil
}

// stopClock kills the PWM clock and waits for it to stop. Safe to call
// before the registers have ever been mapped.
func (rp *RPi) stopClock() {
	if rp.cmClk == nil {
		return
	}
	rp.cmClk.ctl = CM_CLK_CTL_PASSWD | CM_CLK_CTL_KILL
	time.Sleep(10 * time.Microsecond)
	for i := 0; (rp.cmClk.ctl&CM_CLK_CTL_BUSY) != 0 && i < 100000; i++ {
		time.Sleep(time.Microsecond)
	}
}
