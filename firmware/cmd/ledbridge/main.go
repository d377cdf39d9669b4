package main

import (
	"machine"
	"time"
)

// Strip data line. GPIO27 suits the usual ESP32 devkit wiring; adjust
// for other boards.
const dataPin = machine.GPIO27

func main() {
	// Give the host's side of the link a moment to settle after boot.
	time.Sleep(time.Second)

	d := NewDevice(machine.Serial, dataPin)
	d.Run()
}
