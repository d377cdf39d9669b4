package main

import (
	"io"
	"machine"
	"runtime"
	"time"
)

// wrapSerial adapts a machine.Serialer to io.ReadWriter. Reads hand back
// whatever is buffered, sleeping briefly when the line is idle.
func wrapSerial(serial machine.Serialer) io.ReadWriter {
	return serialIO{serial}
}

type serialIO struct {
	s machine.Serialer
}

func (s serialIO) Read(b []byte) (int, error) {
	n := s.s.Buffered()
	if n == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	if n > len(b) {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		c, err := s.s.ReadByte()
		if err != nil {
			return i, err
		}
		b[i] = c
	}
	runtime.Gosched()
	return n, nil
}

func (s serialIO) Write(b []byte) (int, error) {
	for i, c := range b {
		if err := s.s.WriteByte(c); err != nil {
			return i, err
		}
	}
	runtime.Gosched()
	return len(b), nil
}
