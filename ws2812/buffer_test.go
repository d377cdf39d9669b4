package ws2812

import (
	"errors"
	"testing"
)

// testStrip records every frame handed to Transmit.
type testStrip struct {
	frames   [][]uint32
	lastBits int
	err      error
}

func (s *testStrip) Transmit(words []uint32, wordBits int) error {
	if s.err != nil {
		return s.err
	}
	w := make([]uint32, len(words))
	copy(w, words)
	s.frames = append(s.frames, w)
	s.lastBits = wordBits
	return nil
}

// scriptRand hands out vals in order, cycling, and records what it was asked.
type scriptRand struct {
	vals   []int
	calls  int
	lastLo int
	lastHi int
}

func (r *scriptRand) next(lo, hi int) int {
	v := r.vals[r.calls%len(r.vals)]
	r.calls++
	r.lastLo = lo
	r.lastHi = hi
	return v
}

func newTestBuffer(t *testing.T, numPixels int, opts ...Option) (*Buffer, *testStrip) {
	t.Helper()
	s := &testStrip{}
	b, err := New(numPixels, s, opts...)
	if err != nil {
		t.Fatalf("New(%d): %v", numPixels, err)
	}
	return b, s
}

func TestNewRejectsBadLength(t *testing.T) {
	for _, n := range []int{0, -3} {
		if _, err := New(n, &testStrip{}); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("New(%d): got %v, want ErrOutOfRange", n, err)
		}
	}
}

func TestDefaultBrightness(t *testing.T) {
	b, _ := newTestBuffer(t, 4)
	for i := 0; i < 4; i++ {
		f, err := b.GetBrightness(i)
		if err != nil {
			t.Fatalf("GetBrightness(%d): %v", i, err)
		}
		if f != DefaultBrightness {
			t.Errorf("pixel %d: got brightness %v, want %v", i, f, DefaultBrightness)
		}
	}
}

func TestWithBrightness(t *testing.T) {
	b, _ := newTestBuffer(t, 3, WithBrightness(0.5))
	for i := 0; i < 3; i++ {
		if f, _ := b.GetBrightness(i); f != 0.5 {
			t.Errorf("pixel %d: got brightness %v, want 0.5", i, f)
		}
	}
	if _, err := New(3, &testStrip{}, WithBrightness(1.5)); !errors.Is(err, ErrBrightness) {
		t.Errorf("WithBrightness(1.5): got %v, want ErrBrightness", err)
	}
}

func TestSetPixelRoundTrip(t *testing.T) {
	b, _ := newTestBuffer(t, 4)
	want := Pixel{R: 12, G: 34, B: 56}
	if err := b.SetPixel(2, want); err != nil {
		t.Fatalf("SetPixel: %v", err)
	}
	got, err := b.GetPixel(2)
	if err != nil {
		t.Fatalf("GetPixel: %v", err)
	}
	if got != want {
		t.Errorf("GetPixel(2): got %v, want %v", got, want)
	}
	for _, i := range []int{0, 1, 3} {
		if p, _ := b.GetPixel(i); p != (Pixel{}) {
			t.Errorf("GetPixel(%d): got %v, want black", i, p)
		}
	}
}

func TestColorAndBrightnessIndependent(t *testing.T) {
	b, _ := newTestBuffer(t, 2)
	if err := b.SetPixel(0, Pixel{R: 200, G: 100, B: 50}); err != nil {
		t.Fatalf("SetPixel: %v", err)
	}
	if err := b.SetBrightness(0, 0.25); err != nil {
		t.Fatalf("SetBrightness: %v", err)
	}
	if got, _ := b.GetPixel(0); got != (Pixel{R: 200, G: 100, B: 50}) {
		t.Errorf("raw color changed by SetBrightness: got %v", got)
	}
	if err := b.SetPixel(0, Pixel{R: 1, G: 2, B: 3}); err != nil {
		t.Fatalf("SetPixel: %v", err)
	}
	if got, _ := b.GetBrightness(0); got != 0.25 {
		t.Errorf("brightness changed by SetPixel: got %v, want 0.25", got)
	}
}

func TestTransmitWordsScaling(t *testing.T) {
	b, _ := newTestBuffer(t, 3)
	if err := b.SetPixel(0, Pixel{R: 255}); err != nil {
		t.Fatalf("SetPixel: %v", err)
	}
	if err := b.SetPixel(1, Pixel{G: 255}); err != nil {
		t.Fatalf("SetPixel: %v", err)
	}
	if err := b.SetPixel(2, Pixel{B: 255}); err != nil {
		t.Fatalf("SetPixel: %v", err)
	}
	want := []uint32{0x001900, 0x190000, 0x000019}
	got := b.TransmitWords()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("word %d: got %06x, want %06x", i, got[i], want[i])
		}
	}
	if err := b.SetBrightness(1, 0); err != nil {
		t.Fatalf("SetBrightness: %v", err)
	}
	got = b.TransmitWords()
	if got[1] != 0 {
		t.Errorf("word 1 at zero brightness: got %06x, want 000000", got[1])
	}
	if got[0] != want[0] || got[2] != want[2] {
		t.Errorf("neighbours changed: got %06x %06x, want %06x %06x", got[0], got[2], want[0], want[2])
	}
}

func TestTransmitWordsFloors(t *testing.T) {
	tests := []struct {
		channel    int
		brightness float64
		want       uint32
	}{
		{255, 0.5, 127},
		{255, 0.25, 63},
		{100, 0.1, 10},
		{7, 0.5, 3},
		{255, 1, 255},
		{123, 0, 0},
		{1, 0.999, 0},
	}
	for _, tt := range tests {
		b, _ := newTestBuffer(t, 1)
		if err := b.SetPixel(0, Pixel{R: tt.channel}); err != nil {
			t.Fatalf("SetPixel(R=%d): %v", tt.channel, err)
		}
		if err := b.SetBrightness(0, tt.brightness); err != nil {
			t.Fatalf("SetBrightness(%v): %v", tt.brightness, err)
		}
		got := (b.TransmitWords()[0] >> 8) & 0xff
		if got != tt.want {
			t.Errorf("R=%d at %v: got %d, want %d", tt.channel, tt.brightness, got, tt.want)
		}
	}
}

func TestTransmitWordsPure(t *testing.T) {
	b, _ := newTestBuffer(t, 2)
	if err := b.SetPixel(0, Pixel{R: 255, G: 128, B: 64}); err != nil {
		t.Fatalf("SetPixel: %v", err)
	}
	b.TransmitWords()
	b.TransmitWords()
	if got, _ := b.GetPixel(0); got != (Pixel{R: 255, G: 128, B: 64}) {
		t.Errorf("raw color changed by TransmitWords: got %v", got)
	}
	if f, _ := b.GetBrightness(0); f != DefaultBrightness {
		t.Errorf("brightness changed by TransmitWords: got %v", f)
	}
}

func TestIsOn(t *testing.T) {
	tests := []struct {
		p          Pixel
		brightness float64
		want       bool
	}{
		{Pixel{}, 0.5, false},
		{Pixel{R: 1}, 0.5, true},
		{Pixel{R: 1}, 0, false},
		{Pixel{}, 0, false},
		// Scales to black on the wire but the pixel is still lit state-wise.
		{Pixel{R: 1}, 0.1, true},
		{Pixel{B: 255}, 1, true},
	}
	for _, tt := range tests {
		b, _ := newTestBuffer(t, 1)
		if err := b.SetPixel(0, tt.p); err != nil {
			t.Fatalf("SetPixel(%v): %v", tt.p, err)
		}
		if err := b.SetBrightness(0, tt.brightness); err != nil {
			t.Fatalf("SetBrightness(%v): %v", tt.brightness, err)
		}
		got, err := b.IsOn(0)
		if err != nil {
			t.Fatalf("IsOn: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsOn(%v at %v): got %v, want %v", tt.p, tt.brightness, got, tt.want)
		}
	}
}

func TestIndexOutOfRange(t *testing.T) {
	b, s := newTestBuffer(t, 3)
	for _, i := range []int{-1, 3, 99} {
		if err := b.SetPixel(i, Pixel{R: 1}); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("SetPixel(%d): got %v, want ErrOutOfRange", i, err)
		}
		if err := b.SetBrightness(i, 0.5); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("SetBrightness(%d): got %v, want ErrOutOfRange", i, err)
		}
		if err := b.SetPixelRandom(i); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("SetPixelRandom(%d): got %v, want ErrOutOfRange", i, err)
		}
		if err := b.SetBrightnessRandom(i, 0, 1); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("SetBrightnessRandom(%d): got %v, want ErrOutOfRange", i, err)
		}
		if _, err := b.GetPixel(i); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("GetPixel(%d): got %v, want ErrOutOfRange", i, err)
		}
		if _, err := b.GetBrightness(i); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("GetBrightness(%d): got %v, want ErrOutOfRange", i, err)
		}
		if _, err := b.IsOn(i); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("IsOn(%d): got %v, want ErrOutOfRange", i, err)
		}
	}
	if len(s.frames) != 0 {
		t.Errorf("failed calls transmitted %d frames, want 0", len(s.frames))
	}
}

func TestRangeOutOfRange(t *testing.T) {
	b, s := newTestBuffer(t, 5)
	tests := []struct {
		start, length int
	}{
		{-1, 2},
		{0, -1},
		{3, 3},
		{6, 0},
	}
	for _, tt := range tests {
		if err := b.SetRange(tt.start, tt.length, Pixel{R: 1}); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("SetRange(%d,%d): got %v, want ErrOutOfRange", tt.start, tt.length, err)
		}
		if err := b.SetRangeBrightness(tt.start, tt.length, 0.5); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("SetRangeBrightness(%d,%d): got %v, want ErrOutOfRange", tt.start, tt.length, err)
		}
		if err := b.SetRangeRandom(tt.start, tt.length); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("SetRangeRandom(%d,%d): got %v, want ErrOutOfRange", tt.start, tt.length, err)
		}
	}
	if len(s.frames) != 0 {
		t.Errorf("failed calls transmitted %d frames, want 0", len(s.frames))
	}
	// The empty range at the end boundary is fine.
	if err := b.SetRange(5, 0, Pixel{R: 1}); err != nil {
		t.Errorf("SetRange(5,0): %v", err)
	}
}

func TestInvalidValuesRejected(t *testing.T) {
	b, s := newTestBuffer(t, 3)
	for _, p := range []Pixel{{R: -1}, {R: 256}, {G: 300}, {B: -7}} {
		if err := b.SetPixel(0, p); !errors.Is(err, ErrChannel) {
			t.Errorf("SetPixel(%v): got %v, want ErrChannel", p, err)
		}
		if err := b.SetRange(0, 3, p); !errors.Is(err, ErrChannel) {
			t.Errorf("SetRange(%v): got %v, want ErrChannel", p, err)
		}
	}
	for _, f := range []float64{-0.1, 1.1} {
		if err := b.SetBrightness(0, f); !errors.Is(err, ErrBrightness) {
			t.Errorf("SetBrightness(%v): got %v, want ErrBrightness", f, err)
		}
		if err := b.SetRangeBrightness(0, 3, f); !errors.Is(err, ErrBrightness) {
			t.Errorf("SetRangeBrightness(%v): got %v, want ErrBrightness", f, err)
		}
	}
	if got, _ := b.GetPixel(0); got != (Pixel{}) {
		t.Errorf("rejected write still stored color %v", got)
	}
	if f, _ := b.GetBrightness(0); f != DefaultBrightness {
		t.Errorf("rejected write still stored brightness %v", f)
	}
	if len(s.frames) != 0 {
		t.Errorf("failed calls transmitted %d frames, want 0", len(s.frames))
	}
}

func TestSetColorsMixed(t *testing.T) {
	b, _ := newTestBuffer(t, 5)
	r := &scriptRand{vals: []int{1, 2, 3}}
	b.SetRand(r.next)
	colors := []*Pixel{{R: 10, G: 20, B: 30}, nil, {R: 40, G: 50, B: 60}}
	if err := b.SetColors(1, colors); err != nil {
		t.Fatalf("SetColors: %v", err)
	}
	want := []Pixel{{}, {R: 10, G: 20, B: 30}, {R: 1, G: 2, B: 3}, {R: 40, G: 50, B: 60}, {}}
	got := b.GetPixels()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pixel %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if r.calls != 3 {
		t.Errorf("nil entry drew %d values, want 3", r.calls)
	}
}

func TestSetColorsValidatesBeforeWriting(t *testing.T) {
	b, s := newTestBuffer(t, 3)
	colors := []*Pixel{{R: 10}, {R: 999}}
	if err := b.SetColors(0, colors); !errors.Is(err, ErrChannel) {
		t.Fatalf("SetColors: got %v, want ErrChannel", err)
	}
	if got, _ := b.GetPixel(0); got != (Pixel{}) {
		t.Errorf("partial write: pixel 0 is %v, want black", got)
	}
	if err := b.SetColors(2, []*Pixel{{R: 1}, {R: 2}}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("SetColors beyond end: got %v, want ErrOutOfRange", err)
	}
	if len(s.frames) != 0 {
		t.Errorf("failed calls transmitted %d frames, want 0", len(s.frames))
	}
}

func TestIndependentVersusSolidDraws(t *testing.T) {
	b, _ := newTestBuffer(t, 10)
	r := &scriptRand{vals: []int{3}}
	b.SetRand(r.next)

	if err := b.SetAllRandom(); err != nil {
		t.Fatalf("SetAllRandom: %v", err)
	}
	if r.calls != 30 {
		t.Errorf("SetAllRandom drew %d values, want 30", r.calls)
	}

	r.calls = 0
	if err := b.SetAllRandomSolid(); err != nil {
		t.Fatalf("SetAllRandomSolid: %v", err)
	}
	if r.calls != 3 {
		t.Errorf("SetAllRandomSolid drew %d values, want 3", r.calls)
	}
	got := b.GetPixels()
	for i := 1; i < len(got); i++ {
		if got[i] != got[0] {
			t.Errorf("solid fill differs at %d: %v vs %v", i, got[i], got[0])
		}
	}

	r.calls = 0
	if err := b.SetRangeBrightnessRandom(0, 5, 0.2, 0.8); err != nil {
		t.Fatalf("SetRangeBrightnessRandom: %v", err)
	}
	if r.calls != 5 {
		t.Errorf("SetRangeBrightnessRandom drew %d values, want 5", r.calls)
	}

	r.calls = 0
	if err := b.SetRangeBrightnessRandomSolid(0, 5, 0.2, 0.8); err != nil {
		t.Fatalf("SetRangeBrightnessRandomSolid: %v", err)
	}
	if r.calls != 1 {
		t.Errorf("SetRangeBrightnessRandomSolid drew %d values, want 1", r.calls)
	}
	for i := 1; i < 5; i++ {
		f0, _ := b.GetBrightness(0)
		fi, _ := b.GetBrightness(i)
		if fi != f0 {
			t.Errorf("solid brightness differs at %d: %v vs %v", i, fi, f0)
		}
	}
}

func TestRandBrightnessScale(t *testing.T) {
	b, _ := newTestBuffer(t, 1)
	r := &scriptRand{vals: []int{7}}
	b.SetRand(r.next)
	if err := b.SetBrightnessRandom(0, 0.2, 0.8); err != nil {
		t.Fatalf("SetBrightnessRandom: %v", err)
	}
	if r.lastLo != 2 || r.lastHi != 8 {
		t.Errorf("drew over (%d,%d), want (2,8)", r.lastLo, r.lastHi)
	}
	if f, _ := b.GetBrightness(0); f != 0.7 {
		t.Errorf("got brightness %v, want 0.7", f)
	}
}

func TestRandBrightnessBadRange(t *testing.T) {
	b, _ := newTestBuffer(t, 1)
	r := &scriptRand{vals: []int{5}}
	b.SetRand(r.next)
	tests := []struct {
		min, max float64
	}{
		{-0.1, 0.5},
		{0.5, 1.1},
		{0.8, 0.2},
	}
	for _, tt := range tests {
		if err := b.SetBrightnessRandom(0, tt.min, tt.max); !errors.Is(err, ErrBrightness) {
			t.Errorf("SetBrightnessRandom(%v,%v): got %v, want ErrBrightness", tt.min, tt.max, err)
		}
	}
	if r.calls != 0 {
		t.Errorf("bad ranges still drew %d values, want 0", r.calls)
	}
}

func TestGeneratorViolationPropagates(t *testing.T) {
	b, _ := newTestBuffer(t, 2)

	b.SetRand((&scriptRand{vals: []int{300}}).next)
	if err := b.SetPixelRandom(0); !errors.Is(err, ErrRand) {
		t.Errorf("high channel draw: got %v, want ErrRand", err)
	}
	b.SetRand((&scriptRand{vals: []int{-1}}).next)
	if err := b.SetPixelRandom(0); !errors.Is(err, ErrRand) {
		t.Errorf("low channel draw: got %v, want ErrRand", err)
	}
	b.SetRand((&scriptRand{vals: []int{11}}).next)
	if err := b.SetBrightnessRandom(0, 0, 1); !errors.Is(err, ErrRand) {
		t.Errorf("high brightness draw: got %v, want ErrRand", err)
	}

	if got, _ := b.GetPixel(0); got != (Pixel{}) {
		t.Errorf("violating draw still stored color %v", got)
	}
	if f, _ := b.GetBrightness(0); f != DefaultBrightness {
		t.Errorf("violating draw still stored brightness %v", f)
	}
}

func TestAutoRefreshPerCall(t *testing.T) {
	b, s := newTestBuffer(t, 3)
	if err := b.SetPixel(0, Pixel{R: 255}); err != nil {
		t.Fatalf("SetPixel: %v", err)
	}
	if len(s.frames) != 1 {
		t.Fatalf("after SetPixel: %d frames, want 1", len(s.frames))
	}
	if s.lastBits != WordBits {
		t.Errorf("frame wordBits: got %d, want %d", s.lastBits, WordBits)
	}
	if s.frames[0][0] != 0x001900 {
		t.Errorf("frame word 0: got %06x, want 001900", s.frames[0][0])
	}
	if err := b.SetAll(Pixel{G: 255}); err != nil {
		t.Fatalf("SetAll: %v", err)
	}
	if len(s.frames) != 2 {
		t.Errorf("after SetAll: %d frames, want 2", len(s.frames))
	}
}

func TestBatchFlushesOnce(t *testing.T) {
	b, s := newTestBuffer(t, 3)
	err := b.Batch(func() error {
		if err := b.SetPixel(0, Pixel{R: 255}); err != nil {
			return err
		}
		if err := b.SetAllBrightness(1); err != nil {
			return err
		}
		return b.SetPixel(2, Pixel{B: 255})
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(s.frames) != 1 {
		t.Fatalf("after Batch: %d frames, want 1", len(s.frames))
	}
	want := []uint32{0x00ff00, 0, 0x0000ff}
	for i := range want {
		if s.frames[0][i] != want[i] {
			t.Errorf("frame word %d: got %06x, want %06x", i, s.frames[0][i], want[i])
		}
	}
}

func TestBatchNests(t *testing.T) {
	b, s := newTestBuffer(t, 2)
	err := b.Batch(func() error {
		if err := b.SetPixel(0, Pixel{R: 1}); err != nil {
			return err
		}
		return b.Batch(func() error {
			return b.SetPixel(1, Pixel{G: 1})
		})
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(s.frames) != 1 {
		t.Errorf("after nested Batch: %d frames, want 1", len(s.frames))
	}
}

func TestBatchErrorSkipsFlush(t *testing.T) {
	b, s := newTestBuffer(t, 2)
	boom := errors.New("boom")
	if err := b.Batch(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Batch: got %v, want boom", err)
	}
	if len(s.frames) != 0 {
		t.Errorf("failed Batch transmitted %d frames, want 0", len(s.frames))
	}
	// The depth counter must unwind so later calls still refresh.
	if err := b.SetPixel(0, Pixel{R: 1}); err != nil {
		t.Fatalf("SetPixel: %v", err)
	}
	if len(s.frames) != 1 {
		t.Errorf("after recovery: %d frames, want 1", len(s.frames))
	}
}

func TestDeferredRefresh(t *testing.T) {
	b, s := newTestBuffer(t, 2, WithDeferredRefresh())
	if err := b.SetPixel(0, Pixel{R: 255}); err != nil {
		t.Fatalf("SetPixel: %v", err)
	}
	if err := b.SetAllBrightness(1); err != nil {
		t.Fatalf("SetAllBrightness: %v", err)
	}
	err := b.Batch(func() error {
		return b.SetPixel(1, Pixel{G: 255})
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(s.frames) != 0 {
		t.Fatalf("deferred mode transmitted %d frames, want 0", len(s.frames))
	}
	if err := b.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(s.frames) != 1 {
		t.Errorf("after Refresh: %d frames, want 1", len(s.frames))
	}
}

func TestRefreshReportsTransmitError(t *testing.T) {
	s := &testStrip{err: errors.New("dma underrun")}
	b, err := New(2, s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.SetPixel(0, Pixel{R: 1}); !errors.Is(err, s.err) {
		t.Errorf("SetPixel: got %v, want the transmit error", err)
	}
	if err := b.Refresh(); !errors.Is(err, s.err) {
		t.Errorf("Refresh: got %v, want the transmit error", err)
	}
}

func BenchmarkTransmitWords(b *testing.B) {
	buf, err := New(300, &testStrip{}, WithDeferredRefresh())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	for i := 0; i < 300; i++ {
		if err := buf.SetPixel(i, Pixel{R: i % 256, G: (i * 7) % 256, B: (i * 13) % 256}); err != nil {
			b.Fatalf("SetPixel: %v", err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.TransmitWords()
	}
}

func BenchmarkSetAllRandom(b *testing.B) {
	buf, err := New(300, &testStrip{}, WithDeferredRefresh())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := buf.SetAllRandom(); err != nil {
			b.Fatalf("SetAllRandom: %v", err)
		}
	}
}
