package rxcal

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeChip keeps its own register copy and answers RSSI reads through a
// caller supplied response curve.
type fakeChip struct {
	regs      [2]*RegisterMap
	rssi      func(m *RegisterMap) int
	writes    int
	rssiReads int
	failBus   bool
}

func newFakeChip(rssi func(m *RegisterMap) int) *fakeChip {
	return &fakeChip{
		regs: [2]*RegisterMap{NewRegisterMap(DefaultRegisterValues), NewRegisterMap(DefaultRegisterValues)},
		rssi: rssi,
	}
}

func (c *fakeChip) WriteRegister(ch Channel, addr uint16, value uint16) error {
	if c.failBus {
		return errors.New("spi transfer failed")
	}
	c.writes++
	if addr < 0x0100 {
		c.regs[ChannelA].SetWord(addr, value)
		c.regs[ChannelB].SetWord(addr, value)
		return nil
	}
	c.regs[ch].SetWord(addr, value)
	return nil
}

func (c *fakeChip) ReadRegister(ch Channel, addr uint16) (uint16, error) {
	return c.regs[ch].Word(addr), nil
}

func (c *fakeChip) ReadRSSI(ch Channel) (int, error) {
	c.rssiReads++
	return c.rssi(c.regs[ch]), nil
}

func (c *fakeChip) EnableSynthesizer(Direction, bool) error { return nil }
func (c *fakeChip) ShareTxLO(bool) error                    { return nil }

func (c *fakeChip) SetLOFrequency(_ Direction, _, freq float64) (float64, error) {
	return freq, nil
}

func (c *fakeChip) SetClockFrequency(_, freq float64) (float64, error) {
	return freq, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFakeDevice(t *testing.T, chip *fakeChip) *Device {
	t.Helper()
	d, err := NewDevice(Hardware{Bus: chip, RSSI: chip, Synth: chip, Clock: chip}, Config{
		References: References{CGEN: 30.72e6, SXR: 30.72e6, SXT: 30.72e6},
		CGENFreq:   80e6,
		SXTFreq:    550e6,
		Logger:     testLogger(),
	})
	require.NoError(t, err)
	return d
}

// step reads high below threshold and zero from threshold on, the way a
// filter trim attenuates the tone as its code rises.
func step(f Field, threshold func(m *RegisterMap) int) func(m *RegisterMap) int {
	return func(m *RegisterMap) int {
		if m.Get(f) < threshold(m) {
			return 1000
		}
		return 0
	}
}

func fixed(v int) func(m *RegisterMap) int {
	return func(*RegisterMap) int { return v }
}
