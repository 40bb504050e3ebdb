package plugins

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linht/rx-filter-cal/rxcal"
)

// fakePort models the MAC-banked register file of the chip
type fakePort struct {
	global  map[uint16]uint16
	banked  [4]map[uint16]uint16
	writes  []RegisterWrite
	lockCSW int
	closed  bool
}

func newFakePort() *fakePort {
	p := &fakePort{global: map[uint16]uint16{}, lockCSW: -1}
	for i := range p.banked {
		p.banked[i] = map[uint16]uint16{}
	}
	return p
}

func (p *fakePort) bank(addr uint16) map[uint16]uint16 {
	if addr < 0x0100 {
		return p.global
	}
	return p.banked[p.global[RegMAC]&macMask]
}

func (p *fakePort) WriteRegister(addr uint16, value uint16) error {
	p.writes = append(p.writes, RegisterWrite{addr, value})
	p.bank(addr)[addr] = value
	return nil
}

func (p *fakePort) ReadRegister(addr uint16) (uint16, error) {
	if addr == RegSXCmp {
		return p.comparators(), nil
	}
	return p.bank(addr)[addr], nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

// comparators locks within two steps above lockCSW. Higher settings report
// both thresholds exceeded. A negative lockCSW never locks.
func (p *fakePort) comparators() uint16 {
	if p.lockCSW < 0 {
		return 0
	}
	csw := int(p.bank(RegSXVCO)[RegSXVCO]>>cswPos) & 0xFF
	switch {
	case csw > p.lockCSW+2:
		return CmpVCOHigh | CmpVCOLow
	case csw < p.lockCSW-2:
		return 0
	}
	return CmpVCOHigh
}

func (p *fakePort) countWrites(addr uint16) int {
	n := 0
	for _, w := range p.writes {
		if w.Addr == addr {
			n++
		}
	}
	return n
}

func TestEncodeFrame(t *testing.T) {
	assert.Equal(t, []byte{0x81, 0x12, 0xAB, 0xCD}, encodeFrame(true, 0x0112, 0xABCD))
	assert.Equal(t, []byte{0x00, 0x20, 0x00, 0x00}, encodeFrame(false, 0x0020, 0xFFFF))
	assert.Equal(t, []byte{0x7F, 0xFF, 0x00, 0x00}, encodeFrame(false, 0xFFFF, 0))
	assert.Equal(t, uint16(0x1234), decodeData([]byte{0xFF, 0xFF, 0x12, 0x34}))
}

func TestPlanSX(t *testing.T) {
	plan, err := planSX(30.72e6, 1e9)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.DivLoch)
	assert.False(t, plan.EnDiv2)
	assert.Equal(t, 126, plan.Int)
	assert.Equal(t, 218453, plan.Frac)
	assert.InDelta(t, 1e9, plan.Actual, 10)

	plan, err = planSX(30.72e6, 3e9)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.DivLoch)
	assert.True(t, plan.EnDiv2)
	assert.Equal(t, 93, plan.Int)
	assert.InDelta(t, 3e9, plan.Actual, 10)

	_, err = planSX(30.72e6, 10e6)
	assert.Error(t, err)
	_, err = planSX(30.72e6, 5e9)
	assert.Error(t, err)
	_, err = planSX(0, 1e9)
	assert.Error(t, err)
}

func TestPlanCGEN(t *testing.T) {
	plan, err := planCGEN(30.72e6, 61.44e6)
	require.NoError(t, err)
	assert.Equal(t, 16, plan.Div)
	assert.Equal(t, 67, plan.Int)
	assert.Equal(t, 0, plan.Frac)
	assert.InDelta(t, 61.44e6, plan.Actual, 1e-3)

	plan, err = planCGEN(30.72e6, 640e6)
	require.NoError(t, err)
	assert.InDelta(t, 640e6, plan.Actual, 10)

	_, err = planCGEN(30.72e6, 2e9)
	assert.Error(t, err)
}

func TestMACSelectionIsCached(t *testing.T) {
	port := newFakePort()
	c := NewLMS7002MController(port, nil)

	require.NoError(t, c.WriteRegister(rxcal.ChannelA, 0x0112, 0x1111))
	require.NoError(t, c.WriteRegister(rxcal.ChannelA, 0x0113, 0x2222))
	assert.Equal(t, 1, port.countWrites(RegMAC))

	require.NoError(t, c.WriteRegister(rxcal.ChannelB, 0x0112, 0x3333))
	assert.Equal(t, 2, port.countWrites(RegMAC))

	// Global registers never touch the MAC
	require.NoError(t, c.WriteRegister(rxcal.ChannelA, 0x0082, 0x4444))
	assert.Equal(t, 2, port.countWrites(RegMAC))

	v, err := c.ReadRegister(rxcal.ChannelA, 0x0112)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1111), v)
	v, err = c.ReadRegister(rxcal.ChannelB, 0x0112)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x3333), v)
	assert.Equal(t, uint16(0x4444), port.global[0x0082])
}

func TestRawMACWriteUpdatesCache(t *testing.T) {
	port := newFakePort()
	c := NewLMS7002MController(port, nil)

	require.NoError(t, c.WriteRegister(rxcal.ChannelA, 0x0112, 0x1111))
	require.NoError(t, c.WriteRegister(rxcal.ChannelA, RegMAC, MACChannelB))
	require.NoError(t, c.WriteRegister(rxcal.ChannelA, 0x0112, 0x2222))

	assert.Equal(t, uint16(0x2222), port.banked[MACChannelA][0x0112])
	assert.NotContains(t, port.banked[MACChannelB], uint16(0x0112))
}

func TestDeviceMACWriteKeepsChannelsApart(t *testing.T) {
	port := newFakePort()
	c := NewLMS7002MController(port, nil)
	d, err := rxcal.NewDevice(c.Hardware(), rxcal.Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	require.NoError(t, d.WriteRegister(rxcal.ChannelA, 0x0112, 0x1111))
	require.NoError(t, d.WriteRegister(rxcal.ChannelA, RegMAC, MACChannelB))
	require.NoError(t, d.WriteRegister(rxcal.ChannelA, 0x0112, 0x2222))
	assert.Equal(t, uint16(0x2222), port.banked[MACChannelA][0x0112])
	assert.NotContains(t, port.banked[MACChannelB], uint16(0x0112))

	// The stored MAC word is replayed first; channel A must still land on A
	require.NoError(t, d.Flush())
	assert.Equal(t, uint16(0x2222), port.banked[MACChannelA][0x0112])
	assert.Equal(t, d.Registers(rxcal.ChannelB)[0x0112], port.banked[MACChannelB][0x0112])
}

func TestResetRequiresLine(t *testing.T) {
	c := NewLMS7002MController(newFakePort(), nil)
	assert.Error(t, c.Reset())
}

func TestReadRSSI(t *testing.T) {
	port := newFakePort()
	c := NewLMS7002MController(port, nil)

	port.banked[MACChannelB][RegRxTSPCapture] = 0x6000 | 0x0042
	port.banked[MACChannelB][RegRSSILo] = 0xFFFF
	port.banked[MACChannelB][RegRSSIHi] = 0x1234

	rssi, err := c.ReadRSSI(rxcal.ChannelB)
	require.NoError(t, err)
	assert.Equal(t, 0x1234<<2|3, rssi)

	// capsel cleared, strobe pulsed and released
	var captures []uint16
	for _, w := range port.writes {
		if w.Addr == RegRxTSPCapture {
			captures = append(captures, w.Value)
		}
	}
	assert.Equal(t, []uint16{0x0042, 0x0042 | CaptureStrobe, 0x0042}, captures)
}

func TestSetLOFrequencyLocks(t *testing.T) {
	port := newFakePort()
	port.lockCSW = 100
	c := NewLMS7002MController(port, nil)

	got, err := c.SetLOFrequency(rxcal.TX, 30.72e6, 1e9)
	require.NoError(t, err)
	assert.InDelta(t, 1e9, got, 10)

	sxt := port.banked[MACChannelB]
	assert.Equal(t, uint16(126<<4|218453>>16), sxt[RegSXIntFrac])
	assert.Equal(t, uint16(218453&0xFFFF), sxt[RegSXFracLo])
	assert.Equal(t, uint16(1), sxt[RegSXDiv]>>divLochPos&0x7)
	assert.Equal(t, 102, int(sxt[RegSXVCO]>>cswPos)&0xFF)

	// SXR untouched
	assert.Empty(t, port.banked[MACChannelA])
}

func TestSetLOFrequencyNoLock(t *testing.T) {
	port := newFakePort()
	c := NewLMS7002MController(port, nil)

	_, err := c.SetLOFrequency(rxcal.RX, 30.72e6, 1e9)
	assert.ErrorIs(t, err, ErrVCONotLocked)
}

func TestSynthesizerPowerBits(t *testing.T) {
	port := newFakePort()
	c := NewLMS7002MController(port, nil)
	port.banked[MACChannelA][RegSXCfg] = SXCfgPdVCO | SXCfgPdLochT2RBuf

	require.NoError(t, c.EnableSynthesizer(rxcal.RX, true))
	require.NoError(t, c.ShareTxLO(true))
	assert.Equal(t, uint16(SXCfgEnG), port.banked[MACChannelA][RegSXCfg])

	require.NoError(t, c.EnableSynthesizer(rxcal.RX, false))
	require.NoError(t, c.ShareTxLO(false))
	assert.Equal(t, uint16(SXCfgPdVCO|SXCfgPdLochT2RBuf), port.banked[MACChannelA][RegSXCfg])
}

func TestSetClockFrequency(t *testing.T) {
	port := newFakePort()
	c := NewLMS7002MController(port, nil)
	port.global[RegCGENDiv] = 0x8007

	got, err := c.SetClockFrequency(30.72e6, 61.44e6)
	require.NoError(t, err)
	assert.InDelta(t, 61.44e6, got, 1e-3)
	assert.Equal(t, uint16(67<<4), port.global[RegCGENIntFrac])
	assert.Equal(t, uint16(0), port.global[RegCGENFracLo])
	assert.Equal(t, uint16(0x8007|16<<3), port.global[RegCGENDiv])
}

func TestControllerClose(t *testing.T) {
	port := newFakePort()
	c := NewLMS7002MController(port, nil)
	require.NoError(t, c.Close())
	assert.True(t, port.closed)
}
