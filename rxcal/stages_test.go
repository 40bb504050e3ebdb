package rxcal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTIASeed(t *testing.T) {
	tests := []struct {
		name  string
		bw    float64
		tier  int
		cfb   int
		ccomp int
		rcomp int
	}{
		{"5MHz high gain", 5e6, 3, 326, 3, 9},
		{"5MHz mid gain", 5e6, 2, 326, 3, 9},
		{"5MHz low gain", 5e6, 1, 1070, 11, 0},
		{"1MHz low gain clamps", 1e6, 1, 4095, 15, 0},
		{"50MHz high gain", 50e6, 3, 23, 0, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfb, ccomp, rcomp, err := TIASeed(tt.bw, tt.tier)
			require.NoError(t, err)
			assert.Equal(t, tt.cfb, cfb)
			assert.Equal(t, tt.ccomp, ccomp)
			assert.Equal(t, tt.rcomp, rcomp)
		})
	}

	for _, tier := range []int{0, 4} {
		_, _, _, err := TIASeed(5e6, tier)
		assert.ErrorIs(t, err, ErrInvalidGainTier)
	}
}

func TestLPFLSeed(t *testing.T) {
	tests := []struct {
		bw  float64
		c   int
		rcc int
	}{
		{5e6, 329, 2},
		{5.5e6, 290, 3},
		{10e6, 113, 3},
		{12e6, 77, 4},
		{16e6, 32, 5},
		{2e6, 977, 1},
		{1e6, 2047, 0},
		{0.5e6, 2047, 0},
	}

	for _, tt := range tests {
		c, rcc := LPFLSeed(tt.bw)
		assert.Equal(t, tt.c, c, "c at %.1f MHz", tt.bw/1e6)
		assert.Equal(t, tt.rcc, rcc, "rcc at %.1f MHz", tt.bw/1e6)
	}
}

func TestLPFHSeed(t *testing.T) {
	tests := []struct {
		bw  float64
		c   int
		rcc int
	}{
		{20e6, 250, 0},
		{50e6, 70, 2},
		{100e6, 10, 7},
		{130e6, 0, 7},
	}

	for _, tt := range tests {
		c, rcc := LPFHSeed(tt.bw)
		assert.Equal(t, tt.c, c, "c at %.1f MHz", tt.bw/1e6)
		assert.Equal(t, tt.rcc, rcc, "rcc at %.1f MHz", tt.bw/1e6)
	}
}

func TestEffectiveBandwidth(t *testing.T) {
	tests := []struct {
		requested float64
		bw        float64
		path      Path
	}{
		{10e6, 5e6, PathLowBand},
		{1e6, 0.5e6, PathLowBand},
		{0, 0.5e6, PathLowBand},
		{39.9e6, 19.95e6, PathLowBand},
		{40e6, 20e6, PathHighBand},
		{260e6, 130e6, PathHighBand},
		{300e6, 150e6, PathHighBand},
	}

	for _, tt := range tests {
		bw, path := EffectiveBandwidth(tt.requested)
		assert.Equal(t, tt.bw, bw)
		assert.Equal(t, tt.path, path)
	}
}

func TestCalibrationClock(t *testing.T) {
	assert.Equal(t, 60e6, calibrationClock(1e6))
	assert.Equal(t, 200e6, calibrationClock(10e6))
	assert.Equal(t, 640e6, calibrationClock(130e6))
}

func TestCalibrateLPFHOutOfRange(t *testing.T) {
	chip := newFakeChip(fixed(0))
	d := newFakeDevice(t, chip)

	for _, bw := range []float64{19.9e6, 130.1e6} {
		err := d.calibrateLPFH(ChannelA, bw)
		assert.ErrorIs(t, err, ErrOutOfRange)
	}
	assert.Zero(t, chip.writes)
	assert.Zero(t, chip.rssiReads)
}

func TestCalibrateTIASkipsSearchOutsideRange(t *testing.T) {
	tests := []struct {
		name  string
		bw    float64
		cfb   int
		ccomp int
	}{
		{"narrow", 0.5e6, 4095, 15},
		{"wide", 60e6, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip := newFakeChip(fixed(0))
			d := newFakeDevice(t, chip)

			require.NoError(t, d.calibrateTIA(ChannelA, tt.bw, 1000, 1))

			assert.Zero(t, chip.rssiReads)
			assert.Equal(t, tt.cfb, chip.regs[ChannelA].Get(CfbTIARFE))
			assert.Equal(t, tt.ccomp, chip.regs[ChannelA].Get(CcompTIARFE))
			assert.Equal(t, 2, chip.regs[ChannelA].Get(InputCtlPGARBB))
			assert.Equal(t, 1, chip.regs[ChannelA].Get(PdLPFLRBB))
			assert.Equal(t, 1, chip.regs[ChannelA].Get(PdLPFHRBB))
		})
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Status
	}{
		{"nil", nil, StatusOK},
		{"reference", ErrReferenceNotInitialized, StatusReferenceNotInitialized},
		{"init wraps lo", fmt.Errorf("%w: %w", ErrInitFailed, ErrLOTuneFailed), StatusInitFailed},
		{"both stages", errors.Join(ErrTIACalFailed, ErrRBBCalFailed), StatusRBBCalFailed},
		{"tia only", ErrTIACalFailed, StatusTIACalFailed},
		{"gain tier", ErrInvalidGainTier, StatusInvalidGainTier},
		{"range", ErrOutOfRange, StatusOutOfRange},
		{"lo", ErrLOTuneFailed, StatusLOTuneFailed},
		{"bus", ErrBusFault, StatusBusFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusOf(tt.err))
		})
	}

	text, err := StatusRBBCalFailed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "rbb_cal_failed", string(text))
}

func TestPathAndStatusText(t *testing.T) {
	for _, p := range []Path{PathBypass, PathLowBand, PathHighBand} {
		text, err := p.MarshalText()
		require.NoError(t, err)
		var back Path
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, p, back)
	}
	var p Path
	assert.Error(t, p.UnmarshalText([]byte("wide")))

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("rbb_cal_failed")))
	assert.Equal(t, StatusRBBCalFailed, s)
	assert.Error(t, s.UnmarshalText([]byte("fine")))
}
