package rxcal

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchTrimConverges(t *testing.T) {
	tests := []struct {
		name      string
		field     Field
		threshold int
	}{
		{"cfb low end", CfbTIARFE, 2},
		{"cfb midscale", CfbTIARFE, 2048},
		{"cfb odd", CfbTIARFE, 1337},
		{"cfb top", CfbTIARFE, 4095},
		{"lpfl", CCtlLPFLRBB, 225},
		{"lpfh", CCtlLPFHRBB, 15},
		{"r_ctl", RCtlLPFRBB, 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip := newFakeChip(step(tt.field, func(*RegisterMap) int { return tt.threshold }))
			d := newFakeDevice(t, chip)
			writes := chip.writes

			out := d.searchTrim(ChannelA, tt.field, 500)

			assert.Equal(t, OutcomeOK, out)
			assert.Equal(t, chip.rssiReads, chip.writes-writes, "one write per sample")
			assert.InDelta(t, tt.threshold, d.Get(ChannelA, tt.field), 1)
			assert.Equal(t, bits.Len(uint(tt.field.Max())), chip.rssiReads)
			assert.Equal(t, d.Get(ChannelA, tt.field), chip.regs[ChannelA].Get(tt.field), "final candidate must be on the chip")
			assert.NoError(t, d.takeErr())
		})
	}
}

func TestSearchTrimSaturation(t *testing.T) {
	tests := []struct {
		name     string
		rssi     int
		expected Outcome
	}{
		{"never reaches target", 0, OutcomeHigh},
		{"always above target", 1000, OutcomeLow},
		{"exactly at target", 500, OutcomeLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip := newFakeChip(fixed(tt.rssi))
			d := newFakeDevice(t, chip)

			out := d.searchTrim(ChannelB, CCtlLPFLRBB, 500)

			assert.Equal(t, tt.expected, out)
			v := d.Get(ChannelB, CCtlLPFLRBB)
			assert.GreaterOrEqual(t, v, 0)
			assert.LessOrEqual(t, v, CCtlLPFLRBB.Max())
			assert.Equal(t, 11, chip.rssiReads)
		})
	}
}

func TestSearchTrimChannelIsolation(t *testing.T) {
	chip := newFakeChip(step(CfbTIARFE, func(*RegisterMap) int { return 700 }))
	d := newFakeDevice(t, chip)
	before := d.Registers(ChannelA)

	d.searchTrim(ChannelB, CfbTIARFE, 500)

	assert.Equal(t, before, d.Registers(ChannelA))
	assert.Equal(t, before, chip.regs[ChannelA].Words())
}

func TestCalibrateWithRComp(t *testing.T) {
	tests := []struct {
		name      string
		rssi      func(m *RegisterMap) int
		retries   int
		finalR    int
		expectErr bool
	}{
		{
			name:    "converges without retry",
			rssi:    step(CCtlLPFLRBB, func(*RegisterMap) int { return 300 }),
			retries: 0,
			finalR:  16,
		},
		{
			name: "needs more resistance",
			rssi: step(CCtlLPFLRBB, func(m *RegisterMap) int {
				return (m.Get(RCtlLPFRBB) - 20) * 10
			}),
			retries: 1,
			finalR:  24,
		},
		{
			name:      "never reaches target",
			rssi:      fixed(0),
			retries:   4,
			finalR:    31,
			expectErr: true,
		},
		{
			name:      "always above target",
			rssi:      fixed(1000),
			retries:   4,
			finalR:    1,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip := newFakeChip(tt.rssi)
			d := newFakeDevice(t, chip)
			d.setAndWrite(ChannelA, RCtlLPFRBB, 16)

			var retries int
			d.observer = func(ev Event) {
				if ev.Kind == EventRetry {
					retries++
				}
			}

			err := d.calibrateWithRComp(ChannelA, 5e6, CCtlLPFLRBB, 500)

			if tt.expectErr {
				assert.ErrorIs(t, err, ErrRCompExhausted)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.retries, retries)
			assert.LessOrEqual(t, retries, 4)
			assert.Equal(t, tt.finalR, d.Get(ChannelA, RCtlLPFRBB))
			assert.Equal(t, tt.finalR, chip.regs[ChannelA].Get(RCtlLPFRBB))
		})
	}
}

func TestBusFaultIsSticky(t *testing.T) {
	chip := newFakeChip(fixed(0))
	chip.failBus = true
	d := newFakeDevice(t, chip)

	d.setAndWrite(ChannelA, CfbTIARFE, 10)
	d.setAndWrite(ChannelA, CfbTIARFE, 20)

	err := d.takeErr()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusFault)
	assert.Contains(t, err.Error(), "0x0112")
	assert.NoError(t, d.takeErr())
}
