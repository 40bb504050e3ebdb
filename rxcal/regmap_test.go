package rxcal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldInsertExtract(t *testing.T) {
	word := DefaultRegisterValues[0x0112]
	assert.Equal(t, 0x032, CfbTIARFE.Extract(word))
	assert.Equal(t, 4, CcompTIARFE.Extract(word))

	word = CfbTIARFE.Insert(word, 4095)
	assert.Equal(t, 4095, CfbTIARFE.Extract(word))
	assert.Equal(t, 4, CcompTIARFE.Extract(word), "neighbouring field must survive")
	assert.Equal(t, 3, GTIARFE.Extract(DefaultRegisterValues[0x0113]))
	assert.True(t, PdRxAFE1.Shared())
	assert.False(t, CfbTIARFE.Shared())
}

func TestRegisterMapSetBounds(t *testing.T) {
	m := NewRegisterMap(DefaultRegisterValues)

	require.NoError(t, m.Set(RCtlLPFRBB, 31))
	assert.Equal(t, 31, m.Get(RCtlLPFRBB))
	assert.ErrorIs(t, m.Set(RCtlLPFRBB, 32), ErrFieldRange)
	assert.ErrorIs(t, m.Set(RCtlLPFRBB, -1), ErrFieldRange)
	assert.Equal(t, 31, m.Get(RCtlLPFRBB))

	clone := m.Clone()
	require.NoError(t, clone.Set(RCtlLPFRBB, 0))
	assert.Equal(t, 31, m.Get(RCtlLPFRBB), "clone must not alias")
}

func TestSharedFieldsMirror(t *testing.T) {
	chip := newFakeChip(fixed(0))
	d := newFakeDevice(t, chip)

	require.NoError(t, d.WriteField(ChannelB, PdRxAFE2, 0))

	assert.Equal(t, 0, d.Field(ChannelA, PdRxAFE2))
	assert.Equal(t, 0, d.Field(ChannelB, PdRxAFE2))
	assert.Equal(t, d.Registers(ChannelA)[0x0082], d.Registers(ChannelB)[0x0082])
	assert.Equal(t, 1, chip.writes)
}

func TestParseDefaults(t *testing.T) {
	data := []byte(`
"0x0112": "0x4040"
"0x0119": "21004"
`)
	defaults, err := ParseDefaults(data)
	require.NoError(t, err)

	assert.Equal(t, uint16(0x4040), defaults[0x0112])
	assert.Equal(t, uint16(21004), defaults[0x0119])
	assert.Equal(t, DefaultRegisterValues[0x0116], defaults[0x0116])
	assert.NotEqual(t, uint16(0x4040), DefaultRegisterValues[0x0112], "package defaults must stay untouched")

	_, err = ParseDefaults([]byte(`"0x10000": "0"`))
	assert.Error(t, err)
	_, err = ParseDefaults([]byte(`"0x0112": "banana"`))
	assert.Error(t, err)
}

func TestSnapshotRestore(t *testing.T) {
	chip := newFakeChip(fixed(0))
	d := newFakeDevice(t, chip)
	saved := d.snapshot()

	d.setAndWrite(ChannelA, CfbTIARFE, 77)
	d.setAndWrite(ChannelB, CCtlLPFLRBB, 12)
	d.setAndWrite(ChannelA, PdTxAFE1, 0)
	assert.Equal(t, 0x032, saved.Get(ChannelA, CfbTIARFE))
	assert.Equal(t, 77, d.Get(ChannelA, CfbTIARFE))

	d.restore(saved)
	require.NoError(t, d.takeErr())

	for _, ch := range []Channel{ChannelA, ChannelB} {
		assert.Equal(t, DefaultRegisterValues, d.Registers(ch))
		assert.Equal(t, DefaultRegisterValues, chip.regs[ch].Words())
	}
}
