package rxcal

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultRegisterValues holds the power-on word of every register the
// calibration engine touches.
var DefaultRegisterValues = map[uint16]uint16{
	// AFE, bias
	0x0082: 0x800B,
	0x0083: 0x0000,
	0x0084: 0x0400,

	// TRF
	0x0100: 0x3409,
	0x0101: 0x7800,
	0x0102: 0x3180,
	0x0103: 0x0A12,
	0x0104: 0x0088,

	// TBB
	0x0105: 0x0007,
	0x0106: 0x318C,
	0x0107: 0x318C,
	0x0108: 0x9426,
	0x0109: 0x61C1,
	0x010A: 0x104C,
	0x010B: 0x0000,

	// RFE
	0x010C: 0x88FD,
	0x010D: 0x009E,
	0x010E: 0x2040,
	0x010F: 0x3042,
	0x0110: 0x0BF4,
	0x0111: 0x0083,
	0x0112: 0x4032,
	0x0113: 0x03DF,
	0x0114: 0x008D,

	// RBB
	0x0115: 0x000C,
	0x0116: 0x8180,
	0x0117: 0x280C,
	0x0118: 0x018C,
	0x0119: 0x528C,
	0x011A: 0x2E02,
	0x011B: 0x0000,

	// TxTSP
	0x0200: 0x0081,
	0x0201: 0x07FF,
	0x0202: 0x07FF,
	0x0203: 0x0000,
	0x0204: 0x0000,
	0x0205: 0x0000,
	0x0206: 0x0000,
	0x0207: 0x0000,
	0x0208: 0x0000,
	0x0209: 0x0000,
	0x020A: 0x0080,
	0x020B: 0x0000,
	0x020C: 0x8000,

	// RxTSP
	0x0400: 0x0081,
	0x0401: 0x07FF,
	0x0402: 0x07FF,
	0x0403: 0x0000,
	0x0404: 0x0000,
	0x0405: 0x0000,
	0x0406: 0x0000,
	0x0407: 0x0000,
	0x0408: 0x0000,
	0x0409: 0x0000,
	0x040A: 0x1020,
	0x040B: 0x0000,
	0x040C: 0x00F8,
	0x040D: 0x0000,
	0x040E: 0x0000,
	0x040F: 0x0000,

	// RxNCO
	0x0440: 0x0020,
	0x0441: 0x0000,
	0x0442: 0x0000,
	0x0443: 0x0000,
}

// RegisterMap is the shadow copy of one channel's registers.
type RegisterMap struct {
	words map[uint16]uint16
}

// NewRegisterMap returns a map loaded with defaults.
func NewRegisterMap(defaults map[uint16]uint16) *RegisterMap {
	return &RegisterMap{words: maps.Clone(defaults)}
}

// Get returns the current value of f.
func (m *RegisterMap) Get(f Field) int {
	return f.Extract(m.words[f.Addr])
}

// Set stores v into f after checking the field bounds.
func (m *RegisterMap) Set(f Field, v int) error {
	if v < 0 || v > f.Max() {
		return fmt.Errorf("%w: %s=%d not in [0, %d]", ErrFieldRange, f.Name, v, f.Max())
	}
	m.words[f.Addr] = f.Insert(m.words[f.Addr], v)
	return nil
}

// Word returns the raw register word at addr.
func (m *RegisterMap) Word(addr uint16) uint16 {
	return m.words[addr]
}

// SetWord replaces the raw register word at addr.
func (m *RegisterMap) SetWord(addr, value uint16) {
	m.words[addr] = value
}

// Addresses returns the known register addresses in ascending order.
func (m *RegisterMap) Addresses() []uint16 {
	return slices.Sorted(maps.Keys(m.words))
}

// Clone returns a deep copy of the map.
func (m *RegisterMap) Clone() *RegisterMap {
	return &RegisterMap{words: maps.Clone(m.words)}
}

// Words returns a copy of the raw register contents.
func (m *RegisterMap) Words() map[uint16]uint16 {
	return maps.Clone(m.words)
}

// Snapshot is a frozen copy of both channels' register maps.
type Snapshot struct {
	maps [2]*RegisterMap
}

// Word returns the word captured for addr on channel ch.
func (s Snapshot) Word(ch Channel, addr uint16) uint16 {
	return s.maps[ch].Word(addr)
}

// Get returns the captured value of f on channel ch.
func (s Snapshot) Get(ch Channel, f Field) int {
	return s.maps[ch].Get(f)
}

// ParseDefaults decodes a yaml document mapping register addresses to default
// words, e.g. "0x0112: 0x4032". Entries override DefaultRegisterValues.
func ParseDefaults(data []byte) (map[uint16]uint16, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse register defaults: %w", err)
	}

	out := maps.Clone(DefaultRegisterValues)
	for k, v := range raw {
		addr, err := strconv.ParseUint(k, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid register address %q: %w", k, err)
		}
		word, err := strconv.ParseUint(v, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for register %s: %w", v, k, err)
		}
		out[uint16(addr)] = uint16(word)
	}
	return out, nil
}
