// Package sim models the parts of an LMS7002M receive chain that filter
// calibration observes: loopback gain, the TIA and both RBB low pass filters,
// and the RSSI detector.
package sim

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/linht/rx-filter-cal/rxcal"
)

// FullScale is the RSSI reading of the tone with every gain at maximum and
// no filtering.
const FullScale = 0x7000

const (
	tiaCornerLowGain = 5400e6
	tiaCornerDefault = 1680e6
	lpflCorner       = 2160e6
	lpflCapOffset    = 103
	lpfhCorner       = 6000e6
	lpfhCapOffset    = 50
	rNominal         = 17

	minLOFreq = 30e6
	maxLOFreq = 3.8e9
)

// Config selects failure modes for a simulated chip.
type Config struct {
	// Dead makes the RSSI detector read zero regardless of the tone.
	Dead bool
	// FailLO makes every synthesizer tuning request fail.
	FailLO bool
	// FailClock makes every CGEN request fail.
	FailClock bool
	Logger    *slog.Logger
}

// Stats counts the transactions a chip has served.
type Stats struct {
	Writes    int `json:"writes"`
	RSSIReads int `json:"rssi_reads"`
	LOCalls   int `json:"lo_calls"`
}

// Chip is a simulated transceiver implementing every hardware interface the
// calibration core consumes.
type Chip struct {
	mu  sync.Mutex
	cfg Config
	log *slog.Logger

	regs      [2]*rxcal.RegisterMap
	loTX      float64
	loRX      float64
	cgen      float64
	rxEnabled bool
	sharedLO  bool
	stats     Stats
}

// New returns a chip with both channels at power-on defaults.
func New(cfg Config) *Chip {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Chip{
		cfg:  cfg,
		log:  cfg.Logger.With("component", "sim"),
		regs: [2]*rxcal.RegisterMap{rxcal.NewRegisterMap(rxcal.DefaultRegisterValues), rxcal.NewRegisterMap(rxcal.DefaultRegisterValues)},
	}
}

// Hardware bundles the chip as every collaborator of a device.
func (c *Chip) Hardware() rxcal.Hardware {
	return rxcal.Hardware{Bus: c, RSSI: c, Synth: c, Clock: c}
}

// SetDead switches the RSSI detector off or on.
func (c *Chip) SetDead(dead bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Dead = dead
}

// SetFailLO makes synthesizer requests fail or succeed.
func (c *Chip) SetFailLO(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.FailLO = fail
}

// Stats returns the transaction counters.
func (c *Chip) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ResetStats zeroes the transaction counters.
func (c *Chip) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Stats{}
}

// Reset returns the chip to its power-on state.
func (c *Chip) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.regs = [2]*rxcal.RegisterMap{rxcal.NewRegisterMap(rxcal.DefaultRegisterValues), rxcal.NewRegisterMap(rxcal.DefaultRegisterValues)}
	c.loTX, c.loRX, c.cgen = 0, 0, 0
	c.rxEnabled, c.sharedLO = false, false
	c.stats = Stats{}
	c.log.Info("Simulated chip reset")
}

// Registers returns a copy of the chip-side registers of ch.
func (c *Chip) Registers(ch rxcal.Channel) map[uint16]uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[ch].Words()
}

// LO returns the current TX and RX LO frequencies.
func (c *Chip) LO() (tx, rx float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loTX, c.loRX
}

// WriteRegister implements rxcal.Bus.
func (c *Chip) WriteRegister(ch rxcal.Channel, addr uint16, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Writes++
	if addr < 0x0100 {
		c.regs[rxcal.ChannelA].SetWord(addr, value)
		c.regs[rxcal.ChannelB].SetWord(addr, value)
		return nil
	}
	c.regs[ch].SetWord(addr, value)
	return nil
}

// ReadRegister implements rxcal.Bus.
func (c *Chip) ReadRegister(ch rxcal.Channel, addr uint16) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[ch].Word(addr), nil
}

// EnableSynthesizer implements rxcal.Synthesizer.
func (c *Chip) EnableSynthesizer(dir rxcal.Direction, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dir == rxcal.RX {
		c.rxEnabled = on
	}
	return nil
}

// ShareTxLO implements rxcal.Synthesizer.
func (c *Chip) ShareTxLO(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sharedLO = on
	return nil
}

// SetLOFrequency implements rxcal.Synthesizer. The simulated PLL always hits
// the requested frequency exactly.
func (c *Chip) SetLOFrequency(dir rxcal.Direction, fref, freq float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.LOCalls++
	if c.cfg.FailLO {
		return 0, fmt.Errorf("sx%s: VCO did not lock", dir)
	}
	if fref <= 0 {
		return 0, fmt.Errorf("sx%s: invalid reference %.0f Hz", dir, fref)
	}
	if freq < minLOFreq || freq > maxLOFreq {
		return 0, fmt.Errorf("sx%s: %.3f MHz out of range", dir, freq/1e6)
	}
	if dir == rxcal.TX {
		c.loTX = freq
	} else {
		c.loRX = freq
	}
	c.log.Debug("LO tuned", "direction", dir, "frequency_mhz", freq/1e6)
	return freq, nil
}

// SetClockFrequency implements rxcal.ClockGenerator.
func (c *Chip) SetClockFrequency(fref, freq float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.FailClock {
		return 0, fmt.Errorf("cgen: VCO did not lock")
	}
	if fref <= 0 {
		return 0, fmt.Errorf("cgen: invalid reference %.0f Hz", fref)
	}
	c.cgen = freq
	return freq, nil
}

// ReadRSSI implements rxcal.RSSIReader.
func (c *Chip) ReadRSSI(ch rxcal.Channel) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.RSSIReads++
	if c.cfg.Dead {
		return 0, nil
	}
	return int(c.amplitude(ch)), nil
}

func (c *Chip) amplitude(ch rxcal.Channel) float64 {
	m := c.regs[ch]
	tone := math.Abs(c.loTX - c.loRX)

	amp := FullScale *
		float64(m.Get(rxcal.GRxloopbRFE)+1) / 16 *
		float64(m.Get(rxcal.GPGARBB)+1) / 32

	tiaCorner := tiaCornerDefault
	if m.Get(rxcal.GTIARFE) == 1 {
		tiaCorner = tiaCornerLowGain
	}
	amp *= response(tone, tiaCorner/float64(m.Get(rxcal.CfbTIARFE)+10))

	r := float64(m.Get(rxcal.RCtlLPFRBB)+1) / rNominal
	switch m.Get(rxcal.InputCtlPGARBB) {
	case 0:
		if m.Get(rxcal.PdLPFLRBB) == 1 {
			return 0
		}
		amp *= response(tone, lpflCorner/float64(m.Get(rxcal.CCtlLPFLRBB)+lpflCapOffset)*r)
	case 1:
		if m.Get(rxcal.PdLPFHRBB) == 1 {
			return 0
		}
		amp *= response(tone, lpfhCorner/float64(m.Get(rxcal.CCtlLPFHRBB)+lpfhCapOffset)*r)
	case 2:
	default:
		return 0
	}
	return amp
}

// response is the magnitude of a single pole low pass with corner fc at f.
func response(f, fc float64) float64 {
	x := f / fc
	return 1 / math.Sqrt(1+x*x)
}
