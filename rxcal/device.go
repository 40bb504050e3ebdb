package rxcal

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
)

// Channel selects one of the two transceiver channels.
type Channel int

const (
	ChannelA Channel = iota
	ChannelB
)

func (c Channel) String() string {
	if c == ChannelB {
		return "B"
	}
	return "A"
}

// ParseChannel accepts "A"/"B" in either case, or "0"/"1".
func ParseChannel(s string) (Channel, error) {
	switch strings.ToUpper(s) {
	case "A", "0":
		return ChannelA, nil
	case "B", "1":
		return ChannelB, nil
	}
	return 0, fmt.Errorf("invalid channel %q", s)
}

// Direction selects the receive or transmit synthesizer.
type Direction int

const (
	RX Direction = iota
	TX
)

func (d Direction) String() string {
	if d == TX {
		return "tx"
	}
	return "rx"
}

// Path is the receive baseband filter routing.
type Path int

const (
	PathBypass Path = iota
	PathLowBand
	PathHighBand
)

func (p Path) String() string {
	switch p {
	case PathLowBand:
		return "lpfl"
	case PathHighBand:
		return "lpfh"
	}
	return "bypass"
}

// MarshalText renders the path name in JSON output.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a path name.
func (p *Path) UnmarshalText(text []byte) error {
	for _, v := range []Path{PathBypass, PathLowBand, PathHighBand} {
		if v.String() == string(text) {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("invalid path %q", text)
}

// Bus carries register transactions to the chip. Writes to addresses below
// 0x0100 are global and are always issued on channel A.
type Bus interface {
	WriteRegister(ch Channel, addr uint16, value uint16) error
	ReadRegister(ch Channel, addr uint16) (uint16, error)
}

// RSSIReader samples the RxTSP power detector.
type RSSIReader interface {
	ReadRSSI(ch Channel) (int, error)
}

// Synthesizer programs the RX and TX local oscillators.
type Synthesizer interface {
	EnableSynthesizer(dir Direction, on bool) error
	ShareTxLO(on bool) error
	SetLOFrequency(dir Direction, fref, freq float64) (float64, error)
}

// ClockGenerator programs the CGEN data clock.
type ClockGenerator interface {
	SetClockFrequency(fref, freq float64) (float64, error)
}

// GainScanner finds gain staging that puts the unfiltered tone near a
// saturation target and returns the reading at that staging.
type GainScanner interface {
	SelectGain(d *Device, ch Channel, saturation int) (int, error)
}

// Hardware bundles the external collaborators a Device drives.
type Hardware struct {
	Bus   Bus
	RSSI  RSSIReader
	Synth Synthesizer
	Clock ClockGenerator
}

// References are the reference clock frequencies in Hz.
type References struct {
	CGEN float64 `json:"cgen_fref" yaml:"cgen_fref"`
	SXR  float64 `json:"sxr_fref" yaml:"sxr_fref"`
	SXT  float64 `json:"sxt_fref" yaml:"sxt_fref"`
}

// Config holds device construction parameters.
type Config struct {
	References References
	// CGENFreq and SXTFreq are the frequencies the chip runs at before any
	// session; zero means unknown and disables restoring them afterwards.
	CGENFreq        float64
	SXTFreq         float64
	SaturationLevel int
	Defaults        map[uint16]uint16
	Scanner         GainScanner
	Logger          *slog.Logger
}

// DefaultSaturationLevel is the RSSI code of a -3 dBFS tone.
const DefaultSaturationLevel = 0x05000

// Device is the handle for one transceiver. All calibration state lives here.
type Device struct {
	mu sync.Mutex

	hw       Hardware
	scanner  GainScanner
	log      *slog.Logger
	regs     [2]*RegisterMap
	defaults map[uint16]uint16

	refs       References
	cgenFreq   float64
	sxtFreq    float64
	sxrFreq    float64
	saturation int

	observer func(Event)
	session  string
	stage    string

	err error
}

// NewDevice creates a device handle with its shadow registers at defaults.
func NewDevice(hw Hardware, cfg Config) (*Device, error) {
	if hw.Bus == nil || hw.RSSI == nil || hw.Synth == nil || hw.Clock == nil {
		return nil, fmt.Errorf("incomplete hardware: bus, rssi, synthesizer and clock are required")
	}

	if cfg.Defaults == nil {
		cfg.Defaults = DefaultRegisterValues
	}
	if cfg.SaturationLevel == 0 {
		cfg.SaturationLevel = DefaultSaturationLevel
	}
	if cfg.Scanner == nil {
		cfg.Scanner = StepGainScanner{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Device{
		hw:         hw,
		scanner:    cfg.Scanner,
		log:        cfg.Logger.With("component", "rxcal"),
		regs:       [2]*RegisterMap{NewRegisterMap(cfg.Defaults), NewRegisterMap(cfg.Defaults)},
		defaults:   cfg.Defaults,
		refs:       cfg.References,
		cgenFreq:   cfg.CGENFreq,
		sxtFreq:    cfg.SXTFreq,
		saturation: cfg.SaturationLevel,
	}, nil
}

// SetReferences updates the reference clock frequencies.
func (d *Device) SetReferences(refs References) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs = refs
}

// References returns the configured reference clock frequencies.
func (d *Device) References() References {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refs
}

// SetObserver installs a callback that receives calibration progress events.
func (d *Device) SetObserver(fn func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = fn
}

// Registers returns a copy of the shadow registers of ch.
func (d *Device) Registers(ch Channel) map[uint16]uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[ch].Words()
}

// Field returns the shadow value of f on ch.
func (d *Device) Field(ch Channel, f Field) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[ch].Get(f)
}

// Get returns the shadow value of f on ch. It does not lock and is meant for
// GainScanner implementations running inside a session.
func (d *Device) Get(ch Channel, f Field) int {
	if f.Shared() {
		ch = ChannelA
	}
	return d.regs[ch].Get(f)
}

// WriteField stores v into f and commits its register. It does not lock and
// is meant for GainScanner implementations running inside a session.
func (d *Device) WriteField(ch Channel, f Field, v int) error {
	if err := d.set(ch, f, v); err != nil {
		return err
	}
	return d.write(ch, f.Addr)
}

// MeasureRSSI samples the power detector on ch.
func (d *Device) MeasureRSSI(ch Channel) (int, error) {
	rssi, err := d.hw.RSSI.ReadRSSI(ch)
	if err != nil {
		d.fault(fmt.Errorf("read rssi on channel %s: %w", ch, err))
		return 0, err
	}
	return rssi, nil
}

// SetPath commits the receive baseband filter routing of ch.
func (d *Device) SetPath(ch Channel, p Path) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setPath(ch, p)
	return d.takeErr()
}

// EnableAFE powers the ADC (RX) or DAC (TX) of ch up or down.
func (d *Device) EnableAFE(dir Direction, ch Channel, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enableAFE(dir, ch, on)
	return d.takeErr()
}

// SetRxNCO sets the RxTSP NCO to rel, a frequency relative to the RxTSP rate.
func (d *Device) SetRxNCO(ch Channel, rel float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setRxNCO(ch, rel)
	return d.takeErr()
}

// LoadTestSignalConstant loads the TxTSP test signal generator DC values.
func (d *Device) LoadTestSignalConstant(ch Channel, i, q int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loadTSGConst(ch, i, q)
	return d.takeErr()
}

// ResetRange restores every known register in [lo, hi] of ch to its default
// and commits it.
func (d *Device) ResetRange(ch Channel, lo, hi uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetRange(ch, lo, hi)
	return d.takeErr()
}

// Flush writes every shadow register of both channels to the chip.
func (d *Device) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flush()
	return d.takeErr()
}

// Readback compares the shadow registers of ch with the chip and returns the
// addresses that differ.
func (d *Device) Readback(ch Channel) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var diff []uint16
	for _, addr := range d.regs[ch].Addresses() {
		busCh := ch
		if isShared(addr) {
			busCh = ChannelA
		}
		v, err := d.hw.Bus.ReadRegister(busCh, addr)
		if err != nil {
			return diff, fmt.Errorf("%w: read 0x%04X: %w", ErrBusFault, addr, err)
		}
		if v != d.regs[ch].Word(addr) {
			diff = append(diff, addr)
		}
	}
	return diff, nil
}

// ReadRegister reads addr of ch from the chip, bypassing the shadow.
func (d *Device) ReadRegister(ch Channel, addr uint16) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if isShared(addr) {
		ch = ChannelA
	}
	v, err := d.hw.Bus.ReadRegister(ch, addr)
	if err != nil {
		return 0, fmt.Errorf("%w: read 0x%04X: %w", ErrBusFault, addr, err)
	}
	return v, nil
}

// WriteRegister stores a raw word in the shadow of ch and commits it.
func (d *Device) WriteRegister(ch Channel, addr, value uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if isShared(addr) {
		d.regs[ChannelA].SetWord(addr, value)
		d.regs[ChannelB].SetWord(addr, value)
	} else {
		d.regs[ch].SetWord(addr, value)
	}
	d.write(ch, addr)
	return d.takeErr()
}

// set validates and stores v without touching the chip. Shared fields are
// mirrored into both maps.
func (d *Device) set(ch Channel, f Field, v int) error {
	if f.Shared() {
		if err := d.regs[ChannelA].Set(f, v); err != nil {
			d.fault(err)
			return err
		}
		d.regs[ChannelB].SetWord(f.Addr, d.regs[ChannelA].Word(f.Addr))
		return nil
	}
	if err := d.regs[ch].Set(f, v); err != nil {
		d.fault(err)
		return err
	}
	return nil
}

// write commits the shadow word at addr for ch.
func (d *Device) write(ch Channel, addr uint16) error {
	if isShared(addr) {
		ch = ChannelA
	}
	if err := d.hw.Bus.WriteRegister(ch, addr, d.regs[ch].Word(addr)); err != nil {
		err = fmt.Errorf("write 0x%04X on channel %s: %w", addr, ch, err)
		d.fault(err)
		return err
	}
	return nil
}

func (d *Device) setAndWrite(ch Channel, f Field, v int) {
	if d.set(ch, f, v) == nil {
		d.write(ch, f.Addr)
	}
}

func (d *Device) readRSSI(ch Channel) int {
	rssi, _ := d.MeasureRSSI(ch)
	return rssi
}

// fault records the first hardware error of a session. Calibration keeps
// running so that the restore phase still gets a chance to write.
func (d *Device) fault(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Device) takeErr() error {
	err := d.err
	d.err = nil
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFieldRange) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBusFault, err)
}

func (d *Device) resetRange(ch Channel, lo, hi uint16) {
	for _, addr := range d.regs[ch].Addresses() {
		if addr < lo || addr > hi {
			continue
		}
		def, ok := d.defaults[addr]
		if !ok {
			continue
		}
		if isShared(addr) {
			d.regs[ChannelA].SetWord(addr, def)
			d.regs[ChannelB].SetWord(addr, def)
		} else {
			d.regs[ch].SetWord(addr, def)
		}
		d.write(ch, addr)
	}
}

func (d *Device) flush() {
	for _, ch := range []Channel{ChannelA, ChannelB} {
		for _, addr := range d.regs[ch].Addresses() {
			if isShared(addr) && ch == ChannelB {
				continue
			}
			d.write(ch, addr)
		}
	}
}

func (d *Device) snapshot() Snapshot {
	return Snapshot{maps: [2]*RegisterMap{d.regs[ChannelA].Clone(), d.regs[ChannelB].Clone()}}
}

func (d *Device) restore(s Snapshot) {
	d.regs = [2]*RegisterMap{s.maps[ChannelA].Clone(), s.maps[ChannelB].Clone()}
	d.flush()
}

func (d *Device) setPath(ch Channel, p Path) {
	switch p {
	case PathLowBand:
		d.set(ch, PdLPFLRBB, 0)
		d.set(ch, PdLPFHRBB, 1)
		d.set(ch, InputCtlPGARBB, 0)
	case PathHighBand:
		d.set(ch, PdLPFLRBB, 1)
		d.set(ch, PdLPFHRBB, 0)
		d.set(ch, InputCtlPGARBB, 1)
	default:
		d.set(ch, PdLPFLRBB, 1)
		d.set(ch, PdLPFHRBB, 1)
		d.set(ch, InputCtlPGARBB, 2)
	}
	d.write(ch, PdLPFLRBB.Addr)
	d.write(ch, InputCtlPGARBB.Addr)
}

func (d *Device) enableAFE(dir Direction, ch Channel, on bool) {
	pd := 1
	if on {
		pd = 0
	}
	var f Field
	switch {
	case dir == RX && ch == ChannelA:
		f = PdRxAFE1
	case dir == RX:
		f = PdRxAFE2
	case ch == ChannelA:
		f = PdTxAFE1
	default:
		f = PdTxAFE2
	}
	d.setAndWrite(ch, f, pd)
}

func (d *Device) setRxNCO(ch Channel, rel float64) {
	word := math.Round((rel - math.Floor(rel)) * (1 << 32))
	if word >= 1<<32 {
		word = 0
	}
	fcw := uint32(word)
	d.set(ch, RxNCOMode, 0)
	d.set(ch, RxNCOSel, 0)
	d.write(ch, RxNCOMode.Addr)
	d.set(ch, RxNCOFCWHi, int(fcw>>16))
	d.set(ch, RxNCOFCWLo, int(fcw&0xFFFF))
	d.write(ch, RxNCOFCWHi.Addr)
	d.write(ch, RxNCOFCWLo.Addr)
}

// loadTSGConst latches i and q into the test signal generator by pulsing the
// load strobes with the value parked in dc_reg.
func (d *Device) loadTSGConst(ch Channel, i, q int) {
	for _, ld := range []struct {
		v      int
		strobe Field
	}{{i, TxTSGDCLDI}, {q, TxTSGDCLDQ}} {
		d.setAndWrite(ch, TxDCReg, ld.v)
		d.setAndWrite(ch, ld.strobe, 0)
		d.setAndWrite(ch, ld.strobe, 1)
		d.setAndWrite(ch, ld.strobe, 0)
	}
}
