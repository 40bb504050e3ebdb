package plugins

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/linht/rx-filter-cal/rxcal"
)

const (
	sdmFracBits = 20
	sdmFracOne  = 1 << sdmFracBits

	sxVCOMin     = 3.8e9
	sxVCOMax     = 7.714e9
	sxDiv2Above  = 5.5e9
	sxMaxDivLoch = 6
	sxIntOffset  = 4

	cgenVCOMin    = 2.0e9
	cgenVCOMax    = 2.7e9
	cgenMaxDiv    = 255
	cgenIntOffset = 1

	maxSDMInt  = 1023
	vcoSettle  = 50 * time.Microsecond
	divLochPos = 6
	cswPos     = 3
)

// ErrVCONotLocked indicates the VCO capacitor search found no locking setting
var ErrVCONotLocked = errors.New("VCO did not lock")

// Resetter pulses the chip reset line
type Resetter interface {
	Reset() error
	Close() error
}

// LMS7002MConfig holds the bus wiring of the transceiver
type LMS7002MConfig struct {
	SPIDevice string `yaml:"spi_device" json:"spi_device"`
	SPISpeed  uint32 `yaml:"spi_speed" json:"spi_speed"`
	GPIOChip  string `yaml:"gpio_chip" json:"gpio_chip"`
	ResetPin  int    `yaml:"reset_pin" json:"reset_pin"`
}

// LMS7002MController implements the rxcal hardware interfaces on top of a
// register port. Per-channel registers are reached through the MAC select.
type LMS7002MController struct {
	mu    sync.Mutex
	port  RegisterPort
	reset Resetter
	mac   uint16
	log   *slog.Logger
}

// NewLMS7002MController wraps an open register port. reset may be nil.
func NewLMS7002MController(port RegisterPort, reset Resetter) *LMS7002MController {
	return &LMS7002MController{
		port:  port,
		reset: reset,
		log:   slog.Default().With("component", "lms7002m"),
	}
}

// OpenLMS7002M opens the SPI device and, when configured, the reset line
func OpenLMS7002M(cfg LMS7002MConfig) (*LMS7002MController, error) {
	spi, err := NewSPIDevice(cfg.SPIDevice, cfg.SPISpeed)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SPI: %w", err)
	}

	var reset Resetter
	if cfg.GPIOChip != "" {
		gpio, err := NewGPIOController(cfg.GPIOChip, cfg.ResetPin)
		if err != nil {
			spi.Close()
			return nil, fmt.Errorf("failed to initialize GPIO: %w", err)
		}
		reset = gpio
	}

	return NewLMS7002MController(spi, reset), nil
}

// Hardware exposes the controller as every collaborator of a device
func (c *LMS7002MController) Hardware() rxcal.Hardware {
	return rxcal.Hardware{Bus: c, RSSI: c, Synth: c, Clock: c}
}

// Close releases all resources
func (c *LMS7002MController) Close() error {
	var errs []error

	if err := c.port.Close(); err != nil {
		errs = append(errs, fmt.Errorf("SPI close error: %w", err))
	}
	if c.reset != nil {
		if err := c.reset.Close(); err != nil {
			errs = append(errs, fmt.Errorf("GPIO close error: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Reset performs a hardware reset
func (c *LMS7002MController) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reset == nil {
		return fmt.Errorf("no reset line configured")
	}
	c.mac = 0
	return c.reset.Reset()
}

// Version reads the chip version, revision and mask fields
func (c *LMS7002MController) Version() (ver, rev, mask int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := c.port.ReadRegister(RegChipInfo)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to read chip info: %w", err)
	}
	return int(info >> 11), int(info>>6) & 0x1F, int(info) & 0x3F, nil
}

// Info returns information about the controller
func (c *LMS7002MController) Info() map[string]interface{} {
	info := map[string]interface{}{
		"backend": "spi",
	}

	if spi, ok := c.port.(*SPIDevice); ok {
		info["spi"] = spi.DeviceInfo()
	}
	if gpio, ok := c.reset.(*GPIOController); ok {
		info["gpio"] = gpio.Info()
	}
	if ver, rev, mask, err := c.Version(); err == nil {
		info["version"] = ver
		info["revision"] = rev
		info["mask"] = mask
	}

	return info
}

// WriteRegister implements rxcal.Bus
func (c *LMS7002MController) WriteRegister(ch rxcal.Channel, addr uint16, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.selectChannel(ch, addr); err != nil {
		return err
	}
	if err := c.port.WriteRegister(addr, value); err != nil {
		return err
	}
	// A raw MAC write moves the channel select under the cache
	if addr == RegMAC {
		c.mac = value & macMask
	}
	return nil
}

// ReadRegister implements rxcal.Bus
func (c *LMS7002MController) ReadRegister(ch rxcal.Channel, addr uint16) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.selectChannel(ch, addr); err != nil {
		return 0, err
	}
	return c.port.ReadRegister(addr)
}

// ReadRSSI implements rxcal.RSSIReader. It latches the RxTSP power detector
// and assembles the 18-bit reading.
func (c *LMS7002MController) ReadRSSI(ch rxcal.Channel) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.selectMAC(channelMAC(ch)); err != nil {
		return 0, err
	}

	word, err := c.port.ReadRegister(RegRxTSPCapture)
	if err != nil {
		return 0, fmt.Errorf("failed to read capture register: %w", err)
	}
	word &^= capselMask | CaptureStrobe
	for _, w := range []uint16{word, word | CaptureStrobe, word} {
		if err := c.port.WriteRegister(RegRxTSPCapture, w); err != nil {
			return 0, fmt.Errorf("failed to latch RSSI: %w", err)
		}
	}

	lo, err := c.port.ReadRegister(RegRSSILo)
	if err != nil {
		return 0, fmt.Errorf("failed to read RSSI LSBs: %w", err)
	}
	hi, err := c.port.ReadRegister(RegRSSIHi)
	if err != nil {
		return 0, fmt.Errorf("failed to read RSSI MSBs: %w", err)
	}
	return int(hi)<<2 | int(lo&0x3), nil
}

// EnableSynthesizer implements rxcal.Synthesizer
func (c *LMS7002MController) EnableSynthesizer(dir rxcal.Direction, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.selectMAC(synthMAC(dir)); err != nil {
		return err
	}
	return c.modify(RegSXCfg, func(w uint16) uint16 {
		if on {
			return w&^SXCfgPdVCO | SXCfgEnG
		}
		return w&^SXCfgEnG | SXCfgPdVCO
	})
}

// ShareTxLO implements rxcal.Synthesizer. The TX LO feeds the receiver through
// the SXR side buffer.
func (c *LMS7002MController) ShareTxLO(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.selectMAC(MACChannelA); err != nil {
		return err
	}
	return c.modify(RegSXCfg, func(w uint16) uint16 {
		if on {
			return w &^ SXCfgPdLochT2RBuf
		}
		return w | SXCfgPdLochT2RBuf
	})
}

// SetLOFrequency implements rxcal.Synthesizer
func (c *LMS7002MController) SetLOFrequency(dir rxcal.Direction, fref, freq float64) (float64, error) {
	plan, err := planSX(fref, freq)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.selectMAC(synthMAC(dir)); err != nil {
		return 0, err
	}
	if err := c.modify(RegSXCfg, func(w uint16) uint16 {
		w &^= SXCfgEnDiv2Divprog | SXCfgEnIntonlySDM
		if plan.EnDiv2 {
			w |= SXCfgEnDiv2Divprog
		}
		return w
	}); err != nil {
		return 0, err
	}
	if err := c.writeSDM(RegSXFracLo, RegSXIntFrac, plan.Int, plan.Frac); err != nil {
		return 0, err
	}
	if err := c.modify(RegSXDiv, func(w uint16) uint16 {
		return w&^(0x7<<divLochPos) | uint16(plan.DivLoch)<<divLochPos
	}); err != nil {
		return 0, err
	}
	if err := c.tuneVCO(); err != nil {
		c.log.Error("Synthesizer failed to lock", "direction", dir, "frequency_mhz", freq/1e6, "vco_mhz", plan.VCO/1e6)
		return 0, fmt.Errorf("sx%s %.3f MHz: %w", dir, freq/1e6, err)
	}

	c.log.Debug("Synthesizer tuned",
		"direction", dir,
		"frequency_mhz", plan.Actual/1e6,
		"vco_mhz", plan.VCO/1e6,
		"div_loch", plan.DivLoch)
	return plan.Actual, nil
}

// SetClockFrequency implements rxcal.ClockGenerator
func (c *LMS7002MController) SetClockFrequency(fref, freq float64) (float64, error) {
	plan, err := planCGEN(fref, freq)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeSDM(RegCGENFracLo, RegCGENIntFrac, plan.Int, plan.Frac); err != nil {
		return 0, err
	}
	if err := c.modify(RegCGENDiv, func(w uint16) uint16 {
		return w&^(0xFF<<3) | uint16(plan.Div)<<3
	}); err != nil {
		return 0, err
	}

	c.log.Debug("Clock generator tuned", "frequency_mhz", plan.Actual/1e6, "vco_mhz", plan.VCO/1e6)
	return plan.Actual, nil
}

func (c *LMS7002MController) selectChannel(ch rxcal.Channel, addr uint16) error {
	if addr < 0x0100 {
		return nil
	}
	return c.selectMAC(channelMAC(ch))
}

// selectMAC points per-channel register accesses at mac. The last value is
// cached so consecutive accesses on one channel cost no extra frames.
func (c *LMS7002MController) selectMAC(mac uint16) error {
	if c.mac == mac {
		return nil
	}
	if err := c.modify(RegMAC, func(w uint16) uint16 { return w&^macMask | mac }); err != nil {
		return fmt.Errorf("failed to select MAC %d: %w", mac, err)
	}
	c.mac = mac
	return nil
}

func (c *LMS7002MController) modify(addr uint16, fn func(uint16) uint16) error {
	w, err := c.port.ReadRegister(addr)
	if err != nil {
		return fmt.Errorf("failed to read register 0x%04X: %w", addr, err)
	}
	if err := c.port.WriteRegister(addr, fn(w)); err != nil {
		return fmt.Errorf("failed to write register 0x%04X: %w", addr, err)
	}
	return nil
}

func (c *LMS7002MController) writeSDM(fracAddr, intAddr uint16, nint, nfrac int) error {
	writes := []RegisterWrite{
		{fracAddr, uint16(nfrac & 0xFFFF)},
		{intAddr, uint16(nint)<<4 | uint16(nfrac>>16)&0xF},
	}
	if spi, ok := c.port.(*SPIDevice); ok {
		return spi.BurstWrite(writes)
	}
	for _, w := range writes {
		if err := c.port.WriteRegister(w.Addr, w.Value); err != nil {
			return fmt.Errorf("failed to write SDM register 0x%04X: %w", w.Addr, err)
		}
	}
	return nil
}

// tuneVCO searches the VCO capacitor bank MSB first. A set bit is kept while
// the comparators do not report the tuning voltage above both thresholds.
func (c *LMS7002MController) tuneVCO() error {
	csw := 0
	var cmp uint16
	for bit := 7; bit >= 0; bit-- {
		csw |= 1 << bit
		if err := c.setCSW(csw); err != nil {
			return err
		}
		time.Sleep(vcoSettle)

		var err error
		if cmp, err = c.port.ReadRegister(RegSXCmp); err != nil {
			return fmt.Errorf("failed to read VCO comparators: %w", err)
		}
		if cmp&CmpVCOHigh != 0 && cmp&CmpVCOLow != 0 {
			csw &^= 1 << bit
		}
	}
	if err := c.setCSW(csw); err != nil {
		return err
	}
	time.Sleep(vcoSettle)

	cmp, err := c.port.ReadRegister(RegSXCmp)
	if err != nil {
		return fmt.Errorf("failed to read VCO comparators: %w", err)
	}
	if cmp&CmpVCOHigh == 0 || cmp&CmpVCOLow != 0 {
		return fmt.Errorf("%w: csw=%d comparators=0x%04X", ErrVCONotLocked, csw, cmp)
	}
	return nil
}

func (c *LMS7002MController) setCSW(csw int) error {
	return c.modify(RegSXVCO, func(w uint16) uint16 {
		return w&^(0xFF<<cswPos) | uint16(csw)<<cswPos
	})
}

func channelMAC(ch rxcal.Channel) uint16 {
	if ch == rxcal.ChannelB {
		return MACChannelB
	}
	return MACChannelA
}

func synthMAC(dir rxcal.Direction) uint16 {
	if dir == rxcal.TX {
		return MACChannelB
	}
	return MACChannelA
}

// sxPlan is a fractional-N setting for one SX synthesizer
type sxPlan struct {
	DivLoch int
	EnDiv2  bool
	Int     int
	Frac    int
	VCO     float64
	Actual  float64
}

func planSX(fref, freq float64) (sxPlan, error) {
	if fref <= 0 {
		return sxPlan{}, fmt.Errorf("invalid SX reference %.0f Hz", fref)
	}

	plan := sxPlan{DivLoch: -1}
	for div := 0; div <= sxMaxDivLoch; div++ {
		vco := freq * float64(uint(2)<<div)
		if vco >= sxVCOMin && vco <= sxVCOMax {
			plan.DivLoch = div
			plan.VCO = vco
			break
		}
	}
	if plan.DivLoch < 0 {
		return sxPlan{}, fmt.Errorf("LO %.3f MHz out of synthesizer range", freq/1e6)
	}

	pre := fref
	if plan.VCO > sxDiv2Above {
		plan.EnDiv2 = true
		pre *= 2
	}

	nint, nfrac, err := sdmWords(plan.VCO/pre, sxIntOffset)
	if err != nil {
		return sxPlan{}, fmt.Errorf("LO %.3f MHz: %w", freq/1e6, err)
	}
	plan.Int, plan.Frac = nint, nfrac
	plan.Actual = pre * (float64(nint+sxIntOffset) + float64(nfrac)/sdmFracOne) / float64(uint(2)<<plan.DivLoch)
	return plan, nil
}

// cgenPlan is a fractional-N setting for the clock generator
type cgenPlan struct {
	Div    int
	Int    int
	Frac   int
	VCO    float64
	Actual float64
}

func planCGEN(fref, freq float64) (cgenPlan, error) {
	if fref <= 0 {
		return cgenPlan{}, fmt.Errorf("invalid CGEN reference %.0f Hz", fref)
	}

	plan := cgenPlan{Div: -1}
	for div := 0; div <= cgenMaxDiv; div++ {
		vco := freq * 2 * float64(div+1)
		if vco >= cgenVCOMin && vco <= cgenVCOMax {
			plan.Div = div
			plan.VCO = vco
			break
		}
	}
	if plan.Div < 0 {
		return cgenPlan{}, fmt.Errorf("CGEN %.3f MHz out of range", freq/1e6)
	}

	nint, nfrac, err := sdmWords(plan.VCO/fref, cgenIntOffset)
	if err != nil {
		return cgenPlan{}, fmt.Errorf("CGEN %.3f MHz: %w", freq/1e6, err)
	}
	plan.Int, plan.Frac = nint, nfrac
	plan.Actual = fref * (float64(nint+cgenIntOffset) + float64(nfrac)/sdmFracOne) / float64(2*(plan.Div+1))
	return plan, nil
}

// sdmWords splits a feedback ratio into the SDM integer and 20-bit fraction
func sdmWords(ratio float64, offset int) (nint, nfrac int, err error) {
	whole := math.Floor(ratio)
	nint = int(whole) - offset
	nfrac = int(math.Round((ratio - whole) * sdmFracOne))
	if nfrac == sdmFracOne {
		nfrac = 0
		nint++
	}
	if nint < 0 || nint > maxSDMInt {
		return 0, 0, fmt.Errorf("feedback ratio %.4f outside SDM range", ratio)
	}
	return nint, nfrac, nil
}
