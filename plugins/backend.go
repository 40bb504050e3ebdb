package plugins

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/linht/rx-filter-cal/rxcal"
	"github.com/linht/rx-filter-cal/rxcal/sim"
)

// Backend types
const (
	BackendSPI = "spi"
	BackendSim = "sim"
)

// Backend is the transceiver behind a calibration device
type Backend interface {
	Hardware() rxcal.Hardware
	Reset() error
	Info() map[string]interface{}
	Close() error
}

// RxCalConfig holds the calibration section of the server configuration
type RxCalConfig struct {
	Backend         string           `yaml:"backend" json:"backend"`
	LMS7002M        LMS7002MConfig   `yaml:"lms7002m" json:"lms7002m"`
	References      rxcal.References `yaml:"references" json:"references"`
	CGENFreq        float64          `yaml:"cgen_freq" json:"cgen_freq"`
	SXTFreq         float64          `yaml:"sxt_freq" json:"sxt_freq"`
	SaturationLevel int              `yaml:"saturation_level" json:"saturation_level"`
	DefaultsFile    string           `yaml:"defaults_file" json:"defaults_file"`
	ReportHistory   int              `yaml:"report_history" json:"report_history"`
	Sim             struct {
		Dead   bool `yaml:"dead" json:"dead"`
		FailLO bool `yaml:"fail_lo" json:"fail_lo"`
	} `yaml:"sim" json:"sim"`
}

// ApplyDefaults fills unset fields
func (cfg *RxCalConfig) ApplyDefaults() {
	if cfg.Backend == "" {
		cfg.Backend = BackendSPI
	}
	if cfg.LMS7002M.SPIDevice == "" {
		cfg.LMS7002M.SPIDevice = "/dev/spidev0.0"
	}
	if cfg.LMS7002M.SPISpeed == 0 {
		cfg.LMS7002M.SPISpeed = 10000000 // 10 MHz
	}
	if cfg.References.CGEN == 0 {
		cfg.References.CGEN = 30.72e6
	}
	if cfg.References.SXR == 0 {
		cfg.References.SXR = 30.72e6
	}
	if cfg.References.SXT == 0 {
		cfg.References.SXT = 30.72e6
	}
	if cfg.SaturationLevel == 0 {
		cfg.SaturationLevel = rxcal.DefaultSaturationLevel
	}
	if cfg.ReportHistory == 0 {
		cfg.ReportHistory = 32
	}
}

// OpenBackend connects to the configured transceiver
func OpenBackend(cfg RxCalConfig) (Backend, error) {
	slog.Info("Opening transceiver backend",
		"backend", cfg.Backend,
		"spi_device", cfg.LMS7002M.SPIDevice,
		"spi_speed", cfg.LMS7002M.SPISpeed,
		"gpio_chip", cfg.LMS7002M.GPIOChip,
		"reset_pin", cfg.LMS7002M.ResetPin)

	switch cfg.Backend {
	case BackendSPI:
		ctrl, err := OpenLMS7002M(cfg.LMS7002M)
		if err != nil {
			return nil, err
		}
		return ctrl, nil
	case BackendSim:
		return NewSimBackend(sim.Config{Dead: cfg.Sim.Dead, FailLO: cfg.Sim.FailLO}), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// NewDevice builds the calibration device on top of a backend
func NewDevice(backend Backend, cfg RxCalConfig) (*rxcal.Device, error) {
	var defaults map[uint16]uint16
	if cfg.DefaultsFile != "" {
		data, err := os.ReadFile(cfg.DefaultsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read register defaults: %w", err)
		}
		if defaults, err = rxcal.ParseDefaults(data); err != nil {
			return nil, err
		}
		slog.Info("Register defaults loaded", "file", cfg.DefaultsFile, "count", len(defaults))
	}

	return rxcal.NewDevice(backend.Hardware(), rxcal.Config{
		References:      cfg.References,
		CGENFreq:        cfg.CGENFreq,
		SXTFreq:         cfg.SXTFreq,
		SaturationLevel: cfg.SaturationLevel,
		Defaults:        defaults,
	})
}

// SimBackend serves a simulated chip
type SimBackend struct {
	Chip *sim.Chip
}

// NewSimBackend creates a simulated backend
func NewSimBackend(cfg sim.Config) *SimBackend {
	return &SimBackend{Chip: sim.New(cfg)}
}

// Hardware returns the simulated collaborators
func (b *SimBackend) Hardware() rxcal.Hardware {
	return b.Chip.Hardware()
}

// Reset returns the chip to power-on defaults
func (b *SimBackend) Reset() error {
	b.Chip.Reset()
	return nil
}

// Info returns the transaction counters of the simulated chip
func (b *SimBackend) Info() map[string]interface{} {
	tx, rx := b.Chip.LO()
	return map[string]interface{}{
		"backend": BackendSim,
		"stats":   b.Chip.Stats(),
		"lo_tx":   tx,
		"lo_rx":   rx,
	}
}

// Close is a no-op for the simulated chip
func (b *SimBackend) Close() error {
	return nil
}
