package plugins

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOController drives the LMS7002M hardware reset line
type GPIOController struct {
	chip      *gpiocdev.Chip
	resetLine *gpiocdev.Line
	chipPath  string
	resetPin  int
}

// NewGPIOController creates a new GPIO controller
func NewGPIOController(chipPath string, resetPin int) (*GPIOController, error) {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chipPath, err)
	}

	// RESETN is active low, start released
	resetLine, err := chip.RequestLine(
		resetPin,
		gpiocdev.AsOutput(1),
		gpiocdev.WithConsumer("lms7002m-resetn"),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("failed to request reset pin %d: %w", resetPin, err)
	}

	return &GPIOController{
		chip:      chip,
		resetLine: resetLine,
		chipPath:  chipPath,
		resetPin:  resetPin,
	}, nil
}

// Close releases all GPIO resources
func (g *GPIOController) Close() error {
	var errs []error

	if g.resetLine != nil {
		if err := g.resetLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reset line: %w", err))
		}
		g.resetLine = nil
	}

	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close GPIO chip: %w", err))
		}
		g.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing GPIO: %v", errs)
	}

	return nil
}

// Reset pulses RESETN low. All registers return to their power-on values.
func (g *GPIOController) Reset() error {
	if g.resetLine == nil {
		return fmt.Errorf("reset line not initialized")
	}

	if err := g.resetLine.SetValue(0); err != nil {
		return fmt.Errorf("failed to assert reset: %w", err)
	}

	time.Sleep(100 * time.Microsecond)

	if err := g.resetLine.SetValue(1); err != nil {
		return fmt.Errorf("failed to release reset: %w", err)
	}

	// Wait for the internal LDOs before the first SPI access
	time.Sleep(1 * time.Millisecond)

	return nil
}

// Info returns information about the GPIO controller
func (g *GPIOController) Info() string {
	if g.chip == nil {
		return fmt.Sprintf("GPIO: %s (closed)", g.chipPath)
	}

	return fmt.Sprintf("GPIO: %s (%s, %s), Reset Pin: %d",
		g.chipPath, g.chip.Name, g.chip.Label, g.resetPin)
}
