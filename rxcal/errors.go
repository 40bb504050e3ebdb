package rxcal

import (
	"errors"
	"fmt"
)

// Calibration errors
var (
	// ErrReferenceNotInitialized indicates a CGEN, SXR or SXT reference clock of zero
	ErrReferenceNotInitialized = errors.New("reference clock not initialized")

	// ErrLOTuneFailed indicates the synthesizer could not reach a requested frequency
	ErrLOTuneFailed = errors.New("LO tuning failed")

	// ErrInitFailed indicates the calibration baseline could not be established
	ErrInitFailed = errors.New("calibration init failed")

	// ErrInvalidGainTier indicates g_tia_rfe is not 1, 2 or 3
	ErrInvalidGainTier = errors.New("invalid TIA gain tier")

	// ErrOutOfRange indicates a bandwidth the selected filter cannot realise
	ErrOutOfRange = errors.New("bandwidth out of range")

	// ErrTIACalFailed indicates the TIA stage did not converge
	ErrTIACalFailed = errors.New("TIA calibration failed")

	// ErrRBBCalFailed indicates the LPFL or LPFH stage did not converge
	ErrRBBCalFailed = errors.New("RBB calibration failed")

	// ErrRCompExhausted indicates the resistor trim hit a bound or ran out of retries
	ErrRCompExhausted = errors.New("resistor compensation exhausted")

	// ErrFieldRange indicates a write outside a field's bit width
	ErrFieldRange = errors.New("field value out of range")

	// ErrBusFault indicates a register or RSSI transaction failed
	ErrBusFault = errors.New("register bus fault")
)

// Status is the coarse outcome of a calibration session.
type Status int

const (
	StatusOK Status = iota
	StatusReferenceNotInitialized
	StatusLOTuneFailed
	StatusInitFailed
	StatusInvalidGainTier
	StatusOutOfRange
	StatusTIACalFailed
	StatusRBBCalFailed
	StatusBusFault
)

var statusNames = map[Status]string{
	StatusOK:                      "ok",
	StatusReferenceNotInitialized: "reference_not_initialized",
	StatusLOTuneFailed:            "lo_tune_failed",
	StatusInitFailed:              "init_failed",
	StatusInvalidGainTier:         "invalid_gain_tier",
	StatusOutOfRange:              "out_of_range",
	StatusTIACalFailed:            "tia_cal_failed",
	StatusRBBCalFailed:            "rbb_cal_failed",
	StatusBusFault:                "bus_fault",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the status name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// statusOrder is the precedence used when a session returns several joined
// errors: fatal causes first, then stage failures.
var statusOrder = []struct {
	err    error
	status Status
}{
	{ErrReferenceNotInitialized, StatusReferenceNotInitialized},
	{ErrOutOfRange, StatusOutOfRange},
	{ErrInvalidGainTier, StatusInvalidGainTier},
	{ErrInitFailed, StatusInitFailed},
	{ErrRBBCalFailed, StatusRBBCalFailed},
	{ErrTIACalFailed, StatusTIACalFailed},
	{ErrLOTuneFailed, StatusLOTuneFailed},
	{ErrBusFault, StatusBusFault},
}

// StatusOf maps an error returned by Calibrate to its Status.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	for _, s := range statusOrder {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return StatusBusFault
}
