package rxcal

import (
	"fmt"
	"math"
)

const (
	// MinBandwidth is the narrowest per-side bandwidth; at or below it the
	// filters are set to maximum filtration without tuning.
	MinBandwidth = 0.5e6

	tiaMaxBandwidth   = 54e6
	highBandThreshold = 20e6
	lpfhMinBandwidth  = 20e6
	lpfhMaxBandwidth  = 130e6

	// cutoffRatio is the -3 dB amplitude ratio a calibrated filter passes at bw.
	cutoffRatio = 0.7071
	// tiaMarginRatio lifts the TIA target by 1 dB so the TIA corner sits
	// outside the RBB corner.
	tiaMarginRatio = 1.26

	lpfhToneFreq   = 4e5
	lpfhToneOffset = 1e5
	rCtlNominal    = 16
)

// TIASeed returns the closed-form cfb, ccomp and rcomp codes for bw at the
// given g_tia_rfe tier.
func TIASeed(bw float64, tier int) (cfb, ccomp, rcomp int, err error) {
	switch tier {
	case 2, 3:
		cfb = int(1680e6/bw - 10)
		ccomp = cfb / 100
	case 1:
		cfb = int(5400e6/bw - 10)
		ccomp = cfb/100 + 1
	default:
		return 0, 0, 0, fmt.Errorf("%w: g_tia_rfe must be 1, 2 or 3, got %d", ErrInvalidGainTier, tier)
	}
	rcomp = max(0, 15-2*cfb/100)
	ccomp = min(ccomp, 15)
	cfb = clamp(cfb, 0, CfbTIARFE.Max())
	return cfb, ccomp, rcomp, nil
}

// LPFLSeed returns the c_ctl_lpfl_rbb and rcc_ctl_lpfl_rbb codes for bw.
func LPFLSeed(bw float64) (c, rcc int) {
	c = clamp(int(math.Round(2160e6/bw))-103, 0, CCtlLPFLRBB.Max())
	switch {
	case bw > 15e6:
		rcc = 5
	case bw > 10e6:
		rcc = 4
	case bw > 5e6:
		rcc = 3
	case bw > 3e6:
		rcc = 2
	case bw > 1.4e6:
		rcc = 1
	}
	return c, rcc
}

// LPFHSeed returns the c_ctl_lpfh_rbb and rcc_ctl_lpfh_rbb codes for bw.
func LPFHSeed(bw float64) (c, rcc int) {
	c = clamp(int(math.Round(6000e6/bw))-50, 0, CCtlLPFHRBB.Max())
	rcc = clamp(int(math.Round(bw/10e6))-3, 0, RccCtlLPFHRBB.Max())
	return c, rcc
}

// calibrateTIA tunes cfb_tia_rfe with both LPFs bypassed. rssi is the
// baseline already scaled by the TIA margin.
func (d *Device) calibrateTIA(ch Channel, bw float64, rssi, tier int) error {
	d.enterStage(ch, "tia")

	cfb, ccomp, rcomp, err := TIASeed(bw, tier)
	if err != nil {
		d.log.Error("Invalid TIA gain tier", "channel", ch, "g_tia_rfe", tier)
		return err
	}
	d.set(ch, CfbTIARFE, cfb)
	d.set(ch, CcompTIARFE, ccomp)
	d.write(ch, 0x0112)
	d.setAndWrite(ch, RcompTIARFE, rcomp)

	d.set(ch, InputCtlPGARBB, 2)
	d.set(ch, PdLPFLRBB, 1)
	d.set(ch, PdLPFHRBB, 1)
	d.write(ch, 0x0118)
	d.write(ch, 0x0115)

	switch {
	case bw <= MinBandwidth:
		d.setAndWrite(ch, CfbTIARFE, CfbTIARFE.Max())
		return nil
	case bw > tiaMaxBandwidth:
		d.set(ch, CcompTIARFE, 0)
		d.set(ch, CfbTIARFE, 0)
		d.write(ch, 0x0112)
		return nil
	}

	if err := d.setupTone(ch, bw, toneOffset); err != nil {
		return fmt.Errorf("%w: %w", ErrTIACalFailed, err)
	}

	target := int(float64(rssi) * cutoffRatio)
	if out := d.searchTrim(ch, CfbTIARFE, target); out != OutcomeOK {
		return fmt.Errorf("%w: %s search saturated %s", ErrTIACalFailed, CfbTIARFE.Name, out)
	}
	return nil
}

// calibrateLPFL tunes the low band filter for bw below 20 MHz.
func (d *Device) calibrateLPFL(ch Channel, bw float64, rssi int) error {
	d.enterStage(ch, "lpfl")

	c, rcc := LPFLSeed(bw)
	d.set(ch, CCtlLPFLRBB, c)
	d.set(ch, RccCtlLPFLRBB, rcc)
	d.set(ch, PdLPFHRBB, 1)
	d.set(ch, PdLPFLRBB, 0)
	d.set(ch, RCtlLPFRBB, rCtlNominal)
	d.set(ch, InputCtlPGARBB, 0)
	for _, addr := range []uint16{0x0115, 0x0116, 0x0117, 0x0118} {
		d.write(ch, addr)
	}

	if bw <= MinBandwidth {
		d.setAndWrite(ch, RCtlLPFRBB, 0)
		d.setAndWrite(ch, CCtlLPFLRBB, CCtlLPFLRBB.Max())
		return nil
	}

	if err := d.calibrateWithRComp(ch, bw, CCtlLPFLRBB, int(float64(rssi)*cutoffRatio)); err != nil {
		return fmt.Errorf("%w: lpfl: %w", ErrRBBCalFailed, err)
	}
	return nil
}

// calibrateLPFH tunes the high band filter for bw in [20, 130] MHz. The LPFH
// routing differs from the bypass path, so it measures its own baseline.
func (d *Device) calibrateLPFH(ch Channel, bw float64) error {
	d.enterStage(ch, "lpfh")

	if bw < lpfhMinBandwidth || bw > lpfhMaxBandwidth {
		d.log.Error("LPFH bandwidth not in range", "channel", ch, "bandwidth_mhz", bw/1e6)
		return fmt.Errorf("%w: LPFH needs 20 to 130 MHz, got %.3f MHz", ErrOutOfRange, bw/1e6)
	}

	c, rcc := LPFHSeed(bw)
	d.set(ch, CCtlLPFHRBB, c)
	d.set(ch, RccCtlLPFHRBB, rcc)
	d.write(ch, 0x0116)

	d.set(ch, PdLPFHRBB, 0)
	d.set(ch, PdLPFLRBB, 1)
	d.set(ch, InputCtlPGARBB, 1)
	d.write(ch, 0x0115)
	d.write(ch, 0x0118)
	d.setAndWrite(ch, RCtlLPFRBB, rCtlNominal)

	if err := d.setupTone(ch, lpfhToneFreq, lpfhToneOffset); err != nil {
		return fmt.Errorf("%w: lpfh baseline tone: %w", ErrRBBCalFailed, err)
	}
	local, err := d.scanner.SelectGain(d, ch, d.saturation)
	if err != nil {
		return fmt.Errorf("%w: lpfh baseline: %w", ErrRBBCalFailed, err)
	}
	d.log.Info("LPFH baseline", "channel", ch, "rssi", local, CCtlLPFHRBB.Name, d.Get(ch, CCtlLPFHRBB))

	if err := d.calibrateWithRComp(ch, bw, CCtlLPFHRBB, int(float64(local)*cutoffRatio)); err != nil {
		return fmt.Errorf("%w: lpfh: %w", ErrRBBCalFailed, err)
	}
	return nil
}
