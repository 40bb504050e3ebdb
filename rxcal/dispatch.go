package rxcal

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	minCalibrationClock = 60e6
	maxCalibrationClock = 640e6
	clockPerBandwidth   = 20
)

// Trims are the calibrated fields carried over the register restore.
type Trims struct {
	CfbTIA     int `json:"cfb_tia_rfe"`
	CcompTIA   int `json:"ccomp_tia_rfe"`
	RcompTIA   int `json:"rcomp_tia_rfe"`
	RccCtlLPFL int `json:"rcc_ctl_lpfl_rbb"`
	CCtlLPFL   int `json:"c_ctl_lpfl_rbb"`
	RccCtlLPFH int `json:"rcc_ctl_lpfh_rbb"`
	CCtlLPFH   int `json:"c_ctl_lpfh_rbb"`
	RCtlLPF    int `json:"r_ctl_lpf_rbb"`
}

func (t Trims) fields() []struct {
	f Field
	v int
} {
	return []struct {
		f Field
		v int
	}{
		{CfbTIARFE, t.CfbTIA},
		{CcompTIARFE, t.CcompTIA},
		{RcompTIARFE, t.RcompTIA},
		{RccCtlLPFLRBB, t.RccCtlLPFL},
		{CCtlLPFLRBB, t.CCtlLPFL},
		{RccCtlLPFHRBB, t.RccCtlLPFH},
		{CCtlLPFHRBB, t.CCtlLPFH},
		{RCtlLPFRBB, t.RCtlLPF},
	}
}

// Report describes one calibration session.
type Report struct {
	ID        uuid.UUID     `json:"id"`
	Channel   string        `json:"channel"`
	Requested float64       `json:"requested_hz"`
	Bandwidth float64       `json:"bandwidth_hz"`
	Path      Path          `json:"path"`
	Baseline  int           `json:"baseline_rssi"`
	Trims     Trims         `json:"trims"`
	Applied   bool          `json:"applied"`
	TIAError  string        `json:"tia_error,omitempty"`
	RBBError  string        `json:"rbb_error,omitempty"`
	Error     string        `json:"error,omitempty"`
	Status    Status        `json:"status"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration_ns"`
}

// EffectiveBandwidth converts a requested RF bandwidth into the per-side
// baseband bandwidth the filters are tuned to, and picks the filter path.
func EffectiveBandwidth(requested float64) (float64, Path) {
	bw := max(requested/2, MinBandwidth)
	if bw >= highBandThreshold {
		return bw, PathHighBand
	}
	return bw, PathLowBand
}

func calibrationClock(bw float64) float64 {
	return min(max(bw*clockPerBandwidth, minCalibrationClock), maxCalibrationClock)
}

// SetFilterBandwidth calibrates the receive filters of ch for an RF bandwidth
// of hz and returns the per-side bandwidth configured.
func (d *Device) SetFilterBandwidth(ch Channel, hz float64) (float64, error) {
	rep, err := d.Calibrate(ch, hz)
	if rep == nil {
		return 0, err
	}
	return rep.Bandwidth, err
}

// Calibrate runs one full calibration session on ch. The returned report is
// never nil. Recoverable stage failures still apply whatever trims were found
// and are returned joined together.
func (d *Device) Calibrate(ch Channel, hz float64) (rep *Report, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	finite := !math.IsNaN(hz) && !math.IsInf(hz, 0)
	rep = &Report{
		ID:      uuid.New(),
		Channel: ch.String(),
		Started: time.Now(),
	}
	var bw float64
	var path Path
	if finite {
		bw, path = EffectiveBandwidth(hz)
		rep.Requested = hz
		rep.Bandwidth = bw
		rep.Path = path
	}
	d.session = rep.ID.String()
	d.stage = ""
	d.err = nil

	log := d.log.With("session", d.session, "channel", ch)
	log.Info("Starting filter calibration", "requested_mhz", hz/1e6, "bandwidth_mhz", bw/1e6, "path", path)
	d.emit(ch, Event{Kind: EventSessionStart})

	defer func() {
		rep.Status = StatusOf(err)
		if err != nil {
			rep.Error = err.Error()
		}
		rep.Duration = time.Since(rep.Started)
		sessionsTotal.WithLabelValues(ch.String(), rep.Status.String()).Inc()
		sessionDuration.Observe(rep.Duration.Seconds())
		d.emit(ch, Event{Kind: EventSessionEnd, Stage: "done", Status: rep.Status.String()})
		d.session = ""
		d.stage = ""
		if err != nil {
			log.Error("Filter calibration failed", "status", rep.Status, "error", err, "duration", rep.Duration)
		} else {
			log.Info("Filter calibration done", "duration", rep.Duration, "trims", rep.Trims)
		}
	}()

	if !finite {
		return rep, fmt.Errorf("%w: bandwidth must be finite, got %v", ErrOutOfRange, hz)
	}
	if err := d.checkReferences(); err != nil {
		return rep, err
	}
	if path == PathHighBand && bw > lpfhMaxBandwidth {
		return rep, fmt.Errorf("%w: LPFH needs 20 to 130 MHz, got %.3f MHz", ErrOutOfRange, bw/1e6)
	}
	tier := d.Get(ch, GTIARFE)
	if tier < 1 || tier > 3 {
		return rep, fmt.Errorf("%w: g_tia_rfe must be 1, 2 or 3, got %d", ErrInvalidGainTier, tier)
	}

	saved := d.snapshot()
	cgenFreq, sxtFreq := d.cgenFreq, d.sxtFreq

	var tiaErr, rbbErr error
	fatal := d.runSession(ch, bw, path, tier, rep, &tiaErr, &rbbErr)

	rep.Trims = d.extractTrims(ch)
	d.enterStage(ch, "restore")
	d.restore(saved)
	if fatal == nil {
		d.applyTrims(ch, rep.Trims, path)
		rep.Applied = true
		for _, t := range rep.Trims.fields() {
			trimCode.WithLabelValues(ch.String(), t.f.Name).Set(float64(t.v))
		}
	}
	d.restoreClocks(cgenFreq, sxtFreq)

	if tiaErr != nil {
		rep.TIAError = tiaErr.Error()
	}
	if rbbErr != nil {
		rep.RBBError = rbbErr.Error()
	}
	return rep, errors.Join(fatal, tiaErr, rbbErr, d.takeErr())
}

// runSession performs the stages between snapshot and restore. The returned
// error is fatal and suppresses the apply step; stage failures are reported
// through tiaErr and rbbErr instead.
func (d *Device) runSession(ch Channel, bw float64, path Path, tier int, rep *Report, tiaErr, rbbErr *error) error {
	if bw > MinBandwidth {
		d.enterStage(ch, "init")
		freq := calibrationClock(bw)
		actual, err := d.hw.Clock.SetClockFrequency(d.refs.CGEN, freq)
		if err != nil {
			return fmt.Errorf("%w: cgen %.3f MHz: %w", ErrInitFailed, freq/1e6, err)
		}
		d.cgenFreq = actual
		if err := d.initStages(ch); err != nil {
			return fmt.Errorf("%w: %w", ErrInitFailed, err)
		}
	}

	// bypass both LPFs and park the TIA wide open for the baseline
	d.set(ch, CfbTIARFE, 1)
	d.set(ch, CcompTIARFE, 0)
	d.set(ch, RcompTIARFE, 15)
	d.set(ch, GTIARFE, 1)
	d.set(ch, InputCtlPGARBB, 2)
	for _, addr := range []uint16{0x0112, 0x0113, 0x0114, 0x0118} {
		d.write(ch, addr)
	}

	baseline := d.saturation
	if bw > MinBandwidth {
		d.enterStage(ch, "baseline")
		if err := d.setupTone(ch, lpfhToneFreq, lpfhToneOffset); err != nil {
			return err
		}
		rssi, err := d.scanner.SelectGain(d, ch, d.saturation)
		if err != nil {
			return fmt.Errorf("%w: baseline: %w", ErrInitFailed, err)
		}
		baseline = rssi
	}
	rep.Baseline = baseline
	d.log.Info("Baseline RSSI", "session", d.session, "channel", ch, "rssi", baseline)

	if err := d.calibrateTIA(ch, bw, int(float64(baseline)*tiaMarginRatio), tier); err != nil {
		d.log.Error("TIA calibration failed", "session", d.session, "channel", ch, "error", err)
		if errors.Is(err, ErrInvalidGainTier) {
			return err
		}
		*tiaErr = err
	}

	var err error
	if path == PathHighBand {
		err = d.calibrateLPFH(ch, bw)
	} else {
		err = d.calibrateLPFL(ch, bw, baseline)
	}
	if err != nil {
		d.log.Error("RBB calibration failed", "session", d.session, "channel", ch, "path", path, "error", err)
		if errors.Is(err, ErrOutOfRange) {
			return err
		}
		*rbbErr = err
	}
	return nil
}

func (d *Device) checkReferences() error {
	for _, ref := range []struct {
		name string
		v    float64
	}{{"cgen_fref", d.refs.CGEN}, {"sxr_fref", d.refs.SXR}, {"sxt_fref", d.refs.SXT}} {
		if ref.v == 0 {
			d.log.Error("Reference clock not initialized", "reference", ref.name)
			return fmt.Errorf("%w: %s", ErrReferenceNotInitialized, ref.name)
		}
	}
	return nil
}

func (d *Device) extractTrims(ch Channel) Trims {
	return Trims{
		CfbTIA:     d.Get(ch, CfbTIARFE),
		CcompTIA:   d.Get(ch, CcompTIARFE),
		RcompTIA:   d.Get(ch, RcompTIARFE),
		RccCtlLPFL: d.Get(ch, RccCtlLPFLRBB),
		CCtlLPFL:   d.Get(ch, CCtlLPFLRBB),
		RccCtlLPFH: d.Get(ch, RccCtlLPFHRBB),
		CCtlLPFH:   d.Get(ch, CCtlLPFHRBB),
		RCtlLPF:    d.Get(ch, RCtlLPFRBB),
	}
}

// applyTrims writes the extracted trims and their fixed companion settings on
// top of the restored register map, then commits the filter path.
func (d *Device) applyTrims(ch Channel, t Trims, path Path) {
	d.enterStage(ch, "apply")

	d.set(ch, IctTiamainRFE, 2)
	d.set(ch, IctTiaoutRFE, 2)
	d.set(ch, RfbTIARFE, 16)
	d.set(ch, CfbTIARFE, t.CfbTIA)
	d.set(ch, CcompTIARFE, t.CcompTIA)
	d.set(ch, RcompTIARFE, t.RcompTIA)
	for _, addr := range []uint16{0x010F, 0x0114, 0x0112} {
		d.write(ch, addr)
	}

	d.set(ch, RccCtlLPFLRBB, t.RccCtlLPFL)
	d.set(ch, CCtlLPFLRBB, t.CCtlLPFL)
	d.set(ch, RccCtlLPFHRBB, t.RccCtlLPFH)
	d.set(ch, CCtlLPFHRBB, t.CCtlLPFH)
	d.set(ch, RCtlLPFRBB, t.RCtlLPF)
	d.set(ch, IctPGAOutRBB, 20)
	d.set(ch, IctPGAInRBB, 20)
	for _, addr := range []uint16{0x0117, 0x0119, 0x0116} {
		d.write(ch, addr)
	}

	d.setPath(ch, path)
}

// restoreClocks puts CGEN and the TX LO back where they were before the
// session. Unknown (zero) frequencies are left alone.
func (d *Device) restoreClocks(cgenFreq, sxtFreq float64) {
	if cgenFreq != 0 && cgenFreq != d.cgenFreq {
		actual, err := d.hw.Clock.SetClockFrequency(d.refs.CGEN, cgenFreq)
		if err != nil {
			d.fault(fmt.Errorf("restore cgen %.3f MHz: %w", cgenFreq/1e6, err))
		} else {
			d.cgenFreq = actual
		}
	}
	if sxtFreq != 0 && sxtFreq != d.sxtFreq {
		actual, err := d.hw.Synth.SetLOFrequency(TX, d.refs.SXT, sxtFreq)
		if err != nil {
			d.fault(fmt.Errorf("restore tx lo %.3f MHz: %w", sxtFreq/1e6, err))
		} else {
			d.sxtFreq = actual
		}
	}
}
