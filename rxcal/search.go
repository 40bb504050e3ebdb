package rxcal

import "fmt"

// Outcome is the result of one trim search.
type Outcome int

const (
	// OutcomeOK means readings on both sides of the target were seen.
	OutcomeOK Outcome = iota
	// OutcomeLow means no reading ever fell below the target.
	OutcomeLow
	// OutcomeHigh means no reading ever reached the target.
	OutcomeHigh
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLow:
		return "low"
	case OutcomeHigh:
		return "high"
	}
	return "ok"
}

const (
	rCompStartRange = 8

	// toneOffset keeps the tone clear of DC after the NCO shift.
	toneOffset = 50e3
)

// searchTrim drives f by successive approximation toward the code where the
// RSSI crosses target. Readings fall as the code rises. The last candidate is
// left written to the chip.
func (d *Device) searchTrim(ch Channel, f Field, target int) Outcome {
	maxCode := f.Max()
	rng := (maxCode + 1) / 2
	bestLo, bestHi := -1, -1
	initial := d.Get(ch, f)
	samples := searchSamplesTotal.WithLabelValues(f.Name)

	val := rng
	for {
		d.setAndWrite(ch, f, val)
		rssi := d.readRSSI(ch)
		samples.Inc()

		d.log.Debug("RSSI sample",
			"channel", ch,
			"field", f.Name,
			"target", target,
			"rssi", rssi,
			"range", rng,
			"value", val)
		d.emit(ch, Event{Kind: EventSample, Field: f.Name, Value: val, RSSI: rssi, Target: target, Range: rng})

		if rssi < target {
			bestLo = val
			val -= rng / 2
		} else {
			bestHi = val
			val += rng / 2
		}
		val = clamp(val, 0, maxCode)

		rng /= 2
		if rng == 0 {
			break
		}
	}

	out := OutcomeOK
	switch {
	case bestLo == -1:
		out = OutcomeLow
	case bestHi == -1:
		out = OutcomeHigh
	}
	searchOutcomesTotal.WithLabelValues(f.Name, out.String()).Inc()

	d.log.Debug("Trim search done",
		"channel", ch,
		"field", f.Name,
		"initial", initial,
		"value", val,
		"best_lo", bestLo,
		"best_hi", bestHi,
		"outcome", out)
	return out
}

// calibrateWithRComp runs searchTrim on f and, while it saturates, walks
// r_ctl_lpf_rbb toward the side that brings the target into range.
func (d *Device) calibrateWithRComp(ch Channel, bw float64, f Field, target int) error {
	if err := d.setupTone(ch, bw, toneOffset); err != nil {
		return err
	}

	rRange := rCompStartRange
	for {
		out := d.searchTrim(ch, f, target)
		r := d.Get(ch, RCtlLPFRBB)

		switch out {
		case OutcomeOK:
			return nil
		case OutcomeLow:
			if r == 0 || rRange == 0 {
				return fmt.Errorf("%w: %s saturated low with %s=%d", ErrRCompExhausted, f.Name, RCtlLPFRBB.Name, r)
			}
			r -= rRange
		case OutcomeHigh:
			if r == RCtlLPFRBB.Max() || rRange == 0 {
				return fmt.Errorf("%w: %s saturated high with %s=%d", ErrRCompExhausted, f.Name, RCtlLPFRBB.Name, r)
			}
			r += rRange
		}

		rRange /= 2
		r = clamp(r, 0, RCtlLPFRBB.Max())
		d.setAndWrite(ch, RCtlLPFRBB, r)
		rcompRetriesTotal.Inc()

		d.log.Info("Resistor compensation retry", "channel", ch, "field", f.Name, "outcome", out, "r_ctl_lpf_rbb", r)
		d.emit(ch, Event{Kind: EventRetry, Field: RCtlLPFRBB.Name, Value: r, Range: rRange})
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
