package rxcal

import "fmt"

// clipRatio is how far above the saturation target a reading may go before it
// is treated as clipped.
const clipRatio = 1.26

// StepGainScanner raises the loopback gain and then the PGA gain one code at a
// time until the tone reads at or above the saturation target. A step that
// overshoots the clip level is undone.
type StepGainScanner struct{}

// SelectGain implements GainScanner.
func (StepGainScanner) SelectGain(d *Device, ch Channel, saturation int) (int, error) {
	clip := int(float64(saturation) * clipRatio)
	stages := []Field{GRxloopbRFE, GPGARBB}

	for _, f := range stages {
		if err := d.WriteField(ch, f, 0); err != nil {
			return 0, err
		}
	}

	rssi, err := d.MeasureRSSI(ch)
	if err != nil {
		return 0, fmt.Errorf("baseline sample: %w", err)
	}

	for _, f := range stages {
		for g := 1; g <= f.Max(); g++ {
			if rssi >= saturation {
				return rssi, nil
			}
			if err := d.WriteField(ch, f, g); err != nil {
				return 0, err
			}
			next, err := d.MeasureRSSI(ch)
			if err != nil {
				return 0, fmt.Errorf("baseline sample: %w", err)
			}
			if next > clip {
				if err := d.WriteField(ch, f, g-1); err != nil {
					return 0, err
				}
				d.log.Debug("Gain step clipped", "channel", ch, "field", f.Name, "value", g, "rssi", next)
				return rssi, nil
			}
			rssi = next
		}
	}

	d.log.Warn("Gain scan ran out of range below saturation target", "channel", ch, "rssi", rssi, "target", saturation)
	return rssi, nil
}
