package rxcal

import "fmt"

// setupTone parks the RX LO bw+extra below the already locked TX LO so the
// loopback tone lands at bw+extra in baseband, and points the RxTSP NCO at bw.
func (d *Device) setupTone(ch Channel, bw, extra float64) error {
	if err := d.hw.Synth.EnableSynthesizer(RX, true); err != nil {
		return fmt.Errorf("%w: enable rx synthesizer: %w", ErrLOTuneFailed, err)
	}
	if err := d.hw.Synth.ShareTxLO(false); err != nil {
		return fmt.Errorf("%w: unshare tx lo: %w", ErrLOTuneFailed, err)
	}

	freq := d.sxtFreq - bw - extra
	actual, err := d.hw.Synth.SetLOFrequency(RX, d.refs.SXR, freq)
	if err != nil {
		d.log.Error("Failed to tune RX LO", "channel", ch, "frequency_mhz", freq/1e6, "error", err)
		return fmt.Errorf("%w: rx lo %.3f MHz: %w", ErrLOTuneFailed, freq/1e6, err)
	}
	d.sxrFreq = actual

	d.setRxNCO(ch, bw/(d.cgenFreq/4))
	return nil
}
