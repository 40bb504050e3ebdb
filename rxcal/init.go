package rxcal

import "fmt"

// calibrationSXTFreq is where the TX LO is locked for the whole session.
const calibrationSXTFreq = 550e6

// initStages puts RFE, RBB, TRF, TBB, AFE, bias, SXT and both TSPs into the
// loopback state every stage calibrator starts from. The user's TIA gain
// survives the RFE reset.
func (d *Device) initStages(ch Channel) error {
	gTIA := d.Get(ch, GTIARFE)

	// RFE: loopback 1 input, all LNA shorting switches closed
	d.resetRange(ch, 0x010C, 0x0114)
	d.set(ch, SelPathRFE, 2)
	d.set(ch, GRxloopbRFE, 8)
	d.set(ch, PdRloopb2RFE, 0)
	d.set(ch, EnInshswLb2RFE, 0)
	d.set(ch, EnInshswLb1RFE, 1)
	d.set(ch, EnInshswLRFE, 1)
	d.set(ch, EnInshswWRFE, 1)
	d.set(ch, PdMxlobufRFE, 0)
	d.set(ch, PdQgenRFE, 0)
	d.set(ch, IctTiamainRFE, 2)
	d.set(ch, IctTiaoutRFE, 2)
	d.set(ch, RfbTIARFE, 16)
	d.set(ch, GTIARFE, gTIA)
	for _, addr := range []uint16{0x0113, 0x0114, 0x010C, 0x010D, 0x010F} {
		d.write(ch, addr)
	}

	// RBB
	d.resetRange(ch, 0x0115, 0x011B)
	d.set(ch, IctPGAOutRBB, 20)
	d.set(ch, IctPGAInRBB, 20)
	d.set(ch, CCtlPGARBB, 3)
	d.write(ch, 0x0119)
	d.write(ch, 0x011A)

	// TRF: TX pad looped back into the RX path
	d.resetRange(ch, 0x0100, 0x0104)
	d.set(ch, LLoopbTxpadTRF, 0)
	d.set(ch, EnLoopbTxpadTRF, 1)
	d.set(ch, SelBand1TRF, 0)
	d.set(ch, SelBand2TRF, 1)
	d.write(ch, 0x0100)
	d.write(ch, 0x0101)
	d.write(ch, 0x0103)

	// TBB
	d.resetRange(ch, 0x0105, 0x010B)
	d.set(ch, CgIampTBB, 1)
	d.set(ch, IctIampFrpTBB, 1)
	d.set(ch, IctIampGgFrpTBB, 6)
	d.write(ch, 0x0108)

	// channel B borrows the channel A LO buffers, configured through channel A
	next := 0
	if ch == ChannelB {
		next = 1
	}
	d.setAndWrite(ChannelA, EnNextRxRFE, next)
	d.setAndWrite(ChannelA, EnNextTxTRF, next)

	d.enableAFE(RX, ch, true)
	d.enableAFE(TX, ch, true)

	// bias defaults, keeping the trimmed reference resistor
	rpCalibBias := d.Get(ChannelA, RpCalibBias)
	d.resetRange(ChannelA, 0x0083, 0x0084)
	d.setAndWrite(ChannelA, RpCalibBias, rpCalibBias)

	actual, err := d.hw.Synth.SetLOFrequency(TX, d.refs.SXT, calibrationSXTFreq)
	if err != nil {
		d.log.Error("Failed to lock TX LO", "channel", ch, "frequency_mhz", calibrationSXTFreq/1e6, "error", err)
		return fmt.Errorf("%w: tx lo %.3f MHz: %w", ErrLOTuneFailed, calibrationSXTFreq/1e6, err)
	}
	d.sxtFreq = actual

	// TxTSP: constant test signal, all filters bypassed
	d.resetRange(ch, 0x0200, 0x020C)
	d.set(ch, TxTSGMode, 1)
	d.set(ch, TxInSel, 1)
	d.set(ch, TxCmixByp, 1)
	d.set(ch, TxGFIR3Byp, 1)
	d.set(ch, TxGFIR2Byp, 1)
	d.set(ch, TxGFIR1Byp, 1)
	d.write(ch, 0x0200)
	d.write(ch, 0x0208)
	d.loadTSGConst(ch, 0x7fff, 0x8000)

	// RxTSP: AGC in RSSI mode, filters bypassed
	d.resetRange(ch, 0x0400, 0x040F)
	d.set(ch, AGCMode, 1)
	d.set(ch, RxGFIR3Byp, 1)
	d.set(ch, RxGFIR2Byp, 1)
	d.set(ch, RxGFIR1Byp, 1)
	d.set(ch, AGCAvg, 4)
	d.set(ch, RxCmixGain, 1)
	d.write(ch, 0x040A)
	d.write(ch, 0x040C)

	return nil
}
