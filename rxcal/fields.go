package rxcal

import "fmt"

// Field is a named bit field inside one 16-bit register word.
type Field struct {
	Name  string
	Addr  uint16
	Shift uint8
	Width uint8
}

// Max returns the largest value the field can hold.
func (f Field) Max() int {
	return 1<<f.Width - 1
}

func (f Field) mask() uint16 {
	return uint16(f.Max()) << f.Shift
}

// Extract returns the field value contained in word.
func (f Field) Extract(word uint16) int {
	return int(word&f.mask()) >> f.Shift
}

// Insert returns word with the field replaced by v. v must already be in range.
func (f Field) Insert(word uint16, v int) uint16 {
	return word&^f.mask() | uint16(v)<<f.Shift&f.mask()
}

// Shared reports whether the field lives in the global register space that
// both channels see through channel A.
func (f Field) Shared() bool {
	return isShared(f.Addr)
}

func (f Field) String() string {
	return fmt.Sprintf("%s[0x%04X:%d+%d]", f.Name, f.Addr, f.Shift, f.Width)
}

func isShared(addr uint16) bool {
	return addr < 0x0100
}

// AFE
var (
	PdRxAFE1 = Field{"pd_rx_afe1", 0x0082, 4, 1}
	PdRxAFE2 = Field{"pd_rx_afe2", 0x0082, 3, 1}
	PdTxAFE1 = Field{"pd_tx_afe1", 0x0082, 2, 1}
	PdTxAFE2 = Field{"pd_tx_afe2", 0x0082, 1, 1}
)

// Bias
var RpCalibBias = Field{"rp_calib_bias", 0x0084, 6, 5}

// TRF
var (
	EnNextTxTRF     = Field{"en_nexttx_trf", 0x0100, 1, 1}
	LLoopbTxpadTRF  = Field{"l_loopb_txpad_trf", 0x0101, 11, 2}
	EnLoopbTxpadTRF = Field{"en_loopb_txpad_trf", 0x0101, 0, 1}
	SelBand1TRF     = Field{"sel_band1_trf", 0x0103, 11, 1}
	SelBand2TRF     = Field{"sel_band2_trf", 0x0103, 10, 1}
)

// TBB
var (
	CgIampTBB       = Field{"cg_iamp_tbb", 0x0108, 10, 6}
	IctIampFrpTBB   = Field{"ict_iamp_frp_tbb", 0x0108, 5, 5}
	IctIampGgFrpTBB = Field{"ict_iamp_gg_frp_tbb", 0x0108, 0, 5}
)

// RFE
var (
	PdRloopb2RFE   = Field{"pd_rloopb_2_rfe", 0x010C, 5, 1}
	PdMxlobufRFE   = Field{"pd_mxlobuf_rfe", 0x010C, 4, 1}
	PdQgenRFE      = Field{"pd_qgen_rfe", 0x010C, 3, 1}
	SelPathRFE     = Field{"sel_path_rfe", 0x010D, 7, 2}
	EnInshswLb1RFE = Field{"en_inshsw_lb1_rfe", 0x010D, 4, 1}
	EnInshswLb2RFE = Field{"en_inshsw_lb2_rfe", 0x010D, 3, 1}
	EnInshswLRFE   = Field{"en_inshsw_l_rfe", 0x010D, 2, 1}
	EnInshswWRFE   = Field{"en_inshsw_w_rfe", 0x010D, 1, 1}
	EnNextRxRFE    = Field{"en_nextrx_rfe", 0x010D, 0, 1}
	IctTiamainRFE  = Field{"ict_tiamain_rfe", 0x010F, 10, 5}
	IctTiaoutRFE   = Field{"ict_tiaout_rfe", 0x010F, 5, 5}
)

// TIA
var (
	CcompTIARFE = Field{"ccomp_tia_rfe", 0x0112, 12, 4}
	CfbTIARFE   = Field{"cfb_tia_rfe", 0x0112, 0, 12}
	GLNARFE     = Field{"g_lna_rfe", 0x0113, 6, 4}
	GRxloopbRFE = Field{"g_rxloopb_rfe", 0x0113, 2, 4}
	GTIARFE     = Field{"g_tia_rfe", 0x0113, 0, 2}
	RcompTIARFE = Field{"rcomp_tia_rfe", 0x0114, 5, 4}
	RfbTIARFE   = Field{"rfb_tia_rfe", 0x0114, 0, 5}
)

// RBB
var (
	PdLPFHRBB      = Field{"pd_lpfh_rbb", 0x0115, 3, 1}
	PdLPFLRBB      = Field{"pd_lpfl_rbb", 0x0115, 2, 1}
	RCtlLPFRBB     = Field{"r_ctl_lpf_rbb", 0x0116, 11, 5}
	RccCtlLPFHRBB  = Field{"rcc_ctl_lpfh_rbb", 0x0116, 8, 3}
	CCtlLPFHRBB    = Field{"c_ctl_lpfh_rbb", 0x0116, 0, 8}
	RccCtlLPFLRBB  = Field{"rcc_ctl_lpfl_rbb", 0x0117, 11, 3}
	CCtlLPFLRBB    = Field{"c_ctl_lpfl_rbb", 0x0117, 0, 11}
	InputCtlPGARBB = Field{"input_ctl_pga_rbb", 0x0118, 13, 3}
	IctPGAOutRBB   = Field{"ict_pga_out_rbb", 0x0119, 10, 5}
	IctPGAInRBB    = Field{"ict_pga_in_rbb", 0x0119, 5, 5}
	GPGARBB        = Field{"g_pga_rbb", 0x0119, 0, 5}
	CCtlPGARBB     = Field{"c_ctl_pga_rbb", 0x011A, 8, 7}
)

// TxTSP
var (
	TxTSGDCLDQ = Field{"tsgdcldq", 0x0200, 6, 1}
	TxTSGDCLDI = Field{"tsgdcldi", 0x0200, 5, 1}
	TxTSGMode  = Field{"tsgmode", 0x0200, 3, 1}
	TxInSel    = Field{"insel", 0x0200, 2, 1}
	TxCmixByp  = Field{"cmix_byp", 0x0208, 8, 1}
	TxGFIR3Byp = Field{"gfir3_byp", 0x0208, 6, 1}
	TxGFIR2Byp = Field{"gfir2_byp", 0x0208, 5, 1}
	TxGFIR1Byp = Field{"gfir1_byp", 0x0208, 4, 1}
	TxDCReg    = Field{"dc_reg", 0x020C, 0, 16}
)

// RxTSP
var (
	RxCapture  = Field{"capture", 0x0400, 15, 1}
	RxCapSel   = Field{"capsel", 0x0400, 13, 2}
	AGCMode    = Field{"agc_mode", 0x040A, 12, 2}
	AGCAvg     = Field{"agc_avg", 0x040A, 0, 3}
	RxCmixGain = Field{"cmix_gain", 0x040C, 14, 2}
	RxGFIR3Byp = Field{"gfir3_byp", 0x040C, 5, 1}
	RxGFIR2Byp = Field{"gfir2_byp", 0x040C, 4, 1}
	RxGFIR1Byp = Field{"gfir1_byp", 0x040C, 3, 1}
	RxNCOSel   = Field{"sel", 0x0440, 1, 4}
	RxNCOMode  = Field{"mode", 0x0440, 0, 1}
	RxNCOFCWHi = Field{"fcw_hi", 0x0442, 0, 16}
	RxNCOFCWLo = Field{"fcw_lo", 0x0443, 0, 16}
)

// CalibratedFields are the fields a session intentionally leaves changed:
// the extracted trims, their fixed companions and the filter path selector.
var CalibratedFields = []Field{
	CfbTIARFE, CcompTIARFE, RcompTIARFE, RfbTIARFE,
	IctTiamainRFE, IctTiaoutRFE,
	RccCtlLPFLRBB, CCtlLPFLRBB,
	RccCtlLPFHRBB, CCtlLPFHRBB, RCtlLPFRBB,
	IctPGAOutRBB, IctPGAInRBB,
	PdLPFLRBB, PdLPFHRBB, InputCtlPGARBB,
}
