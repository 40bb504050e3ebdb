package plugins

// LMS7002M global and synthesizer registers used by the controller. The
// analog filter registers are described by the rxcal field table.
const (
	RegMAC      = 0x0020 // Channel (MAC) select for per-channel registers
	RegChipInfo = 0x002F // Version, revision and mask

	// CGEN clock generator
	RegCGENCfg     = 0x0086 // Power downs and SDM mode
	RegCGENFracLo  = 0x0087 // frac_sdm_cgen[15:0]
	RegCGENIntFrac = 0x0088 // int_sdm_cgen[13:4], frac_sdm_cgen[19:16]
	RegCGENDiv     = 0x0089 // div_outch_cgen[10:3]

	// SX synthesizers, MAC A selects SXR and MAC B selects SXT
	RegSXCfg     = 0x011C // Power downs, divider and LO sharing
	RegSXFracLo  = 0x011D // frac_sdm[15:0]
	RegSXIntFrac = 0x011E // int_sdm[13:4], frac_sdm[19:16]
	RegSXDiv     = 0x011F // div_loch[8:6]
	RegSXVCO     = 0x0121 // csw_vco[10:3]
	RegSXCmp     = 0x0123 // vco_cmpho[13], vco_cmplo[12]

	// RxTSP power detector readout
	RegRxTSPCapture = 0x0400 // capture[15], capsel[14:13]
	RegRSSILo       = 0x040E // rssi[1:0]
	RegRSSIHi       = 0x040F // rssi[17:2]
)

// RegMAC (0x0020) values
const (
	MACChannelA = 1
	MACChannelB = 2
	MACBoth     = 3
	macMask     = 0x0003
)

// RegSXCfg (0x011C) bits
const (
	SXCfgEnDiv2Divprog = 1 << 10
	SXCfgEnIntonlySDM  = 1 << 9
	SXCfgPdLochT2RBuf  = 1 << 6
	SXCfgPdVCO         = 1 << 1
	SXCfgEnG           = 1 << 0
)

// RegSXCmp (0x0123) bits
const (
	CmpVCOHigh = 1 << 13
	CmpVCOLow  = 1 << 12
)

// RegRxTSPCapture (0x0400) bits
const (
	CaptureStrobe = 1 << 15
	capselMask    = 0x3 << 13
)

// Register descriptions for UI
var RegisterDescriptions = map[uint16]string{
	RegMAC:          "MAC - Channel select",
	RegChipInfo:     "CHIP_INFO - Version, revision and mask",
	0x0082:          "AFE - ADC/DAC power downs",
	0x0084:          "BIAS - Reference bias trim",
	RegCGENCfg:      "CGEN_CFG - CGEN power downs",
	RegCGENFracLo:   "CGEN_FRAC - SDM fraction LSB",
	RegCGENIntFrac:  "CGEN_INT - SDM integer and fraction MSB",
	RegCGENDiv:      "CGEN_DIV - Output divider",
	0x0100:          "TRF_CFG - TX RF power downs",
	0x0101:          "TRF_LOOPB - TX pad loopback",
	0x0108:          "TBB_IAMP - TX baseband current amplifier",
	0x010C:          "RFE_PD - RX RF power downs",
	0x010D:          "RFE_PATH - RX RF path and shorting switches",
	0x010F:          "RFE_ICT - TIA bias currents",
	0x0112:          "RFE_TIA_C - TIA feedback and compensation capacitors",
	0x0113:          "RFE_GAIN - LNA, loopback and TIA gain",
	0x0114:          "RFE_TIA_R - TIA feedback and compensation resistors",
	0x0115:          "RBB_PD - RX baseband power downs",
	0x0116:          "RBB_LPFH - LPFH capacitor and shared resistor",
	0x0117:          "RBB_LPFL - LPFL capacitor and resistor",
	0x0118:          "RBB_PGA_IN - PGA input select",
	0x0119:          "RBB_PGA - PGA gain and bias",
	0x011A:          "RBB_PGA_C - PGA feedback capacitor",
	RegSXCfg:        "SX_CFG - Synthesizer power downs",
	RegSXFracLo:     "SX_FRAC - SDM fraction LSB",
	RegSXIntFrac:    "SX_INT - SDM integer and fraction MSB",
	RegSXDiv:        "SX_DIV - LO divider",
	RegSXVCO:        "SX_VCO - VCO capacitor switch",
	RegSXCmp:        "SX_CMP - VCO comparators",
	0x0200:          "TXTSP_TSG - Test signal generator",
	0x0208:          "TXTSP_BYP - TX DSP bypasses",
	0x020C:          "TXTSP_DC - TSG DC value",
	RegRxTSPCapture: "RXTSP_CAP - Readout capture",
	0x040A:          "RXTSP_AGC - AGC mode and averaging",
	0x040C:          "RXTSP_BYP - RX DSP bypasses and CMIX gain",
	RegRSSILo:       "RSSI_LO - Power detector LSBs",
	RegRSSIHi:       "RSSI_HI - Power detector MSBs",
	0x0440:          "RXNCO_CFG - NCO mode and select",
	0x0442:          "RXNCO_FCW_HI - NCO frequency word MSB",
	0x0443:          "RXNCO_FCW_LO - NCO frequency word LSB",
}
