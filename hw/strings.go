package hw

// lmpVersions maps LMP version codes to Bluetooth release names.
var lmpVersions = map[uint8]string{
	0: "1.0b",
	1: "1.1",
	2: "1.2",
	3: "2.0",
	4: "2.1",
	5: "3.0",
	6: "4.0",
	7: "4.1",
	8: "4.2",
	9: "5.0",
}

// VersionString names an LMP version code.
func VersionString(ver uint8) string {
	if s, ok := lmpVersions[ver]; ok {
		return s
	}
	return "n/a"
}

var companies = map[uint16]string{
	0:  "Ericsson Technology Licensing",
	1:  "Nokia Mobile Phones",
	2:  "Intel Corp.",
	3:  "IBM Corp.",
	4:  "Toshiba Corp.",
	5:  "3Com",
	6:  "Microsoft",
	7:  "Lucent",
	8:  "Motorola",
	9:  "Infineon Technologies AG",
	10: "Cambridge Silicon Radio",
	11: "Silicon Wave",
	12: "Digianswer A/S",
	13: "Texas Instruments Inc.",
	14: "Parthus Technologies Inc.",
	15: "Broadcom Corporation",
	16: "Mitel Semiconductor",
	17: "Widcomm, Inc.",
	18: "Zeevo, Inc.",
	19: "Atmel Corporation",
	20: "Mitsubishi Electric Corporation",
	21: "RTX Telecom A/S",
	22: "KC Technology Inc.",
	23: "Newlogic",
	24: "Transilica, Inc.",
	25: "Rohde & Schwarz GmbH & Co. KG",
	26: "TTPCom Limited",
	27: "Signia Technologies, Inc.",
	28: "Conexant Systems Inc.",
	29: "Qualcomm",
	30: "Inventel",
	31: "AVM Berlin",
	32: "BandSpeed, Inc.",
	33: "Mansella Ltd",
	34: "NEC Corporation",
	35: "WavePlus Technology Co., Ltd.",
	36: "Alcatel",
	37: "Philips Semiconductors",
	38: "C Technologies",
	39: "Open Interface",
	40: "R F Micro Devices",
	41: "Hitachi Ltd",
	42: "Symbol Technologies, Inc.",
	43: "Tenovis",
	44: "Macronix International Co. Ltd.",
	45: "GCT Semiconductor",
	46: "Norwood Systems",
	47: "MewTel Technology Inc.",
	48: "ST Microelectronics",
	49: "Synopsys",
}

// CompanyString names a manufacturer id.
func CompanyString(id uint16) string {
	if s, ok := companies[id]; ok {
		return s
	}
	if id == 0xffff {
		return "internal use"
	}
	return "not assigned"
}

var busTypes = []string{"VIRTUAL", "USB", "PCCARD", "UART", "RS232", "PCI", "SDIO"}

// BusTypeString names a transport bus type.
func BusTypeString(t uint8) string {
	if int(t) < len(busTypes) {
		return busTypes[t]
	}
	return "UNKNOWN"
}

// UP is reported separately, so FlagNames covers the rest.
var devFlagNames = []struct {
	bit  uint
	name string
}{
	{DevFlagInit, "INIT"},
	{DevFlagRunning, "RUNNING"},
	{DevFlagRaw, "RAW"},
	{DevFlagPScan, "PSCAN"},
	{DevFlagIScan, "ISCAN"},
	{DevFlagInquiry, "INQUIRY"},
	{DevFlagAuth, "AUTH"},
	{DevFlagEncrypt, "ENCRYPT"},
	{DevFlagSecMgr, "SECMGR"},
}

// FlagNames renders the set hci_dev_info flag bits.
func FlagNames(flags uint32) []string {
	out := make([]string, 0, len(devFlagNames))
	for _, f := range devFlagNames {
		if flags&(1<<f.bit) != 0 {
			out = append(out, f.name)
		}
	}
	return out
}

// IsUp reports whether the UP flag bit is set.
func IsUp(flags uint32) bool {
	return flags&(1<<DevFlagUp) != 0
}
