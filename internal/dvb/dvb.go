// Package dvb is a thin binding to the Linux DVB API v3 frontend device.
// It exposes the handful of ioctls the tuner and rotor code needs and the
// enum values they take, mirroring linux/dvb/frontend.h.
package dvb

import (
	"bytes"
	"fmt"
)

// Type is the delivery system family reported by FE_GET_INFO.
type Type uint32

const (
	TypeQPSK Type = iota // DVB-S
	TypeQAM              // DVB-C
	TypeOFDM             // DVB-T
	TypeATSC
)

func (t Type) String() string {
	switch t {
	case TypeQPSK:
		return "DVB-S"
	case TypeQAM:
		return "DVB-C"
	case TypeOFDM:
		return "DVB-T"
	case TypeATSC:
		return "ATSC"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// ParseType accepts the names printed by Type.String as well as the
// modulation-style aliases used in config files.
func ParseType(s string) (Type, error) {
	switch s {
	case "DVB-S", "dvb-s", "qpsk", "s":
		return TypeQPSK, nil
	case "DVB-C", "dvb-c", "qam", "c":
		return TypeQAM, nil
	case "DVB-T", "dvb-t", "ofdm", "t":
		return TypeOFDM, nil
	case "ATSC", "atsc":
		return TypeATSC, nil
	}
	return 0, fmt.Errorf("unknown delivery system %q", s)
}

// Caps bits from fe_caps.
const (
	CanInversionAuto = 0x1
	CanFECAuto       = 0x200
	CanQPSK          = 0x400
	Can2GModulation  = 0x10000000
)

// Info mirrors struct dvb_frontend_info.
type Info struct {
	Name                string
	Type                Type
	FrequencyMin        uint32
	FrequencyMax        uint32
	FrequencyStepSize   uint32
	FrequencyTolerance  uint32
	SymbolRateMin       uint32
	SymbolRateMax       uint32
	SymbolRateTolerance uint32
	NotifierDelay       uint32
	Caps                uint32
}

// Voltage selects the LNB supply (and with it the polarization).
type Voltage uint32

const (
	Voltage13 Voltage = iota
	Voltage18
	VoltageOff
)

func (v Voltage) String() string {
	switch v {
	case Voltage13:
		return "13V"
	case Voltage18:
		return "18V"
	case VoltageOff:
		return "off"
	default:
		return fmt.Sprintf("voltage(%d)", uint32(v))
	}
}

// Tone is the 22 kHz continuous tone mode.
type Tone uint32

const (
	ToneOn Tone = iota
	ToneOff
)

// Status is the fe_status_t bit set.
type Status uint32

const (
	HasSignal Status = 1 << iota
	HasCarrier
	HasViterbi
	HasSync
	HasLock
	TimedOut
	Reinit
)

// Inversion values.
const (
	InversionOff uint32 = iota
	InversionOn
	InversionAuto
)

// Code rates (fe_code_rate).
const (
	FECNone uint32 = iota
	FEC1_2
	FEC2_3
	FEC3_4
	FEC4_5
	FEC5_6
	FEC6_7
	FEC7_8
	FEC8_9
	FECAuto
)

// Modulations (fe_modulation).
const (
	QPSK uint32 = iota
	QAM16
	QAM32
	QAM64
	QAM128
	QAM256
	QAMAuto
)

// Transmission modes.
const (
	TransmissionMode2K uint32 = iota
	TransmissionMode8K
	TransmissionModeAuto
)

// Bandwidths.
const (
	Bandwidth8MHz uint32 = iota
	Bandwidth7MHz
	Bandwidth6MHz
	BandwidthAuto
)

// Guard intervals.
const (
	Guard1_32 uint32 = iota
	Guard1_16
	Guard1_8
	Guard1_4
	GuardAuto
)

// HierarchyNone is the only hierarchy this package programs.
const HierarchyNone uint32 = 0

// Parameters mirrors struct dvb_frontend_parameters. Only the union member
// selected by the device type is meaningful; the others stay zero.
type Parameters struct {
	Frequency uint32
	Inversion uint32
	QPSK      QPSKParams
	QAM       QAMParams
	OFDM      OFDMParams
}

type QPSKParams struct {
	SymbolRate uint32
	FECInner   uint32
}

type QAMParams struct {
	SymbolRate uint32
	FECInner   uint32
	Modulation uint32
}

type OFDMParams struct {
	Bandwidth        uint32
	CodeRateHP       uint32
	CodeRateLP       uint32
	Constellation    uint32
	TransmissionMode uint32
	GuardInterval    uint32
	Hierarchy        uint32
}

// MaxDiseqcLen is the size of the msg array in dvb_diseqc_master_cmd.
const MaxDiseqcLen = 6

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
