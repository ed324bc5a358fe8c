package frontend

import (
	"fmt"
	"strings"

	"github.com/large-farva/feedhunter/internal/dvb"
)

// DefaultSymbolRate is the DVB-S rate used by the blind scan, in Sym/s.
const DefaultSymbolRate = 27500000

// DefaultCableSymbolRate is the usual DVB-C rate, in Sym/s.
const DefaultCableSymbolRate = 6900000

// TuningRequest is one of QPSK, QAM or OFDM.
type TuningRequest interface {
	isTuningRequest()
}

// QPSK tunes a DVB-S frontend. Frequency is the LNB IF in kHz.
type QPSK struct {
	Frequency  uint32
	SymbolRate uint32
}

// QAM tunes a DVB-C frontend. Frequency is in Hz.
type QAM struct {
	Frequency  uint32
	SymbolRate uint32
	Modulation uint32
}

// OFDM tunes a DVB-T frontend. Frequency is in Hz. Only non-hierarchical
// transmissions are supported.
type OFDM struct {
	Frequency     uint32
	Modulation    uint32
	Bandwidth     uint32
	TransmitMode  uint32
	CodeRate      uint32
	GuardInterval uint32
}

func (QPSK) isTuningRequest() {}
func (QAM) isTuningRequest()  {}
func (OFDM) isTuningRequest() {}

func buildParameters(req TuningRequest) (dvb.Parameters, dvb.Type, error) {
	switch r := req.(type) {
	case QPSK:
		return dvb.Parameters{
			Frequency: r.Frequency,
			Inversion: dvb.InversionAuto,
			QPSK: dvb.QPSKParams{
				SymbolRate: r.SymbolRate,
				FECInner:   dvb.FECAuto,
			},
		}, dvb.TypeQPSK, nil
	case QAM:
		return dvb.Parameters{
			Frequency: r.Frequency,
			Inversion: dvb.InversionAuto,
			QAM: dvb.QAMParams{
				SymbolRate: r.SymbolRate,
				FECInner:   dvb.FECAuto,
				Modulation: r.Modulation,
			},
		}, dvb.TypeQAM, nil
	case OFDM:
		return dvb.Parameters{
			Frequency: r.Frequency,
			Inversion: dvb.InversionAuto,
			OFDM: dvb.OFDMParams{
				Bandwidth:        r.Bandwidth,
				CodeRateHP:       r.CodeRate,
				CodeRateLP:       dvb.FECNone,
				Constellation:    r.Modulation,
				TransmissionMode: r.TransmitMode,
				GuardInterval:    r.GuardInterval,
				Hierarchy:        dvb.HierarchyNone,
			},
		}, dvb.TypeOFDM, nil
	default:
		return dvb.Parameters{}, 0, fmt.Errorf("%w: %T", ErrUnsupportedSystem, req)
	}
}

// DirectRequest builds a request for a cable or terrestrial frontend with
// every modulation parameter left to the demodulator. freq is in kHz.
// DVB-S goes through the LNB and has no direct form.
func DirectRequest(typ dvb.Type, freq, symbolRate uint32) (TuningRequest, error) {
	switch typ {
	case dvb.TypeQAM:
		if symbolRate == 0 {
			symbolRate = DefaultCableSymbolRate
		}
		return QAM{Frequency: freq * 1000, SymbolRate: symbolRate, Modulation: dvb.QAMAuto}, nil
	case dvb.TypeOFDM:
		return OFDM{
			Frequency:     freq * 1000,
			Modulation:    dvb.QAMAuto,
			Bandwidth:     dvb.BandwidthAuto,
			TransmitMode:  dvb.TransmissionModeAuto,
			CodeRate:      dvb.FECAuto,
			GuardInterval: dvb.GuardAuto,
		}, nil
	default:
		return nil, fmt.Errorf("%w: no direct tuning for %s", ErrUnsupportedSystem, typ)
	}
}

// Polarization of a satellite transponder.
type Polarization int

const (
	Horizontal Polarization = iota
	Vertical
)

// Voltage returns the LNB supply that selects p: 18 V for horizontal and
// 13 V for vertical.
func (p Polarization) Voltage() dvb.Voltage {
	if p == Vertical {
		return dvb.Voltage13
	}
	return dvb.Voltage18
}

func (p Polarization) String() string {
	if p == Vertical {
		return "V"
	}
	return "H"
}

// ParsePolarization accepts h/v in either case, or the full words.
func ParsePolarization(s string) (Polarization, error) {
	switch strings.ToLower(s) {
	case "h", "horizontal":
		return Horizontal, nil
	case "v", "vertical":
		return Vertical, nil
	}
	return 0, fmt.Errorf("invalid polarization %q", s)
}

func (p Polarization) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Polarization) UnmarshalText(b []byte) error {
	v, err := ParsePolarization(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
