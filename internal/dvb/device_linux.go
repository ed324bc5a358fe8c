//go:build linux

package dvb

import (
	"errors"
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

type rawInfo struct {
	Name                [128]byte
	Type                uint32
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

// rawParams is struct dvb_frontend_parameters; the union is 7 words (OFDM).
type rawParams struct {
	Frequency uint32
	Inversion uint32
	U         [7]uint32
}

type rawEvent struct {
	Status uint32
	Params rawParams
}

type rawDiseqcCmd struct {
	Msg [MaxDiseqcLen]byte
	Len uint8
}

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, nr, size uintptr) uint {
	return uint(dir<<30 | size<<16 | uintptr('o')<<8 | nr)
}

var (
	feGetInfo             = ioc(iocRead, 61, unsafe.Sizeof(rawInfo{}))
	feDiseqcSendMasterCmd = ioc(iocWrite, 63, unsafe.Sizeof(rawDiseqcCmd{}))
	feSetTone             = ioc(iocNone, 66, 0)
	feSetVoltage          = ioc(iocNone, 67, 0)
	feReadStatus          = ioc(iocRead, 69, 4)
	feSetFrontend         = ioc(iocWrite, 76, unsafe.Sizeof(rawParams{}))
	feGetEvent            = ioc(iocRead, 78, unsafe.Sizeof(rawEvent{}))
)

// Device is an open frontend node.
type Device struct {
	fd   int
	path string
	typ  Type
}

// Open opens a frontend node read-write and non-blocking.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return &Device{fd: fd, path: path}, nil
}

// Path returns the node the device was opened from.
func (d *Device) Path() string { return d.path }

// Close releases the file descriptor.
func (d *Device) Close() error {
	return unix.Close(d.fd)
}

func (d *Device) ioctlPtr(req uint, p unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(req), uintptr(p))
	if errno != 0 {
		return errno
	}
	return nil
}

// Info runs FE_GET_INFO.
func (d *Device) Info() (Info, error) {
	var raw rawInfo
	if err := d.ioctlPtr(feGetInfo, unsafe.Pointer(&raw)); err != nil {
		return Info{}, fmt.Errorf("FE_GET_INFO: %w", err)
	}
	d.typ = Type(raw.Type)
	return Info{
		Name:                cString(raw.Name[:]),
		Type:                Type(raw.Type),
		FrequencyMin:        raw.FrequencyMin,
		FrequencyMax:        raw.FrequencyMax,
		FrequencyStepSize:   raw.FrequencyStepSize,
		FrequencyTolerance:  raw.FrequencyTolerance,
		SymbolRateMin:       raw.SymbolRateMin,
		SymbolRateMax:       raw.SymbolRateMax,
		SymbolRateTolerance: raw.SymbolRateTolerance,
		NotifierDelay:       raw.NotifierDelay,
		Caps:                raw.Caps,
	}, nil
}

// SetVoltage runs FE_SET_VOLTAGE.
func (d *Device) SetVoltage(v Voltage) error {
	if err := unix.IoctlSetInt(d.fd, feSetVoltage, int(v)); err != nil {
		return fmt.Errorf("FE_SET_VOLTAGE: %w", err)
	}
	return nil
}

// SetTone runs FE_SET_TONE.
func (d *Device) SetTone(t Tone) error {
	if err := unix.IoctlSetInt(d.fd, feSetTone, int(t)); err != nil {
		return fmt.Errorf("FE_SET_TONE: %w", err)
	}
	return nil
}

// SetFrontend runs FE_SET_FRONTEND. The union member is picked from the
// type reported by the last Info call.
func (d *Device) SetFrontend(p Parameters) error {
	raw := rawParams{Frequency: p.Frequency, Inversion: p.Inversion}
	switch d.typ {
	case TypeQPSK:
		raw.U[0], raw.U[1] = p.QPSK.SymbolRate, p.QPSK.FECInner
	case TypeQAM:
		raw.U[0], raw.U[1], raw.U[2] = p.QAM.SymbolRate, p.QAM.FECInner, p.QAM.Modulation
	case TypeOFDM:
		raw.U = [7]uint32{
			p.OFDM.Bandwidth,
			p.OFDM.CodeRateHP,
			p.OFDM.CodeRateLP,
			p.OFDM.Constellation,
			p.OFDM.TransmissionMode,
			p.OFDM.GuardInterval,
			p.OFDM.Hierarchy,
		}
	default:
		return fmt.Errorf("FE_SET_FRONTEND: unsupported device type %s", d.typ)
	}
	if err := d.ioctlPtr(feSetFrontend, unsafe.Pointer(&raw)); err != nil {
		return fmt.Errorf("FE_SET_FRONTEND: %w", err)
	}
	return nil
}

// WaitEvent blocks up to timeout for the frontend to signal a status change.
// It reports false when the timeout expired first.
func (d *Device) WaitEvent(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN | unix.POLLPRI}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if errors.Is(err, unix.EINTR) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("poll: %w", err)
	}
	return n > 0, nil
}

// ReadStatus drains one pending frontend event and then runs
// FE_READ_STATUS. An empty or overflowed event queue is not an error.
func (d *Device) ReadStatus() (Status, error) {
	var ev rawEvent
	if err := d.ioctlPtr(feGetEvent, unsafe.Pointer(&ev)); err != nil &&
		!errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EOVERFLOW) {
		return 0, fmt.Errorf("FE_GET_EVENT: %w", err)
	}
	var st uint32
	if err := d.ioctlPtr(feReadStatus, unsafe.Pointer(&st)); err != nil {
		return 0, fmt.Errorf("FE_READ_STATUS: %w", err)
	}
	return Status(st), nil
}

// SendDiseqc runs FE_DISEQC_SEND_MASTER_CMD with msg (3 to 6 bytes).
func (d *Device) SendDiseqc(msg []byte) error {
	if len(msg) < 3 || len(msg) > MaxDiseqcLen {
		return fmt.Errorf("FE_DISEQC_SEND_MASTER_CMD: invalid length %d", len(msg))
	}
	var cmd rawDiseqcCmd
	copy(cmd.Msg[:], msg)
	cmd.Len = uint8(len(msg))
	if err := d.ioctlPtr(feDiseqcSendMasterCmd, unsafe.Pointer(&cmd)); err != nil {
		return fmt.Errorf("FE_DISEQC_SEND_MASTER_CMD: %w", err)
	}
	return nil
}
