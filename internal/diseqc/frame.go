// Package diseqc builds DiSEqC 1.2 positioner commands and sends them to a
// rotor through the tuner's master-command primitive.
package diseqc

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidArgument is returned for malformed command parameters.
var ErrInvalidArgument = errors.New("invalid rotor command argument")

// Frame is one master command: framing byte, address, command and up to
// three data bytes, of which the first Len are sent.
type Frame struct {
	msg [6]byte
	len int
}

// Bytes returns the bytes that go on the wire.
func (f Frame) Bytes() []byte {
	return append([]byte(nil), f.msg[:f.len]...)
}

// Len is the used length (3, 4 or 5).
func (f Frame) Len() int { return f.len }

// ParseFrame wraps raw bytes, as seen on a bus, in a Frame.
func ParseFrame(b []byte) (Frame, error) {
	var f Frame
	if len(b) < 3 || len(b) > len(f.msg) {
		return Frame{}, fmt.Errorf("%w: frame length %d", ErrInvalidArgument, len(b))
	}
	f.len = copy(f.msg[:], b)
	return f, nil
}

func (f Frame) String() string {
	parts := make([]string, f.len)
	for i, b := range f.msg[:f.len] {
		parts[i] = fmt.Sprintf("0x%02X", b)
	}
	return strings.Join(parts, " ")
}

const (
	framingNoReply = 0xE0 // command from master, no reply required
	addrPositioner = 0x31 // azimuth positioner
)

// Command bytes.
const (
	cmdHalt       = 0x60
	cmdLimitsOff  = 0x63
	cmdLimitEast  = 0x66
	cmdLimitWest  = 0x67
	cmdDriveEast  = 0x68
	cmdDriveWest  = 0x69
	cmdStoreNN    = 0x6A
	cmdGotoNN     = 0x6B
	cmdGotoXX     = 0x6E
	stepFlag      = 0x80
	eastAngleBase = 0xE0
)

func frame(cmd byte, n int, data ...byte) Frame {
	f := Frame{len: n}
	f.msg[0], f.msg[1], f.msg[2] = framingNoReply, addrPositioner, cmd
	copy(f.msg[3:], data)
	return f
}

// StopFrame halts the positioner.
func StopFrame() Frame { return frame(cmdHalt, 3) }

// LimitsOffFrame disables the soft limits.
func LimitsOffFrame() Frame { return frame(cmdLimitsOff, 3) }

// LimitFrame stores the current position as the east or west soft limit.
func LimitFrame(dir Direction) Frame {
	if dir == East {
		return frame(cmdLimitEast, 3)
	}
	return frame(cmdLimitWest, 3)
}

// DriveFrame moves the dish east or west. param is 0 for continuous motion,
// a step count OR'd with 0x80, or a timeout in seconds.
func DriveFrame(dir Direction, param byte) Frame {
	if dir == East {
		return frame(cmdDriveEast, 4, param)
	}
	return frame(cmdDriveWest, 4, param)
}

// StoreFrame stores the current position in slot.
func StoreFrame(slot byte) Frame { return frame(cmdStoreNN, 4, slot) }

// GotoSlotFrame drives to a stored position.
func GotoSlotFrame(slot byte) Frame { return frame(cmdGotoNN, 4, slot) }

// GotoAngleFrame drives to an absolute angle (0 to 90 degrees).
func GotoAngleFrame(angle float64, dir Direction) (Frame, error) {
	enc, err := EncodeAngle(angle, dir)
	if err != nil {
		return Frame{}, err
	}
	hi, lo := enc.Pack()
	return frame(cmdGotoXX, 5, hi, lo), nil
}

// Direction of rotation, as seen from behind the dish.
type Direction int

const (
	West Direction = iota
	East
)

func (d Direction) String() string {
	if d == East {
		return "east"
	}
	return "west"
}

// ParseDirection accepts "e"/"east" and "w"/"west".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "e", "east":
		return East, nil
	case "w", "west":
		return West, nil
	}
	return 0, fmt.Errorf("%w: direction %q", ErrInvalidArgument, s)
}

// decimal maps tenths of a degree to the low nibble of the goto_x angle.
var decimal = [10]byte{0x0, 0x2, 0x3, 0x5, 0x6, 0x8, 0xA, 0xB, 0xD, 0xE}

// AngleEncoding splits a goto_x angle into its wire components.
type AngleEncoding struct {
	East     bool
	Sixteens byte // whole multiples of 16 degrees
	Degrees  byte // remaining whole degrees, 0 to 15
	Tenths   byte // tenths of a degree, 0 to 9
}

// EncodeAngle validates and splits angle.
func EncodeAngle(angle float64, dir Direction) (AngleEncoding, error) {
	if math.IsNaN(angle) || angle < 0 || angle > 90 {
		return AngleEncoding{}, fmt.Errorf("%w: angle %.2f out of range (0..90)", ErrInvalidArgument, angle)
	}
	// The epsilon keeps 22.3 from truncating to 22.2. Whole degrees and
	// tenths share it so 31.99999 encodes as 32.0, never 16.9.
	deg := math.Floor(angle + 1e-9)
	tenths := math.Floor((angle-deg)*10 + 1e-9)
	tenths = math.Max(0, math.Min(9, tenths))
	whole := int(deg)
	return AngleEncoding{
		East:     dir == East,
		Sixteens: byte(whole / 16),
		Degrees:  byte(whole % 16),
		Tenths:   byte(tenths),
	}, nil
}

// Pack returns data bytes 3 and 4 of the goto_x frame.
func (e AngleEncoding) Pack() (hi, lo byte) {
	if e.East {
		hi = eastAngleBase
	}
	hi += e.Sixteens
	lo = e.Degrees<<4 + decimal[e.Tenths]
	return hi, lo
}

// DecodeAngle recovers the direction and angle of a goto_x frame.
func DecodeAngle(f Frame) (float64, Direction, error) {
	if f.len != 5 || f.msg[2] != cmdGotoXX {
		return 0, 0, fmt.Errorf("%w: not a goto_x frame: %s", ErrInvalidArgument, f)
	}
	hi, lo := f.msg[3], f.msg[4]
	dir := West
	if hi&0xF0 == eastAngleBase {
		dir = East
	}
	tenths := -1
	for i, v := range decimal {
		if v == lo&0x0F {
			tenths = i
			break
		}
	}
	if tenths < 0 {
		return 0, 0, fmt.Errorf("%w: bad fraction nibble %#x", ErrInvalidArgument, lo&0x0F)
	}
	angle := float64(hi&0x0F)*16 + float64(lo>>4) + float64(tenths)/10
	return angle, dir, nil
}

// Action names the command a frame carries, or "" for frames that are
// not positioner commands.
func (f Frame) Action() Action {
	if f.len < 3 || f.msg[1] != addrPositioner {
		return ""
	}
	switch f.msg[2] {
	case cmdHalt:
		return ActionStop
	case cmdLimitsOff:
		return ActionLimitsOff
	case cmdLimitEast:
		return ActionLimitSetEast
	case cmdLimitWest:
		return ActionLimitSetWest
	case cmdDriveEast:
		return ActionGoEast
	case cmdDriveWest:
		return ActionGoWest
	case cmdStoreNN:
		return ActionStoreSat
	case cmdGotoNN:
		return ActionGotoSat
	case cmdGotoXX:
		return ActionGotoX
	}
	return ""
}

// stepDuration is how long one drive step is allowed to take.
const stepDuration = 30 * time.Second
