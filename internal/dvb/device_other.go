//go:build !linux

package dvb

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("DVB frontends are only supported on linux")

// Device is unavailable off linux; Open always fails.
type Device struct{}

func Open(path string) (*Device, error) { return nil, errUnsupported }

func (d *Device) Path() string                          { return "" }
func (d *Device) Close() error                          { return errUnsupported }
func (d *Device) Info() (Info, error)                   { return Info{}, errUnsupported }
func (d *Device) SetVoltage(Voltage) error              { return errUnsupported }
func (d *Device) SetTone(Tone) error                    { return errUnsupported }
func (d *Device) SetFrontend(Parameters) error          { return errUnsupported }
func (d *Device) WaitEvent(time.Duration) (bool, error) { return false, errUnsupported }
func (d *Device) ReadStatus() (Status, error)           { return 0, errUnsupported }
func (d *Device) SendDiseqc([]byte) error               { return errUnsupported }
