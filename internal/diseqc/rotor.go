package diseqc

import (
	"context"
	"log"
	"time"

	"github.com/large-farva/feedhunter/internal/dvb"
)

// DefaultSettle is the pause between powering the LNB line and sending the
// first frame, giving the positioner time to wake up.
const DefaultSettle = time.Second

// Bus is the part of a tuner that carries DiSEqC traffic.
type Bus interface {
	SetTone(on bool) error
	SetVoltage(v dvb.Voltage) error
	SendDiseqc(msg []byte) error
}

// RotorOptions configures a Rotor.
type RotorOptions struct {
	Voltage dvb.Voltage // VoltageOff is replaced by 18 V
	Settle  time.Duration
	Logger  *log.Logger

	// Sent is called after every frame that reaches the bus.
	Sent func(Frame)
}

// Rotor sends commands to a positioner over a Bus.
type Rotor struct {
	bus     Bus
	voltage dvb.Voltage
	settle  time.Duration
	log     *log.Logger
	sent    func(Frame)
}

// NewRotor wraps bus.
func NewRotor(bus Bus, opts RotorOptions) *Rotor {
	r := &Rotor{
		bus:     bus,
		voltage: opts.Voltage,
		settle:  opts.Settle,
		log:     opts.Logger,
		sent:    opts.Sent,
	}
	if r.voltage == dvb.VoltageOff {
		r.voltage = dvb.Voltage18
	}
	if r.settle <= 0 {
		r.settle = DefaultSettle
	}
	if r.log == nil {
		r.log = log.Default()
	}
	return r
}

// Execute transmits cmd and waits for it to run.
//
// Move commands are always followed by a stop frame, also when ctx is
// cancelled during the wait; in that case Execute returns nil once the stop
// has gone out. Cancellation before the frame is sent returns ctx.Err().
func (r *Rotor) Execute(ctx context.Context, cmd Command) error {
	if err := r.bus.SetTone(false); err != nil {
		return err
	}
	if err := r.bus.SetVoltage(r.voltage); err != nil {
		return err
	}
	if !Sleep(ctx, r.settle) {
		return ctx.Err()
	}

	r.log.Printf("sending %s: %s", cmd.Action, cmd.Frame)
	if err := r.send(cmd.Frame); err != nil {
		return err
	}

	if cmd.Wait > 0 {
		r.log.Printf("waiting %s", cmd.Wait)
		if !Sleep(ctx, cmd.Wait) {
			r.log.Printf("wait interrupted")
		}
	}

	if cmd.StopAfter {
		r.log.Printf("sending stop")
		return r.send(StopFrame())
	}
	return nil
}

// Stop halts the positioner immediately.
func (r *Rotor) Stop() error {
	return r.send(StopFrame())
}

func (r *Rotor) send(f Frame) error {
	if err := r.bus.SendDiseqc(f.Bytes()); err != nil {
		return err
	}
	if r.sent != nil {
		r.sent(f)
	}
	return nil
}

// Sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
