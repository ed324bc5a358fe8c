package diseqc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/large-farva/feedhunter/internal/dvb"
)

func TestFixedFrames(t *testing.T) {
	tests := []struct {
		name string
		f    Frame
		want []byte
	}{
		{"stop", StopFrame(), []byte{0xE0, 0x31, 0x60}},
		{"limits off", LimitsOffFrame(), []byte{0xE0, 0x31, 0x63}},
		{"limit east", LimitFrame(East), []byte{0xE0, 0x31, 0x66}},
		{"limit west", LimitFrame(West), []byte{0xE0, 0x31, 0x67}},
		{"drive east", DriveFrame(East, 0), []byte{0xE0, 0x31, 0x68, 0x00}},
		{"drive west", DriveFrame(West, 0x85), []byte{0xE0, 0x31, 0x69, 0x85}},
		{"store", StoreFrame(7), []byte{0xE0, 0x31, 0x6A, 0x07}},
		{"goto", GotoSlotFrame(255), []byte{0xE0, 0x31, 0x6B, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Bytes(); !bytes.Equal(got, tt.want) {
				t.Fatalf("bytes = % X, want % X", got, tt.want)
			}
			if tt.f.Len() != len(tt.want) {
				t.Fatalf("len = %d, want %d", tt.f.Len(), len(tt.want))
			}
		})
	}
}

func TestFrameAction(t *testing.T) {
	for _, a := range Actions {
		cmd, err := Build(a, Params{Steps: 1, Slot: 1, Angle: 10})
		if err != nil {
			t.Fatalf("%s: %v", a, err)
		}
		if got := cmd.Frame.Action(); got != a {
			t.Errorf("Frame.Action() = %q, want %q", got, a)
		}
	}
	if got := (Frame{}).Action(); got != "" {
		t.Errorf("empty frame action = %q", got)
	}
}

func TestFrameString(t *testing.T) {
	if got, want := DriveFrame(East, 0x0A).String(), "0xE0 0x31 0x68 0x0A"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestDecimalTable(t *testing.T) {
	for tenths, want := range map[int]byte{0: 0x0, 5: 0x8, 9: 0xE} {
		if got := decimal[tenths]; got != want {
			t.Errorf("decimal[%d] = %#x, want %#x", tenths, got, want)
		}
	}
}

func TestGotoAngleFrame(t *testing.T) {
	tests := []struct {
		angle  float64
		dir    Direction
		hi, lo byte
	}{
		{0, West, 0x00, 0x00},
		{22.5, East, 0xE1, 0x68},
		{90, West, 0x05, 0xA0},
		{16, East, 0xE1, 0x00},
		{9.9, West, 0x00, 0x9E},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.1f_%s", tt.angle, tt.dir), func(t *testing.T) {
			f, err := GotoAngleFrame(tt.angle, tt.dir)
			if err != nil {
				t.Fatal(err)
			}
			want := []byte{0xE0, 0x31, 0x6E, tt.hi, tt.lo}
			if got := f.Bytes(); !bytes.Equal(got, want) {
				t.Fatalf("bytes = % X, want % X", got, want)
			}
		})
	}
}

func TestAngleRoundTrip(t *testing.T) {
	for i := 0; i <= 900; i++ {
		angle := float64(i) / 10
		for _, dir := range []Direction{West, East} {
			f, err := GotoAngleFrame(angle, dir)
			if err != nil {
				t.Fatalf("angle %.1f: %v", angle, err)
			}
			got, gotDir, err := DecodeAngle(f)
			if err != nil {
				t.Fatalf("decode %.1f: %v", angle, err)
			}
			if gotDir != dir {
				t.Fatalf("angle %.1f: direction %s, want %s", angle, gotDir, dir)
			}
			if math.Abs(got-angle) > 0.1+1e-9 {
				t.Fatalf("angle %.1f decoded as %.2f", angle, got)
			}
		}
	}
}

func TestAngleRoundTripAtSixteenBoundaries(t *testing.T) {
	tests := []struct {
		angle float64
		hi    byte
		lo    byte
	}{
		{15.99999999999, 0xE1, 0x00},
		{31.9999999999, 0xE2, 0x00},
		{47.99999999999, 0xE3, 0x00},
		{16, 0xE1, 0x00},
		{15.9, 0xE0, 0xFE},
	}
	for _, tt := range tests {
		f, err := GotoAngleFrame(tt.angle, East)
		if err != nil {
			t.Fatalf("angle %v: %v", tt.angle, err)
		}
		if b := f.Bytes(); b[3] != tt.hi || b[4] != tt.lo {
			t.Errorf("angle %v: frame %s, want data %#02x %#02x", tt.angle, f, tt.hi, tt.lo)
		}
		got, _, err := DecodeAngle(f)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got-tt.angle) > 0.1+1e-9 {
			t.Errorf("angle %v decoded as %.2f", tt.angle, got)
		}
	}
}

func TestEncodeAngleRejects(t *testing.T) {
	for _, a := range []float64{-0.1, 90.1, math.NaN()} {
		if _, err := EncodeAngle(a, East); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("EncodeAngle(%v) error = %v, want ErrInvalidArgument", a, err)
		}
	}
}

func TestDecodeAngleRejectsOtherFrames(t *testing.T) {
	if _, _, err := DecodeAngle(StopFrame()); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestBuildDrive(t *testing.T) {
	const def = 3 * time.Minute
	tests := []struct {
		name   string
		action Action
		p      Params
		param  byte
		wait   time.Duration
	}{
		{"steps", ActionGoEast, Params{Steps: 3}, 0x83, 90 * time.Second},
		{"timeout", ActionGoWest, Params{Timeout: 10}, 0x0A, 10 * time.Second},
		{"continuous", ActionGoWest, Params{}, 0x00, def},
		{"max steps", ActionGoEast, Params{Steps: 127}, 0xFF, 127 * 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.p.DefaultWait = def
			cmd, err := Build(tt.action, tt.p)
			if err != nil {
				t.Fatal(err)
			}
			b := cmd.Frame.Bytes()
			if len(b) != 4 || b[3] != tt.param {
				t.Fatalf("frame = % X, want param %#x", b, tt.param)
			}
			if cmd.Wait != tt.wait {
				t.Fatalf("wait = %s, want %s", cmd.Wait, tt.wait)
			}
			if !cmd.StopAfter {
				t.Fatal("drive commands must stop afterwards")
			}
		})
	}
}

func TestBuildRejects(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		p      Params
	}{
		{"steps and timeout", ActionGoEast, Params{Steps: 1, Timeout: 1}},
		{"steps too large", ActionGoEast, Params{Steps: 128}},
		{"negative timeout", ActionGoWest, Params{Timeout: -1}},
		{"slot too large", ActionStoreSat, Params{Slot: 256}},
		{"negative slot", ActionGotoSat, Params{Slot: -1}},
		{"angle", ActionGotoX, Params{Angle: 91}},
		{"unknown", Action("spin"), Params{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(tt.action, tt.p); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestBuildGoto(t *testing.T) {
	cmd, err := Build(ActionGotoSat, Params{Slot: 4, DefaultWait: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if cmd.StopAfter || cmd.Wait != time.Minute {
		t.Fatalf("goto_sat: stop=%v wait=%s", cmd.StopAfter, cmd.Wait)
	}

	cmd, err = Build(ActionStop, Params{DefaultWait: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Wait != 0 || cmd.StopAfter || cmd.Frame.Len() != 3 {
		t.Fatalf("stop: %+v", cmd)
	}
}

func TestParseAction(t *testing.T) {
	for _, a := range Actions {
		got, err := ParseAction(string(a))
		if err != nil || got != a {
			t.Errorf("ParseAction(%q) = %q, %v", a, got, err)
		}
	}
	if _, err := ParseAction("go_north"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

type fakeBus struct {
	calls  []string
	onSend func()
	fail   error
}

func (b *fakeBus) SetTone(on bool) error {
	b.calls = append(b.calls, fmt.Sprintf("tone %v", on))
	return nil
}

func (b *fakeBus) SetVoltage(v dvb.Voltage) error {
	b.calls = append(b.calls, "voltage "+v.String())
	return b.fail
}

func (b *fakeBus) SendDiseqc(msg []byte) error {
	b.calls = append(b.calls, fmt.Sprintf("send % X", msg))
	if b.onSend != nil {
		b.onSend()
	}
	return nil
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestExecuteOrder(t *testing.T) {
	bus := &fakeBus{}
	var sent int
	r := NewRotor(bus, RotorOptions{
		Voltage: dvb.Voltage13,
		Settle:  time.Nanosecond,
		Logger:  quietLogger(),
		Sent:    func(Frame) { sent++ },
	})
	cmd := Command{Action: ActionGoEast, Frame: DriveFrame(East, 0), Wait: time.Millisecond, StopAfter: true}
	if err := r.Execute(context.Background(), cmd); err != nil {
		t.Fatal(err)
	}
	want := []string{"tone false", "voltage " + dvb.Voltage13.String(), "send E0 31 68 00", "send E0 31 60"}
	if fmt.Sprint(bus.calls) != fmt.Sprint(want) {
		t.Fatalf("calls = %q, want %q", bus.calls, want)
	}
	if sent != 2 {
		t.Fatalf("sent hook called %d times, want 2", sent)
	}
}

func TestExecuteStopsAfterInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := &fakeBus{onSend: cancel}
	r := NewRotor(bus, RotorOptions{Settle: time.Nanosecond, Logger: quietLogger()})

	cmd, err := Build(ActionGoWest, Params{DefaultWait: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- r.Execute(ctx, cmd) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after cancel")
	}
	if last := bus.calls[len(bus.calls)-1]; last != "send E0 31 60" {
		t.Fatalf("last call = %q, want stop", last)
	}
}

func TestExecuteCancelledBeforeSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus := &fakeBus{}
	r := NewRotor(bus, RotorOptions{Settle: time.Hour, Logger: quietLogger()})
	err := r.Execute(ctx, Command{Action: ActionStop, Frame: StopFrame()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	for _, c := range bus.calls {
		if len(c) > 4 && c[:4] == "send" {
			t.Fatalf("frame sent after cancel: %q", bus.calls)
		}
	}
}

func TestExecuteHardwareError(t *testing.T) {
	bus := &fakeBus{fail: errors.New("ioctl failed")}
	r := NewRotor(bus, RotorOptions{Settle: time.Nanosecond, Logger: quietLogger()})
	if err := r.Execute(context.Background(), Command{Frame: StopFrame()}); err == nil {
		t.Fatal("expected error")
	}
	if len(bus.calls) != 2 {
		t.Fatalf("calls = %q", bus.calls)
	}
}

func TestSleep(t *testing.T) {
	if !Sleep(context.Background(), time.Millisecond) {
		t.Fatal("Sleep returned false without cancel")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Sleep(ctx, time.Hour) {
		t.Fatal("Sleep returned true after cancel")
	}
}

func TestParseFrame(t *testing.T) {
	want, _ := GotoAngleFrame(22.5, East)
	got, err := ParseFrame(want.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("ParseFrame = %s, want %s", got, want)
	}
	for _, b := range [][]byte{{0xE0, 0x31}, make([]byte, 7)} {
		if _, err := ParseFrame(b); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ParseFrame(% X) err = %v", b, err)
		}
	}
}
