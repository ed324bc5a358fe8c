package diseqc

import (
	"fmt"
	"time"
)

// Action names a rotor command as typed on the command line.
type Action string

const (
	ActionStop         Action = "stop"
	ActionLimitsOff    Action = "limits_off"
	ActionLimitSetEast Action = "limit_set_east"
	ActionLimitSetWest Action = "limit_set_west"
	ActionGoEast       Action = "go_east"
	ActionGoWest       Action = "go_west"
	ActionStoreSat     Action = "store_sat"
	ActionGotoSat      Action = "goto_sat"
	ActionGotoX        Action = "goto_x"
)

// Actions lists every action in the order they are documented.
var Actions = []Action{
	ActionStop, ActionLimitsOff, ActionLimitSetEast, ActionLimitSetWest,
	ActionGoEast, ActionGoWest, ActionStoreSat, ActionGotoSat, ActionGotoX,
}

// ParseAction validates a command name.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown command %q", ErrInvalidArgument, s)
}

// Params carries the optional arguments of an action.
type Params struct {
	// Steps (1..127) or Timeout (1..127 s) select a bounded drive for
	// go_east/go_west. Both zero means drive until stopped.
	Steps   int
	Timeout int

	Slot int // store_sat, goto_sat: 0..255

	Angle     float64 // goto_x: 0..90
	Direction Direction

	// DefaultWait is how long continuous drives and goto commands are
	// given before the command is considered done.
	DefaultWait time.Duration
}

// Command is a frame plus what the sender must do after transmitting it.
type Command struct {
	Action    Action
	Frame     Frame
	Wait      time.Duration
	StopAfter bool // send a stop frame once Wait ends or is interrupted
}

// Build creates the command for action.
func Build(action Action, p Params) (Command, error) {
	c := Command{Action: action}
	switch action {
	case ActionStop:
		c.Frame = StopFrame()
	case ActionLimitsOff:
		c.Frame = LimitsOffFrame()
	case ActionLimitSetEast:
		c.Frame = LimitFrame(East)
	case ActionLimitSetWest:
		c.Frame = LimitFrame(West)
	case ActionGoEast, ActionGoWest:
		dir := West
		if action == ActionGoEast {
			dir = East
		}
		param, wait, err := driveParam(p)
		if err != nil {
			return Command{}, err
		}
		c.Frame = DriveFrame(dir, param)
		c.Wait = wait
		c.StopAfter = true
	case ActionStoreSat:
		slot, err := slotParam(p.Slot)
		if err != nil {
			return Command{}, err
		}
		c.Frame = StoreFrame(slot)
	case ActionGotoSat:
		slot, err := slotParam(p.Slot)
		if err != nil {
			return Command{}, err
		}
		c.Frame = GotoSlotFrame(slot)
		c.Wait = p.DefaultWait
	case ActionGotoX:
		f, err := GotoAngleFrame(p.Angle, p.Direction)
		if err != nil {
			return Command{}, err
		}
		c.Frame = f
		c.Wait = p.DefaultWait
	default:
		return Command{}, fmt.Errorf("%w: unknown command %q", ErrInvalidArgument, action)
	}
	return c, nil
}

func driveParam(p Params) (byte, time.Duration, error) {
	switch {
	case p.Steps != 0 && p.Timeout != 0:
		return 0, 0, fmt.Errorf("%w: steps and timeout are exclusive", ErrInvalidArgument)
	case p.Steps != 0:
		if p.Steps < 1 || p.Steps > 0x7F {
			return 0, 0, fmt.Errorf("%w: steps %d out of range (1..127)", ErrInvalidArgument, p.Steps)
		}
		return byte(p.Steps) | stepFlag, time.Duration(p.Steps) * stepDuration, nil
	case p.Timeout != 0:
		if p.Timeout < 1 || p.Timeout > 0x7F {
			return 0, 0, fmt.Errorf("%w: timeout %d out of range (1..127)", ErrInvalidArgument, p.Timeout)
		}
		return byte(p.Timeout), time.Duration(p.Timeout) * time.Second, nil
	default:
		return 0, p.DefaultWait, nil
	}
}

func slotParam(slot int) (byte, error) {
	if slot < 0 || slot > 0xFF {
		return 0, fmt.Errorf("%w: slot %d out of range (0..255)", ErrInvalidArgument, slot)
	}
	return byte(slot), nil
}
