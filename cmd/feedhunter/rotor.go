package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/large-farva/feedhunter/internal/diseqc"
)

// parseRotorArgs reads the positional rotor grammar:
//
//	stop | limits_off | limit_set_east | limit_set_west
//	go_east|go_west [step N | timeout N]
//	store_sat N | goto_sat N
//	goto_x 22.3e
func parseRotorArgs(args []string, wait time.Duration) (diseqc.Command, error) {
	if len(args) == 0 {
		return diseqc.Command{}, fmt.Errorf("%w: an action is required", diseqc.ErrInvalidArgument)
	}
	action, err := diseqc.ParseAction(args[0])
	if err != nil {
		return diseqc.Command{}, err
	}
	rest := args[1:]
	p := diseqc.Params{DefaultWait: wait}

	switch action {
	case diseqc.ActionGoEast, diseqc.ActionGoWest:
		switch len(rest) {
		case 0:
		case 2:
			n, err := strconv.Atoi(rest[1])
			if err != nil || n < 1 {
				return diseqc.Command{}, fmt.Errorf("%w: %q is not a positive number", diseqc.ErrInvalidArgument, rest[1])
			}
			switch rest[0] {
			case "step", "steps":
				p.Steps = n
			case "timeout":
				p.Timeout = n
			default:
				return diseqc.Command{}, fmt.Errorf("%w: %q, want step or timeout", diseqc.ErrInvalidArgument, rest[0])
			}
		default:
			return diseqc.Command{}, fmt.Errorf("%w: incomplete command %q", diseqc.ErrInvalidArgument, strings.Join(args, " "))
		}

	case diseqc.ActionStoreSat, diseqc.ActionGotoSat:
		if len(rest) != 1 {
			return diseqc.Command{}, fmt.Errorf("%w: %s needs a position number", diseqc.ErrInvalidArgument, action)
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			return diseqc.Command{}, fmt.Errorf("%w: invalid position %q", diseqc.ErrInvalidArgument, rest[0])
		}
		p.Slot = n

	case diseqc.ActionGotoX:
		if len(rest) != 1 {
			return diseqc.Command{}, fmt.Errorf("%w: goto_x needs an angle such as 22.3e", diseqc.ErrInvalidArgument)
		}
		p.Angle, p.Direction, err = parseOrientation(rest[0])
		if err != nil {
			return diseqc.Command{}, err
		}

	default:
		if len(rest) > 0 {
			return diseqc.Command{}, fmt.Errorf("%w: %s takes no arguments", diseqc.ErrInvalidArgument, action)
		}
	}
	return diseqc.Build(action, p)
}

// parseOrientation splits "22.3e" into 22.3 and East.
func parseOrientation(s string) (float64, diseqc.Direction, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, 0, fmt.Errorf("%w: invalid orientation %q", diseqc.ErrInvalidArgument, s)
	}
	dir, err := diseqc.ParseDirection(s[len(s)-1:])
	if err != nil {
		return 0, 0, err
	}
	angle, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid orientation %q", diseqc.ErrInvalidArgument, s)
	}
	return angle, dir, nil
}
