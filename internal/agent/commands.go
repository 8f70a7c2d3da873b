package agent

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"playbulb-controller/internal/core"
	"playbulb-controller/internal/device"
	"playbulb-controller/internal/protocol"
)

func (a *Agent) handleCommand(cmd core.Command) error {
	log.Printf("[Agent] Handling command: %s with payload: %v", cmd.Type, cmd.Payload)

	switch cmd.Type {
	case core.CmdSetColor:
		color, err := colorArg(cmd, "color")
		if err != nil {
			return err
		}
		return a.write("color", func(c *device.Cache) error { return c.SetColor(color) })

	case core.CmdSetEffect:
		effect, err := a.effectArg(cmd)
		if err != nil {
			return err
		}
		return a.write("effect", func(c *device.Cache) error { return c.SetEffect(effect) })

	case core.CmdSetTimer:
		timer, err := timerArg(cmd)
		if err != nil {
			return err
		}
		return a.write("timer", func(c *device.Cache) error { return c.SetTimer(timer) })

	case core.CmdSetRandommode:
		mode, err := randommodeArg(cmd)
		if err != nil {
			return err
		}
		return a.write("randommode", func(c *device.Cache) error { return c.SetRandommode(mode) })

	case core.CmdSetName:
		name, err := cmd.String("name")
		if err != nil {
			return err
		}
		return a.write("name", func(c *device.Cache) error { return c.SetName(name) })

	case core.CmdSetPin:
		pin, err := cmd.String("pin")
		if err != nil {
			return err
		}
		return a.write("pin", func(c *device.Cache) error { return c.SetPin(pin) })

	case core.CmdRefresh:
		return a.refresh()

	case core.CmdRunScript:
		name, err := cmd.String("name")
		if err != nil {
			return err
		}
		return a.luaEngine.RunScript(name)

	case core.CmdStopScript:
		a.luaEngine.StopCurrentScript()
		return nil

	case core.CmdAddSchedule:
		spec, err := cmd.String("spec")
		if err != nil {
			return err
		}
		command, err := cmd.String("command")
		if err != nil {
			return err
		}
		if _, err := a.scheduler.Add(spec, command); err != nil {
			return err
		}
		a.eventBus.Publish(core.Event{Type: core.SchedulesChangedEvent})
		return nil

	case core.CmdRemoveSchedule:
		id, err := idArg(cmd)
		if err != nil {
			return err
		}
		if !a.scheduler.Remove(id) {
			return fmt.Errorf("no schedule with id %d", id)
		}
		a.eventBus.Publish(core.Event{Type: core.SchedulesChangedEvent})
		return nil
	}
	return fmt.Errorf("unknown command type '%s'", cmd.Type)
}

func colorArg(cmd core.Command, key string) (protocol.Color, error) {
	s, err := cmd.String(key)
	if err != nil {
		return protocol.Color{}, err
	}
	return protocol.ParseColor(s)
}

// effectArg builds an effect. Without an explicit color the bulb's current
// color is used.
func (a *Agent) effectArg(cmd core.Command) (protocol.Effect, error) {
	name, err := cmd.String("effect")
	if err != nil {
		return protocol.Effect{}, err
	}
	t, ok := protocol.ParseEffectType(name)
	if !ok {
		return protocol.Effect{}, fmt.Errorf("unknown effect '%s'", name)
	}
	delay, err := cmd.OptionalByte("delay", 0)
	if err != nil {
		return protocol.Effect{}, err
	}
	effect := protocol.Effect{Type: t, Delay: delay}

	if _, ok := cmd.Payload["color"]; ok {
		color, err := colorArg(cmd, "color")
		if err != nil {
			return protocol.Effect{}, err
		}
		effect.Color = &color
	} else if t != protocol.EffectOff {
		c, err := a.cache()
		if err != nil {
			return protocol.Effect{}, err
		}
		color, err := c.Color(false)
		if err != nil {
			return protocol.Effect{}, err
		}
		effect.Color = &color
	}
	return effect, nil
}

func timerArg(cmd core.Command) (protocol.Timer, error) {
	id, err := cmd.Int("id")
	if err != nil {
		return protocol.Timer{}, err
	}
	name, err := cmd.String("type")
	if err != nil {
		return protocol.Timer{}, err
	}
	t, ok := protocol.ParseTimerType(name)
	if !ok {
		return protocol.Timer{}, fmt.Errorf("unknown timer type '%s'", name)
	}
	hour, err := cmd.Int("hour")
	if err != nil {
		return protocol.Timer{}, err
	}
	if hour < protocol.InactiveHour || hour > 23 {
		return protocol.Timer{}, fmt.Errorf("hour out of range: %d", hour)
	}
	minute, err := cmd.OptionalByte("minute", 0)
	if err != nil {
		return protocol.Timer{}, err
	}
	runtime, err := cmd.OptionalByte("runtime", 0)
	if err != nil {
		return protocol.Timer{}, err
	}
	color, err := colorArg(cmd, "color")
	if err != nil {
		return protocol.Timer{}, err
	}
	return protocol.Timer{
		ID:             id,
		Type:           t,
		StartingHour:   hour,
		StartingMinute: minute,
		Runtime:        runtime,
		Color:          color,
	}, nil
}

func randommodeArg(cmd core.Command) (protocol.Randommode, error) {
	start, err := cmd.OptionalString("start")
	if err != nil {
		return protocol.Randommode{}, err
	}
	end, err := cmd.OptionalString("end")
	if err != nil {
		return protocol.Randommode{}, err
	}
	r := protocol.Randommode{}
	if r.StartingHour, r.StartingMinute, err = parseClock(start); err != nil {
		return r, err
	}
	if r.EndingHour, r.EndingMinute, err = parseClock(end); err != nil {
		return r, err
	}
	if r.MinInterval, err = cmd.OptionalByte("min", 0); err != nil {
		return r, err
	}
	if r.MaxInterval, err = cmd.OptionalByte("max", 0); err != nil {
		return r, err
	}
	if r.Color, err = colorArg(cmd, "color"); err != nil {
		return r, err
	}
	return r, nil
}

// parseClock reads "HH:MM". An empty string is the unset schedule.
func parseClock(s string) (uint8, uint8, error) {
	if s == "" {
		return protocol.NotSetHour, 0, nil
	}
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("time %q: want HH:MM", s)
	}
	hour, err := strconv.ParseUint(h, 10, 8)
	if err != nil || hour > 23 {
		return 0, 0, fmt.Errorf("time %q: invalid hour", s)
	}
	minute, err := strconv.ParseUint(m, 10, 8)
	if err != nil || minute > 59 {
		return 0, 0, fmt.Errorf("time %q: invalid minute", s)
	}
	return uint8(hour), uint8(minute), nil
}

// idArg accepts the schedule id as a number or a numeric string.
func idArg(cmd core.Command) (int, error) {
	if s, ok := cmd.Payload["id"].(string); ok {
		return strconv.Atoi(s)
	}
	return cmd.Int("id")
}
