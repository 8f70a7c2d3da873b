package lua

import (
	"context"
	"log"
	"math"
	"time"

	"playbulb-controller/internal/core"
	"playbulb-controller/internal/protocol"

	lua "github.com/yuin/gopher-lua"
)

// fadeStep is the interval between color writes in fade.
const fadeStep = 100 * time.Millisecond

// registerGoFunctions exposes the bulb API to L. All functions observe ctx.
func (e *Engine) registerGoFunctions(L *lua.LState, ctx context.Context) {
	L.SetGlobal("set_color", L.NewFunction(func(L *lua.LState) int {
		c := checkColor(L, 1)
		e.send(ctx, colorCommand(c))
		return 0
	}))
	L.SetGlobal("set_effect", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if _, ok := protocol.ParseEffectType(name); !ok {
			L.ArgError(1, "unknown effect")
			return 0
		}
		payload := map[string]interface{}{"effect": name, "delay": checkByte(L, 2)}
		if L.GetTop() >= 6 {
			payload["color"] = checkColor(L, 3).Hex()
		}
		e.send(ctx, core.Command{Type: core.CmdSetEffect, Payload: payload})
		return 0
	}))
	L.SetGlobal("refresh", L.NewFunction(func(L *lua.LState) int {
		e.send(ctx, core.Command{Type: core.CmdRefresh})
		return 0
	}))
	L.SetGlobal("print", L.NewFunction(luaPrint))
	L.SetGlobal("sleep", L.NewFunction(func(L *lua.LState) int {
		cancellableSleep(ctx, time.Duration(L.CheckInt(1))*time.Millisecond)
		return 0
	}))
	L.SetGlobal("should_stop", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(ctx.Err() != nil))
		return 1
	}))
	L.SetGlobal("fade", L.NewFunction(func(L *lua.LState) int {
		from, to := checkColor(L, 1), checkColor(L, 5)
		duration := time.Duration(L.CheckInt(9)) * time.Millisecond
		e.fade(ctx, from, to, duration)
		return 0
	}))
}

func luaPrint(L *lua.LState) int {
	log.Printf("[Lua] %s", L.ToString(1))
	return 0
}

func checkByte(L *lua.LState, n int) uint8 {
	v := L.CheckInt(n)
	if v < 0 || v > 255 {
		L.ArgError(n, "must be 0-255")
	}
	return uint8(v)
}

// checkColor reads white, red, green, blue starting at argument n.
func checkColor(L *lua.LState, n int) protocol.Color {
	return protocol.Color{
		White: checkByte(L, n),
		Red:   checkByte(L, n+1),
		Green: checkByte(L, n+2),
		Blue:  checkByte(L, n+3),
	}
}

func colorCommand(c protocol.Color) core.Command {
	return core.Command{Type: core.CmdSetColor, Payload: map[string]interface{}{"color": c.Hex()}}
}

// send hands cmd to the agent unless the script is being stopped.
func (e *Engine) send(ctx context.Context, cmd core.Command) bool {
	select {
	case e.commands <- cmd:
		return true
	case <-ctx.Done():
		return false
	}
}

// cancellableSleep returns true if ctx was cancelled before d elapsed.
func cancellableSleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return false
	case <-ctx.Done():
		return true
	}
}

// fade moves linearly from one color to another, one write per fadeStep.
func (e *Engine) fade(ctx context.Context, from, to protocol.Color, duration time.Duration) {
	steps := int(duration / fadeStep)
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		p := float64(i) / float64(steps)
		c := protocol.Color{
			White: lerp(from.White, to.White, p),
			Red:   lerp(from.Red, to.Red, p),
			Green: lerp(from.Green, to.Green, p),
			Blue:  lerp(from.Blue, to.Blue, p),
		}
		if !e.send(ctx, colorCommand(c)) {
			return
		}
		if i < steps && cancellableSleep(ctx, fadeStep) {
			return
		}
	}
}

func lerp(a, b uint8, p float64) uint8 {
	return uint8(math.Round(float64(a) + p*(float64(b)-float64(a))))
}
