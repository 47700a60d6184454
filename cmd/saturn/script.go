package main

import (
	"context"
	"encoding/binary"

	lua "github.com/yuin/gopher-lua"

	"github.com/saturn-mips/saturn/internal/device"
)

// runMacroScript loads a gopher-lua script and exposes a handful of
// debugger primitives as Lua globals, so a macro can drive a run
// ("step 100 times, dump the counter at 0x10000000 each time") without
// needing a rebuild of the host, built directly against gopher-lua's
// own API and scoped to exactly the primitives a scripting console
// needs.
func runMacroScript(dev *device.Device, console *bufferedConsole, path string) error {
	L := lua.NewState()
	defer L.Close()

	L.SetGlobal("step", L.NewFunction(func(L *lua.LState) int {
		result := dev.RunBatch(context.Background(), 1, true)
		L.Push(lua.LString(resumeKindName(result.Kind)))
		return 1
	}))

	L.SetGlobal("cont", L.NewFunction(func(L *lua.LState) int {
		count := defaultBatchSize
		if L.GetTop() >= 1 {
			count = int(L.CheckNumber(1))
		}
		result := dev.RunBatch(context.Background(), count, true)
		console.Flush()
		L.Push(lua.LString(resumeKindName(result.Kind)))
		return 1
	}))

	L.SetGlobal("peek", L.NewFunction(func(L *lua.LState) int {
		addr := uint32(L.CheckNumber(1))
		data, ok := dev.ReadBytes(addr, 4)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(binary.LittleEndian.Uint32(data)))
		return 1
	}))

	L.SetGlobal("poke", L.NewFunction(func(L *lua.LState) int {
		addr := uint32(L.CheckNumber(1))
		val := uint32(L.CheckNumber(2))
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, val)
		ok := dev.WriteBytes(addr, buf)
		L.Push(lua.LBool(ok))
		return 1
	}))

	L.SetGlobal("setbp", L.NewFunction(func(L *lua.LState) int {
		addrs := make([]uint32, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			addrs[i-1] = uint32(L.CheckNumber(i))
		}
		dev.SetBreakpoints(addrs)
		return 0
	}))

	return L.DoFile(path)
}

func resumeKindName(k device.ResumeKind) string {
	switch k {
	case device.ResumeRunning:
		return "running"
	case device.ResumePaused:
		return "paused"
	case device.ResumeBreakpoint:
		return "breakpoint"
	case device.ResumeFinished:
		return "finished"
	default:
		return "invalid"
	}
}
