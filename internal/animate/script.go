// Package animate drives the realtime frame stream from a user-supplied
// Lua script. The script defines a global function
//
//	function frame(t, n)
//
// receiving the elapsed time in seconds and the device LED count, and
// returning an array of n {r, g, b} triples with channels in 0..255.
package animate

import (
	"fmt"

	glua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/xledctl/internal/xled"
)

const frameFunction = "frame"

// Script is a loaded animation script. It is not safe for concurrent
// use: a Lua state is single-threaded.
type Script struct {
	state *glua.LState
	fn    *glua.LFunction
}

// Load compiles and runs the script file, then resolves its frame
// function.
func Load(path string) (*Script, error) {
	state := glua.NewState()
	if err := state.DoFile(path); err != nil {
		state.Close()
		return nil, fmt.Errorf("failed to load animation script: %w", err)
	}

	fn, ok := state.GetGlobal(frameFunction).(*glua.LFunction)
	if !ok {
		state.Close()
		return nil, fmt.Errorf("script %s does not define a %q function", path, frameFunction)
	}

	return &Script{state: state, fn: fn}, nil
}

// Frame calls the script's frame function for elapsed time t and LED
// count n, and converts the result into a Frame.
func (s *Script) Frame(t float64, n int) (xled.Frame, error) {
	s.state.Push(s.fn)
	s.state.Push(glua.LNumber(t))
	s.state.Push(glua.LNumber(n))

	if err := s.state.PCall(2, 1, nil); err != nil {
		return nil, fmt.Errorf("frame function failed: %w", err)
	}

	result := s.state.Get(-1)
	s.state.Pop(1)

	tbl, ok := result.(*glua.LTable)
	if !ok {
		return nil, fmt.Errorf("frame function returned %s, want a table of triples", result.Type())
	}
	return luaTableToFrame(tbl)
}

// Close releases the Lua state.
func (s *Script) Close() {
	s.state.Close()
}

// luaTableToFrame converts an array of {r, g, b} tables into a Frame.
func luaTableToFrame(tbl *glua.LTable) (xled.Frame, error) {
	frame := make(xled.Frame, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		entry, ok := tbl.RawGetInt(i).(*glua.LTable)
		if !ok {
			return nil, fmt.Errorf("frame entry %d is not a table", i)
		}
		color, err := luaTableToColor(entry)
		if err != nil {
			return nil, fmt.Errorf("frame entry %d: %w", i, err)
		}
		frame = append(frame, color)
	}
	return frame, nil
}

func luaTableToColor(tbl *glua.LTable) (xled.Color, error) {
	if tbl.Len() != 3 {
		return xled.Color{}, fmt.Errorf("expected 3 channels, got %d", tbl.Len())
	}
	var channels [3]uint8
	for i := 0; i < 3; i++ {
		num, ok := tbl.RawGetInt(i + 1).(glua.LNumber)
		if !ok {
			return xled.Color{}, fmt.Errorf("channel %d is not a number", i+1)
		}
		v := int(num)
		if v < 0 || v > 255 {
			return xled.Color{}, fmt.Errorf("channel %d value %d out of range 0..255", i+1, v)
		}
		channels[i] = uint8(v)
	}
	return xled.Color{R: channels[0], G: channels[1], B: channels[2]}, nil
}
