// Package script runs local automation scripts written in Lua. A script
// file defines a global run(user_input, parameters) function and returns
// a table; the table becomes the automation's JSON-like result payload.
package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Runner executes named scripts out of a single directory. Script name
// "enrich_leads" resolves to <dir>/enrich_leads.lua.
type Runner struct {
	dir string
}

// NewRunner returns a Runner rooted at dir.
func NewRunner(dir string) *Runner {
	return &Runner{dir: dir}
}

// Run executes the named script's run(user_input, parameters) function
// and returns the table it produced as a map. The context bounds
// execution; a canceled context aborts the script mid-run.
func (r *Runner) Run(ctx context.Context, name, userInput string, params map[string]any) (map[string]any, error) {
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}

	lState := lua.NewState()
	defer lState.Close()
	lState.SetContext(ctx)

	// Scripts get a restricted os table: getenv and time only.
	lState.PreloadModule("os", osModuleLoader)

	if err := lState.DoFile(path); err != nil {
		return nil, fmt.Errorf("load script %s: %w", name, err)
	}

	fn := lState.GetGlobal("run")
	if fn.Type() == lua.LTNil {
		return nil, fmt.Errorf("script %s must define global function run(user_input, parameters)", name)
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("script %s: run must be a function, got %s", name, fn.Type().String())
	}

	lState.Push(fn)
	lState.Push(lua.LString(userInput))
	lState.Push(toLuaValue(lState, params))
	if err := lState.PCall(2, 1, nil); err != nil {
		return nil, fmt.Errorf("run(): %w", err)
	}

	ret := lState.Get(-1)
	lState.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("script %s: run() must return a table, got %s", name, ret.Type().String())
	}
	result, ok := fromLuaValue(tbl).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("script %s: run() must return a keyed table, not an array", name)
	}
	return result, nil
}

func (r *Runner) resolve(name string) (string, error) {
	// Script names come from the registry, not users, but keep them
	// confined to the scripts directory anyway.
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid script name %q", name)
	}
	path, err := filepath.Abs(filepath.Join(r.dir, name+".lua"))
	if err != nil {
		return "", fmt.Errorf("script path: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("script %s not found: %w", name, err)
	}
	return path, nil
}

// toLuaValue converts a decoded-JSON-shaped Go value into a Lua value.
func toLuaValue(lState *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []any:
		tbl := lState.NewTable()
		for _, item := range val {
			tbl.Append(toLuaValue(lState, item))
		}
		return tbl
	case map[string]any:
		tbl := lState.NewTable()
		for k, item := range val {
			lState.SetField(tbl, k, toLuaValue(lState, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// fromLuaValue converts a Lua value back to a JSON-shaped Go value.
// Tables with only consecutive integer keys starting at 1 become
// slices; everything else becomes a string-keyed map.
func fromLuaValue(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case *lua.LTable:
		length := val.Len()
		if length > 0 {
			arr := make([]any, 0, length)
			isArray := true
			val.ForEach(func(k, item lua.LValue) {
				if _, ok := k.(lua.LNumber); !ok {
					isArray = false
				}
			})
			if isArray {
				for i := 1; i <= length; i++ {
					arr = append(arr, fromLuaValue(val.RawGetInt(i)))
				}
				return arr
			}
		}
		m := make(map[string]any)
		val.ForEach(func(k, item lua.LValue) {
			m[k.String()] = fromLuaValue(item)
		})
		return m
	default:
		return val.String()
	}
}

// osModuleLoader provides a minimal os module: getenv and time.
func osModuleLoader(lState *lua.LState) int {
	mod := lState.NewTable()
	lState.SetField(mod, "getenv", lState.NewFunction(func(ls *lua.LState) int {
		key := ls.CheckString(1)
		ls.Push(lua.LString(os.Getenv(key)))
		return 1
	}))
	lState.SetField(mod, "time", lState.NewFunction(func(ls *lua.LState) int {
		ls.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	lState.Push(mod)
	return 1
}
