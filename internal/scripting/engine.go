package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stacktrader/server/internal/resource"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a gopher-lua VM holding the gateway's access policy.
// The VM is not goroutine safe; calls are serialized by mu.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every .lua file in scriptsDir.
// A missing directory yields an engine without a policy, which allows
// everything.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load access scripts: %w", err)
	}
	return e, nil
}

// Close releases the VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// AccessRequest is the input of the Lua access function.
type AccessRequest struct {
	Addr resource.Address
	CID  string
}

var allowAll = resource.AccessResult{Get: true, Call: "*"}

// Access calls the Lua access function. Without one every request is
// allowed; a failing or malformed script denies.
func (e *Engine) Access(req AccessRequest) resource.AccessResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("access")
	if fn == lua.LNil {
		return allowAll
	}

	t := e.vm.NewTable()
	t.RawSetString("rid", lua.LString(req.Addr.RID()))
	t.RawSetString("ns", lua.LString(req.Addr.NS))
	t.RawSetString("shard", lua.LString(req.Addr.Shard))
	t.RawSetString("entity", lua.LString(req.Addr.Entity))
	t.RawSetString("component", lua.LString(req.Addr.Component))
	t.RawSetString("slot", lua.LString(req.Addr.Slot))
	t.RawSetString("cid", lua.LString(req.CID))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua access error", zap.String("rid", req.Addr.RID()), zap.Error(err))
		return resource.AccessResult{}
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua access returned non-table", zap.String("rid", req.Addr.RID()))
		return resource.AccessResult{}
	}

	return resource.AccessResult{
		Get:  rt.RawGetString("get") == lua.LTrue,
		Call: lua.LVAsString(rt.RawGetString("call")),
	}
}
