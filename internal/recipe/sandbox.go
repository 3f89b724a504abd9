package recipe

import (
	lua "github.com/yuin/gopher-lua"
)

// sandboxLuaVM strips the libraries that reach outside the VM: os, io,
// module loading and debug. string, table and math stay available.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range []string{
		"os", "io", "debug",
		"require", "dofile", "loadfile", "load", "loadstring",
	} {
		L.SetGlobal(name, lua.LNil)
	}
}

func newSandboxedVM() *lua.LState {
	L := lua.NewState()
	sandboxLuaVM(L)
	return L
}
