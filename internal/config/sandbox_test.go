package config

import (
	"strings"
	"testing"
)

func TestSandboxLuaVM(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		// Safe operations that should work
		{name: "string operations allowed", code: `x = string.upper("hello")`},
		{name: "table operations allowed", code: `t = {1, 2, 3}; table.insert(t, 4)`},
		{name: "math operations allowed", code: `x = math.floor(16.5)`},
		{name: "basic functions allowed", code: `x = type("hello"); y = tostring(123); z = tonumber("456")`},
		{name: "pairs allowed", code: `t = {a=1, b=2}; for k,v in pairs(t) do end`},

		// Dangerous operations that should fail
		{name: "os.execute blocked", code: `os.execute("ls")`, wantErr: true},
		{name: "os.getenv blocked", code: `x = os.getenv("PATH")`, wantErr: true},
		{name: "io.open blocked", code: `f = io.open("/etc/passwd")`, wantErr: true},
		{name: "require blocked", code: `require("socket")`, wantErr: true},
		{name: "dofile blocked", code: `dofile("/tmp/x.lua")`, wantErr: true},
		{name: "loadfile blocked", code: `loadfile("/tmp/x.lua")`, wantErr: true},
		{name: "loadstring blocked", code: `loadstring("return 1")()`, wantErr: true},
		{name: "load blocked", code: `load(function() return nil end)`, wantErr: true},
		{name: "debug blocked", code: `debug.getinfo(1)`, wantErr: true},
		{name: "collectgarbage blocked", code: `collectgarbage()`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			L := newSandboxedVM()
			defer L.Close()

			err := L.DoString(tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("DoString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "attempt to") {
				t.Errorf("unexpected error kind: %v", err)
			}
		})
	}
}
