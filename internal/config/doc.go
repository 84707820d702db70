// Package config loads launcher settings from a sandboxed Lua file.
//
// The settings file is plain Lua evaluated by gopher-lua with the os, io,
// debug and module-loading functions removed. A read-only platform table is
// injected before evaluation so settings can depend on the host:
//
//	launcher = {
//	  data_dir = platform.is_windows and "D:/Games/Thrive" or nil,
//	  manifest = "https://example.org/thrive_versions.json",
//	  strict_cache = true,
//	  download = {
//	    retries = 5,
//	    timeout_seconds = 1800,
//	  },
//	}
//
// Fields that are absent or nil keep their defaults. A missing settings file
// is not an error; Load returns Defaults with environment overrides applied.
//
// The Generator writes the commented starter file used by "thrive-launcher
// config init".
package config
