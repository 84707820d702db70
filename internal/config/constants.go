package config

import "time"

// Lua schema field names and globals
const (
	luaGlobalLauncher   = "launcher"
	luaFieldDataDir     = "data_dir"
	luaFieldManifest    = "manifest"
	luaFieldKeyring     = "keyring"
	luaFieldExecutable  = "executable"
	luaFieldBinDir      = "bin_dir"
	luaFieldLogLines    = "log_lines"
	luaFieldLogFile     = "log_file"
	luaFieldLogLevel    = "log_level"
	luaFieldStrictCache = "strict_cache"
	luaFieldDownload    = "download"
	luaFieldRetries     = "retries"
	luaFieldTimeout     = "timeout_seconds"
	luaFieldUserAgent   = "user_agent"
	luaFieldContentType = "content_types"
)

// Environment variables consulted by ResolvePaths and Load.
const (
	EnvConfigPath = "THRIVE_LAUNCHER_CONFIG"
	EnvDataDir    = "THRIVE_LAUNCHER_DATA_DIR"
)

const (
	// AppName names the per-user config and data directories.
	AppName = "thrive-launcher"
	// FileName is the settings file inside the config directory.
	FileName = "launcher.lua"
	// ManifestFileName is the default local manifest inside the config directory.
	ManifestFileName = "thrive_versions.json"

	DefaultExecutable = "Thrive"
	DefaultBinDir     = "bin"
	DefaultLogLines   = 1000
	DefaultLogLevel   = "info"
	DefaultRetries    = 3
	DefaultTimeout    = 60 * time.Minute
	DefaultUserAgent  = "ThriveLauncher/1.0"

	// MaxConfigSize bounds the settings file read by ParseFile.
	MaxConfigSize = 1 << 20
	// MaxLogLines bounds log_lines.
	MaxLogLines = 1_000_000
	// DefaultParseTimeout applies when the caller's context has no deadline.
	DefaultParseTimeout = 5 * time.Second
)
