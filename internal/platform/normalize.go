package platform

import "strings"

// osAliases maps the spellings found in release manifests to GOOS values.
var osAliases = map[string]string{
	"linux":   OSLinux,
	"windows": OSWindows,
	"win32":   OSWindows,
	"win64":   OSWindows,
	"win":     OSWindows,
	"darwin":  OSDarwin,
	"macos":   OSDarwin,
	"mac":     OSDarwin,
	"osx":     OSDarwin,
}

// archAliases maps architecture spellings to GOARCH values.
var archAliases = map[string]string{
	"amd64":   "amd64",
	"x86_64":  "amd64",
	"x64":     "amd64",
	"arm64":   "arm64",
	"aarch64": "arm64",
	"386":     "386",
	"x86":     "386",
	"i686":    "386",
}

// NormalizeOS converts an OS tag to its canonical GOOS form.
// Returns "" for unknown tags.
func NormalizeOS(tag string) string {
	return osAliases[normalizeToken(tag)]
}

// NormalizeArch converts an architecture tag to its canonical GOARCH form.
// Returns "" for unknown tags.
func NormalizeArch(tag string) string {
	return archAliases[normalizeToken(tag)]
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
