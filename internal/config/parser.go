package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/thrive-launcher/launcher/internal/logging"
	"github.com/thrive-launcher/launcher/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// Parser evaluates launcher settings files with platform detection.
// A Parser holds no per-parse state and is safe for concurrent use.
type Parser struct {
	detector platform.Detector
	logger   logging.Logger
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table out of the VM.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector, logger: logging.Noop()}
}

// WithLogger returns a copy of the parser that logs to logger.
func (p *Parser) WithLogger(logger logging.Logger) *Parser {
	cp := *p
	cp.logger = logging.OrNoop(logger)
	return &cp
}

// ParseString evaluates luaCode and applies the "launcher" table on top of base.
func (p *Parser) ParseString(ctx context.Context, luaCode string, base Settings) (*Settings, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultParseTimeout)
		defer cancel()
	}

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	start := time.Now()
	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ParseError{Message: "config evaluation timed out", Detail: ctxErr.Error()}
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}
	p.logger.Debug("config evaluated", "duration", time.Since(start))

	return extractSettings(L, base)
}

// ParseFile reads and evaluates the settings file at path.
func (p *Parser) ParseFile(ctx context.Context, path string, base Settings) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s exceeds %d bytes", path, MaxConfigSize),
		}
	}

	p.logger.Info("loading config", "path", path)
	return p.ParseString(ctx, string(data), base)
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractSettings reads the global "launcher" table. A script that never
// assigns it leaves base untouched.
func extractSettings(L *lua.LState, base Settings) (*Settings, error) {
	settings := base
	settings.Download.ContentTypes = append([]string(nil), base.Download.ContentTypes...)

	launcherVal := L.GetGlobal(luaGlobalLauncher)
	switch launcherVal.Type() {
	case lua.LTNil:
		return &settings, nil
	case lua.LTTable:
	default:
		return nil, &ParseError{
			Message: "invalid 'launcher' table",
			Detail:  fmt.Sprintf("expected table, got %s", launcherVal.Type()),
		}
	}
	table := launcherVal.(*lua.LTable)

	fields := []struct {
		name string
		dst  *string
	}{
		{luaFieldDataDir, &settings.DataDir},
		{luaFieldManifest, &settings.Manifest},
		{luaFieldKeyring, &settings.Keyring},
		{luaFieldExecutable, &settings.Executable},
		{luaFieldBinDir, &settings.BinDir},
		{luaFieldLogFile, &settings.LogFile},
		{luaFieldLogLevel, &settings.LogLevel},
	}
	for _, f := range fields {
		if err := getString(table, f.name, f.dst); err != nil {
			return nil, err
		}
	}

	if err := getInt(table, luaFieldLogLines, &settings.LogLines); err != nil {
		return nil, err
	}
	if err := getBool(table, luaFieldStrictCache, &settings.StrictCache); err != nil {
		return nil, err
	}

	if dlVal := table.RawGetString(luaFieldDownload); dlVal.Type() != lua.LTNil {
		dl, ok := dlVal.(*lua.LTable)
		if !ok {
			return nil, fieldTypeError(luaFieldDownload, "table", dlVal)
		}
		if err := extractDownload(dl, &settings.Download); err != nil {
			return nil, err
		}
	}

	if err := settings.Validate(); err != nil {
		return nil, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
		}
	}

	return &settings, nil
}

// extractDownload extracts the download table.
func extractDownload(table *lua.LTable, dl *DownloadSettings) error {
	if err := getInt(table, luaFieldRetries, &dl.Retries); err != nil {
		return err
	}

	seconds := int(dl.Timeout / time.Second)
	if err := getInt(table, luaFieldTimeout, &seconds); err != nil {
		return err
	}
	dl.Timeout = time.Duration(seconds) * time.Second

	if err := getString(table, luaFieldUserAgent, &dl.UserAgent); err != nil {
		return err
	}

	ctVal := table.RawGetString(luaFieldContentType)
	if ctVal.Type() == lua.LTNil {
		return nil
	}
	ctTable, ok := ctVal.(*lua.LTable)
	if !ok {
		return fieldTypeError(luaFieldContentType, "table", ctVal)
	}

	// Nil holes from platform conditionals are skipped.
	var types []string
	var bad lua.LValue
	ctTable.ForEach(func(_, value lua.LValue) {
		switch value.Type() {
		case lua.LTString:
			types = append(types, strings.TrimSpace(value.String()))
		case lua.LTNil:
		default:
			if bad == nil {
				bad = value
			}
		}
	})
	if bad != nil {
		return fieldTypeError(luaFieldContentType, "list of strings", bad)
	}
	dl.ContentTypes = types
	return nil
}

func getString(table *lua.LTable, name string, dst *string) error {
	v := table.RawGetString(name)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTString:
		*dst = v.String()
		return nil
	default:
		return fieldTypeError(name, "string", v)
	}
}

func getInt(table *lua.LTable, name string, dst *int) error {
	v := table.RawGetString(name)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTNumber:
		n := float64(lua.LVAsNumber(v))
		if n != float64(int(n)) {
			return &ParseError{Message: "invalid value for " + name, Detail: fmt.Sprintf("expected integer, got %v", n)}
		}
		*dst = int(n)
		return nil
	default:
		return fieldTypeError(name, "number", v)
	}
}

func getBool(table *lua.LTable, name string, dst *bool) error {
	v := table.RawGetString(name)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTBool:
		*dst = bool(v.(lua.LBool))
		return nil
	default:
		return fieldTypeError(name, "boolean", v)
	}
}

func fieldTypeError(name, want string, got lua.LValue) *ParseError {
	return &ParseError{
		Message: "invalid value for " + name,
		Detail:  fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
