package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Generator writes settings back out as a Lua file.
type Generator struct {
	indent string
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ",
	}
}

// Generate renders s as a launcher.lua that ParseString reads back to s.
func (g *Generator) Generate(s *Settings) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	var buf bytes.Buffer

	buf.WriteString("-- Thrive Launcher settings\n")
	buf.WriteString("-- Generated: ")
	buf.WriteString(time.Now().Format(time.RFC3339))
	buf.WriteString("\n--\n")
	buf.WriteString("-- The read-only 'platform' table (platform.os, platform.arch,\n")
	buf.WriteString("-- platform.is_linux, ...) may be used to vary values per machine.\n\n")

	buf.WriteString(luaGlobalLauncher + " = {\n")
	g.writeString(&buf, 1, luaFieldDataDir, s.DataDir)
	g.writeString(&buf, 1, luaFieldManifest, s.Manifest)
	if s.Keyring != "" {
		g.writeString(&buf, 1, luaFieldKeyring, s.Keyring)
	} else {
		g.writeLine(&buf, 1, "-- keyring = \"/path/to/release-signing-key.asc\",")
	}
	g.writeString(&buf, 1, luaFieldExecutable, s.Executable)
	g.writeString(&buf, 1, luaFieldBinDir, s.BinDir)
	g.writeLine(&buf, 1, fmt.Sprintf("%s = %d,", luaFieldLogLines, s.LogLines))
	if s.LogFile != "" {
		g.writeString(&buf, 1, luaFieldLogFile, s.LogFile)
	}
	g.writeString(&buf, 1, luaFieldLogLevel, s.LogLevel)
	g.writeLine(&buf, 1, fmt.Sprintf("%s = %t,", luaFieldStrictCache, s.StrictCache))
	buf.WriteString("\n")

	g.writeLine(&buf, 1, luaFieldDownload+" = {")
	g.writeLine(&buf, 2, fmt.Sprintf("%s = %d,", luaFieldRetries, s.Download.Retries))
	g.writeLine(&buf, 2, fmt.Sprintf("%s = %d,", luaFieldTimeout, int(s.Download.Timeout/time.Second)))
	g.writeString(&buf, 2, luaFieldUserAgent, s.Download.UserAgent)
	g.writeLine(&buf, 2, luaFieldContentType+" = {")
	for _, ct := range s.Download.ContentTypes {
		g.writeLine(&buf, 3, g.quoteLuaString(ct)+",")
	}
	g.writeLine(&buf, 2, "},")
	g.writeLine(&buf, 1, "},")

	buf.WriteString("}\n")
	return buf.String(), nil
}

func (g *Generator) writeString(buf *bytes.Buffer, depth int, key, value string) {
	g.writeLine(buf, depth, key+" = "+g.quoteLuaString(value)+",")
}

func (g *Generator) writeLine(buf *bytes.Buffer, depth int, line string) {
	buf.WriteString(strings.Repeat(g.indent, depth))
	buf.WriteString(line)
	buf.WriteString("\n")
}

// quoteLuaString quotes a string for Lua, handling special characters.
func (g *Generator) quoteLuaString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\") // Escape backslashes first
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return "\"" + s + "\""
}
