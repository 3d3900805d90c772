// Package config is the typed configuration surface enumerated in
// spec.md §6. Shape and bootstrap behavior (EnsureConfigFile writing
// a safe default on first run, never overwriting an existing file)
// are adapted from the teacher repo's internal/config/config.go and
// bootstrap.go; the encoding is TOML via github.com/pelletier/go-toml/v2,
// the dependency the CLI-focused repo in the retrieval pack
// (dsmmcken-dh-cli) actually reaches for, rather than the teacher's
// plain encoding/json.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/amrcfdp/cfdp-receiver/internal/fault"
)

// TransmissionMode mirrors pdu.TransmissionMode without importing it,
// keeping config a leaf package the way the teacher's config package
// never imports its own domain packages.
type TransmissionMode string

const (
	Acknowledged   TransmissionMode = "ACKNOWLEDGED"
	Unacknowledged TransmissionMode = "UNACKNOWLEDGED"
)

// DataPaths is the filesystem layout (spec.md §6). The receiver reads
// Incoming (destination root) and Tempfiles (assembler temp files);
// Outgoing and Pdusink are parsed but not read by any package here, and
// emitted PDUs are not appended to a pdusink.
type DataPaths struct {
	Incoming  string `toml:"incoming"`
	Outgoing  string `toml:"outgoing"`
	Tempfiles string `toml:"tempfiles"`
	Pdusink   string `toml:"pdusink"`
}

// Timers holds every duration/limit spec.md §6 enumerates.
type Timers struct {
	NAKTimeout        time.Duration `toml:"nak_timeout"`
	NAKLimit          int           `toml:"nak_limit"`
	InactivityTimeout time.Duration `toml:"inactivity_timeout"`
	ACKTimeout        time.Duration `toml:"ack_timeout"`
	ACKLimit          int           `toml:"ack_limit"`
}

// Config is the full receiver configuration.
type Config struct {
	Timers                  Timers            `toml:"timers"`
	TransmissionModeDefault TransmissionMode  `toml:"transmission_mode_default"`
	FaultHandlers           map[string]string `toml:"fault_handlers"`
	DataPaths               DataPaths         `toml:"data_paths"`
	RetainTempOnAbandon     bool              `toml:"retain_temp_on_abandon"`
	LogLevel                string            `toml:"log_level"`
	AuditDBPath             string            `toml:"audit_db_path"`
}

// Default returns a safe out-of-the-box configuration, mirroring the
// teacher's config.Default().
func Default() Config {
	return Config{
		Timers: Timers{
			NAKTimeout:        10 * time.Second,
			NAKLimit:          5,
			InactivityTimeout: 60 * time.Second,
			ACKTimeout:        10 * time.Second,
			ACKLimit:          5,
		},
		TransmissionModeDefault: Acknowledged,
		FaultHandlers:           defaultFaultHandlerStrings(),
		DataPaths: DataPaths{
			Incoming:  "incoming",
			Outgoing:  "outgoing",
			Tempfiles: "tempfiles",
			Pdusink:   "",
		},
		LogLevel:    "info",
		AuditDBPath: "audit.db",
	}
}

func defaultFaultHandlerStrings() map[string]string {
	out := make(map[string]string)
	for code, handler := range fault.DefaultHandlers() {
		out[string(code)] = string(handler)
	}
	return out
}

// HandlerTable converts the string-keyed config map into a
// fault.HandlerTable.
func (c Config) HandlerTable() fault.HandlerTable {
	t := make(fault.HandlerTable, len(c.FaultHandlers))
	for code, handler := range c.FaultHandlers {
		t[fault.Code(code)] = fault.Handler(handler)
	}
	return t
}

// Load reads and parses a TOML config file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// EnsureConfigFile writes a default config to path if nothing exists
// there yet. It never overwrites an existing file, matching the
// teacher's bootstrap.go contract.
func EnsureConfigFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("config: marshal default: %w", err)
	}
	return os.WriteFile(path, b, 0o600)
}

// Validate checks the enumerated limits are usable.
func (c Config) Validate() error {
	if c.Timers.NAKLimit <= 0 {
		return fmt.Errorf("config: nak_limit must be positive")
	}
	if c.Timers.ACKLimit <= 0 {
		return fmt.Errorf("config: ack_limit must be positive")
	}
	if c.DataPaths.Incoming == "" {
		return fmt.Errorf("config: data_paths.incoming required")
	}
	if c.DataPaths.Tempfiles == "" {
		return fmt.Errorf("config: data_paths.tempfiles required")
	}
	return nil
}
