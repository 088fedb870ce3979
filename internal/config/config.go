// Package config parses the `key = value` config file and `state` file
// spec.md §6 describes, generalizing the teacher's config.go env-var
// loader (getEnv-with-default pairs) from os.Getenv defaults to a file
// scanner, since spec.md requires a textual grammar rather than
// environment variables. No pack library parses this bespoke dialect
// (viper/koanf read ENV/JSON/YAML/TOML/INI, not #-comment key=value with
// this exact key set), so bufio.Scanner is used directly.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kaelwave/wavetuner/internal/catalog"
	"github.com/kaelwave/wavetuner/internal/codec"
)

// Config holds every recognized key from spec.md §6's config file,
// defaulted and then overridden line by line.
type Config struct {
	User     string
	Password string
	Device   string
	InKey    string
	OutKey   string

	RPCHost  string
	RPCPath  string
	TLSPort  int
	Proxy    string
	ControlProxy string
	CABundle string

	AudioQuality codec.Quality
	SortOrder    catalog.SortOrder
	HistorySize  int
	Volume       float64

	EventCommand string
	FifoPath     string

	// MessageFormats holds the %s-templated message strings keyed by
	// their config key minus the "format_" prefix (format_songstart is
	// stored under "songstart"), applied verbatim by whichever layer
	// prints them.
	MessageFormats map[string]string

	// KeyBindings maps an action name, the config key minus its "act_"
	// prefix ("songlove" for act_songlove), to either a single-rune
	// override or the literal "disabled" to unbind it.
	KeyBindings map[string]string
}

// Default returns a Config with spec.md's implied baseline values before
// any file is parsed.
func Default() *Config {
	return &Config{
		RPCPath:        "/services/json/",
		TLSPort:        443,
		AudioQuality:   codec.QualityMedium,
		SortOrder:      catalog.SortNameAZ,
		HistorySize:    50,
		Volume:         0,
		MessageFormats: map[string]string{},
		KeyBindings:    map[string]string{},
	}
}

// DefaultConfigDir resolves `{config}/wavetuner` per spec.md §6:
// XDG_CONFIG_HOME, defaulting to $HOME/.config.
func DefaultConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, "wavetuner")
}

// Load reads and parses the config file at path into a fresh Config
// seeded from Default. A missing file is not an error: an unconfigured
// client still starts with defaults and HTTP_PROXY/env fallbacks.
func Load(path string) (*Config, error) {
	cfg := Default()
	if env := os.Getenv("HTTP_PROXY"); env != "" {
		cfg.Proxy = env
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	if err := parseInto(cfg, f); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

func parseInto(cfg *Config, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("line %d: expected key = value", lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		applyKey(cfg, key, value)
	}
	return scanner.Err()
}

func applyKey(cfg *Config, key, value string) {
	switch key {
	case "user":
		cfg.User = value
	case "password":
		cfg.Password = value
	case "device":
		cfg.Device = value
	case "inkey":
		cfg.InKey = value
	case "outkey":
		cfg.OutKey = value
	case "rpc_host":
		cfg.RPCHost = value
	case "rpc_path":
		cfg.RPCPath = value
	case "rpc_tls_port":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.TLSPort = n
		}
	case "proxy":
		cfg.Proxy = value
	case "control_proxy":
		cfg.ControlProxy = value
	case "ca_bundle":
		cfg.CABundle = value
	case "audio_quality":
		cfg.AudioQuality = codec.ParseQuality(value)
	case "sort_order":
		cfg.SortOrder = parseSortOrder(value)
	case "history_size":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.HistorySize = n
		}
	case "volume":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			cfg.Volume = f
		}
	case "event_command":
		cfg.EventCommand = value
	case "fifo":
		cfg.FifoPath = value
	default:
		switch {
		case strings.HasPrefix(key, "format_"):
			cfg.MessageFormats[strings.TrimPrefix(key, "format_")] = value
		case strings.HasPrefix(key, "act_"):
			cfg.KeyBindings[strings.TrimPrefix(key, "act_")] = value
		}
	}
}

func parseSortOrder(value string) catalog.SortOrder {
	switch value {
	case "name_za":
		return catalog.SortNameZA
	case "quickmix_01_name_az":
		return catalog.SortQuickMixFirstNameAZ
	case "quickmix_01_name_za":
		return catalog.SortQuickMixFirstNameZA
	case "quickmix_10_name_az":
		return catalog.SortQuickMixLastNameAZ
	case "quickmix_10_name_za":
		return catalog.SortQuickMixLastNameZA
	default:
		return catalog.SortNameAZ
	}
}

// KeyFor resolves a dispatch action's bound rune, honoring a "disabled"
// override by returning ok=false. actionName matches the suffix of an
// act_* config key (e.g. "songlove" for act_songlove).
func (c *Config) KeyFor(actionName string, fallback rune) (rune, bool) {
	override, bound := c.KeyBindings[actionName]
	if !bound {
		return fallback, true
	}
	if override == "disabled" {
		return 0, false
	}
	runes := []rune(override)
	if len(runes) == 0 {
		return fallback, true
	}
	return runes[0], true
}
