// Slotcache uses flags and a single config file for configuration.
// The config file is a flat YAML mapping from flag names to values, e.g. `segment_cache_capacity: 128`.
// Flags given on the command line take precedence over the config file, which takes precedence over flag defaults.

package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

var configFilePath = flag.String("config_file", "config.yaml", "Path to the YAML configuration file.")

// skippedConfigFlags can only be given on the command line.
var skippedConfigFlags = []string{"print_version", "config_file"}

// InitFlags parses command line flags and then applies the config file specified by the -config_file flag.
// It should be called after defining all flags and before using them.
func InitFlags() {
	flag.Parse()

	if *configFilePath == "" {
		slog.Info("Config file not specified. Skipping config initialization.")
		return
	}

	configFile, err := os.Open(*configFilePath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("Config file does not exist.", "path", *configFilePath, "error", err)
		return
	}
	if err != nil { // If the config file cannot be opened, we skip loading and use default flag values.
		slog.Error("Failed to open config file.", "error", err)
		return
	}
	defer func() { _ = configFile.Close() }()

	conf, err := parseConfig(configFile)
	if err != nil {
		slog.Error("Failed to parse config file.", "path", *configFilePath, "error", err)
		return
	}
	if err := setConfigFlags(conf, commandLineFlags()); err != nil {
		slog.Error("Failed to set flags from config file.", "path", *configFilePath, "error", err)
		return
	}
	slog.Info("Loaded config file.", "path", *configFilePath, "flags", len(conf))
}

// parseConfig reads a flat YAML mapping of flag names to scalar values.
func parseConfig(r io.Reader) (map[ /*flagName*/ string] /*flagValue*/ string, error) {
	var raw map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) { // EOF means an empty file.
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	conf := make(map[string]string, len(raw))
	for flagName, value := range raw {
		switch typed := value.(type) {
		case string:
			conf[flagName] = typed
		case bool:
			conf[flagName] = strconv.FormatBool(typed)
		case int:
			conf[flagName] = strconv.Itoa(typed)
		case int64:
			conf[flagName] = strconv.FormatInt(typed, 10)
		case uint64:
			conf[flagName] = strconv.FormatUint(typed, 10)
		case float64:
			conf[flagName] = strconv.FormatFloat(typed, 'g', -1, 64)
		default:
			return nil, fmt.Errorf("flag '%s' must have a scalar value, got %T", flagName, value)
		}
	}
	return conf, nil
}

// ValidateFile checks that the config file at `path` parses and only refers to known, config settable flags.
func ValidateFile(path string) error {
	configFile, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = configFile.Close() }()
	conf, err := parseConfig(configFile)
	if err != nil {
		return err
	}
	return checkConfigFlags(conf)
}

// checkConfigFlags makes sure every flag in `conf` exists and may be set from a config file.
func checkConfigFlags(conf map[string]string) error {
	for flagName := range conf {
		if flag.Lookup(flagName) == nil {
			return fmt.Errorf("config file sets unknown flag '%s'", flagName)
		}
		if slices.Contains(skippedConfigFlags, flagName) {
			return fmt.Errorf("flag '%s' can only be set on the command line", flagName)
		}
	}
	return nil
}

// commandLineFlags returns the names of the flags explicitly set on the command line.
func commandLineFlags() map[string]struct{} {
	setFlags := make(map[string]struct{})
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	return setFlags
}

// setConfigFlags sets all the flags in `conf` except the ones in `overridden`. Unknown flags are an error, so
// typos in the config file don't go unnoticed.
func setConfigFlags(conf map[string]string, overridden map[string]struct{}) error {
	if err := checkConfigFlags(conf); err != nil {
		return err
	}
	for flagName, flagValue := range conf {
		if _, isOverridden := overridden[flagName]; isOverridden {
			slog.Debug("Flag set on the command line overrides the config file.", "flag", flagName)
			continue
		}
		if err := flag.Set(flagName, flagValue); err != nil {
			return fmt.Errorf("failed to set flag %s: %w", flagName, err)
		}
	}
	return nil
}
