// Package config loads and validates the server configuration file.
//
// The file is INI-style. The [SERVER] section is mandatory and every one of
// its options must be present; a missing section or option is an error
// wrapping ErrConfiguration that names the offending key. The optional [METRICS]
// section enables the Prometheus endpoint.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// ErrConfiguration is wrapped by every error returned from Load.
var ErrConfiguration = errors.New("configuration error")

// Config is the process-wide immutable server configuration.
type Config struct {
	Host             string        // Control listener host
	Port             int           // Control listener port
	PassivePortRange PortRange     // Candidate ports for passive data listeners
	SessionTimeout   time.Duration // Post-auth control socket read deadline, per command
	LoginTimeout     time.Duration // Pre-auth control socket read deadline
	DataTimeout      time.Duration // Passive listener accept deadline
	RootDirectory    string        // Absolute root under which user homes live
	AllowAnonymous   bool          // Whether digest-less accounts may log in

	Metrics MetricsConfig
}

// PortRange is an inclusive range of TCP ports.
type PortRange struct {
	Start int
	End   int
}

// MetricsConfig holds the optional Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool
	Address string
}

// ListenAddr returns the control socket bind address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads an INI configuration file. All [SERVER] options are mandatory.
func Load(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %q: %v", ErrConfiguration, path, err)
	}

	section, err := file.GetSection("SERVER")
	if err != nil {
		return nil, fmt.Errorf("%w: missing [SERVER] section in %q", ErrConfiguration, path)
	}

	cfg := &Config{}

	cfg.Host, err = requiredKey(section, "Host")
	if err != nil {
		return nil, err
	}

	if cfg.Port, err = requiredInt(section, "Port"); err != nil {
		return nil, err
	}

	rangeStr, err := requiredKey(section, "PassivePortRange")
	if err != nil {
		return nil, err
	}

	if cfg.PassivePortRange, err = parsePortRange(rangeStr); err != nil {
		return nil, err
	}

	if cfg.SessionTimeout, err = requiredSeconds(section, "SessionTimeout"); err != nil {
		return nil, err
	}

	if cfg.LoginTimeout, err = requiredSeconds(section, "LoginTimeout"); err != nil {
		return nil, err
	}

	if cfg.DataTimeout, err = requiredSeconds(section, "DataTimeout"); err != nil {
		return nil, err
	}

	rootDir, err := requiredKey(section, "RootDirectory")
	if err != nil {
		return nil, err
	}

	if cfg.RootDirectory, err = filepath.Abs(rootDir); err != nil {
		return nil, fmt.Errorf("%w: option RootDirectory: %v", ErrConfiguration, err)
	}

	anonStr, err := requiredKey(section, "AllowAnonymous")
	if err != nil {
		return nil, err
	}

	if cfg.AllowAnonymous, err = strconv.ParseBool(anonStr); err != nil {
		return nil, fmt.Errorf("%w: option AllowAnonymous: %q is not a boolean", ErrConfiguration, anonStr)
	}

	// [METRICS] is optional, unlike everything under [SERVER].
	if metricsSection, errSec := file.GetSection("METRICS"); errSec == nil {
		cfg.Metrics.Enabled = metricsSection.Key("Enabled").MustBool(false)
		cfg.Metrics.Address = metricsSection.Key("Address").MustString("127.0.0.1:9121")
	}

	return cfg, nil
}

func requiredKey(section *ini.Section, name string) (string, error) {
	if !section.HasKey(name) {
		return "", fmt.Errorf("%w: missing option %s in [SERVER]", ErrConfiguration, name)
	}

	value := strings.TrimSpace(section.Key(name).String())
	if value == "" {
		return "", fmt.Errorf("%w: option %s in [SERVER] is empty", ErrConfiguration, name)
	}

	return value, nil
}

func requiredInt(section *ini.Section, name string) (int, error) {
	value, err := requiredKey(section, name)
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: option %s: %q is not an integer", ErrConfiguration, name, value)
	}

	return n, nil
}

// Timeouts are plain integer seconds in the file.
func requiredSeconds(section *ini.Section, name string) (time.Duration, error) {
	n, err := requiredInt(section, name)
	if err != nil {
		return 0, err
	}

	if n <= 0 {
		return 0, fmt.Errorf("%w: option %s must be positive", ErrConfiguration, name)
	}

	return time.Duration(n) * time.Second, nil
}

func parsePortRange(value string) (PortRange, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return PortRange{}, fmt.Errorf(
			"%w: option PassivePortRange: expected \"low,high\", got %q", ErrConfiguration, value)
	}

	low, errLow := strconv.Atoi(strings.TrimSpace(parts[0]))
	high, errHigh := strconv.Atoi(strings.TrimSpace(parts[1]))

	if errLow != nil || errHigh != nil {
		return PortRange{}, fmt.Errorf(
			"%w: option PassivePortRange: %q contains a non-integer port", ErrConfiguration, value)
	}

	if low <= 0 || high <= 0 || high < low {
		return PortRange{}, fmt.Errorf(
			"%w: option PassivePortRange: %d,%d is not a valid range", ErrConfiguration, low, high)
	}

	return PortRange{Start: low, End: high}, nil
}
