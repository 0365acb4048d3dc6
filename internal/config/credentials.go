package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Environment holds the settings narrate only reads from the environment.
type Environment struct {
	APIKeys     []string `env:"NARRATE_API_KEYS" envSeparator:","`
	APIKeysFile string   `env:"NARRATE_API_KEYS_FILE"`
	Debug       bool     `env:"NARRATE_DEBUG"`
}

// ParseEnvironment reads Environment from the process environment.
func ParseEnvironment() (Environment, error) {
	e, err := env.ParseAs[Environment]()
	if err != nil {
		return Environment{}, fmt.Errorf("error parsing environment: %w", err)
	}
	return e, nil
}

// Credentials merges the credential sources in priority order: flags, the
// environment, the keys file, then the config file. Duplicates are kept; the
// credential pool skips them with a warning.
func Credentials(flagKeys []string, e Environment, cfg Config) ([]string, error) {
	var keys []string
	keys = appendNonBlank(keys, flagKeys...)
	keys = appendNonBlank(keys, e.APIKeys...)

	if e.APIKeysFile != "" {
		fileKeys, err := ReadKeysFile(e.APIKeysFile)
		if err != nil {
			return nil, err
		}
		keys = appendNonBlank(keys, fileKeys...)
	}

	keys = appendNonBlank(keys, cfg.APIKeys...)
	return keys, nil
}

// ReadKeysFile reads one key per line. Blank lines and lines starting with #
// are ignored.
func ReadKeysFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open keys file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var keys []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("unable to read keys file: %w", err)
	}
	return keys, nil
}

func appendNonBlank(dst []string, keys ...string) []string {
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			dst = append(dst, k)
		}
	}
	return dst
}
