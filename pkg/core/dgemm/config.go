// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dgemm

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/gomlx/dgemm/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// ConfigEnvVar is the environment variable with settings applied on top of DefaultConfig by
// ConfigFromEnv and NewFromEnv. See Config.Apply for the format.
const ConfigEnvVar = "DGEMM_CONFIG"

// DefaultBlockSize is the tile extent used if none is configured.
const DefaultBlockSize = 64

// Config of an Engine.
type Config struct {
	// BlockSize is the extent of the cubic tiles of the blocked kernel. It must be >= 1 and it
	// doesn't need to divide the matrix dimension.
	BlockSize int

	// MaxParallelism is the number of workers used by the parallel regions.
	// 0 runs everything sequentially in the calling goroutine, -1 means unlimited.
	MaxParallelism int
}

// DefaultConfig returns the default configuration: DefaultBlockSize and one worker per CPU.
func DefaultConfig() Config {
	return Config{
		BlockSize:      DefaultBlockSize,
		MaxParallelism: runtime.NumCPU(),
	}
}

// String implements fmt.Stringer. The output can be parsed back with ParseConfig.
func (c Config) String() string {
	return fmt.Sprintf("block_size=%d;parallelism=%d", c.BlockSize, c.MaxParallelism)
}

// ConfigFromEnv returns DefaultConfig updated with the settings in $DGEMM_CONFIG, if set.
func ConfigFromEnv() (Config, error) {
	c := DefaultConfig()
	if settings, found := os.LookupEnv(ConfigEnvVar); found {
		if err := c.Apply(settings); err != nil {
			return c, errors.WithMessagef(err, "invalid $%s=%q", ConfigEnvVar, settings)
		}
	}
	return c, nil
}

// ParseConfig returns DefaultConfig updated with the given settings. See Config.Apply.
func ParseConfig(settings string) (Config, error) {
	c := DefaultConfig()
	err := c.Apply(settings)
	return c, err
}

// Apply updates the configuration with the settings given, a list separated by ";":
// e.g.: "block_size=128;parallelism=8".
//
// Keys are "block_size" (or "block") and "parallelism" (or "workers"). For the values "_" is
// removed, so one can write "1_024". A setting "file:<path>" reads more settings from the file,
// one or more per line, ignoring empty lines and lines starting with "#".
func (c *Config) Apply(settings string) error {
	for _, setting := range strings.Split(settings, ";") {
		if err := c.applySetting(strings.TrimSpace(setting)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applySetting(setting string) error {
	if setting == "" {
		return nil
	}
	if strings.HasPrefix(setting, "file:") {
		filePath, err := fsutil.ReplaceTildeInDir(strings.TrimPrefix(setting, "file:"))
		if err != nil {
			return err
		}
		contents, err := os.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to read settings from file %q", filePath)
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := c.Apply(line); err != nil {
				return errors.WithMessagef(err, "in settings file %q", filePath)
			}
		}
		return nil
	}

	parts := strings.Split(setting, "=")
	if len(parts) != 2 {
		return errors.Errorf("can't parse setting %q: each setting requires the format \"<key>=<value>\"", setting)
	}
	key := strings.TrimSpace(parts[0])
	valueStr := strings.ReplaceAll(strings.TrimSpace(parts[1]), "_", "")
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return errors.Wrapf(err, "can't parse value of setting %q as an int", setting)
	}
	switch key {
	case "block_size", "block":
		c.BlockSize = value
	case "parallelism", "workers":
		c.MaxParallelism = value
	default:
		return errors.Errorf("unknown configuration key %q in setting %q, valid keys are \"block_size\" and \"parallelism\"",
			key, setting)
	}
	return nil
}

// Validate returns an error if the configuration can't be used by an Engine.
func (c Config) Validate() error {
	if c.BlockSize < 1 {
		return errors.Wrapf(ErrInvalidBlockSize, "block_size=%d", c.BlockSize)
	}
	if c.MaxParallelism < -1 {
		return errors.Errorf("invalid parallelism=%d: use -1 for unlimited, 0 for sequential or a positive number of workers",
			c.MaxParallelism)
	}
	return nil
}
