// cmd/hoppiebridge/config.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmp/hoppiebridge/hoppie"
	"github.com/mmp/hoppiebridge/log"
	"github.com/mmp/hoppiebridge/server"
	"github.com/mmp/hoppiebridge/util"
)

type Config struct {
	Version int

	Logon          string
	Callsign       string
	ACARSServerURL string
	RequestTimeout time.Duration

	// Zero durations get the bridge defaults.
	PollInterval     time.Duration
	FastPollInterval time.Duration
	DrainInterval    time.Duration
	AnswerTimeout    time.Duration

	RevokeReadyOnPollFailure bool

	// StartPowered seeds the avionics power slot at launch so the
	// bridge works without a simulator host attached; a host that
	// writes the slot takes over from there.
	StartPowered bool

	InhibitDiscordActivity util.AtomicBool
}

func (c *Config) BridgeConfig() hoppie.Config {
	return hoppie.Config{
		Logon:                    c.Logon,
		PollInterval:             c.PollInterval,
		FastPollInterval:         c.FastPollInterval,
		DrainInterval:            c.DrainInterval,
		AnswerTimeout:            c.AnswerTimeout,
		RevokeReadyOnPollFailure: c.RevokeReadyOnPollFailure,
	}
}

// OverrideFromFlags folds any command-line options the user gave into
// the config; the config file keeps its own values.
func (c *Config) OverrideFromFlags() {
	if *logon != "" {
		c.Logon = *logon
	}
	if *callsign != "" {
		c.Callsign = *callsign
	}
	if *acarsURL != "" {
		c.ACARSServerURL = *acarsURL
	}
	if *pollInterval != 0 {
		c.PollInterval = *pollInterval
	}
	if *fastPollInterval != 0 {
		c.FastPollInterval = *fastPollInterval
	}
	if *drainInterval != 0 {
		c.DrainInterval = *drainInterval
	}
	if *answerTimeout != 0 {
		c.AnswerTimeout = *answerTimeout
	}
}

func configFilePath(lg *log.Logger) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		lg.Errorf("Unable to find user config dir: %v", err)
		dir = "."
	}

	dir = filepath.Join(dir, "HoppieBridge")
	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		lg.Errorf("%s: unable to make directory for config file: %v", dir, err)
	}

	return filepath.Join(dir, "config.json")
}

func (c *Config) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(c)
}

func (c *Config) Save(lg *log.Logger) error {
	lg.Infof("Saving config to: %s", configFilePath(lg))
	f, err := os.Create(configFilePath(lg))
	if err != nil {
		return err
	}
	defer f.Close()

	return c.Encode(f)
}

// SaveIfChanged writes the config out only if it differs from what is
// on disk, so an unmodified run doesn't touch the file's timestamp.
func (c *Config) SaveIfChanged(lg *log.Logger) bool {
	fn := configFilePath(lg)
	onDisk, err := os.ReadFile(fn)
	if err != nil && !os.IsNotExist(err) {
		lg.Warnf("%s: unable to read config file: %v", fn, err)
	}

	var b strings.Builder
	if err = c.Encode(&b); err != nil {
		lg.Errorf("%s: unable to encode config: %v", fn, err)
		return false
	}

	if b.String() == string(onDisk) {
		return false
	}

	if err := c.Save(lg); err != nil {
		lg.Errorf("Error saving configuration file: %v", err)
	}

	return true
}

func getDefaultConfig() *Config {
	return &Config{
		Version:        server.BridgeSerializeVersion,
		ACARSServerURL: hoppie.DefaultServerURL,
		StartPowered:   true,
	}
}

func LoadOrMakeDefaultConfig(lg *log.Logger) (config *Config, configErr error) {
	fn := configFilePath(lg)
	lg.Infof("Loading config from: %s", fn)

	config = getDefaultConfig()

	defer func() {
		if err := recover(); err != nil {
			configErr = fmt.Errorf("%v", err)
			config = getDefaultConfig()
		}
	}()

	if contents, err := os.ReadFile(fn); err == nil {
		r := bytes.NewReader(contents)
		d := json.NewDecoder(r)

		config = &Config{}
		if err := d.Decode(config); err != nil {
			configErr = err
			config = getDefaultConfig()
		}

		if config.ACARSServerURL == "" {
			config.ACARSServerURL = hoppie.DefaultServerURL
		}
		if config.Version < 2 {
			// StartPowered postdates v1 configs; existing installs
			// expect the bridge to come up powered.
			config.StartPowered = true
		}

		if config.Version < server.BridgeSerializeVersion {
			config.Version = server.BridgeSerializeVersion
		}
	}

	return
}
