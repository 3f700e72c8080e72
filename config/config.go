// Copyright 2016-2019 DutchSec (https://dutchsec.com/)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config is the nettrap configuration, it is set by the server.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("nettrap:config")

var format = logging.MustStringFormatter(
	"%{color}%{time:15:04:05.000} %{module} ▶ %{level:.4s} %{id:03x} %{message}%{color:reset}",
)

// ErrNoPorts is returned by Validate when no port is configured.
var ErrNoPorts = errors.New("no ports configured")

// Config defines the central type where all configuration is unmarshalled to.
type Config struct {
	toml.MetaData

	Honeypot Honeypot `toml:"honeypot"`

	Services map[string]Service `toml:"service"`

	Web toml.Primitive `toml:"web"`

	Channels map[string]toml.Primitive `toml:"channel"`
	Filters  []toml.Primitive          `toml:"filter"`

	Logging []Logging `toml:"logging"`
}

// Honeypot holds the listener settings.
type Honeypot struct {
	Ports       []int  `toml:"ports"`
	BindAddress string `toml:"bind_address"`

	// MaxConnections sizes the listen backlog of every port.
	MaxConnections int `toml:"max_connections"`

	// MaxSessions caps the concurrently handled connections per port, 0 is
	// unlimited.
	MaxSessions int `toml:"max_sessions"`

	BannerDelay Delay `toml:"banner_delay"`

	// SessionTimeout bounds every read and write of a session, 0 disables it.
	SessionTimeout Delay `toml:"session_timeout"`

	CheckInterval Delay `toml:"check_interval"`
}

// Service holds the text a single emulated service presents.
type Service struct {
	Banner string `toml:"banner"`
	Prompt string `toml:"prompt"`

	// Delay overrides the pause between banner and prompt.
	Delay *Delay `toml:"delay"`
}

// Logging configures one log backend.
type Logging struct {
	Output string `toml:"output"`
	Level  string `toml:"level"`
}

// Default returns the configuration used when no (valid) configuration file is
// available.
func Default() *Config {
	return &Config{
		Honeypot: Honeypot{
			Ports:          []int{21, 22, 23, 80, 443},
			BindAddress:    "0.0.0.0",
			MaxConnections: 10,
			BannerDelay:    Delay(time.Second),
			CheckInterval:  Delay(5 * time.Second),
		},
		Services: map[string]Service{
			"ssh": {
				Banner: "SSH-2.0-OpenSSH_7.4",
				Prompt: "login as: ",
			},
			"ftp": {
				Banner: "220 (vsFTPd 3.0.3)",
			},
			"telnet": {
				Banner: "Ubuntu 18.04.4 LTS",
				Prompt: "login: ",
				Delay:  delayOf(time.Second),
			},
			"http": {
				Banner: "Apache/2.4.41 (Win64)",
			},
		},
	}
}

// Load decodes the toml configuration from r on top of the current values and
// fills in defaults for everything left empty.
func (c *Config) Load(r io.Reader) error {
	previous := c.Services
	c.Services = nil

	md, err := toml.DecodeReader(r, c)
	if err != nil {
		c.Services = previous
		return err
	}

	c.MetaData = md

	services := make(map[string]Service, len(c.Services))
	for name, s := range c.Services {
		services[strings.ToLower(name)] = s
	}

	for name, s := range previous {
		if _, ok := services[name]; !ok {
			services[name] = s
		}
	}

	c.Services = services
	c.normalize()

	if keys := unrecognized(md); len(keys) != 0 {
		log.Warningf("Unrecognized keys in configuration: %v", keys)
	}

	return nil
}

// unrecognized returns the undecoded keys outside of the sections decoded
// later as toml.Primitive.
func unrecognized(md toml.MetaData) []toml.Key {
	var keys []toml.Key

	for _, key := range md.Undecoded() {
		switch key[0] {
		case "channel", "filter", "web":
			continue
		}

		keys = append(keys, key)
	}

	return keys
}

// LoadFile reads the configuration from the file at path. On error the
// returned configuration holds the defaults.
func LoadFile(path string) (*Config, error) {
	c := Default()

	f, err := os.Open(path)
	if err != nil {
		return c, err
	}

	defer f.Close()

	if err := c.Load(f); err != nil {
		return Default(), fmt.Errorf("error parsing %s: %w", path, err)
	}

	return c, nil
}

// normalize replaces missing or invalid values with their defaults.
func (c *Config) normalize() {
	def := Default()

	var ports []int
	for _, p := range c.Honeypot.Ports {
		if p <= 0 || p > 65535 {
			log.Warningf("Ignoring invalid port %d", p)
			continue
		}
		ports = append(ports, p)
	}

	if len(ports) == 0 {
		ports = def.Honeypot.Ports
	}

	c.Honeypot.Ports = ports

	if c.Honeypot.BindAddress == "" {
		c.Honeypot.BindAddress = def.Honeypot.BindAddress
	}

	if c.Honeypot.MaxConnections <= 0 {
		c.Honeypot.MaxConnections = def.Honeypot.MaxConnections
	}

	if c.Honeypot.MaxSessions < 0 {
		c.Honeypot.MaxSessions = 0
	}

	if c.Honeypot.CheckInterval <= 0 {
		c.Honeypot.CheckInterval = def.Honeypot.CheckInterval
	}

	if c.Services == nil {
		c.Services = map[string]Service{}
	}

	for name, d := range def.Services {
		s, ok := c.Services[name]
		if !ok {
			c.Services[name] = d
			continue
		}

		if s.Banner == "" {
			s.Banner = d.Banner
		}

		if s.Prompt == "" {
			s.Prompt = d.Prompt
		}

		if s.Delay == nil {
			s.Delay = d.Delay
		}

		c.Services[name] = s
	}
}

// Validate checks the configuration can be served.
func (c *Config) Validate() error {
	if len(c.Honeypot.Ports) == 0 {
		return ErrNoPorts
	}

	seen := map[int]bool{}
	for _, p := range c.Honeypot.Ports {
		if seen[p] {
			return fmt.Errorf("port %d configured twice", p)
		}
		seen[p] = true
	}

	return nil
}

// SetupLogging configures the log backends. Without configured backends a
// stdout backend at INFO level is used.
func (c *Config) SetupLogging() error {
	outputs := c.Logging
	if len(outputs) == 0 {
		fmt.Println("Warning: no logging backends configured, logging to stdout.")
		outputs = []Logging{{Output: "stdout", Level: "info"}}
	}

	var logBackends []logging.Backend
	for _, l := range outputs {
		var output io.Writer

		switch l.Output {
		case "stdout":
			output = os.Stdout
		case "stderr":
			output = os.Stderr
		default:
			f, err := os.OpenFile(os.ExpandEnv(l.Output), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0660)
			if err != nil {
				return err
			}

			output = f
		}

		backend := logging.NewLogBackend(output, "", 0)
		backendFormatter := logging.NewBackendFormatter(backend, format)
		backendLeveled := logging.AddModuleLevel(backendFormatter)

		level, err := logging.LogLevel(l.Level)
		if err != nil {
			return err
		}

		backendLeveled.SetLevel(level, "")

		logBackends = append(logBackends, backendLeveled)
	}

	logging.SetBackend(logBackends...)
	return nil
}
