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

package server

import (
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/nettrap/nettrap/config"
	"github.com/nettrap/nettrap/server/profiler"
	"github.com/pkg/profile"
	"github.com/rs/xid"
)

// OptionFn configures a Nettrap.
type OptionFn func(*Nettrap) error

// WithMemoryProfiler enables the memory profiler.
func WithMemoryProfiler() OptionFn {
	return func(b *Nettrap) error {
		b.profiler = profiler.New(profile.MemProfile)
		return nil
	}
}

// WithCPUProfiler enables the cpu profiler.
func WithCPUProfiler() OptionFn {
	return func(b *Nettrap) error {
		b.profiler = profiler.New(profile.CPUProfile)
		return nil
	}
}

// WithWebProfiler serves the pprof handlers on 127.0.0.1:6060.
func WithWebProfiler() OptionFn {
	return func(b *Nettrap) error {
		b.profiler = profiler.Web()
		return nil
	}
}

// WithConfig loads the configuration file at s. A missing or malformed file
// is reported and the defaults are used, it never fails the server.
func WithConfig(s string) OptionFn {
	return func(b *Nettrap) error {
		c, err := config.LoadFile(s)
		if err != nil {
			log.Errorf("Error loading configuration %s, using defaults: %s", s, err.Error())
		}

		b.config = c
		return nil
	}
}

// WithConfiguration sets the configuration.
func WithConfiguration(c *config.Config) OptionFn {
	return func(b *Nettrap) error {
		b.config = c
		return nil
	}
}

// WithDataDir sets the directory the token is kept in, relative geoip paths
// are resolved in it too. It is created when it does not exist.
func WithDataDir(s string) OptionFn {
	return func(b *Nettrap) error {
		p, err := expand(s)
		if err != nil {
			return err
		}

		p, err = filepath.Abs(p)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(p, 0755); err != nil {
			return err
		}

		b.dataDir = p
		return nil
	}
}

func expand(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	usr, err := user.Current()
	if err != nil {
		return "", err
	}

	return filepath.Join(usr.HomeDir, path[1:]), nil
}

// WithToken sets the sensor token. The token is read from the data
// directory, a new one is generated and stored when there is none.
func WithToken() OptionFn {
	return func(h *Nettrap) error {
		uid := xid.New().String()

		if h.dataDir == "" {
			h.token = uid
			return nil
		}

		p := filepath.Join(h.dataDir, "token")

		if data, err := ioutil.ReadFile(p); err == nil {
			uid = strings.TrimSpace(string(data))
		} else if !os.IsNotExist(err) {
			return err
		} else if err := ioutil.WriteFile(p, []byte(uid), 0600); err != nil {
			return err
		}

		h.token = uid
		return nil
	}
}
