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

// Package pushers delivers events to the configured channels: the console,
// files, message brokers and databases.
package pushers

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/nettrap/nettrap/event"
	logging "github.com/op/go-logging"
)

var log = logging.MustGetLogger("nettrap:pushers")

// ErrUnknownChannel is returned when a channel type is not registered.
var ErrUnknownChannel = errors.New("unknown channel type")

// Channel delivers events to a single destination.
type Channel interface {
	Send(event.Event)
}

// Closer is implemented by channels holding resources that must be released.
type Closer interface {
	Close() error
}

// ChannelFunc creates a channel configured by the options.
type ChannelFunc func(...func(Channel) error) (Channel, error)

var channels = map[string]ChannelFunc{}

// Register makes a channel type available under key.
func Register(key string, fn ChannelFunc) ChannelFunc {
	channels[key] = fn
	return fn
}

// Get returns the channel type registered under key.
func Get(key string) (ChannelFunc, bool) {
	fn, ok := channels[key]
	return fn, ok
}

// Types returns the registered channel types, sorted.
func Types() []string {
	keys := make([]string, 0, len(channels))
	for k := range channels {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

// New returns a channel of type key.
func New(key string, options ...func(Channel) error) (Channel, error) {
	fn, ok := Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %v)", ErrUnknownChannel, key, Types())
	}

	return fn(options...)
}

// WithConfig decodes the configuration section c into the channel.
func WithConfig(c toml.Primitive) func(Channel) error {
	return func(d Channel) error {
		return toml.PrimitiveDecode(c, d)
	}
}

// Close releases the channel when it holds resources.
func Close(c Channel) error {
	if cl, ok := c.(Closer); ok {
		return cl.Close()
	}

	return nil
}

// Func adapts a function to a Channel.
type Func func(event.Event)

// Send calls fn(e).
func (fn Func) Send(e event.Event) {
	fn(e)
}
