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

// Package event defines the events sent by the sensors of nettrap and the
// options used to build them.
package event

import (
	"fmt"
	"runtime/debug"
	"unicode/utf8"
)

// MaxCommandLength is the number of characters of a command kept in events.
const MaxCommandLength = 100

// Categories of events emitted by the connection engine.
const (
	CategoryConnection = "connection"
	CategoryCommand    = "command"
	CategoryError      = "error"
	CategoryHeartbeat  = "heartbeat"
	CategoryListener   = "listener"
)

var (
	SeverityError = Severity("error")
	SeverityInfo  = Severity("info")

	ListenerStarted   = Type("LISTENER:STARTED")
	ListenerStopped   = Type("LISTENER:STOPPED")
	ListenerRestarted = Type("LISTENER:RESTARTED")
	ConnectionOpened  = Type("CONNECTION:OPENED")
	SessionCommand    = Type("SESSION:COMMAND")
	SessionError      = Type("SESSION:ERROR")
)

// Option modifies an Event.
type Option func(Event)

// Apply applies all options to e and returns it.
func Apply(e Event, opts ...Option) Event {
	for _, option := range opts {
		if option == nil {
			continue
		}

		option(e)
	}

	return e
}

// NewWith combines options into a single option.
func NewWith(opts ...Option) Option {
	return func(e Event) {
		Apply(e, opts...)
	}
}

// Token sets the sensor token.
func Token(token string) Option {
	return func(m Event) {
		m.Store("token", token)
	}
}

// Category sets the category.
func Category(s string) Option {
	return func(m Event) {
		m.Store("category", s)
	}
}

// Type sets the type.
func Type(s string) Option {
	return func(m Event) {
		m.Store("type", s)
	}
}

// Severity sets the severity.
func Severity(s string) Option {
	return func(m Event) {
		m.Store("severity", s)
	}
}

// Sensor sets the sensor name.
func Sensor(s string) Option {
	return func(m Event) {
		m.Store("sensor", s)
	}
}

// SourceIP sets the source-ip value. Peers whose address could not be
// determined are recorded as they are given, eg. "Unknown".
func SourceIP(ip string) Option {
	return func(m Event) {
		m.Store("source-ip", ip)
	}
}

// DestinationPort sets the port the peer connected to.
func DestinationPort(port int) Option {
	return func(m Event) {
		m.Store("destination-port", port)
	}
}

// Service sets the logical service name.
func Service(v string) Option {
	return func(m Event) {
		m.Store("service", v)
	}
}

// SessionID sets the id shared by all events of one connection.
func SessionID(id string) Option {
	return func(m Event) {
		m.Store("session-id", id)
	}
}

// Command stores the text received from the peer, truncated to
// MaxCommandLength characters.
func Command(text string) Option {
	return func(m Event) {
		m.Store("command", Truncate(text, MaxCommandLength))
		m.Store("command-length", len(text))
	}
}

// Message sets a formatted message.
func Message(format string, a ...interface{}) Option {
	return func(m Event) {
		m.Store("message", fmt.Sprintf(format, a...))
	}
}

// Stack stores the current goroutine stack trace.
func Stack() Option {
	return func(m Event) {
		m.Store("stacktrace", string(debug.Stack()))
	}
}

// Custom sets an arbitrary key-value pair.
func Custom(name string, value interface{}) Option {
	return func(m Event) {
		m.Store(name, value)
	}
}

// Truncate cuts s to n characters and appends "..." when it was longer.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}

	return s
}

// ToMap returns a copy of all string keyed values.
func ToMap(ev Event) map[string]interface{} {
	mp := make(map[string]interface{})

	ev.Range(func(key, value interface{}) bool {
		if keyName, ok := key.(string); ok {
			mp[keyName] = value
		}
		return true
	})

	return mp
}
