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

// Package services contains the emulated services: canned exchanges that
// mimic a real protocol long enough to capture what a peer sends.
package services

import (
	"context"
	"time"

	logging "github.com/op/go-logging"
)

var log = logging.MustGetLogger("nettrap:services")

var (
	services = map[string]func(...ServicerFunc) Servicer{}
)

// ServicerFunc configures a Servicer.
type ServicerFunc func(Servicer) error

// Register makes an emulator available under key.
func Register(key string, fn func(...ServicerFunc) Servicer) func(...ServicerFunc) Servicer {
	services[key] = fn
	return fn
}

// Get returns the emulator registered under key. When none is registered the
// generic emulator is returned with ok set to false.
func Get(key string) (fn func(...ServicerFunc) Servicer, ok bool) {
	if fn, ok := services[key]; ok {
		return fn, true
	}

	return Generic, false
}

// Servicer drives a single session to completion. Handle returns once the
// exchange ended; it closes the session on every path.
type Servicer interface {
	Handle(context.Context, *Session) error

	SetRecorder(Recorder)
}

// Recorder receives everything observed on a session.
type Recorder interface {
	LogConnection(ip string, port int, service string)
	LogCommand(ip string, port int, service string, text string)
	LogError(ip string, port int, message string)
}

// SessionRecorder is implemented by recorders that can tag everything
// recorded for one session with its id.
type SessionRecorder interface {
	ForSession(id string) Recorder
}

// PanicRecorder is implemented by recorders that keep the stack of a
// recovered panic. LogPanic is called from the deferred recover.
type PanicRecorder interface {
	LogPanic(ip string, port int, message string)
}

// ForSession returns the recorder for sess, r itself when r does not
// support sessions.
func ForSession(r Recorder, sess *Session) Recorder {
	if sr, ok := r.(SessionRecorder); ok {
		return sr.ForSession(sess.ID)
	}

	return r
}

// Profile is the text an emulator presents.
type Profile struct {
	Name   string
	Banner string
	Prompt string
	Delay  time.Duration
}

// Profiler is implemented by emulators that take a Profile.
type Profiler interface {
	SetProfile(Profile)
}

// WithRecorder sets the recorder of the emulator.
func WithRecorder(r Recorder) ServicerFunc {
	return func(s Servicer) error {
		s.SetRecorder(r)
		return nil
	}
}

// WithProfile sets the profile of emulators that support one.
func WithProfile(p Profile) ServicerFunc {
	return func(s Servicer) error {
		if ps, ok := s.(Profiler); ok {
			ps.SetProfile(p)
		}
		return nil
	}
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) LogConnection(string, int, string)      {}
func (discard) LogCommand(string, int, string, string) {}
func (discard) LogError(string, int, string)           {}

// emulator holds what every emulator shares.
type emulator struct {
	Profile

	rec Recorder
}

func (e *emulator) SetRecorder(r Recorder) {
	if r == nil {
		r = Discard
	}

	e.rec = r
}

func (e *emulator) SetProfile(p Profile) {
	e.Profile = p
}

func newEmulator(defaults Profile) emulator {
	return emulator{
		Profile: defaults,
		rec:     Discard,
	}
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
