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

package eventlog

import (
	"strings"
	"testing"

	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/pushers"
	"github.com/nettrap/nettrap/services"
)

var _ services.Recorder = (*EventLog)(nil)

func collect() (pushers.Channel, *[]event.Event) {
	events := []event.Event{}

	return pushers.Func(func(e event.Event) {
		events = append(events, e)
	}), &events
}

func TestLogConnection(t *testing.T) {
	ch, events := collect()

	New(ch, event.Token("t1")).LogConnection("203.0.113.5", 22, "SSH")

	if len(*events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(*events))
	}

	e := (*events)[0]

	if e.Get("category") != event.CategoryConnection {
		t.Errorf("Expected connection category, got %s", e.Get("category"))
	}

	if e.Get("source-ip") != "203.0.113.5" || e.GetInt("destination-port") != 22 || e.Get("service") != "SSH" {
		t.Errorf("Unexpected event values: %v", event.ToMap(e))
	}

	if e.Get("sensor") != Sensor || e.Get("token") != "t1" || e.Get("id") == "" {
		t.Errorf("Expected sensor, token and id to be set: %v", event.ToMap(e))
	}
}

func TestLogCommandTruncates(t *testing.T) {
	ch, events := collect()

	New(ch).LogCommand("203.0.113.5", 21, "FTP", strings.Repeat("A", 150))

	e := (*events)[0]

	if c := e.Get("command"); c != strings.Repeat("A", 100)+"..." {
		t.Errorf("Expected truncated command, got %d characters", len(c))
	}

	if e.GetInt("command-length") != 150 {
		t.Errorf("Expected original length to be kept")
	}
}

func TestLogError(t *testing.T) {
	ch, events := collect()

	New(ch).LogError("Unknown", 8080, "Socket accept error: too many open files")

	e := (*events)[0]

	if e.Get("category") != event.CategoryError || e.Get("severity") != "error" {
		t.Errorf("Expected error event, got %v", event.ToMap(e))
	}

	if e.Get("message") != "Socket accept error: too many open files" || e.Get("source-ip") != "Unknown" {
		t.Errorf("Unexpected event values: %v", event.ToMap(e))
	}

	if e.Has("service") {
		t.Errorf("Expected no service on error events")
	}
}

func TestForSessionTagsEvents(t *testing.T) {
	ch, events := collect()

	l := New(ch, event.Token("t1"))

	rec := l.ForSession("bq1ctkfcte4s7l0ihcc0")
	rec.LogConnection("203.0.113.5", 23, "TELNET")
	rec.LogCommand("203.0.113.5", 23, "TELNET", "root")

	l.LogConnection("203.0.113.6", 23, "TELNET")

	if len(*events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(*events))
	}

	for _, e := range (*events)[:2] {
		if e.Get("session-id") != "bq1ctkfcte4s7l0ihcc0" || e.Get("token") != "t1" {
			t.Errorf("Expected session id and token, got %v", event.ToMap(e))
		}
	}

	if (*events)[2].Has("session-id") {
		t.Errorf("Expected the parent log not to tag events")
	}
}

func TestLogPanicKeepsStack(t *testing.T) {
	ch, events := collect()

	l := New(ch)

	func() {
		defer func() {
			if r := recover(); r != nil {
				l.LogPanic("203.0.113.5", 80, "HTTP error: boom")
			}
		}()

		panicking()
	}()

	if len(*events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(*events))
	}

	e := (*events)[0]

	if e.Get("category") != event.CategoryError || e.Get("message") != "HTTP error: boom" {
		t.Errorf("Unexpected event values: %v", event.ToMap(e))
	}

	if !strings.Contains(e.Get("stacktrace"), "panicking") {
		t.Errorf("Expected the stack of the panic, got %q", e.Get("stacktrace"))
	}
}

func panicking() {
	panic("boom")
}
