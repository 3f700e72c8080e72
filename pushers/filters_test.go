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

package pushers

import (
	"errors"
	"testing"

	"github.com/nettrap/nettrap/event"
)

var (
	connection = event.New(
		event.Sensor("nettrap"),
		event.Category(event.CategoryConnection),
		event.Service("SSH"),
	)

	command = event.New(
		event.Sensor("nettrap"),
		event.Category(event.CategoryCommand),
		event.Service("FTP"),
	)

	heartbeat = event.New(
		event.Sensor("nettrap"),
		event.Category(event.CategoryHeartbeat),
	)
)

type collector struct {
	events []event.Event
}

func (c *collector) Send(e event.Event) {
	c.events = append(c.events, e)
}

func TestRegexFilter(t *testing.T) {
	fn, err := RegexFilterFunc("category", []string{"^conn", "^comm"})
	if err != nil {
		t.Fatal(err)
	}

	c := &collector{}
	ch := FilterChannel(c, fn)

	ch.Send(connection)
	ch.Send(command)
	ch.Send(heartbeat)

	if len(c.events) != 2 {
		t.Fatalf("Expected 2 events to pass, got %d", len(c.events))
	}
}

func TestRegexFilterInvalid(t *testing.T) {
	if _, err := RegexFilterFunc("category", []string{"("}); err == nil {
		t.Errorf("Expected error for invalid expression")
	}
}

func TestExcludeFilter(t *testing.T) {
	c := &collector{}
	ch := FilterChannel(c, ExcludeFilterFunc("category", event.CategoryHeartbeat))

	ch.Send(heartbeat)
	ch.Send(connection)

	if len(c.events) != 1 || c.events[0].Get("category") != event.CategoryConnection {
		t.Fatalf("Expected heartbeat to be dropped, got %d events", len(c.events))
	}
}

func TestFilterWrap(t *testing.T) {
	c := &collector{}

	ch, err := Filter{Categories: []string{"connection", "command"}, Services: []string{"^SSH$"}}.Wrap(c)
	if err != nil {
		t.Fatal(err)
	}

	ch.Send(connection)
	ch.Send(command)
	ch.Send(heartbeat)

	if len(c.events) != 1 || c.events[0].Get("service") != "SSH" {
		t.Fatalf("Expected only the SSH connection, got %d events", len(c.events))
	}
}

func TestTokenChannel(t *testing.T) {
	c := &collector{}

	TokenChannel(c, "abc").Send(event.New())

	if c.events[0].Get("token") != "abc" {
		t.Errorf("Expected token to be set")
	}
}

func TestUnknownChannel(t *testing.T) {
	if _, err := New("carrier-pigeon"); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Expected ErrUnknownChannel, got %v", err)
	}
}
