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

// Package eventlog records what the emulated services observe. Every call
// is written to the log and sent as an event to the bus.
package eventlog

import (
	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/pushers"
	"github.com/nettrap/nettrap/services"
	logging "github.com/op/go-logging"
	"github.com/rs/xid"
)

var log = logging.MustGetLogger("nettrap:eventlog")

// Sensor is the sensor name of all recorded events.
const Sensor = "nettrap"

// EventLog implements services.Recorder on top of a channel.
type EventLog struct {
	channel pushers.Channel

	options []event.Option
}

// New returns an EventLog sending to channel. The options are applied to
// every event.
func New(channel pushers.Channel, options ...event.Option) *EventLog {
	return &EventLog{
		channel: channel,
		options: options,
	}
}

// ForSession returns an EventLog that adds the session id to every event.
func (l *EventLog) ForSession(id string) services.Recorder {
	options := append([]event.Option{}, l.options...)

	return New(l.channel, append(options, event.SessionID(id))...)
}

func (l *EventLog) send(options ...event.Option) {
	e := event.New(
		event.Sensor(Sensor),
		event.Custom("id", xid.New().String()),
		event.NewWith(l.options...),
		event.NewWith(options...),
	)

	l.channel.Send(e)
}

// LogConnection records a new connection of ip to service on port.
func (l *EventLog) LogConnection(ip string, port int, service string) {
	log.Noticef("CONNECTION - %s connected to %s on port %d", ip, service, port)

	l.send(
		event.Category(event.CategoryConnection),
		event.ConnectionOpened,
		event.SeverityInfo,
		event.SourceIP(ip),
		event.DestinationPort(port),
		event.Service(service),
	)
}

// LogCommand records a line received from ip. The command is truncated to
// event.MaxCommandLength characters.
func (l *EventLog) LogCommand(ip string, port int, service string, text string) {
	log.Warningf("COMMAND - %s on %s:%d - %s", ip, service, port, event.Truncate(text, event.MaxCommandLength))

	l.send(
		event.Category(event.CategoryCommand),
		event.SessionCommand,
		event.SeverityInfo,
		event.SourceIP(ip),
		event.DestinationPort(port),
		event.Service(service),
		event.Command(text),
	)
}

// LogError records a failure on port, ip is "Unknown" when not related to a
// peer.
func (l *EventLog) LogError(ip string, port int, message string) {
	log.Errorf("ERROR - %s on port %d - %s", ip, port, message)

	l.send(
		event.Category(event.CategoryError),
		event.SessionError,
		event.SeverityError,
		event.SourceIP(ip),
		event.DestinationPort(port),
		event.Message("%s", message),
	)
}

// LogPanic records a recovered panic together with the stack it was raised
// on. It must be called from the deferred function that recovered.
func (l *EventLog) LogPanic(ip string, port int, message string) {
	log.Errorf("ERROR - %s on port %d - %s", ip, port, message)

	l.send(
		event.Category(event.CategoryError),
		event.SessionError,
		event.SeverityError,
		event.SourceIP(ip),
		event.DestinationPort(port),
		event.Message("%s", message),
		event.Stack(),
	)
}
