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
	"context"
	"sync"
	"time"

	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/listener"
	"github.com/nettrap/nettrap/pushers"
	"github.com/nettrap/nettrap/services"
)

// task is a running dispatcher. A task is never restarted, a dead task is
// replaced by a new one.
type task struct {
	binding    listener.Binding
	dispatcher *dispatcher

	done chan struct{}
	err  error
}

func (t *task) alive() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// supervisor keeps one dispatcher running per port.
type supervisor struct {
	bindings []listener.Binding
	interval time.Duration

	newDispatcher func(listener.Binding) *dispatcher

	channel pushers.Channel

	m       sync.Mutex
	tasks   map[int]*task
	stopped bool
	quit    chan struct{}
	halted  chan struct{}
}

func newSupervisor(bindings []listener.Binding, interval time.Duration, fn func(listener.Binding) *dispatcher, channel pushers.Channel) *supervisor {
	return &supervisor{
		bindings:      bindings,
		interval:      interval,
		newDispatcher: fn,
		channel:       channel,
		tasks:         map[int]*task{},
		quit:          make(chan struct{}),
		halted:        make(chan struct{}),
	}
}

func (s *supervisor) start(ctx context.Context, b listener.Binding) *task {
	t := &task{
		binding:    b,
		dispatcher: s.newDispatcher(b),
		done:       make(chan struct{}),
	}

	go func() {
		defer close(t.done)

		t.err = t.dispatcher.Run(ctx)
		if t.err != nil {
			log.Errorf("Listener for port %d ended: %s", b.Port, t.err)
		}
	}()

	return t
}

func (s *supervisor) listenerEvent(b listener.Binding, opt event.Option) {
	s.channel.Send(event.New(
		event.Sensor("listener"),
		event.Category(event.CategoryListener),
		opt,
		event.DestinationPort(b.Port),
		event.Service(services.NameForPort(b.Port)),
		event.Custom("address", b.String()),
	))
}

// Run starts a dispatcher for every binding and replaces dead dispatchers
// every interval, until ctx is done or Stop is called. On return all
// listening sockets are closed.
func (s *supervisor) Run(ctx context.Context) error {
	s.m.Lock()
	if s.stopped {
		s.m.Unlock()
		return nil
	}

	for _, b := range s.bindings {
		if _, ok := s.tasks[b.Port]; ok {
			log.Warningf("Port %d configured twice, ignoring", b.Port)
			continue
		}

		s.tasks[b.Port] = s.start(ctx, b)
		s.listenerEvent(b, event.ListenerStarted)
	}
	s.m.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			<-s.halted
			return nil
		case <-s.quit:
			<-s.halted
			return nil
		case <-ticker.C:
			if !s.check(ctx) {
				<-s.halted
				return nil
			}
		}
	}
}

// check replaces the dead tasks, it returns false once stopped.
func (s *supervisor) check(ctx context.Context) bool {
	s.m.Lock()
	defer s.m.Unlock()

	if s.stopped {
		return false
	}

	for port, t := range s.tasks {
		if t.alive() {
			continue
		}

		log.Warningf("Listener for port %d died, restarting...", port)

		s.tasks[port] = s.start(ctx, t.binding)
		s.listenerEvent(t.binding, event.ListenerRestarted)
	}

	return true
}

// Stop stops all dispatchers and waits until their sockets are closed.
// Stopping twice is a no-op.
func (s *supervisor) Stop() {
	s.m.Lock()
	if s.stopped {
		s.m.Unlock()
		return
	}

	s.stopped = true
	close(s.quit)

	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.m.Unlock()

	for _, t := range tasks {
		t.dispatcher.Stop()
	}

	for _, t := range tasks {
		<-t.done
		s.listenerEvent(t.binding, event.ListenerStopped)
	}

	close(s.halted)
}

// task returns the current task of port.
func (s *supervisor) task(port int) *task {
	s.m.Lock()
	defer s.m.Unlock()

	return s.tasks[port]
}
