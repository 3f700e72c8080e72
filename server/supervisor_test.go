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
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/listener"
	"github.com/nettrap/nettrap/pushers"
	"github.com/nettrap/nettrap/services"
)

type recorder struct {
	m sync.Mutex

	connections []string
	commands    []string
	errors      []string
}

func (r *recorder) LogConnection(ip string, port int, service string) {
	r.m.Lock()
	defer r.m.Unlock()

	r.connections = append(r.connections, fmt.Sprintf("%s:%d:%s", ip, port, service))
}

func (r *recorder) LogCommand(ip string, port int, service string, text string) {
	r.m.Lock()
	defer r.m.Unlock()

	r.commands = append(r.commands, text)
}

func (r *recorder) LogError(ip string, port int, message string) {
	r.m.Lock()
	defer r.m.Unlock()

	r.errors = append(r.errors, message)
}

func (r *recorder) Errors() []string {
	r.m.Lock()
	defer r.m.Unlock()

	return append([]string{}, r.errors...)
}

func (r *recorder) Commands() []string {
	r.m.Lock()
	defer r.m.Unlock()

	return append([]string{}, r.commands...)
}

// kill closes the listening socket without stopping the dispatcher.
func (d *dispatcher) kill() {
	d.m.Lock()
	defer d.m.Unlock()

	if d.l != nil {
		d.l.Close()
	}
}

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func waitFor(t *testing.T, what string, fn func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("Timeout waiting for %s", what)
}

func binding(port int) listener.Binding {
	return listener.Binding{
		Port:    port,
		Address: "127.0.0.1",
		Backlog: 10,
	}
}

func listening(s *supervisor, port int) func() bool {
	return func() bool {
		t := s.task(port)
		return t != nil && t.alive() && t.dispatcher.Addr() != nil
	}
}

func httpRequest(t *testing.T, port int) string {
	t.Helper()

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		t.Fatalf("Could not connect to port %d: %s", port, err)
	}

	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := conn.Write([]byte("GET / HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatal(err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("Expected response from port %d: %s", port, err)
	}

	return line
}

func TestSupervisorRestartsKilledListener(t *testing.T) {
	p1, p2 := freePort(t), freePort(t)

	rec := &recorder{}
	events := []event.Event{}
	var em sync.Mutex

	s := newSupervisor(
		[]listener.Binding{binding(p1), binding(p2)},
		50*time.Millisecond,
		func(b listener.Binding) *dispatcher {
			return newDispatcher(b, services.Generic(services.WithRecorder(rec)), rec)
		},
		pushers.Func(func(e event.Event) {
			em.Lock()
			defer em.Unlock()

			events = append(events, e)
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	waitFor(t, "listeners", func() bool {
		return listening(s, p1)() && listening(s, p2)()
	})

	killed := s.task(p1)
	other := s.task(p2)

	killed.dispatcher.kill()

	waitFor(t, "restart", func() bool {
		return s.task(p1) != killed && listening(s, p1)()
	})

	if s.task(p2) != other {
		t.Errorf("Expected listener of port %d to be untouched", p2)
	}

	if line := httpRequest(t, p1); !strings.HasPrefix(line, "HTTP/1.1 200 OK") {
		t.Errorf("Expected restarted listener to serve, got %q", line)
	}

	if errors := rec.Errors(); len(errors) == 0 || !strings.HasPrefix(errors[0], "Socket accept error") {
		t.Errorf("Expected accept error to be recorded, got %v", errors)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean exit, got %s", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Supervisor did not stop")
	}

	em.Lock()
	defer em.Unlock()

	restarted := 0
	for _, e := range events {
		if e.Get("type") == "LISTENER:RESTARTED" && e.GetInt("destination-port") == p1 {
			restarted++
		}
	}

	if restarted != 1 {
		t.Errorf("Expected one restart event, got %d", restarted)
	}
}

func TestSupervisorBindFailureIsolated(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	defer busy.Close()

	p1 := busy.Addr().(*net.TCPAddr).Port
	p2 := freePort(t)

	rec := &recorder{}

	s := newSupervisor(
		[]listener.Binding{binding(p1), binding(p2)},
		time.Hour,
		func(b listener.Binding) *dispatcher {
			return newDispatcher(b, services.Generic(), rec)
		},
		pushers.Func(func(event.Event) {}),
	)

	go s.Run(context.Background())
	defer s.Stop()

	waitFor(t, "bind failure", func() bool {
		tk := s.task(p1)
		return tk != nil && !tk.alive()
	})

	waitFor(t, "listener", listening(s, p2))

	if line := httpRequest(t, p2); !strings.HasPrefix(line, "HTTP/1.1 200 OK") {
		t.Errorf("Expected port %d to serve, got %q", p2, line)
	}

	if errors := rec.Errors(); len(errors) != 1 || !strings.HasPrefix(errors[0], "Port listener error") {
		t.Errorf("Expected bind error to be recorded, got %v", errors)
	}
}

func TestSupervisorStopTwice(t *testing.T) {
	port := freePort(t)

	s := newSupervisor(
		[]listener.Binding{binding(port)},
		time.Hour,
		func(b listener.Binding) *dispatcher {
			return newDispatcher(b, services.Generic(), services.Discard)
		},
		pushers.Func(func(event.Event) {}),
	)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background())
	}()

	waitFor(t, "listener", listening(s, port))

	s.Stop()
	s.Stop()

	if _, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second); err == nil {
		t.Errorf("Expected socket to be closed")
	}

	if s.task(port).alive() {
		t.Errorf("Expected dispatcher to be stopped")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean exit, got %s", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Supervisor did not return after stop")
	}
}

func TestSupervisorRetriesFailedBind(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	port := busy.Addr().(*net.TCPAddr).Port

	rec := &recorder{}

	s := newSupervisor(
		[]listener.Binding{binding(port)},
		50*time.Millisecond,
		func(b listener.Binding) *dispatcher {
			return newDispatcher(b, services.Generic(), rec)
		},
		pushers.Func(func(event.Event) {}),
	)

	go s.Run(context.Background())
	defer s.Stop()

	waitFor(t, "bind failure", func() bool {
		return len(rec.Errors()) > 0
	})

	busy.Close()

	waitFor(t, "listener after port was freed", listening(s, port))

	if line := httpRequest(t, port); !strings.HasPrefix(line, "HTTP/1.1 200 OK") {
		t.Errorf("Expected port %d to serve once freed, got %q", port, line)
	}

	for _, e := range rec.Errors() {
		if !strings.HasPrefix(e, "Port listener error") {
			t.Errorf("Unexpected error %q", e)
		}
	}
}
