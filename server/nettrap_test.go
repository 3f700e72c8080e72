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
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nettrap/nettrap/config"
	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/eventlog"
	"github.com/nettrap/nettrap/pushers"
	"github.com/nettrap/nettrap/services"
)

// stalledRecorder blocks the first LogConnection until release is closed.
type stalledRecorder struct {
	recorder

	calls   int32
	stalled chan struct{}
	release chan struct{}
}

func (r *stalledRecorder) LogConnection(ip string, port int, service string) {
	if atomic.AddInt32(&r.calls, 1) == 1 {
		close(r.stalled)
		<-r.release
	}

	r.recorder.LogConnection(ip, port, service)
}

type panicServicer struct{}

func (panicServicer) Handle(context.Context, *services.Session) error {
	panic("emulator failed")
}

func (panicServicer) SetRecorder(services.Recorder) {}

func runDispatcher(t *testing.T, d *dispatcher) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	waitFor(t, "listener", func() bool {
		return d.Addr() != nil
	})

	return cancel
}

func TestDispatcherAcceptsWhileRecorderBlocks(t *testing.T) {
	port := freePort(t)

	rec := &stalledRecorder{
		stalled: make(chan struct{}),
		release: make(chan struct{}),
	}
	defer close(rec.release)

	d := newDispatcher(binding(port), services.Generic(services.WithRecorder(rec)), rec)

	cancel := runDispatcher(t, d)
	defer cancel()

	first, err := net.DialTimeout("tcp", d.Addr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}

	defer first.Close()

	select {
	case <-rec.stalled:
	case <-time.After(2 * time.Second):
		t.Fatalf("Expected first connection to be recorded")
	}

	if line := httpRequest(t, port); !strings.HasPrefix(line, "HTTP/1.1 200 OK") {
		t.Errorf("Expected second connection to be served, got %q", line)
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	port := freePort(t)

	var m sync.Mutex
	events := []event.Event{}

	el := eventlog.New(pushers.Func(func(e event.Event) {
		m.Lock()
		defer m.Unlock()

		events = append(events, e)
	}))

	d := newDispatcher(binding(port), panicServicer{}, el)

	cancel := runDispatcher(t, d)
	defer cancel()

	for i := 0; i < 2; i++ {
		conn, err := net.DialTimeout("tcp", d.Addr().String(), time.Second)
		if err != nil {
			t.Fatalf("Expected dispatcher to keep accepting: %s", err)
		}

		conn.SetDeadline(time.Now().Add(2 * time.Second))

		if _, err := conn.Read(make([]byte, 1)); err == nil {
			t.Errorf("Expected session to be closed after the panic")
		}

		conn.Close()
	}

	waitFor(t, "events", func() bool {
		m.Lock()
		defer m.Unlock()

		return len(events) == 4
	})

	m.Lock()
	defer m.Unlock()

	ids := map[string]int{}
	for _, e := range events {
		ids[e.Get("session-id")]++

		if e.Get("category") != event.CategoryError {
			continue
		}

		if e.Get("message") != d.service+" error: emulator failed" {
			t.Errorf("Unexpected message %q", e.Get("message"))
		}

		if !strings.Contains(e.Get("stacktrace"), "panicServicer") {
			t.Errorf("Expected stack of the panic, got %q", e.Get("stacktrace"))
		}
	}

	if len(ids) != 2 || ids[""] != 0 {
		t.Errorf("Expected two sessions of two events each, got %v", ids)
	}
}

func TestDispatcherFTPSession(t *testing.T) {
	port := freePort(t)
	rec := &recorder{}

	d := newDispatcher(binding(port), services.FTP(services.WithRecorder(rec)), rec)
	d.service = services.NameFTP

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	waitFor(t, "listener", func() bool {
		return d.Addr() != nil
	})

	conn, err := net.DialTimeout("tcp", d.Addr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}

	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))

	r := bufio.NewReader(conn)

	if line, err := r.ReadString('\n'); err != nil {
		t.Fatal(err)
	} else if !strings.HasPrefix(line, "220") {
		t.Errorf("Expected banner, got %q", line)
	}

	for _, exchange := range [][2]string{
		{"USER a", services.StatusUserOK},
		{"PASS b", services.StatusNotLoggedIn},
		{"QUIT", services.StatusClosing},
	} {
		fmt.Fprintf(conn, "%s\r\n", exchange[0])

		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("Expected reply to %s: %s", exchange[0], err)
		}

		if line != exchange[1]+"\r\n" {
			t.Errorf("Expected %q after %s, got %q", exchange[1], exchange[0], line)
		}
	}

	if _, err := r.ReadByte(); err != io.EOF {
		t.Errorf("Expected connection to be closed, got %v", err)
	}

	commands := rec.Commands()
	if len(commands) != 3 || commands[0] != "USER a" || commands[2] != "QUIT" {
		t.Errorf("Expected commands to be recorded, got %v", commands)
	}

	rec.m.Lock()
	if len(rec.connections) != 1 || !strings.HasSuffix(rec.connections[0], fmt.Sprintf(":%d:FTP", port)) {
		t.Errorf("Expected one FTP connection, got %v", rec.connections)
	}
	rec.m.Unlock()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean exit, got %s", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Dispatcher did not stop")
	}
}

func TestDispatcherSessionTimeout(t *testing.T) {
	port := freePort(t)
	rec := &recorder{}

	d := newDispatcher(binding(port), services.FTP(services.WithRecorder(rec)), rec)
	d.timeout = 100 * time.Millisecond

	go d.Run(context.Background())
	defer d.Stop()

	waitFor(t, "listener", func() bool {
		return d.Addr() != nil
	})

	conn, err := net.DialTimeout("tcp", d.Addr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}

	defer conn.Close()

	// idle peer, the session gives up after the timeout
	waitFor(t, "session timeout", func() bool {
		return len(rec.Errors()) > 0
	})

	if errors := rec.Errors(); !strings.Contains(errors[0], "timeout") {
		t.Errorf("Expected timeout error, got %v", errors)
	}
}

func TestNettrapRunStop(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	defer busy.Close()

	p1 := busy.Addr().(*net.TCPAddr).Port
	p2 := freePort(t)

	c := config.Default()
	c.Honeypot.Ports = []int{p1, p2}
	c.Honeypot.BindAddress = "127.0.0.1"
	c.Honeypot.CheckInterval = config.Delay(50 * time.Millisecond)

	srv, err := New(WithConfiguration(c))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(context.Background())
	}()

	waitFor(t, "listener", func() bool {
		return srv.Addr(p2) != nil
	})

	if line := httpRequest(t, p2); !strings.HasPrefix(line, "HTTP/1.1 200 OK") {
		t.Errorf("Expected port %d to serve, got %q", p2, line)
	}

	if srv.Addr(p1) != nil {
		t.Errorf("Expected port %d not to be listening", p1)
	}

	srv.Stop()
	srv.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean exit, got %s", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after stop")
	}

	if _, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", p2), time.Second); err == nil {
		t.Errorf("Expected socket to be closed")
	}
}

func TestNettrapStopBeforeRun(t *testing.T) {
	srv, err := New()
	if err != nil {
		t.Fatal(err)
	}

	srv.Stop()

	if err := srv.Run(context.Background()); err != nil {
		t.Errorf("Expected Run after Stop to return, got %s", err)
	}
}
