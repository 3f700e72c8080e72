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
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nettrap/nettrap/listener"
	"github.com/nettrap/nettrap/services"
	"github.com/nettrap/nettrap/utils"
	"golang.org/x/time/rate"
)

// dispatcher owns the listening socket of a single port. It accepts
// connections and hands each of them to the emulator on its own goroutine.
type dispatcher struct {
	binding listener.Binding
	service string

	servicer services.Servicer
	recorder services.Recorder

	// maxSessions caps concurrently handled connections, 0 is unlimited.
	maxSessions int

	// timeout bounds every read and write of a session, 0 disables it.
	timeout time.Duration

	m        sync.Mutex
	l        net.Listener
	stopping bool
}

func newDispatcher(b listener.Binding, servicer services.Servicer, recorder services.Recorder) *dispatcher {
	return &dispatcher{
		binding:  b,
		service:  services.NameForPort(b.Port),
		servicer: servicer,
		recorder: recorder,
	}
}

// Run binds the port and accepts connections until the dispatcher is
// stopped, ctx is done or the listening socket fails.
func (d *dispatcher) Run(ctx context.Context) error {
	l, err := listener.Listen(d.binding)
	if err != nil {
		d.recorder.LogError("Unknown", d.binding.Port, fmt.Sprintf("Port listener error: %s", err))
		return err
	}

	l = listener.Limit(l, d.maxSessions)

	d.m.Lock()
	if d.stopping {
		d.m.Unlock()
		l.Close()
		return nil
	}

	d.l = l
	d.m.Unlock()

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			d.Stop()
		case <-done:
		}
	}()

	defer l.Close()

	log.Infof("Listening on %s port %d", d.service, d.binding.Port)

	// accept errors are retried at most ten times per second
	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 1)

	for {
		conn, err := l.Accept()
		if err == nil {
			d.handle(conn)
			continue
		}

		if d.isStopping() {
			return nil
		}

		d.recorder.LogError("Unknown", d.binding.Port, fmt.Sprintf("Socket accept error: %s", err))

		if ne, ok := err.(net.Error); !ok || !ne.Temporary() {
			return err
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
	}
}

func (d *dispatcher) handle(conn net.Conn) {
	if d.timeout > 0 {
		conn = TimeoutConn(conn, d.timeout)
	}

	sess := services.NewSession(conn, d.binding.Port, d.service)

	go func() {
		defer sess.Close()

		rec := services.ForSession(d.recorder, sess)

		defer utils.RecoverHandler(func(r interface{}) {
			message := fmt.Sprintf("%s error: %v", sess.Service, r)

			if pr, ok := rec.(services.PanicRecorder); ok {
				pr.LogPanic(sess.IP, sess.Port, message)
				return
			}

			rec.LogError(sess.IP, sess.Port, message)
		})

		// the accept loop never waits on the recorder
		rec.LogConnection(sess.IP, sess.Port, sess.Service)

		log.Debugf("Handling connection for %s => %s %s", conn.RemoteAddr(), conn.LocalAddr(), sess.Service)
		defer log.Debugf("Disconnected connection for %s => %s", conn.RemoteAddr(), conn.LocalAddr())

		if err := d.servicer.Handle(context.Background(), sess); err != nil {
			rec.LogError(sess.IP, sess.Port, fmt.Sprintf("%s error: %s", sess.Service, err))
		}
	}()
}

func (d *dispatcher) isStopping() bool {
	d.m.Lock()
	defer d.m.Unlock()

	return d.stopping
}

// Addr returns the address the dispatcher listens on, nil when not
// listening.
func (d *dispatcher) Addr() net.Addr {
	d.m.Lock()
	defer d.m.Unlock()

	if d.l == nil {
		return nil
	}

	return d.l.Addr()
}

// Stop closes the listening socket. Sessions in progress run to completion.
func (d *dispatcher) Stop() error {
	d.m.Lock()
	defer d.m.Unlock()

	if d.stopping {
		return nil
	}

	d.stopping = true

	if d.l == nil {
		return nil
	}

	return d.l.Close()
}
