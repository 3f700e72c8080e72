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
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	isatty "github.com/mattn/go-isatty"

	"github.com/nettrap/nettrap/cmd"
	"github.com/nettrap/nettrap/config"
	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/eventlog"
	"github.com/nettrap/nettrap/listener"
	"github.com/nettrap/nettrap/pushers"
	"github.com/nettrap/nettrap/pushers/eventbus"
	"github.com/nettrap/nettrap/server/profiler"
	"github.com/nettrap/nettrap/services"
	"github.com/nettrap/nettrap/web"

	_ "github.com/nettrap/nettrap/pushers/bolt"
	_ "github.com/nettrap/nettrap/pushers/console"
	_ "github.com/nettrap/nettrap/pushers/elasticsearch"
	_ "github.com/nettrap/nettrap/pushers/file"
	_ "github.com/nettrap/nettrap/pushers/kafka"
	_ "github.com/nettrap/nettrap/pushers/rabbitmq"
	_ "github.com/nettrap/nettrap/pushers/splunk"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("nettrap:server")

const heartbeatInterval = 30 * time.Second

// Nettrap coordinates the listeners, the emulated services and the delivery
// of the recorded events.
type Nettrap struct {
	config *config.Config

	profiler profiler.Profiler

	bus *eventbus.EventBus

	token string

	dataDir string

	m          sync.Mutex
	started    bool
	supervisor *supervisor

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New returns a new instance of a Nettrap struct.
func New(options ...OptionFn) (*Nettrap, error) {
	h := &Nettrap{
		config:   config.Default(),
		bus:      eventbus.New(),
		profiler: profiler.Dummy(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, fn := range options {
		if err := fn(h); err != nil {
			return nil, err
		}
	}

	if h.config == nil {
		h.config = config.Default()
	}

	return h, nil
}

// IsTerminal returns true when f is a terminal.
func IsTerminal(f *os.File) bool {
	if isatty.IsTerminal(f.Fd()) {
		return true
	} else if isatty.IsCygwinTerminal(f.Fd()) {
		return true
	}

	return false
}

func (hc *Nettrap) banner() {
	if IsTerminal(os.Stdout) {
		fmt.Println(color.YellowString(`
 _   _      _  _____
| \ | | ___| ||_   _| __ __ _ _ __
|  \| |/ _ \ __|| || '__/ _' | '_ \
| |\  |  __/ |_ | || | | (_| | |_) |
|_| \_|\___|\__||_||_|  \__,_| .__/
                             |_|
`))
	}

	fmt.Println(color.YellowString("NetTrap starting (%s)...", hc.token))
	fmt.Println(color.YellowString("Version: %s (%s)", cmd.Version, cmd.ShortCommitID))
}

func (hc *Nettrap) heartbeat(ctx context.Context) {
	beat := time.NewTicker(heartbeatInterval)
	defer beat.Stop()

	count := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-beat.C:
		}

		log.Debug("Yep, still alive")

		hc.bus.Send(event.New(
			event.Sensor(eventlog.Sensor),
			event.Category(event.CategoryHeartbeat),
			event.SeverityInfo,
			event.Custom("sequence", count),
		))

		count++
	}
}

// channels creates the configured channels and subscribes them to the bus
// through their filters. The subscribed channels are returned.
func (hc *Nettrap) channels() []pushers.Channel {
	channels := map[string]pushers.Channel{}
	isChannelUsed := make(map[string]bool)

	for key, s := range hc.config.Channels {
		x := struct {
			Type string `toml:"type"`
		}{}

		if err := hc.config.PrimitiveDecode(s, &x); err != nil {
			log.Errorf("Error parsing configuration of channel %s: %s", key, err.Error())
			continue
		}

		if x.Type == "" {
			log.Errorf("Error parsing configuration of channel %s: type not set", key)
			continue
		}

		d, err := pushers.New(x.Type, pushers.WithConfig(s))
		if err != nil {
			log.Errorf("Error initializing channel %s(%s): %s", key, x.Type, err)
			continue
		}

		channels[key] = d
		isChannelUsed[key] = false
	}

	for _, s := range hc.config.Filters {
		var f pushers.Filter

		if err := hc.config.PrimitiveDecode(s, &f); err != nil {
			log.Errorf("Error parsing configuration of filter: %s", err.Error())
			continue
		}

		for _, name := range f.Channels {
			channel, ok := channels[name]
			if !ok {
				log.Errorf("Could not find channel %s for filter", name)
				continue
			}

			isChannelUsed[name] = true
			channel = pushers.TokenChannel(channel, hc.token)

			channel, err := f.Wrap(channel)
			if err != nil {
				log.Errorf("Error parsing filter of channel %s: %s", name, err.Error())
				continue
			}

			if err := hc.bus.Subscribe(channel); err != nil {
				log.Errorf("Could not add channel %s to bus: %s", name, err.Error())
			}
		}
	}

	used := []pushers.Channel{}

	for name, isUsed := range isChannelUsed {
		if isUsed {
			used = append(used, channels[name])
			continue
		}

		log.Warningf("Channel %s is unused. Did you forget to add a filter?", name)

		if err := pushers.Close(channels[name]); err != nil {
			log.Errorf("Error closing channel %s: %s", name, err.Error())
		}
	}

	return used
}

// profile returns the text the emulator of the logical service presents.
func (hc *Nettrap) profile(name string) (services.Profile, bool) {
	s, ok := hc.config.Services[services.EmulatorFor(name)]
	if !ok {
		return services.Profile{}, false
	}

	p := services.Profile{
		Name:   name,
		Banner: s.Banner,
		Prompt: s.Prompt,
		Delay:  hc.config.Honeypot.BannerDelay.Duration(),
	}

	if s.Delay != nil {
		p.Delay = s.Delay.Duration()
	}

	return p, true
}

func (hc *Nettrap) newDispatcher(recorder services.Recorder) func(listener.Binding) *dispatcher {
	return func(b listener.Binding) *dispatcher {
		name := services.NameForPort(b.Port)

		options := []services.ServicerFunc{
			services.WithRecorder(recorder),
		}

		if p, ok := hc.profile(name); ok {
			options = append(options, services.WithProfile(p))
		}

		d := newDispatcher(b, services.New(name, options...), recorder)
		d.maxSessions = hc.config.Honeypot.MaxSessions
		d.timeout = hc.config.Honeypot.SessionTimeout.Duration()
		return d
	}
}

func (hc *Nettrap) bindings() []listener.Binding {
	bindings := make([]listener.Binding, 0, len(hc.config.Honeypot.Ports))

	for _, port := range hc.config.Honeypot.Ports {
		bindings = append(bindings, listener.Binding{
			Port:    port,
			Address: hc.config.Honeypot.BindAddress,
			Backlog: hc.config.Honeypot.MaxConnections,
		})
	}

	return bindings
}

func (hc *Nettrap) startWeb() (*web.Web, error) {
	if !hc.config.IsDefined("web") {
		return nil, nil
	}

	w, err := web.New(
		web.WithConfig(hc.config.Web),
		web.WithDataDir(hc.dataDir),
	)
	if err != nil {
		return nil, err
	}

	if !w.Enabled {
		return nil, nil
	}

	if err := w.Start(); err != nil {
		return nil, err
	}

	hc.bus.Subscribe(pushers.FilterChannel(w, pushers.ExcludeFilterFunc("category", event.CategoryHeartbeat)))
	return w, nil
}

// Run starts the listeners and blocks until ctx is done or Stop is called.
// All listening sockets are closed when Run returns.
func (hc *Nettrap) Run(ctx context.Context) error {
	hc.m.Lock()
	if hc.started {
		hc.m.Unlock()
		return fmt.Errorf("already running")
	}

	hc.started = true
	hc.m.Unlock()

	select {
	case <-hc.stop:
		close(hc.done)
		return nil
	default:
	}

	defer close(hc.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-hc.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	hc.banner()

	log.Debugf("Using datadir: %s", hc.dataDir)

	if err := hc.config.Validate(); err != nil {
		log.Warningf("Configuration: %s", err.Error())
	}

	hc.profiler.Start()
	defer hc.profiler.Stop()

	channels := hc.channels()

	w, err := hc.startWeb()
	if err != nil {
		log.Errorf("Error starting web interface: %s", err.Error())
	}

	go hc.heartbeat(ctx)

	s := newSupervisor(
		hc.bindings(),
		hc.config.Honeypot.CheckInterval.Duration(),
		hc.newDispatcher(eventlog.New(hc.bus)),
		hc.bus,
	)

	hc.m.Lock()
	hc.supervisor = s
	hc.m.Unlock()

	err = s.Run(ctx)

	// sessions still in progress no longer deliver events
	hc.bus.Close()

	for _, c := range channels {
		if err := pushers.Close(c); err != nil {
			log.Errorf("Error closing channel: %s", err.Error())
		}
	}

	if w != nil {
		w.Close()
	}

	return err
}

// Addr returns the address of the listener of port, nil when it is not
// listening.
func (hc *Nettrap) Addr(port int) net.Addr {
	hc.m.Lock()
	s := hc.supervisor
	hc.m.Unlock()

	if s == nil {
		return nil
	}

	t := s.task(port)
	if t == nil {
		return nil
	}

	return t.dispatcher.Addr()
}

// Stop stops the server and waits until every listening socket is closed.
// Calling Stop more than once is a no-op.
func (hc *Nettrap) Stop() {
	hc.stopOnce.Do(func() {
		close(hc.stop)

		hc.m.Lock()
		started := hc.started
		hc.m.Unlock()

		if started {
			<-hc.done
		}

		fmt.Println(color.YellowString("NetTrap stopped."))
	})
}
