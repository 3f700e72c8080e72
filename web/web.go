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

// Package web serves the attack map: a dashboard of the most recent
// connections and commands, a json api and a live websocket feed.
package web

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gorilla/websocket"
	"github.com/nettrap/nettrap/cmd"
	"github.com/nettrap/nettrap/event"
	logging "github.com/op/go-logging"
)

var log = logging.MustGetLogger("nettrap:web")

// Config holds the dashboard settings.
type Config struct {
	Enabled       bool   `toml:"enabled"`
	ListenAddress string `toml:"listen"`

	// GeoIP is the path of a GeoLite2 City database, relative paths are
	// taken from the data directory.
	GeoIP string `toml:"geoip"`

	MaxAttacks int `toml:"max_attacks"`
}

// Web is the attack map. It receives events as a channel.
type Web struct {
	Config

	dataDir string

	start time.Time

	attacks *AttackMap
	locator *locator

	server   *http.Server
	listener net.Listener

	messageCh chan json.Marshaler

	// Registered connections.
	connections map[*connection]bool

	// Register requests from the connections.
	register chan *connection

	// Unregister requests from connections.
	unregister chan *connection

	runOnce   sync.Once
	closeOnce sync.Once
	quit      chan struct{}
}

// WithConfig decodes the web configuration section.
func WithConfig(c toml.Primitive) func(*Web) error {
	return func(w *Web) error {
		return toml.PrimitiveDecode(c, &w.Config)
	}
}

// WithDataDir sets the directory relative geoip paths are resolved in.
func WithDataDir(dir string) func(*Web) error {
	return func(w *Web) error {
		w.dataDir = dir
		return nil
	}
}

// New returns a Web with the options applied.
func New(options ...func(*Web) error) (*Web, error) {
	w := &Web{
		Config: Config{
			Enabled:       true,
			ListenAddress: "127.0.0.1:5000",
			MaxAttacks:    DefaultMaxAttacks,
		},

		start: time.Now(),

		messageCh: make(chan json.Marshaler, 100),

		register:    make(chan *connection),
		unregister:  make(chan *connection),
		connections: make(map[*connection]bool),

		quit: make(chan struct{}),
	}

	for _, optionFn := range options {
		if err := optionFn(w); err != nil {
			return nil, err
		}
	}

	path := w.GeoIP
	if path != "" && !filepath.IsAbs(path) && w.dataDir != "" {
		path = filepath.Join(w.dataDir, path)
	}

	l, err := openLocator(path)
	if err != nil {
		return nil, err
	}

	w.locator = l
	w.attacks = NewAttackMap(w.MaxAttacks)

	return w, nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope of everything sent on the live feed.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (msg Message) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{}
	m["type"] = msg.Type
	m["data"] = msg.Data
	return json.Marshal(m)
}

// Data returns a message of type typ.
func Data(typ string, data interface{}) json.Marshaler {
	return &Message{
		Type: typ,
		Data: data,
	}
}

// Metadata describes the running sensor.
type Metadata struct {
	Start         time.Time `json:"start"`
	Version       string    `json:"version"`
	ShortCommitID string    `json:"shortcommitid"`
}

// Handler returns the handler serving the dashboard.
func (w *Web) Handler() http.Handler {
	w.runOnce.Do(func() {
		go w.run()
	})

	handler := http.NewServeMux()
	handler.HandleFunc("/", w.serveIndex)
	handler.HandleFunc("/api/attacks", w.serveAttacks)
	handler.HandleFunc("/api/stats", w.serveStats)
	handler.HandleFunc("/ws", w.ServeWS)
	return handler
}

// Start binds the listen address and serves the dashboard in the
// background.
func (w *Web) Start() error {
	l, err := net.Listen("tcp", w.ListenAddress)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", w.ListenAddress, err)
	}

	w.listener = l
	w.server = &http.Server{
		Handler: w.Handler(),
	}

	go func() {
		log.Infof("Web interface started: http://%s/", l.Addr())

		if err := w.server.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Errorf("Web interface stopped: %s", err.Error())
		}
	}()

	return nil
}

// Addr returns the address the dashboard listens on, nil when not started.
func (w *Web) Addr() net.Addr {
	if w.listener == nil {
		return nil
	}

	return w.listener.Addr()
}

// Close stops serving and disconnects the live feed clients.
func (w *Web) Close() error {
	var err error

	w.closeOnce.Do(func() {
		close(w.quit)

		if w.server != nil {
			err = w.server.Close()
		}

		if lerr := w.locator.Close(); err == nil {
			err = lerr
		}
	})

	return err
}

func (w *Web) run() {
	for {
		select {
		case c := <-w.register:
			w.connections[c] = true
		case c := <-w.unregister:
			if _, ok := w.connections[c]; ok {
				delete(w.connections, c)

				close(c.send)
			}
		case msg := <-w.messageCh:
			for c := range w.connections {
				select {
				case c.send <- msg:
				default:
					delete(w.connections, c)

					close(c.send)
				}
			}
		case <-w.quit:
			for c := range w.connections {
				delete(w.connections, c)

				close(c.send)
			}

			return
		}
	}
}

// Send adds connection and command events to the attack map and forwards
// them to the live feed.
func (w *Web) Send(e event.Event) {
	switch e.Get("category") {
	case event.CategoryConnection, event.CategoryCommand:
	default:
		return
	}

	a := w.attack(e)
	w.attacks.Add(a)

	select {
	case w.messageCh <- Data("attack", a):
	case <-w.quit:
	default:
		log.Debugf("Live feed is full, dropping attack of %s", a.IP)
	}
}

func (w *Web) attack(e event.Event) Attack {
	ip := e.Get("source-ip")
	loc := w.locator.Locate(ip)

	a := Attack{
		IP:           ip,
		Port:         e.GetInt("destination-port"),
		Service:      e.Get("service"),
		Timestamp:    e.Date().Format(TimeFormat),
		Location:     loc.Name,
		LocationType: loc.Type,
		Lat:          loc.Lat,
		Lon:          loc.Lon,
	}

	if e.Has("command") {
		command := event.Truncate(e.Get("command"), event.MaxCommandLength)
		a.Command = &command
	}

	return a
}

func (w *Web) serveIndex(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(rw, r)
		return
	}

	stats := w.attacks.Stats()

	p := page{
		Stats:    stats,
		Services: w.attacks.Services(),
		Attacks:  w.attacks.Last(recentAttacks),
		Targeted: len(stats.PortsTargeted),
	}

	rw.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := indexTemplate.Execute(rw, p); err != nil {
		log.Errorf("Error rendering index: %s", err.Error())
	}
}

func (w *Web) serveAttacks(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(rw, w.attacks.All())
	case http.MethodDelete:
		w.attacks.Clear()
		rw.WriteHeader(http.StatusNoContent)
	default:
		http.Error(rw, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (w *Web) serveStats(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, w.attacks.Stats())
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Errorf("Error encoding response: %s", err.Error())
	}
}

// ServeWS upgrades the request to a live feed. The client first receives the
// metadata and the kept attacks, then every new attack.
func (w *Web) ServeWS(rw http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Errorf("Could not upgrade connection: %s", err.Error())
		return
	}

	c := &connection{
		ws:   ws,
		send: make(chan json.Marshaler, 100),
	}

	c.send <- Data("metadata", Metadata{
		Start:         w.start,
		Version:       cmd.Version,
		ShortCommitID: cmd.ShortCommitID,
	})

	c.send <- Data("attacks", w.attacks.Last(recentAttacks))

	select {
	case w.register <- c:
	case <-w.quit:
		ws.Close()
		return
	}

	log.Debug("Connection upgraded.")

	defer func() {
		select {
		case w.unregister <- c:
		case <-w.quit:
		}

		ws.Close()

		log.Debug("Connection closed")
	}()

	go c.writePump()
	c.readPump()
}
