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

package splunk

import (
	"crypto/tls"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	hec "github.com/fuyufjh/splunk-hec-go"

	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/pushers"

	logging "github.com/op/go-logging"
)

var (
	_ = pushers.Register("splunk", New)
)

var log = logging.MustGetLogger("nettrap:channels:splunk")

var (
	// ErrEndpointsNotSet is returned when no collector endpoint is configured.
	ErrEndpointsNotSet = errors.New("splunk endpoints have not been set")
	// ErrTokenNotSet is returned when no collector token is configured.
	ErrTokenNotSet = errors.New("splunk token has not been set")
)

// batchSize is the number of events written in one request.
const batchSize = 10

// Config holds the HTTP event collectors and their token.
type Config struct {
	Endpoints []string `toml:"endpoints"`
	Token     string   `toml:"token"`

	// Insecure skips verification of the collector certificates.
	Insecure bool `toml:"insecure"`

	// FlushInterval is the longest an event waits for a full batch.
	FlushInterval string `toml:"flush_interval"`
}

// Backend writes events in batches to a splunk HTTP event collector.
type Backend struct {
	Config

	client hec.HEC
	flush  time.Duration

	ch   chan map[string]interface{}
	done chan struct{}

	written uint64
}

// New returns a splunk channel.
func New(options ...func(pushers.Channel) error) (pushers.Channel, error) {
	c := Backend{
		Config: Config{
			FlushInterval: "10s",
		},
		ch:   make(chan map[string]interface{}, 100),
		done: make(chan struct{}),
	}

	for _, optionFn := range options {
		if err := optionFn(&c); err != nil {
			return nil, err
		}
	}

	if len(c.Endpoints) == 0 {
		return nil, ErrEndpointsNotSet
	}

	if c.Token == "" {
		return nil, ErrTokenNotSet
	}

	flush, err := time.ParseDuration(c.FlushInterval)
	if err != nil {
		return nil, err
	}

	c.flush = flush

	c.client = hec.NewCluster(c.Endpoints, c.Token)
	c.client.SetHTTPClient(&http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: c.Insecure,
			},
		},
		Timeout: 20 * time.Second,
	})

	go c.run()

	return &c, nil
}

func (c *Backend) run() {
	log.Debug("Splunk indexer started...")
	defer log.Debug("Splunk indexer stopped...")

	defer close(c.done)

	ticker := time.NewTicker(c.flush)
	defer ticker.Stop()

	batch := []*hec.Event{}

	for {
		select {
		case doc, ok := <-c.ch:
			if !ok {
				c.write(batch)
				return
			}

			e := hec.NewEvent(doc)
			e.SetTime(time.Now())

			batch = append(batch, e)
			if len(batch) < batchSize {
				continue
			}
		case <-ticker.C:
		}

		batch = c.write(batch)
	}
}

// write sends batch and returns what is left to send.
func (c *Backend) write(batch []*hec.Event) []*hec.Event {
	if len(batch) == 0 {
		return batch
	}

	if err := c.client.WriteBatch(batch); err != nil {
		log.Errorf("Error indexing %d events: %s", len(batch), err.Error())

		if len(batch) >= 10*batchSize {
			log.Errorf("Dropping %d events", len(batch))
			return []*hec.Event{}
		}

		return batch
	}

	count := atomic.AddUint64(&c.written, uint64(len(batch)))

	log.Debugf("Bulk indexing: %d total %d", len(batch), count)

	return []*hec.Event{}
}

// Send queues the event for the next batch. Heartbeats are not indexed.
func (c *Backend) Send(e event.Event) {
	if e.Get("category") == event.CategoryHeartbeat {
		return
	}

	c.ch <- event.ToMap(e)
}

// Close writes the queued events.
func (c *Backend) Close() error {
	close(c.ch)
	<-c.done
	return nil
}

// Written returns the number of events the collectors accepted.
func (c *Backend) Written() uint64 {
	return atomic.LoadUint64(&c.written)
}
