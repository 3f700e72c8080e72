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

package elasticsearch

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/pushers"
	"github.com/rs/xid"

	logging "github.com/op/go-logging"
	elastic "gopkg.in/olivere/elastic.v5"
)

var (
	_ = pushers.Register("elasticsearch", New)
)

var log = logging.MustGetLogger("nettrap:channels:elasticsearch")

var (
	// ErrElasticsearchNoURL is returned when no url has been configured.
	ErrElasticsearchNoURL = errors.New("elasticsearch url has not been set")
	// ErrElasticsearchNoIndex is returned when the url has no path naming the index.
	ErrElasticsearchNoIndex = errors.New("elasticsearch index has not been set")
)

// DocumentType is the mapping type of the indexed events.
const DocumentType = "event"

// Config holds the server and index events are sent to. The index is the
// path of the url, eg. http://localhost:9200/nettrap.
type Config struct {
	URL string `toml:"url"`

	Username string `toml:"username"`
	Password string `toml:"password"`

	// Insecure skips verification of the server certificate.
	Insecure bool `toml:"insecure"`

	// Sniff finds all nodes of the cluster.
	Sniff bool `toml:"sniff"`

	// BulkActions is the number of events sent in one bulk request.
	BulkActions int `toml:"bulk_actions"`
}

// Backend indexes every event as a document.
type Backend struct {
	Config

	index string

	client    *elastic.Client
	processor *elastic.BulkProcessor
}

// New returns an elasticsearch channel.
func New(options ...func(pushers.Channel) error) (pushers.Channel, error) {
	c := Backend{
		Config: Config{
			BulkActions: 100,
		},
	}

	for _, optionFn := range options {
		if err := optionFn(&c); err != nil {
			return nil, err
		}
	}

	clientOptions, err := c.clientOptions()
	if err != nil {
		return nil, err
	}

	client, err := elastic.NewClient(clientOptions...)
	if err != nil {
		return nil, err
	}

	processor, err := client.BulkProcessor().
		Name("nettrap").
		Workers(1).
		BulkActions(c.BulkActions).
		FlushInterval(time.Second).
		Stats(true).
		After(c.after).
		Do(context.Background())
	if err != nil {
		client.Stop()
		return nil, err
	}

	c.client = client
	c.processor = processor

	return &c, nil
}

func (c *Backend) clientOptions() ([]elastic.ClientOptionFunc, error) {
	if c.URL == "" {
		return nil, ErrElasticsearchNoURL
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(u.Path, "/")
	if len(parts) != 2 || parts[1] == "" {
		return nil, ErrElasticsearchNoIndex
	}

	c.index = parts[1]

	u.Path = ""

	log.Debugf("Using URL: %s with index: %s", u.String(), c.index)

	options := []elastic.ClientOptionFunc{
		elastic.SetURL(u.String()),
		elastic.SetScheme(u.Scheme),
		elastic.SetSniff(c.Sniff),
		elastic.SetRetrier(&Retrier{}),
		elastic.SetHttpClient(&http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 5,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: c.Insecure,
				},
			},
			Timeout: 20 * time.Second,
		}),
	}

	if c.Username != "" {
		options = append(options, elastic.SetBasicAuth(c.Username, c.Password))

		log.Debugf("Using authentication with username: %s and password.", c.Username)
	}

	return options, nil
}

func (c *Backend) after(id int64, requests []elastic.BulkableRequest, resp *elastic.BulkResponse, err error) {
	if err != nil {
		log.Errorf("Error indexing %d events: %s", len(requests), err.Error())
		return
	}

	if failed := resp.Failed(); len(failed) > 0 {
		log.Errorf("Elasticsearch rejected %d of %d events: %s", len(failed), len(requests), failed[0].Error.Reason)
		return
	}

	log.Debugf("Indexed %d events", len(requests))
}

// Send queues the event for the next bulk request. Heartbeats are not
// indexed.
func (c *Backend) Send(e event.Event) {
	if e.Get("category") == event.CategoryHeartbeat {
		return
	}

	id := e.Get("id")
	if id == "" {
		id = xid.New().String()
	}

	c.processor.Add(
		elastic.NewBulkIndexRequest().
			Index(c.index).
			Type(DocumentType).
			Id(id).
			Doc(event.ToMap(e)),
	)
}

// Close sends the queued events and stops the client.
func (c *Backend) Close() error {
	defer c.client.Stop()

	return c.processor.Close()
}

// Indexed returns the number of events the server accepted.
func (c *Backend) Indexed() int64 {
	return c.processor.Stats().Succeeded
}
