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

package kafka

import (
	"encoding/json"
	"errors"
	"sync/atomic"

	sarama "github.com/Shopify/sarama"

	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/pushers"

	logging "github.com/op/go-logging"
)

var (
	_ = pushers.Register("kafka", New)
)

var log = logging.MustGetLogger("nettrap:channels:kafka")

// Config defines the brokers and topic events are produced to.
type Config struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// Backend produces every event as a JSON message to a kafka topic. The key
// of a message is the source ip so events of one peer share a partition.
type Backend struct {
	Config

	producer sarama.AsyncProducer

	ch   chan map[string]interface{}
	done chan struct{}

	delivered uint64
	failed    uint64
}

// New returns a kafka channel.
func New(options ...func(pushers.Channel) error) (pushers.Channel, error) {
	c := Backend{
		Config: Config{
			Topic: "nettrap",
		},
		ch:   make(chan map[string]interface{}, 100),
		done: make(chan struct{}),
	}

	for _, optionFn := range options {
		if err := optionFn(&c); err != nil {
			return nil, err
		}
	}

	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka channel: no brokers configured")
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true

	producer, err := sarama.NewAsyncProducer(c.Brokers, config)
	if err != nil {
		return nil, err
	}

	c.producer = producer

	go c.run()

	return &c, nil
}

func (hc *Backend) run() {
	defer close(hc.done)
	defer hc.producer.Close()

	for data := range hc.ch {
		marshalledData, err := json.Marshal(data)
		if err != nil {
			log.Errorf("Error marshaling event: %s", err.Error())
			continue
		}

		msg := &sarama.ProducerMessage{
			Topic: hc.Topic,
			Value: sarama.ByteEncoder(marshalledData),
		}

		if ip, ok := data["source-ip"].(string); ok {
			msg.Key = sarama.StringEncoder(ip)
		}

		hc.producer.Input() <- msg

		select {
		case <-hc.producer.Successes():
			atomic.AddUint64(&hc.delivered, 1)
		case msg := <-hc.producer.Errors():
			atomic.AddUint64(&hc.failed, 1)
			log.Errorf("Error producing event to kafka: %s", msg.Err)
		}
	}
}

// Send queues the event for delivery.
func (hc *Backend) Send(message event.Event) {
	hc.ch <- event.ToMap(message)
}

// Close delivers the queued events and closes the producer.
func (hc *Backend) Close() error {
	close(hc.ch)
	<-hc.done
	return nil
}

// Delivered returns the number of events acknowledged by the brokers.
func (hc *Backend) Delivered() uint64 {
	return atomic.LoadUint64(&hc.delivered)
}
