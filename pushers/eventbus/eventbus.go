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

package eventbus

import (
	"sync"

	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/pushers"
)

// EventBus is a pubsub bus delivering every event to all subscribers.
type EventBus struct {
	m           sync.RWMutex
	subscribers []pushers.Channel
}

// New returns a new instance of a EventBus.
func New() *EventBus {
	return &EventBus{}
}

// Subscribe adds the channel to the subscribers of the bus.
func (eb *EventBus) Subscribe(channel pushers.Channel) error {
	eb.m.Lock()
	defer eb.m.Unlock()

	eb.subscribers = append(eb.subscribers, channel)
	return nil
}

// Send delivers e to all subscribers.
func (eb *EventBus) Send(e event.Event) {
	eb.m.RLock()
	defer eb.m.RUnlock()

	for _, subscriber := range eb.subscribers {
		subscriber.Send(e)
	}
}

// Close closes every subscriber holding resources.
func (eb *EventBus) Close() error {
	eb.m.Lock()
	defer eb.m.Unlock()

	var first error
	for _, subscriber := range eb.subscribers {
		if err := pushers.Close(subscriber); err != nil && first == nil {
			first = err
		}
	}

	eb.subscribers = nil
	return first
}
