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

package event

import (
	"encoding/json"
	"sync"
	"time"
)

// Event is a set of key-value pairs describing something observed by a sensor.
// It is safe to share between the goroutines of the bus subscribers.
type Event struct {
	sm *sync.Map
}

// New returns a new Event stamped with the current date and with the options
// applied in order. Nil options are skipped.
func New(opts ...Option) Event {
	e := Event{
		sm: new(sync.Map),
	}

	e.sm.Store("date", time.Now())

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(e)
	}

	return e
}

// MarshalJSON encodes all string keyed values as a JSON object.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToMap(e))
}

// Range calls fx for every key-value pair until fx returns false.
func (e Event) Range(fx func(interface{}, interface{}) bool) {
	e.sm.Range(fx)
}

// Store sets the value for key s.
func (e Event) Store(s string, v interface{}) {
	e.sm.Store(s, v)
}

// Has returns true if the key exists.
func (e Event) Has(s string) bool {
	_, ok := e.sm.Load(s)
	return ok
}

// Get returns the string value for key s, or the empty string when the key is
// missing or holds a value of another type.
func (e Event) Get(s string) string {
	if v, ok := e.sm.Load(s); !ok {
		return ""
	} else if v, ok := v.(string); !ok {
		return ""
	} else {
		return v
	}
}

// GetInt returns the integer value for key s, or 0.
func (e Event) GetInt(s string) int {
	v, ok := e.sm.Load(s)
	if !ok {
		return 0
	}

	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case uint16:
		return int(x)
	default:
		return 0
	}
}

// Date returns the time the event was created.
func (e Event) Date() time.Time {
	if v, ok := e.sm.Load("date"); !ok {
		return time.Time{}
	} else if t, ok := v.(time.Time); ok {
		return t
	}

	return time.Time{}
}
