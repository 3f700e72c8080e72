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

// Package bolt stores events in a bolt database, one bucket per category.
package bolt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/pushers"
	logging "github.com/op/go-logging"
)

var (
	_ = pushers.Register("bolt", New)
)

var log = logging.MustGetLogger("nettrap:channels:bolt")

const defaultBucket = "events"

// Config defines the database file.
type Config struct {
	File string `toml:"filename"`
}

// Bolted saves delivered events into a bolt database. Keys are the bucket
// sequence numbers, values the JSON encoded events.
type Bolted struct {
	Config

	db *bolt.DB

	ch   chan event.Event
	done chan struct{}
}

// WithFile sets the database file.
func WithFile(name string) func(pushers.Channel) error {
	return func(c pushers.Channel) error {
		c.(*Bolted).File = name
		return nil
	}
}

// New returns a bolt channel.
func New(options ...func(pushers.Channel) error) (pushers.Channel, error) {
	b := Bolted{
		ch:   make(chan event.Event, 100),
		done: make(chan struct{}),
	}

	for _, optionFn := range options {
		if err := optionFn(&b); err != nil {
			return nil, err
		}
	}

	if b.File == "" {
		return nil, errors.New("bolt channel: filename not set")
	}

	if err := os.MkdirAll(filepath.Dir(b.File), 0750); err != nil {
		return nil, err
	}

	db, err := bolt.Open(b.File, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	b.db = db

	go b.run()

	return &b, nil
}

func (b *Bolted) run() {
	defer close(b.done)

	for e := range b.ch {
		bucket := e.Get("category")
		if bucket == "" {
			bucket = defaultBucket
		}

		if err := b.Save([]byte(bucket), event.ToMap(e)); err != nil {
			log.Errorf("Error saving event: %s", err.Error())
		}
	}
}

// Send queues the event for storage.
func (b *Bolted) Send(e event.Event) {
	b.ch <- e
}

// Close stores the queued events and closes the database.
func (b *Bolted) Close() error {
	close(b.ch)
	<-b.done

	return b.db.Close()
}

// Save stores the events in bucket, creating it when needed.
func (b *Bolted) Save(bucket []byte, events ...map[string]interface{}) error {
	if len(events) == 0 {
		return nil
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bu, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}

		for _, e := range events {
			buff, err := json.Marshal(e)
			if err != nil {
				return err
			}

			nextID, err := bu.NextSequence()
			if err != nil {
				return err
			}

			if err := bu.Put(parseInt(nextID), buff); err != nil {
				return err
			}
		}

		return nil
	})
}

// Size returns the number of events in bucket.
func (b *Bolted) Size(bucket []byte) (int, error) {
	var total int

	err := b.db.View(func(tx *bolt.Tx) error {
		if bu := tx.Bucket(bucket); bu != nil {
			total = bu.Stats().KeyN
		}

		return nil
	})

	return total, err
}

// Get returns up to length events of bucket starting at sequence number
// from. A negative length returns all remaining events.
func (b *Bolted) Get(bucket []byte, from uint64, length int) ([]map[string]interface{}, error) {
	var list []map[string]interface{}

	err := b.db.View(func(tx *bolt.Tx) error {
		bu := tx.Bucket(bucket)
		if bu == nil {
			return nil
		}

		cu := bu.Cursor()

		for k, v := cu.Seek(parseInt(from)); k != nil; k, v = cu.Next() {
			if length >= 0 && len(list) >= length {
				break
			}

			// Probably some subbucket.
			if v == nil {
				continue
			}

			var item map[string]interface{}
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}

			list = append(list, item)
		}

		return nil
	})

	return list, err
}

func parseInt(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}
