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

package file

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/pushers"
	"github.com/op/go-logging"
)

var (
	_ = pushers.Register("file", New)
)

var (
	defaultMaxSize  = int64(1024 * 1024 * 1024)
	defaultWaitTime = time.Second

	log = logging.MustGetLogger("nettrap:channels:file")
)

// New returns a new instance of a FileBackend.
func New(options ...func(pushers.Channel) error) (pushers.Channel, error) {
	fc := FileBackend{
		FileConfig: FileConfig{
			MaxSize: defaultMaxSize,
			Mode:    os.FileMode(0600),
		},
		request: make(chan map[string]interface{}, 100),
		done:    make(chan struct{}),
	}

	for _, optionFn := range options {
		if err := optionFn(&fc); err != nil {
			return nil, err
		}
	}

	if fc.File == "" {
		return nil, errors.New("file channel: filename not set")
	}

	if fc.MaxSize < 1024 {
		return nil, errors.New("file channel: minimal max size is 1024")
	}

	if !filepath.IsAbs(fc.File) {
		if pwd, err := os.Getwd(); err == nil {
			fc.File = filepath.Join(pwd, fc.File)
		}
	}

	if err := os.MkdirAll(filepath.Dir(fc.File), 0750); err != nil {
		return nil, err
	}

	dest, err := openRotateFile(fc.File, fc.Mode, fc.MaxSize)
	if err != nil {
		return nil, err
	}

	go fc.writeLoop(dest)

	return &fc, nil
}

// WithFile sets the destination file.
func WithFile(name string) func(pushers.Channel) error {
	return func(c pushers.Channel) error {
		c.(*FileBackend).File = name
		return nil
	}
}

// WithMaxSize sets the size at which the file is rotated.
func WithMaxSize(size int64) func(pushers.Channel) error {
	return func(c pushers.Channel) error {
		c.(*FileBackend).MaxSize = size
		return nil
	}
}

// FileConfig defines the config used to setup the FileBackend.
type FileConfig struct {
	MaxSize int64       `toml:"maxsize"`
	File    string      `toml:"filename"`
	Mode    os.FileMode `toml:"mode"`
}

// FileBackend writes events as newline delimited JSON to a file. Once the file
// would grow beyond MaxSize it is renamed with the current timestamp as suffix
// and a new file is created.
type FileBackend struct {
	FileConfig

	request chan map[string]interface{}
	done    chan struct{}
}

// Close flushes the queued events and closes the file.
func (f *FileBackend) Close() error {
	close(f.request)
	<-f.done
	return nil
}

// Send queues the event for writing.
func (f *FileBackend) Send(message event.Event) {
	f.request <- event.ToMap(message)
}

func (f *FileBackend) writeLoop(dest *rotateFile) {
	defer close(f.done)
	defer dest.Close()

	var buf bytes.Buffer

	flush := func() {
		if buf.Len() == 0 {
			return
		}

		if _, err := io.Copy(dest, &buf); err != nil {
			log.Errorf("Failed to copy data to file: %s", err)
		}

		if err := dest.Sync(); err != nil {
			log.Errorf("Failed to sync write to file: %s", err)
		}

		buf.Reset()
	}

	defer flush()

	for {
		select {
		case req, ok := <-f.request:
			if !ok {
				return
			}

			if err := json.NewEncoder(&buf).Encode(req); err != nil {
				log.Errorf("Failed to marshal event to JSON: %s", err)
				continue
			}

			if buf.Len() < (500 * 1024) {
				continue
			}
		case <-time.After(defaultWaitTime):
		}

		flush()
	}
}
