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

package console

import (
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/pushers"
	logging "github.com/op/go-logging"
)

var (
	_ = pushers.Register("console", New)
)

var log = logging.MustGetLogger("nettrap:channels:console")

var categoryColors = map[string]*color.Color{
	event.CategoryConnection: color.New(color.FgGreen),
	event.CategoryCommand:    color.New(color.FgYellow),
	event.CategoryError:      color.New(color.FgRed),
	event.CategoryListener:   color.New(color.FgCyan),
}

// Config defines the config used to setup the Console.
type Config struct {
	Colors bool `toml:"colors"`
}

// WithWriter sets the destination of the console output.
func WithWriter(w io.Writer) func(pushers.Channel) error {
	return func(c pushers.Channel) error {
		c.(*Console).Writer = w
		return nil
	}
}

// New returns a new instance of a Console.
func New(options ...func(pushers.Channel) error) (pushers.Channel, error) {
	c := Console{
		Config: Config{
			Colors: true,
		},
		Writer: os.Stdout,
		ch:     make(chan map[string]interface{}, 100),
		done:   make(chan struct{}),
	}

	for _, optionFn := range options {
		if err := optionFn(&c); err != nil {
			return nil, err
		}
	}

	go c.run()

	return &c, nil
}

// Console provides a backend for outputing event details directly to
// the current console.
type Console struct {
	Config

	io.Writer

	ch   chan map[string]interface{}
	done chan struct{}
}

func printify(s string) string {
	o := ""
	for _, rune := range s {
		if !unicode.IsPrint(rune) {
			buf := make([]byte, 4)

			n := utf8.EncodeRune(buf, rune)
			o += fmt.Sprintf("\\x%s", hex.EncodeToString(buf[:n]))
			continue
		}

		o += string(rune)
	}

	return o
}

func (b *Console) format(e map[string]interface{}) string {
	var params []string
	for k, v := range e {
		switch k {
		case "sensor", "category":
			continue
		}

		switch x := v.(type) {
		case net.IP:
			params = append(params, fmt.Sprintf("%s=%s", k, x.String()))
		case uint32, uint16, uint8, uint,
			int64, int32, int16, int8, int:
			params = append(params, fmt.Sprintf("%s=%d", k, v))
		case time.Time:
			params = append(params, fmt.Sprintf("%s=%s", k, x.Format(time.RFC3339)))
		case string:
			params = append(params, fmt.Sprintf("%s=%s", k, printify(x)))
		default:
			params = append(params, fmt.Sprintf("%s=%#v", k, v))
		}
	}

	sort.Strings(params)

	category, _ := e["category"].(string)
	if c, ok := categoryColors[category]; ok && b.Colors {
		category = c.Sprint(category)
	}

	return fmt.Sprintf("%s > %s > %s\n", e["sensor"], category, strings.Join(params, ", "))
}

func (b *Console) run() {
	defer close(b.done)

	for e := range b.ch {
		if _, err := io.WriteString(b.Writer, b.format(e)); err != nil {
			log.Errorf("Error writing event: %s", err.Error())
		}
	}
}

// Send queues the event for output.
func (b *Console) Send(e event.Event) {
	b.ch <- event.ToMap(e)
}

// Close writes the queued events and stops the console.
func (b *Console) Close() error {
	close(b.ch)
	<-b.done
	return nil
}
