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
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/nettrap/nettrap/event"
	"github.com/nettrap/nettrap/pushers"
)

func TestConsoleSend(t *testing.T) {
	s := struct {
		P toml.Primitive
	}{}

	if _, err := toml.Decode("[P]\ncolors = false\n", &s); err != nil {
		t.Fatal(err)
	}

	buf := &bytes.Buffer{}

	c, err := New(pushers.WithConfig(s.P), WithWriter(buf))
	if err != nil {
		t.Fatal(err)
	}

	c.Send(event.New(
		event.Sensor("nettrap"),
		event.Category(event.CategoryCommand),
		event.SourceIP("10.0.0.1"),
		event.DestinationPort(21),
		event.Command("USER root\x00"),
	))

	if err := c.(*Console).Close(); err != nil {
		t.Fatal(err)
	}

	out := buf.String()

	if !strings.HasPrefix(out, "nettrap > command > ") {
		t.Errorf("Expected sensor and category prefix, got %q", out)
	}

	for _, expected := range []string{"destination-port=21", "source-ip=10.0.0.1", `command=USER root\x00`} {
		if !strings.Contains(out, expected) {
			t.Errorf("Expected %q in %q", expected, out)
		}
	}

	if i, j := strings.Index(out, "command="), strings.Index(out, "source-ip="); i > j {
		t.Errorf("Expected parameters to be sorted: %s", out)
	}
}

func TestPrintify(t *testing.T) {
	if s := printify("a\tb"); s != fmt.Sprintf("a\\x%02xb", '\t') {
		t.Errorf("Expected escaped tab, got %q", s)
	}
}
