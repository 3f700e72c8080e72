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

package config

import (
	"strconv"
	"time"
)

// Delay is a duration read from configuration, either as a Go duration string
// ("1500ms", "5s") or as a plain number of seconds.
type Delay time.Duration

// Duration returns d as a time.Duration.
func (d Delay) Duration() time.Duration {
	return time.Duration(d)
}

func delayOf(d time.Duration) *Delay {
	v := Delay(d)
	return &v
}

// UnmarshalText parses the duration.
func (d *Delay) UnmarshalText(text []byte) error {
	s := string(text)

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Delay(secs * float64(time.Second))
		return nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		log.Errorf("Error parsing duration (%s): %s", s, err.Error())
		return err
	}

	*d = Delay(v)
	return nil
}

// MarshalText returns the Go duration notation.
func (d Delay) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
