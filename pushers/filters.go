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

package pushers

import (
	"fmt"
	"regexp"

	"github.com/nettrap/nettrap/event"
)

type filterChannel struct {
	Channel

	FilterFn FilterFunc
}

// Send delivers e when it passes the filter.
func (mc filterChannel) Send(e event.Event) {
	if !mc.FilterFn(e) {
		return
	}

	mc.Channel.Send(e)
}

// FilterFunc returns true for events that should be delivered.
type FilterFunc func(event.Event) bool

// RegexFilterFunc returns a filter matching events where the value of field
// matches any of the expressions.
func RegexFilterFunc(field string, expressions []string) (FilterFunc, error) {
	matchers := make([]*regexp.Regexp, len(expressions))

	for i, match := range expressions {
		rx, err := regexp.Compile(match)
		if err != nil {
			return nil, fmt.Errorf("invalid %s filter %q: %w", field, match, err)
		}

		matchers[i] = rx
	}

	return func(e event.Event) bool {
		val := e.Get(field)

		for _, rx := range matchers {
			if rx.MatchString(val) {
				return true
			}
		}

		return false
	}, nil
}

// ExcludeFilterFunc returns a filter dropping events where field has one of
// the values.
func ExcludeFilterFunc(field string, values ...string) FilterFunc {
	return func(e event.Event) bool {
		val := e.Get(field)

		for _, v := range values {
			if v == val {
				return false
			}
		}

		return true
	}
}

// FilterChannel wraps channel so only events passing fn are delivered.
func FilterChannel(channel Channel, fn FilterFunc) Channel {
	return filterChannel{
		Channel:  channel,
		FilterFn: fn,
	}
}

type tokenChannel struct {
	Channel

	Token string
}

// Send delivers e with the token set.
func (mc tokenChannel) Send(e event.Event) {
	mc.Channel.Send(event.Apply(e, event.Token(mc.Token)))
}

// TokenChannel returns a Channel setting the token value of every event.
func TokenChannel(channel Channel, token string) Channel {
	return tokenChannel{
		Channel: channel,
		Token:   token,
	}
}

// Filter is the configuration of a [[filter]] block: the events matching all
// given fields are delivered to the named channels.
type Filter struct {
	Channels   []string `toml:"channel"`
	Categories []string `toml:"category"`
	Services   []string `toml:"service"`
	Sensors    []string `toml:"sensor"`
}

// Wrap returns channel wrapped in the filters of f.
func (f Filter) Wrap(channel Channel) (Channel, error) {
	fields := []struct {
		name        string
		expressions []string
	}{
		{"category", f.Categories},
		{"service", f.Services},
		{"sensor", f.Sensors},
	}

	for _, field := range fields {
		if len(field.expressions) == 0 {
			continue
		}

		fn, err := RegexFilterFunc(field.name, field.expressions)
		if err != nil {
			return nil, err
		}

		channel = FilterChannel(channel, fn)
	}

	return channel, nil
}
