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

// Package listener opens the listening sockets of the honeypot ports.
package listener

import (
	"net"
	"strconv"

	logging "github.com/op/go-logging"
	"golang.org/x/net/netutil"
)

var log = logging.MustGetLogger("nettrap:listener")

// Binding is the address a single port listener binds to.
type Binding struct {
	Port    int
	Address string

	// Backlog is the depth of the queue of not yet accepted connections.
	Backlog int
}

// Addr returns the host:port notation of the binding.
func (b Binding) Addr() string {
	return net.JoinHostPort(b.Address, strconv.Itoa(b.Port))
}

func (b Binding) String() string {
	return "tcp/" + b.Addr()
}

// Listen opens a tcp listener for the binding with address reuse enabled and
// the configured backlog.
func Listen(b Binding) (net.Listener, error) {
	backlog := b.Backlog
	if backlog <= 0 {
		backlog = 10
	}

	l, err := listen(b.Addr(), backlog)
	if err != nil {
		return nil, err
	}

	log.Debugf("Listener started: %s (backlog %d)", b, backlog)
	return l, nil
}

// Limit caps the number of connections accepted from l that are open at the
// same time. Accept blocks while the limit is reached. n <= 0 disables it.
func Limit(l net.Listener, n int) net.Listener {
	if n <= 0 {
		return l
	}

	return netutil.LimitListener(l, n)
}
