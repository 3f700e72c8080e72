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

// +build !linux,!darwin,!dragonfly,!freebsd,!netbsd,!openbsd

package listener

import (
	"net"
)

// listen falls back to the standard listener, the backlog is chosen by the
// operating system.
func listen(address string, backlog int) (net.Listener, error) {
	log.Debugf("Backlog of %d not supported on this platform", backlog)

	return net.Listen("tcp", address)
}
