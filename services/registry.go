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

package services

import "fmt"

// Logical service names of the well known ports.
const (
	NameFTP    = "FTP"
	NameSSH    = "SSH"
	NameTelnet = "TELNET"
	NameHTTP   = "HTTP"
	NameHTTPS  = "HTTPS"
)

var wellKnown = map[int]string{
	21:   NameFTP,
	22:   NameSSH,
	23:   NameTelnet,
	80:   NameHTTP,
	443:  NameHTTPS,
	8080: NameHTTP,
	2222: NameSSH,
}

// emulators maps a logical service name to the key of the emulator serving
// it. Names not listed are served by the generic emulator.
var emulators = map[string]string{
	NameFTP:    "ftp",
	NameSSH:    "ssh",
	NameTelnet: "telnet",
	NameHTTP:   "http",
	NameHTTPS:  "http",
}

// NameForPort returns the logical service name for port, PORT_<port> for
// ports without a well known service.
func NameForPort(port int) string {
	if name, ok := wellKnown[port]; ok {
		return name
	}

	return fmt.Sprintf("PORT_%d", port)
}

// EmulatorFor returns the emulator key serving the logical service name.
func EmulatorFor(name string) string {
	if key, ok := emulators[name]; ok {
		return key
	}

	return "generic"
}

// New returns the emulator for the logical service name.
func New(name string, options ...ServicerFunc) Servicer {
	fn, ok := Get(EmulatorFor(name))
	if !ok {
		log.Warningf("No emulator registered for %s, using generic", name)
	}

	return fn(options...)
}
