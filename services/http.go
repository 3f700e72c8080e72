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

import (
	"context"
	"fmt"
	"io"
	"strings"
)

var (
	_ = Register("http", HTTP)
)

// requestSize is the most of a request that is read.
const requestSize = 4096

const underConstruction = `<html>
<head><title>Test Page</title></head>
<body>
<h1>Welcome</h1>
<p>Site under construction</p>
</body>
</html>`

// HTTP emulates a web server that answers the first request with a static
// page. The profile banner is used as Server header.
func HTTP(options ...ServicerFunc) Servicer {
	s := &httpService{
		emulator: newEmulator(Profile{
			Name:   "HTTP",
			Banner: "Apache/2.4.41 (Win64)",
		}),
	}

	for _, o := range options {
		o(s)
	}

	return s
}

type httpService struct {
	emulator
}

// Response returns the raw response sent for every request.
func Response(server string) string {
	body := strings.Replace(underConstruction, "\n", "\r\n", -1)

	return fmt.Sprintf("HTTP/1.1 200 OK\r\n"+
		"Server: %s\r\n"+
		"Content-Type: text/html\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n"+
		"\r\n"+
		"%s", server, len(body), body)
}

func (s *httpService) Handle(ctx context.Context, sess *Session) error {
	defer sess.Close()

	data, err := sess.ReadOnce(requestSize)
	if len(data) == 0 {
		if err == io.EOF {
			return nil
		}

		return err
	}

	ForSession(s.rec, sess).LogCommand(sess.IP, sess.Port, sess.Service, firstLine(data))

	return sess.Send(Response(s.Banner))
}

// firstLine returns the text up to the first line terminator.
func firstLine(data []byte) string {
	s := strings.ToValidUTF8(string(data), "")

	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}

	return strings.TrimRight(s, "\r")
}
