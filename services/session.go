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
	"bufio"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/rs/xid"
)

// readSize is the most a single read of a session consumes.
const readSize = 1024

// Session is an accepted connection together with what is known about it. A
// session is owned by exactly one emulator and never shared.
type Session struct {
	net.Conn

	// ID is shared by every event of the session.
	ID string

	IP      string
	Port    int
	Service string

	once sync.Once
	br   *bufio.Reader
}

// NewSession wraps conn. The peer ip is taken from the remote address.
func NewSession(conn net.Conn, port int, service string) *Session {
	return &Session{
		Conn:    conn,
		ID:      xid.New().String(),
		IP:      RemoteIP(conn),
		Port:    port,
		Service: service,
	}
}

// RemoteIP returns the ip of the peer of conn, or "Unknown".
func RemoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return "Unknown"
	}

	if ta, ok := addr.(*net.TCPAddr); ok {
		return ta.IP.String()
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "Unknown"
	}

	return host
}

// Close closes the connection once, later calls are no-ops.
func (s *Session) Close() error {
	var err error

	s.once.Do(func() {
		err = s.Conn.Close()
	})

	return err
}

// Send writes text to the peer.
func (s *Session) Send(text string) error {
	_, err := io.WriteString(s.Conn, text)
	return err
}

// ReadLine returns the next line the peer sent with surrounding white space
// and invalid UTF-8 removed. A line longer than the read size is returned in
// pieces. io.EOF is returned once the peer closed and nothing is left.
func (s *Session) ReadLine() (string, error) {
	if s.br == nil {
		s.br = bufio.NewReaderSize(s.Conn, readSize)
	}

	data, err := s.br.ReadSlice('\n')
	if len(data) > 0 {
		return clean(data), nil
	}

	return "", err
}

// ReadOnce does a single read of at most n bytes.
func (s *Session) ReadOnce(n int) ([]byte, error) {
	buf := make([]byte, n)

	var r io.Reader = s.Conn
	if s.br != nil {
		r = s.br
	}

	c, err := r.Read(buf)
	return buf[:c], err
}

func clean(data []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
}
