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
	"io"
	"strings"
)

var (
	_ = Register("ftp", FTP)
)

// FTP replies.
const (
	StatusUserOK        = "331 Password required"
	StatusNotLoggedIn   = "530 Login incorrect"
	StatusClosing       = "221 Goodbye"
	StatusNotUnderstood = "500 Unknown command"
)

// FTP emulates an ftp control connection which never lets anybody log in.
func FTP(options ...ServicerFunc) Servicer {
	s := &ftpService{
		emulator: newEmulator(Profile{
			Name:   "FTP",
			Banner: "220 (vsFTPd 3.0.3)",
		}),
	}

	for _, o := range options {
		o(s)
	}

	return s
}

type ftpService struct {
	emulator
}

func (s *ftpService) Handle(ctx context.Context, sess *Session) error {
	defer sess.Close()

	if err := sess.Send(s.Banner + "\r\n"); err != nil {
		return err
	}

	for {
		line, err := sess.ReadLine()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		if line == "" {
			return nil
		}

		ForSession(s.rec, sess).LogCommand(sess.IP, sess.Port, sess.Service, line)

		cmd := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(cmd, "USER"):
			err = sess.Send(StatusUserOK + "\r\n")
		case strings.HasPrefix(cmd, "PASS"):
			err = sess.Send(StatusNotLoggedIn + "\r\n")
		case strings.HasPrefix(cmd, "QUIT"):
			return sess.Send(StatusClosing + "\r\n")
		default:
			err = sess.Send(StatusNotUnderstood + "\r\n")
		}

		if err != nil {
			return err
		}
	}
}
