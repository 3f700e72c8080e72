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
	"time"
)

var (
	_ = Register("ssh", SSH)
)

// SSH emulates an ssh daemon that asks for a password for anything looking
// like a login and denies everything else.
func SSH(options ...ServicerFunc) Servicer {
	s := &sshService{
		emulator: newEmulator(Profile{
			Name:   "SSH",
			Banner: "SSH-2.0-OpenSSH_7.4",
			Prompt: "login as: ",
			Delay:  time.Second,
		}),
	}

	for _, o := range options {
		o(s)
	}

	return s
}

type sshService struct {
	emulator
}

func (s *sshService) Handle(ctx context.Context, sess *Session) error {
	defer sess.Close()

	if err := sess.Send(s.Banner + "\r\n"); err != nil {
		return err
	}

	if err := pause(ctx, s.Delay); err != nil {
		return err
	}

	if err := sess.Send(s.Prompt); err != nil {
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

		lower := strings.ToLower(line)
		if strings.Contains(lower, "ssh") || strings.Contains(lower, "login") {
			if err := sess.Send("Password: "); err != nil {
				return err
			}

			continue
		}

		return sess.Send("Access denied\r\n")
	}
}
