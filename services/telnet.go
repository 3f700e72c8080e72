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
	"time"
)

var (
	_ = Register("telnet", Telnet)
)

// Telnet emulates a telnet login that takes one user name and one password
// and then rejects the login.
func Telnet(options ...ServicerFunc) Servicer {
	s := &telnetService{
		emulator: newEmulator(Profile{
			Name:   "TELNET",
			Banner: "Ubuntu 18.04.4 LTS",
			Prompt: "login: ",
			Delay:  time.Second,
		}),
	}

	for _, o := range options {
		o(s)
	}

	return s
}

type telnetService struct {
	emulator
}

func (s *telnetService) Handle(ctx context.Context, sess *Session) error {
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

	user, err := sess.ReadLine()
	if err == io.EOF {
		return nil
	} else if err != nil {
		return err
	}

	if user == "" {
		return nil
	}

	ForSession(s.rec, sess).LogCommand(sess.IP, sess.Port, sess.Service, user)

	if err := sess.Send("Password: "); err != nil {
		return err
	}

	password, err := sess.ReadLine()
	if err != nil && err != io.EOF {
		return err
	}

	if password != "" {
		ForSession(s.rec, sess).LogCommand(sess.IP, sess.Port, sess.Service, "Password: "+password)
	}

	return sess.Send("Login incorrect\r\n")
}
