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

// +build linux darwin dragonfly freebsd netbsd openbsd

package listener

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listen creates the socket by hand, the standard library does not allow to
// choose the listen backlog.
func listen(address string, backlog int) (net.Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}

	family, sa, err := sockaddr(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}

	unix.CloseOnExec(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", address, os.NewSyscallError("bind", err))
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	f := os.NewFile(uintptr(fd), "tcp:"+address)

	// FileListener duplicates the descriptor.
	defer f.Close()

	return net.FileListener(f)
}

func sockaddr(addr *net.TCPAddr) (int, unix.Sockaddr, error) {
	if addr.IP == nil || addr.IP.To4() != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		if addr.IP != nil {
			copy(sa.Addr[:], addr.IP.To4())
		}

		return unix.AF_INET, sa, nil
	}

	if ip := addr.IP.To16(); ip != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip)

		if addr.Zone != "" {
			ifi, err := net.InterfaceByName(addr.Zone)
			if err != nil {
				return 0, nil, err
			}

			sa.ZoneId = uint32(ifi.Index)
		}

		return unix.AF_INET6, sa, nil
	}

	return 0, nil, fmt.Errorf("invalid address %s", addr)
}
