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

package file

import (
	"bytes"
	"fmt"
	"os"
	"time"
)

// rotateFile is an append only file that is renamed with a timestamp suffix
// once it would grow beyond maxSize. Rotation happens on line boundaries.
type rotateFile struct {
	f *os.File

	mode    os.FileMode
	path    string
	pos     int64
	maxSize int64
}

func openRotateFile(name string, mode os.FileMode, maxSize int64) (*rotateFile, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, mode)
	if err != nil {
		return nil, err
	}

	offset, err := f.Seek(0, os.SEEK_END)
	if err != nil {
		f.Close()
		return nil, err
	}

	rf := &rotateFile{
		f:       f,
		path:    name,
		pos:     offset,
		mode:    mode,
		maxSize: maxSize,
	}

	if offset < maxSize {
		return rf, nil
	} else if err := rf.rotate(); err != nil {
		return rf, err
	}

	return rf, nil
}

func (f *rotateFile) rotate() error {
	f.f.Sync()
	f.f.Close()

	name := fmt.Sprintf("%s.%s", f.path, time.Now().Format("20060102150405.000000000"))
	if err := os.Rename(f.path, name); err != nil {
		return err
	}

	log.Debugf("Rotated %s to %s", f.path, name)
	return f.reopen()
}

func (f *rotateFile) reopen() error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, f.mode)
	if err != nil {
		return err
	}

	f.f = file
	f.pos = 0
	return nil
}

func (f *rotateFile) Write(p []byte) (int, error) {
	// the file has been moved away
	if _, err := os.Stat(f.path); err != nil {
		f.f.Close()

		if err := f.reopen(); err != nil {
			return 0, err
		}
	}

	written := 0

	for f.pos+int64(len(p)) > f.maxSize {
		j := -1
		if limit := f.maxSize - f.pos; limit > 0 {
			j = bytes.LastIndexByte(p[:limit], '\n')
		}

		if j < 0 && f.pos == 0 {
			// a single line larger than maxSize
			j = bytes.IndexByte(p, '\n')
			if j < 0 || j == len(p)-1 {
				break
			}
		}

		if j >= 0 {
			n, err := f.f.Write(p[:j+1])
			written += n
			if err != nil {
				return written, err
			}

			p = p[j+1:]
		}

		if err := f.rotate(); err != nil {
			return written, err
		}
	}

	n, err := f.f.Write(p)

	f.pos += int64(n)
	return written + n, err
}

func (f *rotateFile) Close() error {
	return f.f.Close()
}

func (f *rotateFile) Sync() error {
	return f.f.Sync()
}
