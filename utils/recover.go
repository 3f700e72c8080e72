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

package utils

import (
	"runtime"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("nettrap:utils")

// RecoverHandler recovers a panic of the calling goroutine and passes the
// recovered value to fn. It must be deferred directly:
//
//	defer utils.RecoverHandler(func(r interface{}) { ... })
func RecoverHandler(fn func(interface{})) {
	if err := recover(); err != nil {
		trace := make([]byte, 1024)
		count := runtime.Stack(trace, false)
		log.Errorf("Error: %s", err)
		log.Debugf("Stack of %d bytes: %s\n", count, string(trace))

		if fn != nil {
			fn(err)
		}
	}
}
