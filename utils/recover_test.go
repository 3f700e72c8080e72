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

import "testing"

func TestRecoverHandler(t *testing.T) {
	var recovered interface{}

	func() {
		defer RecoverHandler(func(r interface{}) {
			recovered = r
		})

		panic("boom")
	}()

	if recovered != "boom" {
		t.Errorf("Expected panic value to be passed, got %v", recovered)
	}
}

func TestRecoverHandlerNoPanic(t *testing.T) {
	called := false

	func() {
		defer RecoverHandler(func(interface{}) {
			called = true
		})
	}()

	if called {
		t.Errorf("Expected handler not to be called without panic")
	}
}
