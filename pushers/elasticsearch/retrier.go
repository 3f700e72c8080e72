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

package elasticsearch

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"time"
)

// maxRetries is the number of times a failed request is retried.
const maxRetries = 3

// Retrier waits longer when the server refuses connections.
type Retrier struct {
}

// Retry implements elastic.Retrier.
func (r Retrier) Retry(ctx context.Context, retry int, req *http.Request, resp *http.Response, err error) (time.Duration, bool, error) {
	if retry > maxRetries {
		return 0, false, err
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		log.Errorf("Elasticsearch or network down, reconnecting in %d seconds.", 10*retry)
		return time.Duration(retry) * 10 * time.Second, true, nil
	}

	if err != nil {
		log.Errorf("Error connecting to Elasticsearch: %s", err.Error())
	}

	return time.Duration(retry) * time.Second, true, nil
}
