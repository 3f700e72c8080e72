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

// Package cmd holds the build information, set at link time:
//
//	go build -ldflags "-X github.com/nettrap/nettrap/cmd.CommitID=$(git rev-parse HEAD)"
package cmd

// Version defines the version number for the cli.
var Version = "0.1.0"

// ReleaseTag is the git tag of the release.
var ReleaseTag = ""

// CommitID is the git commit the binary was built from.
var CommitID = ""

// ShortCommitID is the abbreviated CommitID.
var ShortCommitID = ""
