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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/nettrap/nettrap/cmd"
	"github.com/nettrap/nettrap/config"
	"github.com/nettrap/nettrap/server"
	cli "gopkg.in/urfave/cli.v1"

	logging "github.com/op/go-logging"
)

var helpTemplate = `NAME:
{{.Name}} - {{.Usage}}

DESCRIPTION:
{{.Description}}

USAGE:
{{.Name}} {{if .Flags}}[flags] {{end}}command{{if .Flags}}{{end}} [arguments...]

COMMANDS:
	{{range .Commands}}{{join .Names ", "}}{{ "\t" }}{{.Usage}}
	{{end}}{{if .Flags}}
FLAGS:
	{{range .Flags}}{{.}}
	{{end}}{{end}}
VERSION:
` + cmd.Version +
	`{{ "\n"}}`

var log = logging.MustGetLogger("nettrap:cmd")

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Value: "config.toml",
		Usage: "Load configuration from `FILE`",
	},
	cli.StringFlag{
		Name:  "data-dir",
		Value: "",
		Usage: "Keep the sensor token and geoip database in `DIR`",
	},
	cli.BoolFlag{Name: "cpu-profile", Usage: "Enable cpu profiler"},
	cli.BoolFlag{Name: "mem-profile", Usage: "Enable memory profiler"},
	cli.BoolFlag{Name: "profiler", Usage: "Enable web profiler"},
}

func serve(c *cli.Context) error {
	conf, err := config.LoadFile(c.String("config"))
	if err != nil {
		fmt.Println(color.RedString("Error opening config file, using defaults: %s", err.Error()))
	}

	if err := conf.SetupLogging(); err != nil {
		return cli.NewExitError(color.RedString("Error setting up logging: %s", err.Error()), 1)
	}

	options := []server.OptionFn{
		server.WithConfiguration(conf),
	}

	if v := c.String("data-dir"); v != "" {
		options = append(options, server.WithDataDir(v))
	}

	options = append(options, server.WithToken())

	if c.GlobalBool("cpu-profile") {
		options = append(options, server.WithCPUProfiler())
	} else if c.GlobalBool("mem-profile") {
		options = append(options, server.WithMemoryProfiler())
	} else if c.GlobalBool("profiler") {
		options = append(options, server.WithWebProfiler())
	}

	srv, err := server.New(
		options...,
	)
	if err != nil {
		return cli.NewExitError(color.RedString("Error starting nettrap: %s", err.Error()), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := make(chan os.Signal, 1)
	signal.Notify(s, os.Interrupt)
	signal.Notify(s, syscall.SIGTERM)

	go func() {
		<-s

		log.Info("Stopping nettrap...")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		return cli.NewExitError(color.RedString(err.Error()), 1)
	}

	srv.Stop()
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "nettrap"
	app.Author = ""
	app.Usage = "nettrap"
	app.Version = cmd.Version
	app.Flags = globalFlags
	app.Description = `nettrap: a multi port honeypot emulating ssh, ftp, telnet and http.`
	app.CustomAppHelpTemplate = helpTemplate
	app.Commands = []cli.Command{}

	app.Action = serve

	app.RunAndExitOnError()
}
