// Command chatd runs the chat server: it loads a server data file, picks
// a Main or Secondary role depending on whether the file names an
// upstream, and serves connections until SQUIT or a fatal error.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/horgh/chatd/internal/coordinator"
	"github.com/horgh/chatd/internal/listener"
	"github.com/horgh/chatd/internal/serverdata"
	"github.com/horgh/chatd/internal/serverrole"
)

func main() {
	dataFile := flag.String("data", "", "Server data file (required).")
	flag.Parse()

	if *dataFile == "" {
		printUsage(fmt.Errorf("you must provide -data"))
		os.Exit(1)
	}

	if err := run(*dataFile); err != nil {
		log.Printf("chatd: %s", err)
		os.Exit(1)
	}
}

func printUsage(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s -data <server-data-file>\n", os.Args[0])
	flag.PrintDefaults()
}

func run(dataFile string) error {
	data, err := serverdata.Load(dataFile)
	if err != nil {
		return fmt.Errorf("loading server data: %w", err)
	}

	coord := coordinator.New(data.ServerName, data)

	var role serverrole.Role
	if data.IsMain() {
		role = &serverrole.Main{Coord: coord}
	} else {
		secondary := &serverrole.Secondary{Coord: coord, UpstreamName: data.Main.ServerName}
		role = secondary
		if err := listener.ConnectToMain(data.Main.Address, data.Main.ServerName, data.ServerName, coord, role); err != nil {
			return fmt.Errorf("connecting to main server: %w", err)
		}
	}

	log.Printf("chatd: %s listening on %s (main=%t)", data.ServerName, data.ServerAddress, data.IsMain())

	ln := listener.New(data.ServerAddress, coord, role)
	if err := ln.Run(); err != nil {
		return fmt.Errorf("listener: %w", err)
	}

	return nil
}
