package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"mirror/internal/ipc"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mirror-ctl [--socket PATH] say <text> | status")
	cli.PrintDefaults()
}

func main() {
	socket := cli.StringP("socket", "s", ipc.SocketPath, "Control socket path")
	timeout := cli.DurationP("timeout", "t", 5*time.Second, "Request timeout")
	cli.Usage = usage
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var req ipc.Request
	switch args[0] {
	case ipc.CmdSay:
		req = ipc.Request{Cmd: ipc.CmdSay, Text: strings.Join(args[1:], " ")}
		if strings.TrimSpace(req.Text) == "" {
			usage()
			os.Exit(2)
		}
	case ipc.CmdStatus:
		req = ipc.Request{Cmd: ipc.CmdStatus}
	default:
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := ipc.Send(ctx, *socket, req)
	if err != nil {
		fmt.Println("mirror daemon not running:", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Println("error:", resp.Error)
		os.Exit(1)
	}

	if req.Cmd == ipc.CmdStatus {
		fmt.Printf("emotion:  %s\n", resp.Emotion)
		fmt.Printf("paused:   %t\n", resp.Paused)
		fmt.Printf("response: %s\n", resp.Response)
	}
}
