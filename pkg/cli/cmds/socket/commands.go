package socket

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/nwp.go/pkg/cli/sh"
	"github.com/robotalks/nwp.go/pkg/nwp"
)

func parseSocket(c *ishell.Context) (uint8, error) {
	if len(c.Args) < 1 {
		return 0, fmt.Errorf("SD required")
	}
	val, err := strconv.ParseUint(c.Args[0], 0, 8)
	if err != nil {
		return 0, fmt.Errorf("Invalid SD: %v", err)
	}
	return uint8(val), nil
}

var (
	// SendCmd sends text on a socket.
	SendCmd = ishell.Cmd{
		Name:    "socket.send",
		Aliases: []string{"send"},
		Help:    "SD TEXT...",
		Func: sh.MustBeConnected(func(ctx context.Context, c *ishell.Context, d *nwp.Driver) {
			sd, err := parseSocket(c)
			if err != nil {
				c.Err(err)
				return
			}
			n, err := d.Send(ctx, sd, []byte(strings.Join(c.Args[1:], " ")))
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%d bytes sent\n", n)
		}),
	}

	// RecvCmd receives from a socket.
	RecvCmd = ishell.Cmd{
		Name:    "socket.recv",
		Aliases: []string{"recv"},
		Help:    "SD [SIZE]",
		Func: sh.MustBeConnected(func(ctx context.Context, c *ishell.Context, d *nwp.Driver) {
			sd, err := parseSocket(c)
			if err != nil {
				c.Err(err)
				return
			}
			size := uint64(1024)
			if len(c.Args) > 1 {
				if size, err = strconv.ParseUint(c.Args[1], 0, 16); err != nil {
					c.Err(fmt.Errorf("Invalid SIZE: %v", err))
					return
				}
			}
			buf := make([]byte, size)
			n, err := d.Recv(ctx, sd, buf)
			if err != nil {
				c.Err(err)
				return
			}
			out := struct {
				Socket uint8  `json:"sd"`
				Data   string `json:"data"`
			}{sd, string(buf[:n])}
			sh.Print(c, &out, fmt.Sprintf("%q", out.Data))
		}),
	}

	// CloseCmd closes a socket.
	CloseCmd = ishell.Cmd{
		Name:    "socket.close",
		Aliases: []string{"close"},
		Help:    "SD",
		Func: sh.MustBeConnected(func(ctx context.Context, c *ishell.Context, d *nwp.Driver) {
			sd, err := parseSocket(c)
			if err != nil {
				c.Err(err)
				return
			}
			if err := d.CloseSocket(ctx, sd); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}
)

func init() {
	sh.AddCmds(
		&SendCmd,
		&RecvCmd,
		&CloseCmd,
	)
}
