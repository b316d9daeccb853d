package device

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/nwp.go/pkg/cli/sh"
	"github.com/robotalks/nwp.go/pkg/nwp"
	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
)

type replyOutput struct {
	Opcode  string `json:"opcode"`
	Status  int16  `json:"status"`
	Desc    string `json:"desc"`
	Payload string `json:"payload,omitempty"`
}

func printReply(c *ishell.Context, reply *nwp.Reply) {
	n := reply.PayloadLen
	if n > len(reply.Payload) {
		n = len(reply.Payload)
	}
	out := replyOutput{
		Opcode:  fmt.Sprintf("%04x", reply.Opcode),
		Status:  reply.Status(),
		Desc:    hex.EncodeToString(reply.Desc),
		Payload: hex.EncodeToString(reply.Payload[:n]),
	}
	sh.Print(c, &out, fmt.Sprintf("%s status=%d desc=%s payload=%s", out.Opcode, out.Status, out.Desc, out.Payload))
}

func parseHexArg(c *ishell.Context, i int) ([]byte, error) {
	if len(c.Args) <= i {
		return nil, nil
	}
	return hex.DecodeString(c.Args[i])
}

var (
	// GetCmd queries device information.
	GetCmd = ishell.Cmd{
		Name:    "device.get",
		Aliases: []string{"get"},
		Help:    "[OPTION [CONFIG]]",
		Func: sh.MustBeConnected(func(ctx context.Context, c *ishell.Context, d *nwp.Driver) {
			desc := make([]byte, 4)
			for i := 0; i < 2 && i < len(c.Args); i++ {
				val, err := strconv.ParseUint(c.Args[i], 0, 16)
				if err != nil {
					c.Err(fmt.Errorf("Invalid argument %q: %v", c.Args[i], err))
					return
				}
				desc[i*2], desc[i*2+1] = byte(val), byte(val>>8)
			}
			reply := &nwp.Reply{Payload: make([]byte, 256)}
			if err := d.Do(ctx, &nwp.Request{Opcode: protocol.OpDeviceGet, Desc: desc}, reply); err != nil {
				c.Err(err)
				return
			}
			printReply(c, reply)
		}),
	}

	// RawCmd sends an arbitrary command.
	RawCmd = ishell.Cmd{
		Name:    "device.cmd",
		Aliases: []string{"cmd"},
		Help:    "OPCODE [DESC(hex)] [PAYLOAD(hex)]",
		Func: sh.MustBeConnected(func(ctx context.Context, c *ishell.Context, d *nwp.Driver) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("OPCODE required"))
				return
			}
			op, err := strconv.ParseUint(c.Args[0], 16, 16)
			if err != nil {
				c.Err(fmt.Errorf("Invalid OPCODE: %v", err))
				return
			}
			req := &nwp.Request{Opcode: uint16(op)}
			if req.Desc, err = parseHexArg(c, 1); err != nil {
				c.Err(fmt.Errorf("Invalid DESC: %v", err))
				return
			}
			if req.Payload1, err = parseHexArg(c, 2); err != nil {
				c.Err(fmt.Errorf("Invalid PAYLOAD: %v", err))
				return
			}
			reply := &nwp.Reply{Payload: make([]byte, nwp.MaxDataLen)}
			if err := d.Do(ctx, req, reply); err != nil {
				c.Err(err)
				return
			}
			if reply.Opcode == 0 {
				c.Println("OK")
				return
			}
			printReply(c, reply)
		}),
	}

	// CreditsCmd prints the flow control credits.
	CreditsCmd = ishell.Cmd{
		Name:    "device.credits",
		Aliases: []string{"credits"},
		Help:    "",
		Func: sh.MustBeConnected(func(_ context.Context, c *ishell.Context, d *nwp.Driver) {
			current, reported := d.Credits()
			out := struct {
				Current  uint16 `json:"current"`
				Reported uint16 `json:"reported"`
			}{current, reported}
			sh.Print(c, &out, fmt.Sprintf("%d/%d", current, reported))
		}),
	}

	// PoolCmd prints the correlation pool usage.
	PoolCmd = ishell.Cmd{
		Name:    "device.pool",
		Aliases: []string{"pool"},
		Help:    "",
		Func: sh.MustBeConnected(func(_ context.Context, c *ishell.Context, d *nwp.Driver) {
			free, active, pending := d.PoolStats()
			out := struct {
				Free    int `json:"free"`
				Active  int `json:"active"`
				Pending int `json:"pending"`
			}{free, active, pending}
			sh.Print(c, &out, fmt.Sprintf("free=%d active=%d pending=%d", free, active, pending))
		}),
	}

	// AbortCmd forces the driver into restart required.
	AbortCmd = ishell.Cmd{
		Name:    "device.abort",
		Aliases: []string{"abort"},
		Help:    "[REASON]",
		Func: sh.MustBeConnected(func(_ context.Context, c *ishell.Context, d *nwp.Driver) {
			var reason uint64
			if len(c.Args) > 0 {
				var err error
				if reason, err = strconv.ParseUint(c.Args[0], 0, 32); err != nil {
					c.Err(fmt.Errorf("Invalid REASON: %v", err))
					return
				}
			}
			d.Abort(uint32(reason))
		}),
	}
)

func init() {
	sh.AddCmds(
		&GetCmd,
		&RawCmd,
		&CreditsCmd,
		&PoolCmd,
		&AbortCmd,
	)
}
