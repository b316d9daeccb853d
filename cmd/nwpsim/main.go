package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"io"
	"net"
	"net/http"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/nwp.go/pkg/framework"
	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
	"github.com/robotalks/nwp.go/pkg/nwp/sim"
	wstransport "github.com/robotalks/nwp.go/pkg/nwp/transport/websocket"
)

var (
	tcpAddr  = ":7788"
	wsAddr   = ""
	echo     = true
	options  = sim.DefaultOptions()
	credits  = uint(options.Credits)
	unitSize = uint(options.MinPayloadUnit)
)

func init() {
	flag.StringVar(&tcpAddr, "listen", tcpAddr, "TCP listen address, empty to disable")
	flag.StringVar(&wsAddr, "ws", wsAddr, "Websocket listen address, empty to disable")
	flag.BoolVar(&echo, "echo", echo, "Loop data sent on a socket back to its receive side")
	flag.UintVar(&credits, "credits", credits, "Transmit buffer credits")
	flag.UintVar(&unitSize, "unit", unitSize, "Minimum payload unit per credit")
	flag.BoolVar(&options.LongSync, "long-sync", options.LongSync, "Expect long host sync pattern")
}

func serveDevice(ctx context.Context, rw io.ReadWriter, name string) {
	glog.Infof("device %s connected", name)
	dev := sim.New(rw, options)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if echo {
		go func() {
			for {
				var cmd *sim.Command
				select {
				case cmd = <-dev.Commands():
				case <-ctx.Done():
					return
				}
				if cmd.Opcode != protocol.OpSocketSend || cmd.Len() > len(cmd.Payload) {
					continue
				}
				data := cmd.Payload[len(cmd.Payload)-cmd.Len():]
				if err := dev.PushData(cmd.Socket(), data); err != nil {
					glog.Warningf("device %s: echo: %v", name, err)
				}
			}
		}()
	}
	if err := dev.Boot(); err != nil {
		glog.Errorf("device %s: boot: %v", name, err)
		return
	}
	err := dev.Serve(ctx)
	glog.Infof("device %s disconnected: %v", name, err)
}

func serveTCP(ctx context.Context) error {
	ln, err := net.Listen("tcp", tcpAddr)
	if err != nil {
		return err
	}
	glog.Infof("listening on tcp %s", ln.Addr())
	return framework.RunWithContextCloser(ctx, ln, func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			go serveDevice(ctx, conn, conn.RemoteAddr().String())
		}
	})
}

func serveWebsocket(ctx context.Context) error {
	srv := &http.Server{
		Addr: wsAddr,
		Handler: wstransport.Handler(func(conn *websocket.Conn) {
			serveDevice(ctx, conn, conn.Request().RemoteAddr)
		}),
	}
	glog.Infof("listening on websocket %s", wsAddr)
	return framework.RunWithContextCloser(ctx, srv, srv.ListenAndServe)
}

func main() {
	flag.Parse()
	options.Credits = uint8(credits)
	options.MinPayloadUnit = uint16(unitSize)

	runner := framework.NewRunner().HandleSignals()
	if tcpAddr != "" {
		runner.Go(framework.NamedRun("tcp", framework.RunFunc(serveTCP)))
	}
	if wsAddr != "" {
		runner.Go(framework.NamedRun("websocket", framework.RunFunc(serveWebsocket)))
	}
	if err := runner.Wait(); err != nil {
		glog.Exitln(err)
	}
}
