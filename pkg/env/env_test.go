package env

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nwp.go/pkg/nwp/sim"
)

func TestLoadEnv(t *testing.T) {
	vars := map[string]string{
		"NWP_ADDR":        "ws://dev:8080/nwp",
		"NWP_HOST_ID":     "h1",
		"NWP_MQTT_URL":    "mqtt://broker:1883/nwp/",
		"NWP_LONG_SYNC":   "true",
		"NWP_CMD_TIMEOUT": "3s",
	}
	c := NewConfig()
	c.load(func(key string) string { return vars[key] })
	require.Equal(t, "ws://dev:8080/nwp", c.DeviceAddr)
	require.Equal(t, "h1", c.ID())
	require.Equal(t, "mqtt://broker:1883/nwp/", c.MQTTBrokerURL)
	require.True(t, c.Driver.LongSync)
	require.Equal(t, 3*time.Second, c.Driver.CmdTimeout)
}

func TestNewHostTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		dev := sim.New(conn, sim.DefaultOptions())
		if dev.Boot() == nil {
			dev.Serve(ctx)
		}
	}()

	c := NewConfig()
	c.DeviceAddr = ln.Addr().String()
	c.MQTTBrokerURL = ""
	c.Driver.InitTimeout = time.Second
	h, err := c.NewHost()
	require.NoError(t, err)
	defer h.Close()
	require.Nil(t, h.Bridge)
	require.NoError(t, h.Driver.Start(ctx))
	require.NoError(t, h.Driver.Stop(ctx, 100*time.Millisecond))
}
