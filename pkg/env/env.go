// Package env provides common options to set up an NWP host.
package env

import (
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/nwp.go/pkg/bridge/mqtt"
	"github.com/robotalks/nwp.go/pkg/nwp"
	"github.com/robotalks/nwp.go/pkg/nwp/transport/stream"
	"github.com/robotalks/nwp.go/pkg/nwp/transport/websocket"
)

// Config provides common options of NWP host programs.
type Config struct {
	// DeviceAddr locates the device, either host:port (TCP) or a
	// ws:// URL.
	DeviceAddr string
	// HostID identifies this host on the bridge, defaults to machine ID.
	HostID string
	// MQTTBrokerURL enables the bridge when not empty.
	// e.g. mqtt://host:port/topic-prefix/
	MQTTBrokerURL string

	Driver nwp.Config
}

var defaultConfig = Config{
	DeviceAddr: "localhost:7788",
	Driver:     nwp.DefaultConfig(),
}

func init() {
	defaultConfig.load(os.Getenv)
}

func (c *Config) load(getenv func(string) string) {
	if val := getenv("NWP_ADDR"); val != "" {
		c.DeviceAddr = val
	}
	if val := getenv("NWP_HOST_ID"); val != "" {
		c.HostID = val
	}
	if val := getenv("NWP_MQTT_URL"); val != "" {
		c.MQTTBrokerURL = val
	}
	if val := getenv("NWP_LONG_SYNC"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Driver.LongSync = b
		}
	}
	if val := getenv("NWP_CMD_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Driver.CmdTimeout = d
		}
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	c := &defaultConfig
	flag.StringVar(&c.DeviceAddr, "addr", c.DeviceAddr, "Device address, host:port or ws://host:port/path")
	flag.StringVar(&c.HostID, "id", c.HostID, "Host ID, defaults to machine ID")
	flag.StringVar(&c.MQTTBrokerURL, "mqtt", c.MQTTBrokerURL, "MQTT broker URL, empty to disable bridge")
	flag.BoolVar(&c.Driver.LongSync, "long-sync", c.Driver.LongSync, "Use long host sync pattern")
	flag.DurationVar(&c.Driver.CmdTimeout, "cmd-timeout", c.Driver.CmdTimeout, "Command reply timeout")
	flag.DurationVar(&c.Driver.InitTimeout, "init-timeout", c.Driver.InitTimeout, "Init complete timeout")
	flag.DurationVar(&c.Driver.AsyncTimeout, "async-timeout", c.Driver.AsyncTimeout, "Async reply timeout, 0 waits forever")
	flag.IntVar(&c.Driver.PoolSize, "pool-size", c.Driver.PoolSize, "Number of async correlation slots")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// ID returns HostID or falls back to the machine ID.
func (c *Config) ID() string {
	if c.HostID != "" {
		return c.HostID
	}
	id, err := machineid.ID()
	if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
		hostname, _ := os.Hostname()
		return hostname
	}
	return id
}

// Dial connects to the device.
func (c *Config) Dial() (*stream.Transport, error) {
	if u, err := url.Parse(c.DeviceAddr); err == nil && (u.Scheme == "ws" || u.Scheme == "wss") {
		return websocket.Dial(c.DeviceAddr)
	}
	conn, err := net.Dial("tcp", c.DeviceAddr)
	if err != nil {
		return nil, fmt.Errorf("dial device %s error: %w", c.DeviceAddr, err)
	}
	return stream.New(conn), nil
}

// Host is a connected driver with its optional bridge.
type Host struct {
	Config    *Config
	Transport *stream.Transport
	Driver    *nwp.Driver
	Bridge    *mqtt.Bridge
}

// NewHost dials the device and creates the driver. The bridge is created
// when MQTTBrokerURL is set; its event publisher is installed on the
// driver handlers.
func (c *Config) NewHost() (*Host, error) {
	tr, err := c.Dial()
	if err != nil {
		return nil, err
	}
	h := &Host{Config: c, Transport: tr, Driver: nwp.New(tr, c.Driver)}
	if c.MQTTBrokerURL != "" {
		opts, prefix, err := mqtt.ClientOptionsFromURL(c.MQTTBrokerURL)
		if err != nil {
			tr.Close()
			return nil, fmt.Errorf("invalid MQTT URL: %w", err)
		}
		id := c.ID()
		if opts.ClientID == "" {
			opts.SetClientID("nwp:" + id)
		}
		h.Bridge = mqtt.New(mqtt.NewQueue(opts, prefix), id, h.Driver)
		h.Bridge.Install(&h.Driver.Handlers)
		h.Driver.OnFatal(h.Bridge)
	}
	return h, nil
}

// Close releases the transport.
func (h *Host) Close() error {
	return h.Transport.Close()
}
