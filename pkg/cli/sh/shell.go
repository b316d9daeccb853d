package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/nwp.go/pkg/env"
	"github.com/robotalks/nwp.go/pkg/nwp"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Config *env.Config
	Host   *env.Host
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	cmdTimeout = 15 * time.Second

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&StatusCmd,
		&RestartCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.DurationVar(&cmdTimeout, "timeout", cmdTimeout, "Timeout of each shell command.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     cmdTimeout,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a started driver.
func MustBeConnected(fn func(ctx context.Context, c *ishell.Context, d *nwp.Driver)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c)
		if s.Host == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
		defer cancel()
		fn(ctx, c, s.Host.Driver)
	}
}

// Print prints v as JSON in JSON mode, otherwise the text form.
func Print(c *ishell.Context, v interface{}, text string) {
	if !ShellFrom(c).OutputJSON {
		c.Println(text)
		return
	}
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect dials the device and starts the driver.
func (s *Shell) Connect(addr string) error {
	conf := *s.Config
	if addr != "" {
		conf.DeviceAddr = addr
	}
	host, err := conf.NewHost()
	if err != nil {
		return err
	}
	host.Driver.OnFatal(nwp.HandleFatalFunc(func(ferr *nwp.FatalError) {
		s.Shell.Printf("\n%v, restart required\n", ferr)
	}))
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()
	if err := host.Driver.Start(ctx); err != nil {
		host.Close()
		return err
	}
	s.Disconnect()
	s.Host = host
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", conf.DeviceAddr))
	return nil
}

// Disconnect stops the driver and closes the connection.
func (s *Shell) Disconnect() {
	if s.Host == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()
	if err := s.Host.Driver.Stop(ctx, time.Second); err != nil {
		s.Shell.Printf("stop: %v\n", err)
	}
	s.Host.Close()
	s.Host = nil
	s.Shell.SetPrompt(unconnectedPrompt)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.DeviceAddr)
		}
		if err := s.Connect(""); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.DeviceAddr, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// ConnectCmd connects a device.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[ADDR]",
		Func: func(c *ishell.Context) {
			var addr string
			if len(c.Args) > 0 {
				addr = c.Args[0]
			}
			if err := ShellFrom(c).Connect(addr); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd stops the driver.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// StatusCmd prints the driver status.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustBeConnected(func(_ context.Context, c *ishell.Context, d *nwp.Driver) {
			st := struct {
				Status    string `json:"status"`
				DevStatus uint8  `json:"dev_status"`
				Fatal     string `json:"fatal,omitempty"`
			}{Status: d.Status().String(), DevStatus: d.DevStatus()}
			if ferr := d.Fatal(); ferr != nil {
				st.Fatal = ferr.Error()
			}
			text := fmt.Sprintf("%s dev=%02x", st.Status, st.DevStatus)
			if st.Fatal != "" {
				text += " " + st.Fatal
			}
			Print(c, &st, text)
		}),
	}

	// RestartCmd restarts the driver after a fatal error.
	RestartCmd = ishell.Cmd{
		Name:    "restart",
		Aliases: []string{"rs"},
		Help:    "",
		Func: MustBeConnected(func(ctx context.Context, c *ishell.Context, d *nwp.Driver) {
			if err := d.Restart(ctx); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
