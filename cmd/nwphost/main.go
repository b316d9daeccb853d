package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/nwp.go/pkg/env"
	"github.com/robotalks/nwp.go/pkg/framework"
	"github.com/robotalks/nwp.go/pkg/nwp"
)

var (
	autoRestart  = true
	restartDelay = time.Second
	stopTimeout  = time.Second
)

func init() {
	env.SetupFlags()
	flag.BoolVar(&autoRestart, "auto-restart", autoRestart, "Restart the driver after a fatal error")
	flag.DurationVar(&restartDelay, "restart-delay", restartDelay, "Delay before restarting")
	flag.DurationVar(&stopTimeout, "stop-timeout", stopTimeout, "Device stop timeout")
}

// supervisor keeps the driver running until the context is done.
type supervisor struct {
	driver  *nwp.Driver
	fatalCh chan *nwp.FatalError
}

func (s *supervisor) HandleFatal(ferr *nwp.FatalError) {
	select {
	case s.fatalCh <- ferr:
	default:
	}
}

func (s *supervisor) Run(ctx context.Context) error {
	if err := s.driver.Start(ctx); err != nil {
		return err
	}
	glog.Infof("driver started: %s", s.driver.Status())
	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout+time.Second)
			defer cancel()
			return s.driver.Stop(stopCtx, stopTimeout)
		case ferr := <-s.fatalCh:
			if !autoRestart {
				return ferr
			}
			glog.Warningf("restarting after %v", ferr)
			select {
			case <-time.After(restartDelay):
			case <-ctx.Done():
				continue
			}
			if err := s.driver.Restart(ctx); err != nil {
				glog.Errorf("restart failed: %v", err)
				s.HandleFatal(&nwp.FatalError{Code: nwp.FatalDriverAbort})
			}
		}
	}
}

func main() {
	flag.Parse()

	host, err := env.NewConfig().NewHost()
	if err != nil {
		glog.Exitln(err)
	}
	defer host.Close()

	sup := &supervisor{driver: host.Driver, fatalCh: make(chan *nwp.FatalError, 1)}
	host.Driver.OnFatal(sup)
	runner := framework.NewRunner().HandleSignals().Go(framework.NamedRun("driver", sup))
	if host.Bridge != nil {
		runner.Go(framework.NamedRun("bridge", host.Bridge))
	}
	if err := runner.Wait(); err != nil {
		glog.Exitln(err)
	}
}
