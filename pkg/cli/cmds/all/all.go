package all

import (
	// enable device commands.
	_ "github.com/robotalks/nwp.go/pkg/cli/cmds/device"
	// enable socket commands.
	_ "github.com/robotalks/nwp.go/pkg/cli/cmds/socket"
)
