package config

import (
	"os/exec"
)

// SetupCommand runs before the device is opened, e.g. to load a kernel module or set V4L2 controls.
type SetupCommand []string

func (s SetupCommand) ToCommand() (*exec.Cmd, error) {
	if len(s) == 0 {
		return nil, nil
	}

	return exec.Command(s[0], s[1:]...), nil
}
