//go:build !windows

package procexec

import "os/exec"

func hideWindow(*exec.Cmd) {}
