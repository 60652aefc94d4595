//go:build !unix

package command

import "os/exec"

// killProcessGroup leaves the default behavior, killing the direct child.
func killProcessGroup(cmd *exec.Cmd) {}
