//go:build !windows

package video

import "os/exec"

// setNoWindow is a no-op outside Windows, where no console window is
// ever created for a subprocess.
func setNoWindow(*exec.Cmd) {}
