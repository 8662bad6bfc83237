//go:build windows

package video

import (
	"os/exec"
	"syscall"
)

// setNoWindow suppresses the console window ffmpeg would otherwise pop
// up when launched from a GUI-mode Windows process.
func setNoWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true, CreationFlags: 0x08000000} // CREATE_NO_WINDOW
}
