//go:build !unix

package command

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func configureProcess(*exec.Cmd) {}

func signalProcess(p *os.Process, sig syscall.Signal) error {
	var err error
	if sig == syscall.SIGKILL {
		err = p.Kill()
	} else {
		err = p.Signal(sig)
	}
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
