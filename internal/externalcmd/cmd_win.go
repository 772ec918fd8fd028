//go:build windows

package externalcmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"unsafe"

	"github.com/kballard/go-shellquote"
	"golang.org/x/sys/windows"
)

// jobObject kills every process assigned to it when closed.
type jobObject windows.Handle

func newJobObject() (jobObject, error) {
	h, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return 0, err
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	_, err = windows.SetInformationJobObject(
		h,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)))
	if err != nil {
		windows.CloseHandle(h) //nolint:errcheck
		return 0, err
	}

	return jobObject(h), nil
}

func (j jobObject) assign(p *os.Process) error {
	ph, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(p.Pid))
	if err != nil {
		return fmt.Errorf("unable to open process: %w", err)
	}
	defer windows.CloseHandle(ph) //nolint:errcheck

	return windows.AssignProcessToJobObject(windows.Handle(j), ph)
}

func (j jobObject) close() {
	windows.CloseHandle(windows.Handle(j)) //nolint:errcheck
}

func buildCommand(cmdstr string) (*exec.Cmd, error) {
	// cmd.exe has its own unquoting rules, therefore the command line is passed as is.
	for _, prefix := range []string{"cmd ", "cmd.exe "} {
		if strings.HasPrefix(cmdstr, prefix) {
			cmd := exec.Command("cmd.exe")
			cmd.SysProcAttr = &syscall.SysProcAttr{
				CmdLine: strings.TrimPrefix(cmdstr, prefix),
			}
			return cmd, nil
		}
	}

	parts, err := shellquote.Split(cmdstr)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	return exec.Command(parts[0], parts[1:]...), nil
}

func (e *Cmd) runOSSpecific(env []string) error {
	cmd, err := buildCommand(e.cmdstr)
	if err != nil {
		return err
	}

	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	job, err := newJobObject()
	if err != nil {
		return err
	}

	err = cmd.Start()
	if err != nil {
		job.close()
		return err
	}

	err = job.assign(cmd.Process)
	if err != nil {
		job.close()
		cmd.Process.Kill() //nolint:errcheck
		cmd.Wait()         //nolint:errcheck
		return err
	}

	cmdDone := make(chan error)
	go func() {
		cmdDone <- cmd.Wait()
	}()

	select {
	case <-e.terminate:
		job.close()
		<-cmdDone
		return errTerminated

	case err = <-cmdDone:
		job.close()

		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return exitError(ee.ExitCode())
		}
		return err
	}
}
