// Package externalcmd allows to launch external commands.
package externalcmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
)

var errTerminated = errors.New("terminated")

// OnExitFunc is the prototype of onExit.
type OnExitFunc func(error)

// Environment is a Cmd environment.
type Environment map[string]string

func (env Environment) toList() []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ret := append([]string(nil), os.Environ()...)
	for _, key := range keys {
		ret = append(ret, key+"="+env[key])
	}
	return ret
}

// Cmd is an external command that runs once.
type Cmd struct {
	pool   *Pool
	cmdstr string
	env    Environment
	onExit OnExitFunc

	// in
	terminate chan struct{}
}

// NewCmd launches a Cmd.
// Variables in cmdstr are replaced with values of env or of the process environment,
// on every platform.
func NewCmd(
	pool *Pool,
	cmdstr string,
	env Environment,
	onExit OnExitFunc,
) *Cmd {
	cmdstr = os.Expand(cmdstr, func(variable string) string {
		if value, ok := env[variable]; ok {
			return value
		}
		return os.Getenv(variable)
	})

	if onExit == nil {
		onExit = func(_ error) {}
	}

	e := &Cmd{
		pool:      pool,
		cmdstr:    cmdstr,
		env:       env,
		onExit:    onExit,
		terminate: make(chan struct{}),
	}

	pool.add(e)

	go e.run()

	return e
}

// Close terminates the command. It doesn't wait for the command to exit.
func (e *Cmd) Close() {
	e.pool.terminate(e)
}

func (e *Cmd) run() {
	defer e.pool.remove(e)

	err := e.runOSSpecific(e.env.toList())
	if errors.Is(err, errTerminated) {
		return
	}

	e.onExit(err)
}

func exitError(code int) error {
	if code != 0 {
		return fmt.Errorf("command exited with code %d", code)
	}
	return nil
}
