package supervise

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ErrNotStarted is returned when a signal is sent to a child that is not
// running.
var ErrNotStarted = fmt.Errorf("child process not started")

// child wraps a single spawned bitcoind with exit tracking and stream
// access. It is safe for concurrent use.
type child struct {
	// id is a unique spawn identifier, carried through log records so
	// successive children of the same manager can be told apart.
	id string

	cmd *exec.Cmd

	// stdout and stderr are the piped output streams.
	stdout io.ReadCloser
	stderr io.ReadCloser

	started time.Time

	// done is closed once Wait has returned and exit details are recorded.
	done chan struct{}

	// exitCode is -1 until the child exits.
	exitCode atomic.Int32

	mu         sync.RWMutex
	exitSignal string
	exitErr    error

	waitOnce sync.Once
}

// spawn builds, pipes, and starts a child for the given command.
func spawn(cmd *exec.Cmd) (*child, error) {
	c := &child{
		id:   uuid.New().String(),
		cmd:  cmd,
		done: make(chan struct{}),
	}
	c.exitCode.Store(-1)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	c.stdout = stdout
	c.stderr = stderr

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}
	c.started = time.Now()

	go c.waitLoop()
	return c, nil
}

// waitLoop waits for the child to exit and records code and signal.
func (c *child) waitLoop() {
	c.waitOnce.Do(func() {
		err := c.cmd.Wait()

		code := 0
		signal := ""
		if err != nil {
			code = -1
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
					signal = status.Signal().String()
				}
			}
		}

		c.mu.Lock()
		c.exitErr = err
		c.exitSignal = signal
		c.mu.Unlock()
		c.exitCode.Store(int32(code))
		close(c.done)
	})
}

// Done returns a channel closed when the child has exited.
func (c *child) Done() <-chan struct{} {
	return c.done
}

// ExitCode returns the exit code, or -1 while the child is running.
func (c *child) ExitCode() int {
	return int(c.exitCode.Load())
}

// ExitSignal names the terminating signal, or "" for a plain exit.
func (c *child) ExitSignal() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exitSignal
}

// PID returns the OS process id, or -1 if never started.
func (c *child) PID() int {
	if c.cmd.Process == nil {
		return -1
	}
	return c.cmd.Process.Pid
}

// Signal sends sig to the child.
func (c *child) Signal(sig os.Signal) error {
	if c.cmd.Process == nil {
		return ErrNotStarted
	}
	select {
	case <-c.done:
		return ErrNotStarted
	default:
	}
	return c.cmd.Process.Signal(sig)
}

// Terminate sends SIGTERM.
func (c *child) Terminate() error {
	return c.Signal(syscall.SIGTERM)
}

// Kill sends SIGKILL.
func (c *child) Kill() error {
	return c.Signal(syscall.SIGKILL)
}
