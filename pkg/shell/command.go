package shell

import (
	"context"
	"os/exec"
)

// Command like exec.Cmd, but with support:
// - io.Closer interface
// - Wait from multiple places
// - Done channel
type Command struct {
	*exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewCommand(s string) *Command {
	return NewCommandArgs(QuoteSplit(s))
}

func NewCommandArgs(args []string) *Command {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.SysProcAttr = procAttr
	return &Command{Cmd: cmd, cancel: cancel, done: make(chan struct{})}
}

func (c *Command) Start() error {
	if err := c.Cmd.Start(); err != nil {
		c.cancel()
		c.err = err
		close(c.done)
		return err
	}

	go func() {
		c.err = c.Cmd.Wait()
		c.cancel() // release context resources
		close(c.done)
	}()

	return nil
}

// Wait for exit, safe from many goroutines
func (c *Command) Wait() error {
	<-c.done
	return c.err
}

func (c *Command) Run() error {
	if err := c.Start(); err != nil {
		return err
	}
	return c.Wait()
}

func (c *Command) Done() <-chan struct{} {
	return c.done
}

// Close kills the process if it is still running
func (c *Command) Close() error {
	c.cancel()
	return nil
}
