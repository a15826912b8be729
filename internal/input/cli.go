package input

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"sync"
)

// CLI reads command lines from a terminal. A single scanner goroutine
// owns the reader for the life of the process; Listen and Stop only
// attach and detach from it, so a stop never strands the scanner in the
// middle of a Read and lines typed while detached are delivered once
// listening resumes.
type CLI struct {
	reader io.Reader

	mu        sync.Mutex
	listening bool
	out       chan Data
	cancel    context.CancelFunc
	done      chan struct{}

	// pending holds a line taken from the scanner but not yet delivered
	// when a stop lands in between; the next Listen serves it first.
	pending    string
	hasPending bool

	readOnce sync.Once
	lines    chan string
}

// CLIOption adjusts a CLI source.
type CLIOption func(*CLI)

// WithReader replaces os.Stdin, mainly for tests.
func WithReader(r io.Reader) CLIOption {
	return func(c *CLI) { c.reader = r }
}

func NewCLI(opts ...CLIOption) *CLI {
	c := &CLI{
		reader: os.Stdin,
		lines:  make(chan string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CLI) Name() string { return "cli" }

func (c *CLI) Type() Kind { return KindText }

// Available is always true: a terminal needs nothing set up.
func (c *CLI) Available() bool { return true }

func (c *CLI) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

func (c *CLI) Settings() map[string]any { return nil }

// startReader launches the scanner goroutine on first use. Blank lines
// are skipped; the lines channel closes on EOF.
func (c *CLI) startReader() {
	c.readOnce.Do(func() {
		go func() {
			defer close(c.lines)
			sc := bufio.NewScanner(c.reader)
			sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for sc.Scan() {
				line := strings.TrimSpace(sc.Text())
				if line == "" {
					continue
				}
				c.lines <- line
			}
		}()
	})
}

func (c *CLI) Listen(ctx context.Context) (<-chan Data, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listening {
		return c.out, nil
	}
	c.startReader()

	runCtx, cancel := context.WithCancel(ctx)
	out := make(chan Data)
	done := make(chan struct{})
	c.listening, c.out, c.cancel, c.done = true, out, cancel, done

	go func() {
		defer close(done)
		defer close(out)
		for {
			line, ok := c.takePending()
			if !ok {
				select {
				case l, open := <-c.lines:
					if !open {
						c.setListening(false)
						return
					}
					line = l
				case <-runCtx.Done():
					return
				}
			}
			select {
			case out <- Data{Kind: KindText, Text: line}:
			case <-runCtx.Done():
				c.storePending(line)
				return
			}
		}
	}()
	return out, nil
}

func (c *CLI) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return nil
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.setListening(false)
	return nil
}

func (c *CLI) setListening(v bool) {
	c.mu.Lock()
	c.listening = v
	c.mu.Unlock()
}

func (c *CLI) takePending() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasPending {
		return "", false
	}
	line := c.pending
	c.pending, c.hasPending = "", false
	return line, true
}

func (c *CLI) storePending(line string) {
	c.mu.Lock()
	c.pending, c.hasPending = line, true
	c.mu.Unlock()
}
