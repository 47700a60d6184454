package main

import (
	"bufio"
	"io"
	"sync"
)

// bufferedConsole implements syscallx.Console with a bufio.Writer:
// output only reaches the terminal at a resume's natural stopping
// points rather than after every print syscall.
type bufferedConsole struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func newBufferedConsole(out io.Writer) *bufferedConsole {
	return &bufferedConsole{w: bufio.NewWriter(out)}
}

func (c *bufferedConsole) Print(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.WriteString(text)
}

// Flush pushes buffered output to the terminal. Call at every
// Finished/Paused/Breakpoint boundary.
func (c *bufferedConsole) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
}
