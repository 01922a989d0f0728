package shutdown

import (
	"bufio"
	"io"
	"strings"
)

// WatchControl reads commands from r, one per line, and requests shutdown on
// "q" or "quit". It returns when r is exhausted or a quit was read.
func WatchControl(r io.Reader, c *Coordinator) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "q", "quit":
			c.Request("control: quit")
			return
		}
	}
}
