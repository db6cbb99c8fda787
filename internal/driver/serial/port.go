// Package serial drives the robot's USB serial devices using go.bug.st/serial.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	bugserial "go.bug.st/serial"

	"robot_control/internal/driver"
)

// maxLine bounds a single reply so a noisy line cannot grow forever.
const maxLine = 4096

// Open opens dev at baud with a read timeout. A timed out read returns no
// bytes, which lineConn reports as driver.ErrReadTimeout.
func Open(dev string, baud int, timeout time.Duration) (io.ReadWriteCloser, error) {
	p, err := bugserial.Open(dev, &bugserial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", dev, err)
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", dev, err)
	}
	return p, nil
}

// lineConn reads delimiter terminated replies byte by byte so nothing is
// buffered past the end of a reply.
type lineConn struct {
	port io.ReadWriteCloser
	buf  [1]byte
}

func newLineConn(port io.ReadWriteCloser) *lineConn {
	return &lineConn{port: port}
}

func (c *lineConn) write(s string) error {
	if c.port == nil {
		return driver.ErrNotOpen
	}
	_, err := io.WriteString(c.port, s)
	return err
}

// readUntil returns everything up to and including delim.
func (c *lineConn) readUntil(delim byte) (string, error) {
	if c.port == nil {
		return "", driver.ErrNotOpen
	}
	var line []byte
	for len(line) < maxLine {
		n, err := c.port.Read(c.buf[:])
		if n == 1 {
			line = append(line, c.buf[0])
			if c.buf[0] == delim {
				return string(line), nil
			}
			continue
		}
		if err == nil || errors.Is(err, io.EOF) {
			return string(line), driver.ErrReadTimeout
		}
		return string(line), err
	}
	return string(line), driver.ErrMalformed
}

func (c *lineConn) close() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}
