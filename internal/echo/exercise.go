package echo

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/pipectl/internal/client"
)

var ErrEchoMismatch = errors.New("echo: reply does not match request")

// Request is the payload the exerciser sends each round.
var Request = []byte("Bit Bucket\x00")

// Exercise runs rounds sessions against name: open (retrying through the
// dialer), write Request, read the reply, compare, close.
func Exercise(ctx context.Context, d *client.Dialer, name string, rounds int) error {
	reply := make([]byte, BufferSize)
	for round := 0; round < rounds; round++ {
		if err := exerciseOnce(ctx, d, name, reply); err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
	}
	return nil
}

func exerciseOnce(ctx context.Context, d *client.Dialer, name string, reply []byte) error {
	c, err := d.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer c.Close()
	if _, err := c.Write(ctx, Request); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	n, err := c.Read(ctx, reply)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if !bytes.Equal(reply[:n], Request) {
		return fmt.Errorf("%w: got %q", ErrEchoMismatch, reply[:n])
	}
	return nil
}
