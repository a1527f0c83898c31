package pgfe

import "context"

// Copier returns the active Copier while IsCopyInProgress(), if any.
func (c *Connection) Copier() (*Copier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeCopier == nil {
		return nil, false
	}
	return c.activeCopier, true
}

// ExecuteCopyIn runs a "COPY ... FROM STDIN" sql and returns a Copier for
// streaming rows to the server with Send/End.
func (c *Connection) ExecuteCopyIn(ctx context.Context, sql string) (*Copier, error) {
	return c.startCopyIn(ctx, sql)
}

// ExecuteCopyOut runs a "COPY ... TO STDOUT" sql and returns a Copier for
// draining rows from the server with Receive.
func (c *Connection) ExecuteCopyOut(ctx context.Context, sql string) (*Copier, error) {
	return c.startCopyOut(ctx, sql)
}
