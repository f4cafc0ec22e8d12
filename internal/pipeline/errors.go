package pipeline

import (
	"errors"
	"fmt"
)

// ErrAborted marks any pipeline failure; ChannelError carries the detail.
var ErrAborted = errors.New("pipeline aborted")

// ChannelError reports which chunk and which execution channel failed.
type ChannelError struct {
	Pass    string
	Channel string
	Chunk   int
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s pass aborted: chunk %d on %s channel: %v", e.Pass, e.Chunk, e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Is lets callers match any abort with errors.Is(err, ErrAborted).
func (e *ChannelError) Is(target error) bool { return target == ErrAborted }
