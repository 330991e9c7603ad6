package output

import (
	"context"

	"github.com/norasector/rxtap/pkg/rxtap/block"
)

// Sink consumes published sample blocks.
type Sink interface {
	// Start receives a context and should run in a loop, terminating upon ctx closing or on any errors.
	Start(ctx context.Context) error
	// Receive returns a channel that receives sample blocks.
	Receive() chan<- *block.Block
}
