package capture

import (
	"context"
	"sync"
)

// FrameBuffer is a Source fed by the client: the exam stream pushes camera frames
// into it and each capture tick takes the newest one. A frame is consumed once.
type FrameBuffer struct {
	mu    sync.Mutex
	frame *Frame
}

func (b *FrameBuffer) Push(frame Frame) {
	if len(frame.Data) == 0 {
		return
	}
	if frame.ContentType == "" {
		frame.ContentType = "image/jpeg"
	}
	b.mu.Lock()
	b.frame = &frame
	b.mu.Unlock()
}

func (b *FrameBuffer) Snapshot(_ context.Context) (Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil {
		return Frame{}, ErrNoFrame
	}
	f := *b.frame
	b.frame = nil
	return f, nil
}
