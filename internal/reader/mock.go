package reader

import (
	"context"
	"sync"
)

// Mock is an in-memory Device for development and tests. Tags are presented
// by calling Present; WaitForTag blocks until one is available.
type Mock struct {
	mu     sync.Mutex
	queue  chan *MockTag
	closed bool
}

// NewMock creates a mock device.
func NewMock() *Mock {
	return &Mock{queue: make(chan *MockTag, 8)}
}

// Present enqueues a tag presentation.
func (m *Mock) Present(t *MockTag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- t:
	default:
	}
}

// WaitForTag implements Device.
func (m *Mock) WaitForTag(ctx context.Context) (Tag, error) {
	select {
	case t := <-m.queue:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Device.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// MockTag is a Tag with settable UID and NDEF content.
type MockTag struct {
	ID       string
	NDEF     []byte
	NotNDEF  bool
	ReadErr  error
	WriteErr error

	Written [][]byte
	Closed  bool
}

func (t *MockTag) UID() string { return t.ID }

func (t *MockTag) ReadNDEF() ([]byte, error) {
	if t.NotNDEF {
		return nil, ErrNotNDEF
	}
	if t.ReadErr != nil {
		return nil, t.ReadErr
	}
	return t.NDEF, nil
}

func (t *MockTag) WriteNDEF(msg []byte) error {
	if t.NotNDEF {
		return ErrNotNDEF
	}
	if t.WriteErr != nil {
		return t.WriteErr
	}
	t.NDEF = msg
	t.Written = append(t.Written, msg)
	return nil
}

func (t *MockTag) Close() error {
	t.Closed = true
	return nil
}
