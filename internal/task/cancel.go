package task

import "sync"

// CancellationTokenSource issues a Token and signals it.
type CancellationTokenSource struct {
	token *Token
}

// NewCancellationTokenSource returns a source with a fresh, uncancelled token.
func NewCancellationTokenSource() *CancellationTokenSource {
	return &CancellationTokenSource{token: &Token{done: make(chan struct{})}}
}

// Token returns the token observed by the callee.
func (s *CancellationTokenSource) Token() *Token {
	return s.token
}

// Cancel signals the token. Safe to call more than once.
func (s *CancellationTokenSource) Cancel() {
	s.token.cancel()
}

// Token is a cooperative cancellation signal passed to platform calls.
// A nil *Token is valid and never cancels.
type Token struct {
	mu        sync.Mutex
	canceled  bool
	done      chan struct{}
	callbacks []func()
}

func (t *Token) cancel() {
	t.mu.Lock()
	if t.canceled {
		t.mu.Unlock()
		return
	}
	t.canceled = true
	close(t.done)
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// IsCancellationRequested reports whether Cancel has been called.
func (t *Token) IsCancellationRequested() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// OnCanceled registers fn to run when the token is cancelled, or runs it
// immediately if it already was.
func (t *Token) OnCanceled(fn func()) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if !t.canceled {
		t.callbacks = append(t.callbacks, fn)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn()
}

// Done returns a channel closed on cancellation. For a nil token it returns
// nil, which blocks forever in a select.
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}
