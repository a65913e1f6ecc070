package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type script struct {
	errs     []error
	sends    int
	dials    int
	resetErr error
	closed   int
}

type fakeConn struct{ s *script }

func (f *fakeConn) Send(...*mail.Msg) error {
	f.s.sends++
	if len(f.s.errs) == 0 {
		return nil
	}
	err := f.s.errs[0]
	f.s.errs = f.s.errs[1:]
	return err
}

func (f *fakeConn) Reset() error { return f.s.resetErr }

func (f *fakeConn) Close() error {
	f.s.closed++
	return nil
}

func (s *script) dial(context.Context) (conn, error) {
	s.dials++
	return &fakeConn{s: s}, nil
}

func testPool(s *script, maxConns, maxRetries int) *Pool {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	p := newPool(Config{From: "noreply@example.com", MaxConnections: maxConns, MaxRetries: maxRetries}, logger, s.dial)
	p.after = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	return p
}

var testMsg = Message{To: "asha@example.com", Subject: "Hi", HTML: "<p>hi</p>", Text: "hi"}

func TestPool_ReusesConnection(t *testing.T) {
	s := &script{}
	p := testPool(s, 2, 3)

	require.NoError(t, p.Send(context.Background(), testMsg))
	require.NoError(t, p.Send(context.Background(), testMsg))

	assert.Equal(t, 1, s.dials)
	assert.Equal(t, 2, s.sends)
	require.NoError(t, p.Close())
	assert.Equal(t, 1, s.closed)
}

func TestPool_RetriesTransientFailure(t *testing.T) {
	s := &script{errs: []error{&textproto.Error{Code: 421, Msg: "try later"}}}
	p := testPool(s, 1, 3)

	require.NoError(t, p.Send(context.Background(), testMsg))
	assert.Equal(t, 2, s.sends)
	assert.Equal(t, 2, s.dials, "broken connection must be redialled")
}

func TestPool_AuthFailureIsNotRetried(t *testing.T) {
	s := &script{errs: []error{&textproto.Error{Code: 535, Msg: "authentication failed"}}}
	p := testPool(s, 1, 3)

	err := p.Send(context.Background(), testMsg)
	require.Error(t, err)
	assert.Equal(t, 1, s.sends)
}

func TestPool_GivesUpAfterMaxRetries(t *testing.T) {
	transient := &textproto.Error{Code: 451, Msg: "busy"}
	s := &script{errs: []error{transient, transient, transient, transient, transient}}
	p := testPool(s, 1, 3)

	err := p.Send(context.Background(), testMsg)
	require.Error(t, err)
	assert.Equal(t, 4, s.sends)
}

func TestPool_DiscardsStaleIdleConnection(t *testing.T) {
	s := &script{}
	p := testPool(s, 1, 0)

	require.NoError(t, p.Send(context.Background(), testMsg))
	s.resetErr = errors.New("connection closed by peer")
	require.NoError(t, p.Send(context.Background(), testMsg))

	assert.Equal(t, 2, s.dials)
	assert.Equal(t, 1, s.closed)
}

func TestPool_BoundedConnections(t *testing.T) {
	s := &script{}
	p := testPool(s, 1, 0)

	held, err := p.EnsureReady(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.EnsureReady(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.release(held, true)
	again, err := p.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.Same(t, held, again)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(0))
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
	assert.Equal(t, 16*time.Second, Backoff(4))
	assert.Equal(t, 30*time.Second, Backoff(5))
	assert.Equal(t, 30*time.Second, Backoff(40))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection refused", fmt.Errorf("dial: %w", &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"host unreachable", syscall.EHOSTUNREACH, true},
		{"network timeout", fmt.Errorf("read: %w", timeoutErr{}), true},
		{"smtp 4xx", &textproto.Error{Code: 421}, true},
		{"smtp 550", &textproto.Error{Code: 550}, false},
		{"auth 535", fmt.Errorf("auth: %w", &textproto.Error{Code: 535}), false},
		{"context cancelled", context.Canceled, false},
		{"unknown", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestOTPMessage(t *testing.T) {
	msg, err := OTPMessage("asha@example.com", "Asha", "482913", PurposeCompletion, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", msg.To)
	assert.Contains(t, msg.HTML, "482913")
	assert.Contains(t, msg.Text, "482913")
	assert.Contains(t, msg.Text, "10 minutes")

	_, err = OTPMessage("a@example.com", "", "1", Purpose("nope"), time.Minute)
	assert.Error(t, err)
}
