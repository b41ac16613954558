package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/labmgr/pkg/mail"
)

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	sent     chan mail.Message
	err      error
	panicMsg string
	block    chan struct{}
	calls    atomic.Int32
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{sent: make(chan mail.Message, 64)}
}

func (m *recordingMailer) Send(ctx context.Context, msg mail.Message) error {
	m.calls.Add(1)
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
	m.sent <- msg
	return m.err
}

func sampleJob(to string) Job {
	return Job{Kind: KindTest, Subject: "Hello", Text: "body", To: []string{to}}
}

func waitForMessage(t *testing.T, ch <-chan mail.Message) mail.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return mail.Message{}
	}
}

func TestNewDispatcherRequiresMailer(t *testing.T) {
	_, err := NewDispatcher(nil)
	require.Error(t, err)
}

func TestDispatchDeliversJob(t *testing.T) {
	mailer := newRecordingMailer()
	d, err := NewDispatcher(mailer)
	require.NoError(t, err)
	defer d.Close(context.Background())

	job := sampleJob("a@x.com")
	job.From = "lab@example.com"
	job.HTML = "<p>body</p>"
	require.True(t, d.Dispatch(job))

	msg := waitForMessage(t, mailer.sent)
	require.Equal(t, "Hello", msg.Subject)
	require.Equal(t, "body", msg.Text)
	require.Equal(t, "<p>body</p>", msg.HTML)
	require.Equal(t, "lab@example.com", msg.From)
	require.Equal(t, []string{"a@x.com"}, msg.To)
}

func TestDispatchDoesNotWaitForDelivery(t *testing.T) {
	mailer := newRecordingMailer()
	mailer.block = make(chan struct{})
	d, err := NewDispatcher(mailer, WithWorkers(1))
	require.NoError(t, err)

	start := time.Now()
	require.True(t, d.Dispatch(sampleJob("a@x.com")))
	require.Less(t, time.Since(start), 500*time.Millisecond)

	close(mailer.block)
	waitForMessage(t, mailer.sent)
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatchSwallowsTransportFailure(t *testing.T) {
	mailer := newRecordingMailer()
	mailer.err = errors.New("connection refused")
	d, err := NewDispatcher(mailer)
	require.NoError(t, err)

	require.True(t, d.Dispatch(sampleJob("a@x.com")))
	waitForMessage(t, mailer.sent)

	require.NoError(t, d.Close(context.Background()))
	require.EqualValues(t, 1, mailer.calls.Load(), "failed jobs must not be retried")
}

func TestDispatchRecoversFromPanics(t *testing.T) {
	mailer := newRecordingMailer()
	mailer.panicMsg = "boom"
	d, err := NewDispatcher(mailer, WithWorkers(1))
	require.NoError(t, err)

	require.True(t, d.Dispatch(sampleJob("a@x.com")))
	require.True(t, d.Dispatch(sampleJob("b@x.com")))

	require.NoError(t, d.Close(context.Background()))
	require.EqualValues(t, 2, mailer.calls.Load(), "worker must survive a panicking job")
}

func TestDispatchDropsWhenQueueFull(t *testing.T) {
	mailer := newRecordingMailer()
	mailer.block = make(chan struct{})
	d, err := NewDispatcher(mailer, WithWorkers(1), WithQueueSize(1))
	require.NoError(t, err)

	require.True(t, d.Dispatch(sampleJob("first@x.com")))
	require.Eventually(t, func() bool { return mailer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, d.Dispatch(sampleJob("queued@x.com")))
	pending, capacity := d.Backlog()
	require.Equal(t, 1, pending)
	require.Equal(t, 1, capacity)
	require.False(t, d.Dispatch(sampleJob("dropped@x.com")))

	close(mailer.block)
	require.NoError(t, d.Close(context.Background()))

	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	require.Len(t, mailer.messages, 2)
	for _, msg := range mailer.messages {
		require.NotEqual(t, []string{"dropped@x.com"}, msg.To)
	}
}

func TestDispatchCopiesRecipients(t *testing.T) {
	mailer := newRecordingMailer()
	mailer.block = make(chan struct{})
	d, err := NewDispatcher(mailer, WithWorkers(1))
	require.NoError(t, err)

	job := sampleJob("a@x.com")
	require.True(t, d.Dispatch(job))
	job.To[0] = "mutated@x.com"

	close(mailer.block)
	msg := waitForMessage(t, mailer.sent)
	require.Equal(t, []string{"a@x.com"}, msg.To)
	require.NoError(t, d.Close(context.Background()))
}

func TestCloseDrainsQueuedJobs(t *testing.T) {
	mailer := newRecordingMailer()
	d, err := NewDispatcher(mailer, WithWorkers(2))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.True(t, d.Dispatch(sampleJob("a@x.com")))
	}
	require.NoError(t, d.Close(context.Background()))
	require.EqualValues(t, 10, mailer.calls.Load())

	require.False(t, d.Dispatch(sampleJob("late@x.com")))
	require.NoError(t, d.Close(context.Background()))
}

func TestCloseHonoursContext(t *testing.T) {
	mailer := newRecordingMailer()
	mailer.block = make(chan struct{})
	d, err := NewDispatcher(mailer, WithWorkers(1))
	require.NoError(t, err)

	require.True(t, d.Dispatch(sampleJob("a@x.com")))
	require.Eventually(t, func() bool { return mailer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = d.Close(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendTimeoutBoundsDelivery(t *testing.T) {
	mailer := newRecordingMailer()
	mailer.block = make(chan struct{})
	d, err := NewDispatcher(mailer, WithWorkers(1), WithSendTimeout(20*time.Millisecond))
	require.NoError(t, err)

	require.True(t, d.Dispatch(sampleJob("a@x.com")))
	require.NoError(t, d.Close(context.Background()))
	require.EqualValues(t, 1, mailer.calls.Load())
}

func TestDisabledMailerIsNotAnError(t *testing.T) {
	d, err := NewDispatcher(mail.NewDisabledMailer())
	require.NoError(t, err)
	require.True(t, d.Dispatch(sampleJob("a@x.com")))
	require.NoError(t, d.Close(context.Background()))
}
