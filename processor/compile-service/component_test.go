package compileservice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/c360studio/semlogic/compiler"
	"github.com/c360studio/semlogic/llm/testutil"
	"github.com/c360studio/semlogic/logic"
	"github.com/c360studio/semlogic/model"
)

type published struct {
	subject string
	data    []byte
}

// fakeConn captures the subscription handler and every publish.
type fakeConn struct {
	mu        sync.Mutex
	subject   string
	queue     string
	handler   nats.MsgHandler
	subErr    error
	published chan published
}

func newFakeConn() *fakeConn {
	return &fakeConn{published: make(chan published, 16)}
}

func (f *fakeConn) QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.subject, f.queue, f.handler = subj, queue, cb
	return nil, nil
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.published <- published{subject: subj, data: data}
	return nil
}

func (f *fakeConn) deliver(t *testing.T, reply string, data []byte) {
	t.Helper()
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	require.NotNil(t, h, "not subscribed")
	h(&nats.Msg{Subject: f.subject, Reply: reply, Data: data})
}

func (f *fakeConn) awaitReply(t *testing.T) (string, Response) {
	t.Helper()
	select {
	case p := <-f.published:
		var resp Response
		require.NoError(t, json.Unmarshal(p.data, &resp))
		return p.subject, resp
	case <-time.After(2 * time.Second):
		t.Fatal("no reply published")
		return "", Response{}
	}
}

func beepCompiler() *compiler.Compiler {
	return compiler.New(&testutil.MockCompleter{ByStage: map[string][]string{
		model.StageReasoning:  {`{"steps":[{"id":"S1","role":"action","text":"beep","depends_on":[]}]}`},
		model.StagePseudocode: {"BEEP()"},
	}})
}

func startComponent(t *testing.T, conn *fakeConn, comp Compiler, cfg Config) *Component {
	t.Helper()
	c, err := NewComponent(cfg, conn, comp)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop(time.Second) })
	return c
}

func TestComponent_CompilesRequest(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newFakeConn()
	c := startComponent(t, conn, beepCompiler(), Config{})

	assert.Equal(t, "semlogic.compile.request", conn.subject)

	data, _ := json.Marshal(Request{Instruction: "Beep."})
	conn.deliver(t, "_INBOX.1", data)

	subject, resp := conn.awaitReply(t)
	assert.Equal(t, "_INBOX.1", subject)
	require.NoError(t, resp.Err())
	require.NotNil(t, resp.Output)
	assert.Equal(t, "BEEP()", resp.Output.Pseudocode.Code)

	require.NoError(t, c.Stop(time.Second))
	h := c.Health()
	assert.Equal(t, int64(1), h.RequestsReceived)
	assert.Equal(t, int64(1), h.CompilesSucceeded)
	assert.False(t, h.Healthy)
}

func TestComponent_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"invalid json", `{instruction`, "decode request"},
		{"empty instruction", `{"instruction": "   "}`, "instruction is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn()
			c := startComponent(t, conn, beepCompiler(), Config{})

			conn.deliver(t, "_INBOX.bad", []byte(tt.data))

			_, resp := conn.awaitReply(t)
			assert.Equal(t, KindBadRequest, resp.Kind)
			assert.Contains(t, resp.Error, tt.want)
			assert.Nil(t, resp.Output)
			assert.Equal(t, int64(1), c.Health().CompilesFailed)
		})
	}
}

func TestComponent_ParseFailureReply(t *testing.T) {
	conn := newFakeConn()
	comp := compiler.New(&testutil.MockCompleter{ByStage: map[string][]string{
		model.StageReasoning: {"I would rather not."},
	}})
	startComponent(t, conn, comp, Config{})

	data, _ := json.Marshal(Request{Instruction: "Beep."})
	conn.deliver(t, "_INBOX.2", data)

	_, resp := conn.awaitReply(t)
	assert.Equal(t, compiler.OutcomeParseFailure, resp.Kind)
	assert.Equal(t, "I would rather not.", resp.Raw)

	var remote *RemoteError
	require.True(t, errors.As(resp.Err(), &remote))
	assert.Equal(t, compiler.OutcomeParseFailure, remote.Kind)
}

// blockingCompiler waits for cancellation.
type blockingCompiler struct {
	started chan struct{}
}

func (b *blockingCompiler) Compile(ctx context.Context, _ string, _ ...compiler.CompileOption) (*logic.CompilerOutput, error) {
	b.started <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestComponent_StopCancelsSlowCompiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newFakeConn()
	comp := &blockingCompiler{started: make(chan struct{}, 1)}
	c, err := NewComponent(Config{}, conn, comp)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	data, _ := json.Marshal(Request{Instruction: "Wait forever."})
	conn.deliver(t, "_INBOX.3", data)
	<-comp.started

	err = c.Stop(50 * time.Millisecond)
	assert.ErrorContains(t, err, "did not finish")

	_, resp := conn.awaitReply(t)
	assert.Equal(t, compiler.OutcomeCanceled, resp.Kind)
}

func TestComponent_RejectsAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newFakeConn()
	comp := &blockingCompiler{started: make(chan struct{}, 1)}
	c, err := NewComponent(Config{}, conn, comp)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop(time.Second))

	// A callback already running when the subscription closed.
	data, _ := json.Marshal(Request{Instruction: "Late."})
	conn.deliver(t, "_INBOX.late", data)

	_, resp := conn.awaitReply(t)
	assert.Equal(t, compiler.OutcomeCanceled, resp.Kind)
	assert.Contains(t, resp.Error, "stopping")
	assert.Empty(t, comp.started)
	assert.Equal(t, int64(1), c.Health().CompilesFailed)
}

func TestComponent_RequestTimeout(t *testing.T) {
	conn := newFakeConn()
	comp := &blockingCompiler{started: make(chan struct{}, 1)}
	startComponent(t, conn, comp, Config{RequestTimeout: 20 * time.Millisecond})

	data, _ := json.Marshal(Request{Instruction: "Wait forever."})
	conn.deliver(t, "_INBOX.4", data)

	_, resp := conn.awaitReply(t)
	assert.Equal(t, compiler.OutcomeCanceled, resp.Kind)
	assert.Contains(t, resp.Error, "deadline exceeded")
}

func TestComponent_NoReplySubject(t *testing.T) {
	conn := newFakeConn()
	c := startComponent(t, conn, beepCompiler(), Config{})

	data, _ := json.Marshal(Request{Instruction: "Beep."})
	conn.deliver(t, "", data)

	require.NoError(t, c.Stop(time.Second))
	assert.Empty(t, conn.published)
	assert.Equal(t, int64(1), c.Health().CompilesSucceeded)
}

func TestComponent_Lifecycle(t *testing.T) {
	conn := newFakeConn()
	c, err := NewComponent(Config{Queue: "q"}, conn, beepCompiler())
	require.NoError(t, err)

	assert.Equal(t, "stopped", c.Health().Status)
	require.NoError(t, c.Stop(time.Second), "stopping a stopped component is a no-op")

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, "q", conn.queue)
	assert.Equal(t, "running", c.Health().Status)
	assert.Error(t, c.Start(context.Background()), "already running")

	require.NoError(t, c.Stop(time.Second))
	require.NoError(t, c.Start(context.Background()), "restart after stop")
	require.NoError(t, c.Stop(time.Second))
}

func TestComponent_StartErrors(t *testing.T) {
	c, err := NewComponent(Config{}, nil, beepCompiler())
	require.NoError(t, err)
	assert.ErrorContains(t, c.Start(context.Background()), "NATS connection required")

	conn := newFakeConn()
	conn.subErr = errors.New("permissions violation")
	c, err = NewComponent(Config{}, conn, beepCompiler())
	require.NoError(t, err)
	assert.ErrorContains(t, c.Start(context.Background()), "permissions violation")
}

func TestNewComponent_InvalidConfig(t *testing.T) {
	_, err := NewComponent(Config{Workers: -1}, newFakeConn(), beepCompiler())
	assert.Error(t, err)

	_, err = NewComponent(Config{}, newFakeConn(), nil)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Subject = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RequestTimeout = 0
	assert.Error(t, cfg.Validate())
}
