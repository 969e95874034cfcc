package module

import (
	"errors"
	"testing"

	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/mailbox"
)

type noopModule struct{ BaseModule }

func (noopModule) Init(Instance, ServiceContext, string) error { return nil }

func TestLoaderResolvesRegisteredModule(t *testing.T) {
	l := NewLoader(4)
	l.Register("echo", Echo{})

	m, err := l.Load("echo")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := m.(Echo); !ok {
		t.Fatalf("Load returned %T, want Echo", m)
	}
}

func TestLoaderUnknownNameFails(t *testing.T) {
	l := NewLoader(4)
	if _, err := l.Load("nonexistent"); !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("err = %v, want ErrLoadFailed", err)
	}
}

func TestLoaderCachesResolution(t *testing.T) {
	l := NewLoader(4)
	l.Register("a", noopModule{})

	first, err := l.Load("a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	l.Register("a", Echo{}) // replace in byName, should evict cache entry
	second, err := l.Load("a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := second.(Echo); !ok {
		t.Fatalf("re-registration not reflected: got %T", second)
	}
	_ = first
}

type fakeCtx struct {
	self handle.Handle
	cb   Callback
	sent []mailbox.Message
}

func (c *fakeCtx) Handle() handle.Handle   { return c.self }
func (c *fakeCtx) SetCallback(cb Callback) { c.cb = cb }
func (c *fakeCtx) Send(dest handle.Handle, ptype mailbox.ProtocolType, session uint32, payload []byte) (uint32, error) {
	c.sent = append(c.sent, mailbox.Message{Source: uint32(c.self), Session: session, Type: ptype, Payload: payload})
	return session, nil
}

func TestEchoRepliesToSource(t *testing.T) {
	ctx := &fakeCtx{self: handle.New(0, 1)}
	e := Echo{}
	if err := e.Init(nil, ctx, ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	cont := ctx.cb(handle.New(0, 2), 7, mailbox.PTYPEText, []byte("hi"))
	if !cont {
		t.Fatal("expected callback to return true")
	}
	if len(ctx.sent) != 1 || string(ctx.sent[0].Payload) != "hi" {
		t.Fatalf("unexpected sent messages: %+v", ctx.sent)
	}
	if ctx.sent[0].Session != 7 {
		t.Fatalf("session = %d, want 7 (echo must preserve the request session)", ctx.sent[0].Session)
	}
}

func TestEchoIgnoresSystemSource(t *testing.T) {
	ctx := &fakeCtx{self: handle.New(0, 1)}
	e := Echo{}
	_ = e.Init(nil, ctx, "")

	ctx.cb(0, 0, mailbox.PTYPESystem, nil)
	if len(ctx.sent) != 0 {
		t.Fatalf("expected no reply to zero source, got %+v", ctx.sent)
	}
}
