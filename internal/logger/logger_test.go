package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/mailbox"
	"github.com/fly-207/skynet/internal/module"
)

type fakeCtx struct {
	cb module.Callback
}

func (c *fakeCtx) Handle() handle.Handle   { return handle.New(0, 1) }
func (c *fakeCtx) SetCallback(cb module.Callback) { c.cb = cb }
func (c *fakeCtx) Send(handle.Handle, mailbox.ProtocolType, uint32, []byte) (uint32, error) {
	return 0, nil
}

func TestInitOpensConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skynet.log")
	m := &Module{}
	ctx := &fakeCtx{}
	if err := m.Init(m, ctx, path); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx.cb(0, 0, mailbox.PTYPEText, []byte("hello world"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "hello world") {
		t.Fatalf("log file missing message: %s", data)
	}
}

func TestReopenSwitchesToFreshHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skynet.log")
	m := &Module{}
	ctx := &fakeCtx{}
	if err := m.Init(m, ctx, path); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx.cb(0, 0, mailbox.PTYPEText, []byte("before"))
	ctx.cb(0, 0, mailbox.PTYPESystem, []byte("reopen"))
	ctx.cb(0, 0, mailbox.PTYPEText, []byte("after"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "before") || !strings.Contains(string(data), "after") {
		t.Fatalf("expected both pre- and post-reopen messages, got: %s", data)
	}
}
