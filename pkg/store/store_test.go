package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/switchboard-dev/switchboard/pkg/agentconfig"
	"github.com/switchboard-dev/switchboard/pkg/audit"
	"github.com/switchboard-dev/switchboard/pkg/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "admin.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreToAuditIntegration(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	logger, err := audit.New(s.DB())
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}

	if err := logger.Log(ctx, audit.EventTaskSend, "t1", "s1", "a2a", ""); err != nil {
		t.Fatalf("audit.Log: %v", err)
	}

	entries, err := logger.Query(ctx, audit.Filter{TaskID: "t1"})
	if err != nil {
		t.Fatalf("audit.Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}

func TestStoreToAgentConfigIntegration(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	cfgStore, err := agentconfig.New(s.DB())
	if err != nil {
		t.Fatalf("agentconfig.New: %v", err)
	}

	if err := cfgStore.Set(ctx, &agentconfig.AgentInfo{Name: "switchboard"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	info, err := cfgStore.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info == nil || info.Name != "switchboard" {
		t.Fatalf("Get = %+v", info)
	}
}

func TestSharedDatabase(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	auditLog, err := audit.New(s.DB())
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}
	cfgStore, err := agentconfig.New(s.DB())
	if err != nil {
		t.Fatalf("agentconfig.New: %v", err)
	}

	if err := cfgStore.Set(ctx, &agentconfig.AgentInfo{Name: "shared"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := auditLog.Log(ctx, audit.EventConfigChange, "", "", "admin", "shared"); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := auditLog.Query(ctx, audit.Filter{EventType: audit.EventConfigChange})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}
