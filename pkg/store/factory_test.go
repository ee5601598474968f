package store

import (
	"context"
	"strings"
	"testing"

	"github.com/nimburion/catalog/pkg/config"
	"github.com/nimburion/catalog/pkg/observability/logger"
	"github.com/nimburion/catalog/pkg/repository/document"
	"github.com/nimburion/catalog/pkg/store/dynamodb"
	"github.com/nimburion/catalog/pkg/store/mongodb"
	"github.com/nimburion/catalog/pkg/store/mysql"
	"github.com/nimburion/catalog/pkg/store/postgres"
)

var (
	_ Adapter = (*document.MemoryStore)(nil)
	_ Adapter = (*postgres.Adapter)(nil)
	_ Adapter = (*mysql.Adapter)(nil)
	_ Adapter = (*mongodb.Adapter)(nil)
	_ Adapter = (*dynamodb.Adapter)(nil)
)

type mockLogger struct{}

func (m *mockLogger) Debug(string, ...any)                      {}
func (m *mockLogger) Info(string, ...any)                       {}
func (m *mockLogger) Warn(string, ...any)                       {}
func (m *mockLogger) Error(string, ...any)                      {}
func (m *mockLogger) With(...any) logger.Logger                 { return m }
func (m *mockLogger) WithContext(context.Context) logger.Logger { return m }

func TestNewStorageAdapter_EmptyType(t *testing.T) {
	adapter, err := NewStorageAdapter(config.DatabaseConfig{Type: ""}, &mockLogger{})
	if err == nil {
		t.Fatal("expected error for empty type")
	}
	if adapter != nil {
		t.Fatal("expected nil adapter")
	}
}

func TestNewStorageAdapter_UnsupportedType(t *testing.T) {
	_, err := NewStorageAdapter(config.DatabaseConfig{Type: "cosmos"}, &mockLogger{})
	if err == nil || !strings.Contains(err.Error(), "unsupported database.type") {
		t.Fatalf("expected unsupported type error, got %v", err)
	}
}

func TestNewStorageAdapter_Memory(t *testing.T) {
	adapter, err := NewStorageAdapter(config.DatabaseConfig{Type: " Memory "}, &mockLogger{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := adapter.(*document.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", adapter)
	}
	if err := adapter.HealthCheck(context.Background()); err != nil {
		t.Fatalf("healthcheck: %v", err)
	}
}

func TestNewStorageAdapter_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{name: "postgres without url", cfg: config.DatabaseConfig{Type: "postgres"}, want: "database URL is required"},
		{name: "mysql without url", cfg: config.DatabaseConfig{Type: "mysql"}, want: "database URL is required"},
		{name: "mongodb without database", cfg: config.DatabaseConfig{Type: "mongodb", URL: "mongodb://localhost"}, want: "mongodb database is required"},
		{name: "dynamodb without region", cfg: config.DatabaseConfig{Type: "dynamodb"}, want: "aws region is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewStorageAdapter(tt.cfg, &mockLogger{})
			if adapter != nil {
				t.Fatalf("expected nil adapter, got %T", adapter)
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
		})
	}
}
