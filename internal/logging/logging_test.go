package logging

import (
	"errors"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "JSON format to stdout",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "Console format to stderr",
			config: Config{
				Level:  "debug",
				Format: "console",
				Output: "stderr",
			},
			wantErr: false,
		},
		{
			name: "Invalid log level defaults to info",
			config: Config{
				Level:  "invalid",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("Expected non-nil logger")
			}
		})
	}
}

func TestLoggerMethods(t *testing.T) {
	logger, err := NewLogger(Config{
		Level:  "debug",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	// Test Info logging
	logger.Info("test info message")

	// Test Debug logging
	logger.Debug("test debug message")

	// Test Warn logging
	logger.Warn("test warn message")

	// Test Error logging
	logger.Error("test error message")

	// All methods should not panic
}

func TestLoggerWithFields(t *testing.T) {
	logger, err := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	// Test WithField
	fieldLogger := logger.WithField("key", "value")
	if fieldLogger == nil {
		t.Error("Expected non-nil logger from WithField")
	}

	// Test WithFields
	fieldsLogger := logger.WithFields(map[string]interface{}{
		"key1": "value1",
		"key2": 123,
	})
	if fieldsLogger == nil {
		t.Error("Expected non-nil logger from WithFields")
	}

	// Test WithRequestID
	reqLogger := logger.WithRequestID("req-123")
	if reqLogger == nil {
		t.Error("Expected non-nil logger from WithRequestID")
	}

	// Test WithPrincipal
	principalLogger := logger.WithPrincipal("alice")
	if principalLogger == nil {
		t.Error("Expected non-nil logger from WithPrincipal")
	}

	// Test WithObject
	objectLogger := logger.WithObject("report.pdf")
	if objectLogger == nil {
		t.Error("Expected non-nil logger from WithObject")
	}
}

func TestLogHTTPRequest(t *testing.T) {
	logger, err := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.LogHTTPRequest("GET", "/objects", "192.168.1.1", 200, 100*time.Millisecond)
	// Should not panic
}

func TestLogAdmitDecision(t *testing.T) {
	logger, err := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.LogAdmitDecision("alice", 30<<20, "admitted")
	// Should not panic
}

func TestLogStorageOperation(t *testing.T) {
	logger, err := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.LogStorageOperation("upload", "vaultgate", "alice/test.mp4", 1048576, 2*time.Second, nil)
	// Should not panic
}

func TestLogAuditDelivery(t *testing.T) {
	logger, err := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.LogAuditDelivery("upload", "alice", 1, nil)
	logger.LogAuditDelivery("upload", "alice", 2, errors.New("connection refused"))
	// Should not panic
}

func TestLogReconciliationGap(t *testing.T) {
	logger, err := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.LogReconciliationGap("alice", -30<<20, errors.New("ledger unreachable"))
	// Should not panic
}

func TestNewDefaultLogger(t *testing.T) {
	logger, err := NewDefaultLogger()
	if err != nil {
		t.Errorf("NewDefaultLogger() error = %v", err)
	}
	if logger == nil {
		t.Error("Expected non-nil logger from NewDefaultLogger")
	}
}

func TestNewConsoleLogger(t *testing.T) {
	logger, err := NewConsoleLogger()
	if err != nil {
		t.Errorf("NewConsoleLogger() error = %v", err)
	}
	if logger == nil {
		t.Error("Expected non-nil logger from NewConsoleLogger")
	}
}

func BenchmarkLogInfo(b *testing.B) {
	logger, _ := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message")
	}
}
