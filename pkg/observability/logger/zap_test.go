package logger

import "testing"

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"info", InfoLevel, false},
		{"warn", WarnLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    LogFormat
		wantErr bool
	}{
		{"json", JSONFormat, false},
		{"text", TextFormat, false},
		{"console", TextFormat, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewZapLogger(t *testing.T) {
	for _, cfg := range []Config{
		{Level: DebugLevel, Format: JSONFormat},
		{Level: InfoLevel, Format: TextFormat},
		{Level: "bogus", Format: "bogus"},
	} {
		log, err := NewZapLogger(cfg)
		if err != nil {
			t.Fatalf("NewZapLogger(%+v) error: %v", cfg, err)
		}
		if log == nil {
			t.Fatalf("NewZapLogger(%+v) returned nil", cfg)
		}
	}
}

func TestWith_ReturnsChildLogger(t *testing.T) {
	log, err := NewZapLogger(DefaultConfig())
	if err != nil {
		t.Fatalf("NewZapLogger error: %v", err)
	}
	child := log.With("service", "strata")
	if child == nil {
		t.Fatal("With returned nil")
	}
	// The parent must be unaffected by the child's bound fields.
	if child == Logger(log) {
		t.Fatal("With must return a new logger")
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Debug("ignored")
	log.Info("ignored", "k", "v")
	log.Warn("ignored")
	log.Error("ignored")
	if log.With("k", "v") == nil {
		t.Fatal("With returned nil")
	}
}
