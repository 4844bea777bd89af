package mongo

import "testing"

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"uri only", Config{URI: "mongodb://localhost:27017"}, false},
		{"missing uri", Config{Database: "nexa"}, true},
		{"inverted pool bounds", Config{URI: "mongodb://localhost:27017", MinPoolSize: 5, MaxPoolSize: 2}, true},
		{"pool bounds in order", Config{URI: "mongodb://localhost:27017", MinPoolSize: 2, MaxPoolSize: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("MONGODB_DATABASE", "")

	config := NewConfigFromEnv()
	if config.URI != "mongodb://localhost:27017" {
		t.Errorf("expected development default URI, got %q", config.URI)
	}
	if config.Database != "" {
		t.Errorf("database default is applied at connect time, got %q", config.Database)
	}
}

func TestNewConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://db.internal:27017")
	t.Setenv("MONGODB_DATABASE", "assistant")

	config := NewConfigFromEnv()
	if config.URI != "mongodb://db.internal:27017" {
		t.Errorf("unexpected URI %q", config.URI)
	}
	if config.Database != "assistant" {
		t.Errorf("unexpected database %q", config.Database)
	}
}
