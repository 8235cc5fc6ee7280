package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Save original env
	saved := map[string]string{}
	for _, key := range []string{"DROPS_REMOTE_OWNER", "DROPS_REMOTE_NAME", "DROPS_REMOTE_CATEGORY_ID"} {
		saved[key] = os.Getenv(key)
	}
	defer func() {
		for key, val := range saved {
			if val != "" {
				os.Setenv(key, val)
			} else {
				os.Unsetenv(key)
			}
		}
	}()

	// Test with environment variables
	os.Setenv("DROPS_REMOTE_OWNER", "acme")
	os.Setenv("DROPS_REMOTE_NAME", "drops-data")
	os.Setenv("DROPS_REMOTE_CATEGORY_ID", "DIC_test123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Remote.Owner != "acme" {
		t.Errorf("Expected remote owner from env, got: %s", cfg.Remote.Owner)
	}
	if cfg.Remote.Name != "drops-data" {
		t.Errorf("Expected remote name from env, got: %s", cfg.Remote.Name)
	}
	if cfg.Poller.Interval != 3*time.Second {
		t.Errorf("Expected default poll interval 3s, got: %v", cfg.Poller.Interval)
	}
	if cfg.Poller.Timeout != 30*time.Second {
		t.Errorf("Expected default poll timeout 30s, got: %v", cfg.Poller.Timeout)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Remote: RemoteConfig{
			GraphQLURL: "https://api.github.com/graphql",
			Owner:      "acme",
			Name:       "drops-data",
			CategoryID: "DIC_test123",
			MaxRetries: 3,
		},
		Poller: PollerConfig{
			Interval: 3 * time.Second,
			Timeout:  30 * time.Second,
		},
		Feed: FeedConfig{PageSize: 25},
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Valid config should not error: %v", err)
	}

	// Test missing owner
	cfg.Remote.Owner = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for missing remote_owner")
	}
	cfg.Remote.Owner = "acme"

	// Test timeout shorter than interval
	cfg.Poller.Timeout = time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for poll timeout below interval")
	}
}
