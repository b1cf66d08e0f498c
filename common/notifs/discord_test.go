package notifs

import (
	"testing"

	"github.com/ceramicnetwork/go-registry"
	"github.com/ceramicnetwork/go-registry/common/loggers"
)

func TestParseWebhookPath(t *testing.T) {
	tests := map[string]struct {
		url           string
		expectedId    string
		expectedToken string
		shouldError   bool
	}{
		"webhook url": {
			url:           "https://discord.com/api/webhooks/1092473922223632445/abcDEF-123_x",
			expectedId:    "1092473922223632445",
			expectedToken: "abcDEF-123_x",
		},
		"trailing slash": {
			url:           "https://discord.com/api/webhooks/1092473922223632445/token/",
			expectedId:    "1092473922223632445",
			expectedToken: "token",
		},
		"non-numeric id": {
			url:         "https://discord.com/api/webhooks/abc/token",
			shouldError: true,
		},
		"missing token": {
			url:         "https://discord.com/",
			shouldError: true,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			id, token, err := parseWebhookPath(test.url)
			if test.shouldError {
				if err == nil {
					t.Fatalf("expected error for %s", test.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.String() != test.expectedId {
				t.Errorf("expected id %s, got %s", test.expectedId, id)
			}
			if token != test.expectedToken {
				t.Errorf("expected token %s, got %s", test.expectedToken, token)
			}
		})
	}
}

func TestUnconfiguredHandlerDropsNotifications(t *testing.T) {
	t.Setenv(registry.Env_DiscordAlertWebhook, "")
	t.Setenv(registry.Env_DiscordWarningWebhook, "")
	handler, err := NewDiscordHandler(loggers.NewTestLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err = handler.SendAlert("title", "desc"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err = handler.SendWarning("title", "desc"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInvalidWebhookConfig(t *testing.T) {
	t.Setenv(registry.Env_DiscordAlertWebhook, "https://discord.com/api/webhooks/notanid/token")
	if _, err := NewDiscordHandler(loggers.NewTestLogger()); err == nil {
		t.Errorf("expected error for invalid webhook")
	}
}
