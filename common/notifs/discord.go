package notifs

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/webhook"
	"github.com/disgoorg/snowflake/v2"

	"github.com/ceramicnetwork/go-registry"
	"github.com/ceramicnetwork/go-registry/models"
)

type DiscordColor int

const (
	DiscordColor_None    = iota
	DiscordColor_Warning = 16776960
	DiscordColor_Alert   = 16711712
)

const DiscordPacing = 2 * time.Second

type DiscordHandler struct {
	alertWebhook   webhook.Client
	warningWebhook webhook.Client
	logger         models.Logger
}

// NewDiscordHandler builds a notifier from the configured webhook URLs. Either webhook may be absent.
func NewDiscordHandler(logger models.Logger) (models.Notifier, error) {
	alertWebhook, err := parseDiscordWebhookUrl(os.Getenv(registry.Env_DiscordAlertWebhook))
	if err != nil {
		return nil, fmt.Errorf("notifs: invalid %s: %w", registry.Env_DiscordAlertWebhook, err)
	}
	warningWebhook, err := parseDiscordWebhookUrl(os.Getenv(registry.Env_DiscordWarningWebhook))
	if err != nil {
		return nil, fmt.Errorf("notifs: invalid %s: %w", registry.Env_DiscordWarningWebhook, err)
	}
	return &DiscordHandler{alertWebhook, warningWebhook, logger}, nil
}

func parseDiscordWebhookUrl(webhookUrl string) (webhook.Client, error) {
	if len(webhookUrl) == 0 {
		return nil, nil
	}
	id, token, err := parseWebhookPath(webhookUrl)
	if err != nil {
		return nil, err
	}
	return webhook.New(id, token), nil
}

// parseWebhookPath extracts the id and token from a URL of the form .../webhooks/{id}/{token}
func parseWebhookPath(webhookUrl string) (snowflake.ID, string, error) {
	parsedUrl, err := url.Parse(webhookUrl)
	if err != nil {
		return 0, "", err
	}
	urlParts := strings.Split(strings.TrimRight(parsedUrl.Path, "/"), "/")
	if len(urlParts) < 2 || len(urlParts[len(urlParts)-1]) == 0 {
		return 0, "", fmt.Errorf("missing webhook id or token in %s", parsedUrl.Path)
	}
	id, err := snowflake.Parse(urlParts[len(urlParts)-2])
	if err != nil {
		return 0, "", err
	}
	return id, urlParts[len(urlParts)-1], nil
}

func (d DiscordHandler) SendAlert(title, desc string) error {
	if d.alertWebhook != nil {
		return d.sendNotif(d.alertWebhook, title, desc, DiscordColor_Alert)
	}
	return nil
}

// SendWarning falls back to the alert channel when no warning channel is configured.
func (d DiscordHandler) SendWarning(title, desc string) error {
	if d.warningWebhook != nil {
		return d.sendNotif(d.warningWebhook, title, desc, DiscordColor_Warning)
	}
	if d.alertWebhook != nil {
		return d.sendNotif(d.alertWebhook, title, desc, DiscordColor_Warning)
	}
	return nil
}

func (d DiscordHandler) sendNotif(wh webhook.Client, title, desc string, color DiscordColor) error {
	messageEmbed := discord.Embed{
		Title:       title,
		Description: desc,
		Type:        discord.EmbedTypeRich,
		Color:       int(color),
	}
	_, err := wh.CreateMessage(discord.NewWebhookMessageCreateBuilder().
		SetEmbeds(messageEmbed).
		SetUsername(registry.ServiceName).
		Build(),
		rest.WithDelay(DiscordPacing),
	)
	if err != nil {
		d.logger.Errorf("notifs: error sending discord notification: %v, %s, %s", err, title, desc)
		return err
	}
	return nil
}
