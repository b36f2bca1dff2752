package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
)

const discordEmbedColor = 0xAF6025

// Discord posts an embed to a channel webhook.
type Discord struct {
	url    string
	client *http.Client
	now    func() time.Time
}

func NewDiscord(cfg config.DiscordConfig) *Discord {
	return &Discord{
		url:    strings.TrimSpace(cfg.WebhookURL),
		client: newHTTPClient(),
		now:    time.Now,
	}
}

func newDiscordFromConfig(cfg *config.Config, _ *logger.Logger) (Channel, bool) {
	return NewDiscord(cfg.Discord), cfg.Discord.Enabled
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) ValidateConfig() error {
	if d.url == "" {
		return errors.New("discord: webhook_url is empty")
	}
	if !strings.HasPrefix(d.url, "http://") && !strings.HasPrefix(d.url, "https://") {
		return fmt.Errorf("discord: webhook_url %q is not an http url", d.url)
	}
	return nil
}

func (d *Discord) Test(ctx context.Context) error { return sendTest(ctx, d) }

func (d *Discord) Send(ctx context.Context, title, content string) error {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: content,
		Color:       discordEmbedColor,
		Timestamp:   d.now().Format(time.RFC3339),
	}
	return d.sendEmbed(ctx, embed)
}

func (d *Discord) sendEmbed(ctx context.Context, embed *discordgo.MessageEmbed) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	payload := struct {
		Embeds []*discordgo.MessageEmbed `json:"embeds"`
	}{
		Embeds: []*discordgo.MessageEmbed{embed},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		writer.Close()
		return fmt.Errorf("discord: failed to serialize embed: %w", err)
	}
	if err := writer.WriteField("payload_json", string(payloadJSON)); err != nil {
		writer.Close()
		return fmt.Errorf("discord: failed to prepare payload: %w", err)
	}

	contentType := writer.FormDataContentType()
	if err := writer.Close(); err != nil {
		return fmt.Errorf("discord: failed to finalize payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, &body)
	if err != nil {
		return fmt.Errorf("discord: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discord: webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
