package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
)

// WxPusher posts to the WxPusher message API.
type WxPusher struct {
	cfg    config.WxPusherConfig
	client *http.Client
}

func NewWxPusher(cfg config.WxPusherConfig) *WxPusher {
	return &WxPusher{cfg: cfg, client: newHTTPClient()}
}

func newWxPusherFromConfig(cfg *config.Config, _ *logger.Logger) (Channel, bool) {
	return NewWxPusher(cfg.WxPusher), cfg.WxPusher.Enabled
}

func (w *WxPusher) Name() string { return "wxpusher" }

func (w *WxPusher) ValidateConfig() error {
	var errs []error
	if w.cfg.AppToken == "" {
		errs = append(errs, errors.New("wxpusher: app_token is empty"))
	}
	if len(w.cfg.UIDs) == 0 {
		errs = append(errs, errors.New("wxpusher: uids is empty"))
	}
	if w.cfg.BaseURL == "" {
		errs = append(errs, errors.New("wxpusher: base_url is empty"))
	}
	return errors.Join(errs...)
}

func (w *WxPusher) Test(ctx context.Context) error { return sendTest(ctx, w) }

func (w *WxPusher) Send(ctx context.Context, title, content string) error {
	payload := map[string]interface{}{
		"appToken":    w.cfg.AppToken,
		"summary":     title,
		"content":     content,
		"contentType": 1,
		"uids":        w.cfg.UIDs,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("wxpusher: failed to encode payload: %w", err)
	}

	var resp struct {
		Code    int    `json:"code"`
		Msg     string `json:"msg"`
		Success bool   `json:"success"`
	}
	endpoint := strings.TrimRight(w.cfg.BaseURL, "/") + "/api/send/message"
	if err := postJSON(ctx, w.client, endpoint, "application/json", bytes.NewReader(body), &resp); err != nil {
		return fmt.Errorf("wxpusher: %w", err)
	}
	if !resp.Success && resp.Code != 1000 {
		return fmt.Errorf("wxpusher: code %d: %s", resp.Code, resp.Msg)
	}
	return nil
}

// ServerChan posts to a ServerChan send key.
type ServerChan struct {
	cfg    config.ServerChanConfig
	client *http.Client
}

func NewServerChan(cfg config.ServerChanConfig) *ServerChan {
	return &ServerChan{cfg: cfg, client: newHTTPClient()}
}

func newServerChanFromConfig(cfg *config.Config, _ *logger.Logger) (Channel, bool) {
	return NewServerChan(cfg.ServerChan), cfg.ServerChan.Enabled
}

func (s *ServerChan) Name() string { return "serverchan" }

func (s *ServerChan) ValidateConfig() error {
	if s.cfg.SendKey == "" {
		return errors.New("serverchan: send_key is empty")
	}
	if s.cfg.BaseURL == "" {
		return errors.New("serverchan: base_url is empty")
	}
	return nil
}

func (s *ServerChan) Test(ctx context.Context) error { return sendTest(ctx, s) }

func (s *ServerChan) Send(ctx context.Context, title, content string) error {
	form := url.Values{}
	form.Set("title", title)
	form.Set("desp", content)

	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	endpoint := fmt.Sprintf("%s/%s.send", strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(s.cfg.SendKey))
	if err := postJSON(ctx, s.client, endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &resp); err != nil {
		return fmt.Errorf("serverchan: %w", err)
	}
	if resp.Code != 0 {
		return fmt.Errorf("serverchan: code %d: %s", resp.Code, resp.Message)
	}
	return nil
}

// Qmsg posts to the Qmsg QQ push service.
type Qmsg struct {
	cfg    config.QmsgChanConfig
	client *http.Client
}

func NewQmsg(cfg config.QmsgChanConfig) *Qmsg {
	return &Qmsg{cfg: cfg, client: newHTTPClient()}
}

func newQmsgFromConfig(cfg *config.Config, _ *logger.Logger) (Channel, bool) {
	return NewQmsg(cfg.QmsgChan), cfg.QmsgChan.Enabled
}

func (q *Qmsg) Name() string { return "qmsgchan" }

func (q *Qmsg) ValidateConfig() error {
	if q.cfg.Key == "" {
		return errors.New("qmsgchan: key is empty")
	}
	if q.cfg.BaseURL == "" {
		return errors.New("qmsgchan: base_url is empty")
	}
	return nil
}

func (q *Qmsg) Test(ctx context.Context) error { return sendTest(ctx, q) }

func (q *Qmsg) Send(ctx context.Context, title, content string) error {
	form := url.Values{}
	form.Set("msg", title+"\n"+content)
	if q.cfg.QQ != "" {
		form.Set("qq", q.cfg.QQ)
	}

	var resp struct {
		Success bool   `json:"success"`
		Reason  string `json:"reason"`
	}
	endpoint := fmt.Sprintf("%s/send/%s", strings.TrimRight(q.cfg.BaseURL, "/"), url.PathEscape(q.cfg.Key))
	if err := postJSON(ctx, q.client, endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &resp); err != nil {
		return fmt.Errorf("qmsgchan: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("qmsgchan: %s", resp.Reason)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
