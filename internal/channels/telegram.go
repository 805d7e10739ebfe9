package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"murmur/internal/history"
)

const (
	telegramAPIBase      = "https://api.telegram.org/bot%s"
	telegramSendMsg      = "/sendMessage"
	telegramChatAction   = "/sendChatAction"
	telegramActionTyping = "typing"
	telegramTimeout      = 15 * time.Second
)

type Telegram struct {
	resolver Resolver
	history  *history.Store
	apiURL   string
	client   *http.Client
	allowed  map[int64]bool
}

type TelegramOption func(*Telegram)

// WithAPIURL replaces the bot API base URL, token included.
func WithAPIURL(u string) TelegramOption {
	return func(t *Telegram) { t.apiURL = u }
}

// WithAllowedChats restricts the bot to the given chat ids. With none, every
// chat is served.
func WithAllowedChats(ids ...int64) TelegramOption {
	return func(t *Telegram) {
		for _, id := range ids {
			t.allowed[id] = true
		}
	}
}

func WithHistory(h *history.Store) TelegramOption {
	return func(t *Telegram) { t.history = h }
}

func NewTelegram(botToken string, res Resolver, opts ...TelegramOption) *Telegram {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = slog.Default()

	t := &Telegram{
		resolver: res,
		apiURL:   fmt.Sprintf(telegramAPIBase, botToken),
		client:   rc.StandardClient(),
		allowed:  map[int64]bool{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/telegram", t.handleWebhook)
}

type telegramUpdate struct {
	Message *telegramMessage `json:"message"`
}

type telegramMessage struct {
	Chat telegramChat `json:"chat"`
	Text string       `json:"text"`
}

type telegramChat struct {
	ID int64 `json:"id"`
}

type telegramSendRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (t *Telegram) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Error("telegram: failed to decode update", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if update.Message == nil || update.Message.Text == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	chatID := update.Message.Chat.ID
	text := update.Message.Text
	if len(t.allowed) > 0 && !t.allowed[chatID] {
		slog.Warn("telegram: ignoring message from chat not allowed", "chat_id", chatID)
		w.WriteHeader(http.StatusOK)
		return
	}

	slog.Info("telegram: received message", "chat_id", chatID, "text", text)

	ctx, cancel := context.WithTimeout(r.Context(), telegramTimeout)
	defer cancel()

	t.sendTyping(ctx, chatID)

	res, err := t.resolver.Resolve(ctx, text)
	if herr := t.history.Record(ctx, history.SourceTelegram, text, res, err); herr != nil {
		slog.Warn("telegram: recording resolution", "error", herr)
	}

	reply := res.Output
	if err != nil {
		reply = "Sorry, I could not work that out: " + err.Error()
	}
	if err := t.sendMessage(ctx, chatID, reply); err != nil {
		slog.Error("telegram: failed to send message", "chat_id", chatID, "error", err)
	}

	w.WriteHeader(http.StatusOK)
}

func (t *Telegram) sendTyping(ctx context.Context, chatID int64) {
	body, _ := json.Marshal(map[string]any{
		"chat_id": chatID,
		"action":  telegramActionTyping,
	})
	resp, err := t.post(ctx, telegramChatAction, body)
	if err != nil {
		slog.Warn("telegram: failed to send typing action", "chat_id", chatID, "error", err)
		return
	}
	resp.Body.Close()
}

func (t *Telegram) sendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(telegramSendRequest{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return err
	}

	resp, err := t.post(ctx, telegramSendMsg, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned %d", resp.StatusCode)
	}
	return nil
}

func (t *Telegram) post(ctx context.Context, method string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+method, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.client.Do(req)
}
