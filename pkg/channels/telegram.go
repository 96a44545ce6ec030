package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/tgminer/pkg/bus"
	"github.com/tinyland-inc/tgminer/pkg/config"
	"github.com/tinyland-inc/tgminer/pkg/logger"
)

const telegramName = "telegram"

// Telegram does not report a MIME type for these kinds.
const (
	mimeTGSticker     = "application/x-tgsticker"
	mimeVideoSticker  = "video/webm"
	mimeStaticSticker = "image/webp"
	mimeVideoNote     = "video/mp4"
	mimeVoice         = "audio/ogg"
	mimePhoto         = "image/jpeg"
)

// TelegramChannel long-polls the Bot API and publishes every message and
// channel post the bot can see. It also implements media.Fetcher.
type TelegramChannel struct {
	*BaseChannel

	cfg  config.TelegramConfig
	bot  *telego.Bot
	http *resty.Client
	me   telego.User

	// fileURL resolves a file id to a download URL.
	fileURL func(ctx context.Context, fileID string) (string, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTelegramChannel(cfg config.TelegramConfig, mb *bus.MessageBus) (*TelegramChannel, error) {
	httpClient := &http.Client{Transport: http.DefaultTransport}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("%w: telegram.proxy %q: %v", config.ErrConfig, cfg.Proxy, err)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	} else if os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" {
		httpClient.Transport = &http.Transport{Proxy: http.ProxyFromEnvironment}
	}

	bot, err := telego.NewBot(cfg.Token, telego.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	c := &TelegramChannel{
		BaseChannel: NewBaseChannel(telegramName, mb),
		cfg:         cfg,
		bot:         bot,
		http:        resty.NewWithClient(httpClient),
	}
	c.fileURL = c.botFileURL
	return c, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	c.me = *me

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        c.cfg.PollTimeout,
		AllowedUpdates: []string{"message", "channel_post"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("telegram long polling: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.cancel, c.done = cancel, done
	c.mu.Unlock()
	c.SetRunning(true)

	logger.InfoCF("telegram", "Telegram channel started", map[string]any{
		"bot": c.me.Username,
		"id":  c.me.ID,
	})

	// Updates already received are published even while stopping.
	pubCtx := context.WithoutCancel(pollCtx)

	go func() {
		defer close(done)
		defer c.SetRunning(false)
		for {
			select {
			case <-pollCtx.Done():
				c.drainUpdates(pubCtx, updates)
				return
			case update, ok := <-updates:
				if !ok {
					logger.WarnC("telegram", "Update channel closed")
					return
				}
				c.handleUpdate(pubCtx, update)
			}
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		logger.InfoC("telegram", "Telegram channel stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drainUpdates publishes the updates left in the polling buffer.
func (c *TelegramChannel) drainUpdates(ctx context.Context, updates <-chan telego.Update) {
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			c.handleUpdate(ctx, update)
		default:
			return
		}
	}
}

func (c *TelegramChannel) handleUpdate(ctx context.Context, update telego.Update) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return
	}

	ev := toEvent(c.me, msg)
	if err := c.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorCF("telegram", "Failed to publish event", map[string]any{
			"message_id": ev.MessageID,
			"error":      err.Error(),
		})
	}
}

// toEvent maps a Bot API message to a bus event. Private chats are
// addressed to the bot itself. Posts without a sending user are attributed
// to the chat they were posted in.
func toEvent(me telego.User, msg *telego.Message) bus.Event {
	users := map[int64]bus.Identity{me.ID: userIdentity(me)}
	chats := map[int64]bus.Chat{}

	var senderID int64
	switch {
	case msg.From != nil:
		senderID = msg.From.ID
		users[senderID] = userIdentity(*msg.From)
	case msg.SenderChat != nil:
		senderID = msg.SenderChat.ID
		users[senderID] = chatIdentity(*msg.SenderChat)
	default:
		senderID = msg.Chat.ID
		users[senderID] = chatIdentity(msg.Chat)
	}

	var peer bus.Peer
	switch msg.Chat.Type {
	case telego.ChatTypePrivate:
		peer = bus.Peer{Kind: bus.PeerDirect, ID: me.ID}
	case telego.ChatTypeGroup, telego.ChatTypeSupergroup:
		peer = bus.Peer{Kind: bus.PeerGroup, ID: msg.Chat.ID}
		chats[msg.Chat.ID] = bus.Chat{ID: msg.Chat.ID, Title: msg.Chat.Title}
	case telego.ChatTypeChannel:
		peer = bus.Peer{Kind: bus.PeerChannel, ID: msg.Chat.ID}
		chats[msg.Chat.ID] = bus.Chat{ID: msg.Chat.ID, Title: msg.Chat.Title}
	default:
		peer = bus.Peer{Kind: bus.PeerKind(msg.Chat.Type), ID: msg.Chat.ID}
	}

	ev := bus.Event{
		MessageID: strconv.FormatInt(msg.Chat.ID, 10) + ":" + strconv.Itoa(msg.MessageID),
		SenderID:  senderID,
		Peer:      peer,
		Text:      msg.Text,
		Media:     mediaRef(msg),
		Directory: bus.Directory{Users: users, Chats: chats},
	}
	if ev.Media != nil {
		ev.Text = msg.Caption
	}
	if msg.Date != 0 {
		ev.Date = time.Unix(msg.Date, 0)
	}
	return ev
}

func userIdentity(u telego.User) bus.Identity {
	return bus.Identity{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

func chatIdentity(ch telego.Chat) bus.Identity {
	id := bus.Identity{ID: ch.ID, Username: ch.Username, FirstName: ch.Title}
	if id.FirstName == "" {
		id.FirstName, id.LastName = ch.FirstName, ch.LastName
	}
	return id
}

// mediaRef picks the attachment of msg. Animations are checked before
// documents because the Bot API fills both for a GIF.
func mediaRef(msg *telego.Message) *bus.MediaRef {
	switch {
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		return &bus.MediaRef{Kind: bus.MediaPhoto, FileID: largest.FileID, MimeType: mimePhoto}
	case msg.Animation != nil:
		a := msg.Animation
		return &bus.MediaRef{Kind: bus.MediaAnimation, FileID: a.FileID, MimeType: a.MimeType, FileName: a.FileName}
	case msg.Document != nil:
		d := msg.Document
		return &bus.MediaRef{Kind: bus.MediaDocument, FileID: d.FileID, MimeType: d.MimeType, FileName: d.FileName}
	case msg.Video != nil:
		v := msg.Video
		return &bus.MediaRef{Kind: bus.MediaVideo, FileID: v.FileID, MimeType: v.MimeType, FileName: v.FileName}
	case msg.Audio != nil:
		a := msg.Audio
		return &bus.MediaRef{Kind: bus.MediaAudio, FileID: a.FileID, MimeType: a.MimeType, FileName: a.FileName}
	case msg.Voice != nil:
		mt := msg.Voice.MimeType
		if mt == "" {
			mt = mimeVoice
		}
		return &bus.MediaRef{Kind: bus.MediaVoice, FileID: msg.Voice.FileID, MimeType: mt}
	case msg.Sticker != nil:
		s := msg.Sticker
		mt := mimeStaticSticker
		switch {
		case s.IsAnimated:
			mt = mimeTGSticker
		case s.IsVideo:
			mt = mimeVideoSticker
		}
		return &bus.MediaRef{Kind: bus.MediaSticker, FileID: s.FileID, MimeType: mt}
	case msg.VideoNote != nil:
		return &bus.MediaRef{Kind: bus.MediaVideoNote, FileID: msg.VideoNote.FileID, MimeType: mimeVideoNote}
	default:
		return nil
	}
}

func (c *TelegramChannel) botFileURL(ctx context.Context, fileID string) (string, error) {
	f, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("telegram getFile: %w", err)
	}
	if f.FilePath == "" {
		return "", fmt.Errorf("telegram getFile: no file path for %s", fileID)
	}
	return c.bot.FileDownloadURL(f.FilePath), nil
}

// FetchMedia downloads ref to dest. A partial file is removed on failure.
func (c *TelegramChannel) FetchMedia(ctx context.Context, ref bus.MediaRef, dest string) error {
	if ref.FileID == "" {
		return fmt.Errorf("fetch %s: empty file id", ref.Kind)
	}
	u, err := c.fileURL(ctx, ref.FileID)
	if err != nil {
		return err
	}

	resp, err := c.http.R().SetContext(ctx).SetOutput(dest).Get(u)
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("download %s: %w", ref.FileID, err)
	}
	if resp.IsError() {
		os.Remove(dest)
		return fmt.Errorf("download %s: HTTP %d", ref.FileID, resp.StatusCode())
	}

	logger.DebugCF("telegram", "Media downloaded", map[string]any{
		"kind": ref.Kind.String(),
		"path": dest,
		"size": resp.Size(),
	})
	return nil
}
