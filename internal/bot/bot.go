// Package bot implements the user-facing chat flow: the /start menu, the
// per-variant prediction cards behind inline buttons, and registration of
// shown cards for in-place refresh.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wingobot/internal/game"
	"wingobot/internal/predict"
	"wingobot/internal/registry"
	"wingobot/internal/transport/telegram/router"

	kit "wingobot/internal/transport"
	logx "wingobot/pkg/logx"
	"wingobot/pkg/tgui"
)

const cbGroup = "wingo"

type Config struct {
	// ChannelURL is the "join the official channel" link on the menu.
	ChannelURL string
}

type Service struct {
	cfg       Config
	predictor *predict.Predictor
	reg       *registry.Registry
	log       logx.Logger
}

func New(cfg Config, p *predict.Predictor, reg *registry.Registry, log logx.Logger) *Service {
	if cfg.ChannelURL == "" {
		cfg.ChannelURL = "https://t.me/TCWINGOAISAGAR"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, predictor: p, reg: reg, log: log}
}

// Commands returns the command table to install on the router.
func (s *Service) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Aliases:     []string{"menu"},
			Description: "open the prediction menu",
			Access:      router.AccessEveryone,
			Timeout:     15 * time.Second,
			Handle:      s.handleStart,
		},
	}
}

// Callbacks returns the inline-button routes.
func (s *Service) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Group: cbGroup, Action: "pick", Access: router.AccessEveryone, Timeout: 15 * time.Second, Handle: s.handlePick},
		{Group: cbGroup, Action: "menu", Access: router.AccessEveryone, Timeout: 15 * time.Second, Handle: s.handleMenu},
		{Group: cbGroup, Action: "exit", Access: router.AccessEveryone, Timeout: 15 * time.Second, Handle: s.handleExit},
	}
}

// CardOptions returns the send options the refresher must use when editing a
// shown card, so the BACK TO MENU button survives the edit.
func (s *Service) CardOptions(cat game.Category) *kit.SendOptions {
	return &kit.SendOptions{
		DisablePreview:     true,
		ReplyMarkupAdapter: s.backMarkup(),
	}
}

func (s *Service) handleStart(ctx context.Context, req *router.Request) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, s.menuText(), &kit.SendOptions{
		ParseMode:          "Markdown",
		DisablePreview:     true,
		ReplyMarkupAdapter: s.menuMarkup(),
	})
	return err
}

// handlePick shows (or refreshes into) the prediction card for the chosen
// variant and registers the message for periodic in-place updates.
func (s *Service) handlePick(ctx context.Context, req *router.Request, payload string) error {
	cat, err := game.ParseCategory(payload)
	if err != nil {
		return err
	}

	card, err := s.predictor.Card(ctx, cat, time.Now())
	if err != nil {
		return fmt.Errorf("render card: %w", err)
	}

	opt := s.CardOptions(cat)
	ref := kit.MessageRef{ChatID: req.Chat.ChatID, MessageID: req.Update.Callback.MessageID}
	if editErr := req.Adapter.EditText(ctx, ref, card, opt); editErr != nil {
		// Telegram rejects some edits (deleted message, identical content).
		// Fall back to a fresh message so the user still gets the card.
		req.Logger.Debug("card edit failed; sending fresh", logx.Err(editErr))
		ref, err = req.Adapter.SendText(ctx, req.Chat, card, opt)
		if err != nil {
			return fmt.Errorf("send card: %w", err)
		}
	}

	s.reg.Add(cat, ref)
	return nil
}

// handleMenu swaps a shown card back to the menu and stops refreshing it.
func (s *Service) handleMenu(ctx context.Context, req *router.Request, _ string) error {
	ref := kit.MessageRef{ChatID: req.Chat.ChatID, MessageID: req.Update.Callback.MessageID}
	s.reg.Remove(ref)

	err := req.Adapter.EditText(ctx, ref, s.menuText(), &kit.SendOptions{
		ParseMode:          "Markdown",
		DisablePreview:     true,
		ReplyMarkupAdapter: s.menuMarkup(),
	})
	if err != nil {
		_, err = req.Adapter.SendText(ctx, req.Chat, s.menuText(), &kit.SendOptions{
			ParseMode:          "Markdown",
			DisablePreview:     true,
			ReplyMarkupAdapter: s.menuMarkup(),
		})
	}
	return err
}

func (s *Service) handleExit(ctx context.Context, req *router.Request, _ string) error {
	ref := kit.MessageRef{ChatID: req.Chat.ChatID, MessageID: req.Update.Callback.MessageID}
	s.reg.Remove(ref)

	const farewell = "Thank you for using TC WINGO BOT!\n\nCome back anytime for more predictions! 👋"
	if err := req.Adapter.EditText(ctx, ref, farewell, nil); err != nil {
		_, err = req.Adapter.SendText(ctx, req.Chat, farewell, nil)
		return err
	}
	return nil
}

func (s *Service) menuMarkup() any {
	return tgui.NewInline().
		Row(tgui.URLBtn("✅ JOIN OFFICIAL CHANNEL", s.cfg.ChannelURL)).
		Row(tgui.Btn("🔴 WinGo 30 Second ⚡", tgui.Data(cbGroup, "pick", string(game.Cat30Sec)))).
		Row(tgui.Btn("🟢 WinGo 1 Minute 🎯", tgui.Data(cbGroup, "pick", string(game.Cat1Min)))).
		Row(tgui.Btn("↩️ EXIT", tgui.Data(cbGroup, "exit", ""))).
		Markup()
}

func (s *Service) backMarkup() any {
	return tgui.NewInline().
		Row(tgui.Btn("↩️ BACK TO MENU", tgui.Data(cbGroup, "menu", ""))).
		Markup()
}

func (s *Service) menuText() string {
	handle := channelHandle(s.cfg.ChannelURL)
	return strings.Join([]string{
		"╔══════『 *🏆 TC WINGO BOT 🏆* 』═══════╗",
		"║                                                               ║",
		"║   💫 *70% WIN RATE GUARANTEED* 💫   ║",
		"║                                                               ║",
		"║   🔮 Premium Predictions For FREE 🔮   ║",
		"║                                                               ║",
		"║   🎯 Select Game Mode Below 🎯   ║",
		"║                                                               ║",
		"╚═════════════════════════╝",
		"",
		"💎 *OFFICIAL TC PREDICTION BOT* 💎",
		"🚀 24/7 AUTOMATED SIGNALS 🚀",
		"",
		"⚠️ *Join " + handle + " for more signals* ⚠️",
	}, "\n")
}

// channelHandle turns a t.me link into an @handle for display.
func channelHandle(url string) string {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		url = url[i+1:]
	}
	url = strings.TrimPrefix(url, "@")
	if url == "" {
		return "our channel"
	}
	return "@" + url
}
