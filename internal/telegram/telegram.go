package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dushixiang/copyrank/internal/service"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"
)

type Settings struct {
	Token   string
	ChatID  string
	Client  *http.Client
	Offline bool
}

type Telegram struct {
	logger   *zap.Logger
	settings Settings
	client   *tele.Bot

	allocation *service.AllocationService
	cycle      *service.CycleService
}

type Option func(telegram *Telegram)

// WithQueries 启用 /status 与 /allocations 查询命令
func WithQueries(allocation *service.AllocationService, cycle *service.CycleService) Option {
	return func(t *Telegram) {
		t.allocation = allocation
		t.cycle = cycle
	}
}

func NewTelegram(logger *zap.Logger, settings Settings, options ...Option) (*Telegram, error) {
	chatID := cast.ToInt64(settings.ChatID)

	poller := &tele.LongPoller{Timeout: 10 * time.Second}

	// 只响应配置的会话
	userMiddleware := tele.NewMiddlewarePoller(poller, func(u *tele.Update) bool {
		if chatID == 0 || u.Message == nil {
			return true
		}
		return u.Message.Chat.ID == chatID
	})

	client, err := tele.NewBot(tele.Settings{
		ParseMode: tele.ModeMarkdown,
		Token:     settings.Token,
		Poller:    userMiddleware,
		Client:    settings.Client,
		Offline:   settings.Offline,
	})
	if err != nil {
		return nil, err
	}

	client.Use(middleware.AutoRespond())

	bot := &Telegram{
		logger:   logger,
		settings: settings,
		client:   client,
	}

	for _, option := range options {
		option(bot)
	}

	if !settings.Offline {
		err = client.SetCommands([]tele.Command{
			{Text: "/start", Description: "显示帮助"},
			{Text: "/status", Description: "最近的重算周期"},
			{Text: "/allocations", Description: "当前资金分配"},
		})
		if err != nil {
			return nil, err
		}
	}

	client.Handle("/start", bot.handleStart)
	client.Handle("/status", bot.handleStatus)
	client.Handle("/allocations", bot.handleAllocations)

	return bot, nil
}

func (r *Telegram) Start() {
	go r.client.Start()
}

func (r *Telegram) Stop() {
	r.client.Stop()
}

// Notify 发送消息到配置的会话
func (r *Telegram) Notify(msg string) error {
	chatID := cast.ToInt64(r.settings.ChatID)
	if chatID == 0 {
		return fmt.Errorf("telegram chat id not configured")
	}
	_, err := r.client.Send(tele.ChatID(chatID), msg, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	return err
}

func (r *Telegram) handleStart(c tele.Context) error {
	return c.Send("*copyrank*\n/status 最近的重算周期\n/allocations 当前资金分配")
}

func (r *Telegram) handleStatus(c tele.Context) error {
	if r.cycle == nil {
		return c.Send("status not available")
	}
	runs, err := r.cycle.RecentRuns(context.Background(), 5)
	if err != nil {
		r.logger.Error("telegram status query failed", zap.Error(err))
		return c.Send("query failed")
	}
	if len(runs) == 0 {
		return c.Send("no cycles yet")
	}
	var sb strings.Builder
	for _, run := range runs {
		fmt.Fprintf(&sb, "`%s` %s scored=%d carried=%d eligible=%d allocated=%d\n",
			run.CycleID, escapeMarkdown(run.Status), run.Scored, run.Carried, run.Eligible, run.Allocated)
	}
	return c.Send(sb.String())
}

func (r *Telegram) handleAllocations(c tele.Context) error {
	if r.allocation == nil {
		return c.Send("allocations not available")
	}
	cycleID, items, err := r.allocation.LatestAllocations(context.Background())
	if err != nil {
		r.logger.Error("telegram allocation query failed", zap.Error(err))
		return c.Send("query failed")
	}
	if len(items) == 0 {
		return c.Send("no allocations")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "*cycle* `%s`\n", cycleID)
	for _, a := range items {
		fmt.Fprintf(&sb, "`%s` %.2f%% score=%.3f\n", shortAddress(a.TraderAddress), a.FinalWeight*100, a.Score)
	}
	return c.Send(sb.String())
}
