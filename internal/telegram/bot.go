package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"wingo-bot/internal/config"
	"wingo-bot/internal/logger"
	"wingo-bot/internal/predictor"
	"wingo-bot/internal/service"
)

const (
	callbackPredict = "predict"
	callbackHistory = "history"
	callbackStats   = "stats"

	trendWindow = 10

	// telegram 全局限制约每秒30条
	broadcastRate = 25
)

// botAPI tgbotapi.BotAPI 中用到的部分
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// PredictionSource 机器人读取预测的来源
type PredictionSource interface {
	RunCycle(ctx context.Context) (*service.CycleReport, error)
	LastReport() *service.CycleReport
	Stats() predictor.Stats
}

// Bot Telegram机器人
type Bot struct {
	api     botAPI
	source  PredictionSource
	timeout int
	limiter *rate.Limiter

	// 配置的推送目标（可以是群组）
	broadcastIDs []int64

	mu          sync.RWMutex
	subscribers map[int64]struct{}

	wg sync.WaitGroup
}

// NewBot 创建新的Telegram机器人
func NewBot(cfg *config.Telegram, source PredictionSource) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %v", err)
	}

	api.Debug = false
	logger.Infof("Telegram bot authorized on account: %s", api.Self.UserName)

	return newBot(api, cfg, source), nil
}

func newBot(api botAPI, cfg *config.Telegram, source PredictionSource) *Bot {
	return &Bot{
		api:          api,
		source:       source,
		timeout:      int(cfg.Timeout.Seconds()),
		limiter:      rate.NewLimiter(rate.Limit(broadcastRate), 1),
		broadcastIDs: append([]int64(nil), cfg.BroadcastChatIDs...),
		subscribers:  make(map[int64]struct{}),
	}
}

// Run 处理更新直到ctx取消
func (b *Bot) Run(ctx context.Context) error {
	logger.Info("Starting Telegram bot...")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout
	updates := b.api.GetUpdatesChan(u)

	defer func() {
		b.api.StopReceivingUpdates()
		b.wg.Wait()
		logger.Info("Telegram bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// handleUpdate 只处理私聊中的消息和回调
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		if update.Message.Chat != nil && update.Message.Chat.IsPrivate() {
			b.handleMessage(ctx, update.Message)
		}
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		if cq.Message != nil && cq.Message.Chat != nil && cq.Message.Chat.IsPrivate() {
			b.handleCallbackQuery(ctx, cq)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	if !message.IsCommand() {
		b.handleTextMessage(ctx, chatID, message.Text)
		return
	}

	command := message.Command()
	logger.Debugf("Received private command: %s from user: %d", command, chatID)

	switch command {
	case "start":
		b.sendWithKeyboard(chatID, welcomeText)
	case "help":
		b.sendMessage(chatID, helpText)
	case "predict":
		b.handlePredict(ctx, chatID)
	case "history":
		b.handleHistory(ctx, chatID)
	case "stats":
		b.handleStats(chatID)
	case "subscribe":
		b.Subscribe(chatID)
		b.sendMessage(chatID, "🔔 Subscribed. You will receive every new prediction.")
	case "unsubscribe":
		b.Unsubscribe(chatID)
		b.sendMessage(chatID, "🔕 Unsubscribed.")
	default:
		b.sendMessage(chatID, "Unknown command. Type /help to view available commands.")
	}
}

func (b *Bot) handleTextMessage(ctx context.Context, chatID int64, text string) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "predict", "prediction", "预测":
		b.handlePredict(ctx, chatID)
	case "history", "历史":
		b.handleHistory(ctx, chatID)
	case "stats", "统计":
		b.handleStats(chatID)
	default:
		b.sendMessage(chatID, "Please use commands or keywords, type /help for help.")
	}
}

func (b *Bot) handleCallbackQuery(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	chatID := cq.Message.Chat.ID
	logger.Debugf("Received private callback: %s from user: %d", cq.Data, chatID)

	switch cq.Data {
	case callbackPredict:
		b.handlePredict(ctx, chatID)
	case callbackHistory:
		b.handleHistory(ctx, chatID)
	case callbackStats:
		b.handleStats(chatID)
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		logger.Debugf("Failed to answer callback: %v", err)
	}
}

func (b *Bot) handlePredict(ctx context.Context, chatID int64) {
	report, err := b.source.RunCycle(ctx)
	if err != nil {
		logger.Errorf("Telegram predict failed: %v", err)
		b.sendMessage(chatID, "❌ Failed to get prediction, please try again in a few seconds.")
		return
	}
	b.sendWithKeyboard(chatID, formatPrediction(report))
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	report := b.source.LastReport()
	if report == nil {
		var err error
		if report, err = b.source.RunCycle(ctx); err != nil {
			logger.Errorf("Telegram history failed: %v", err)
			b.sendMessage(chatID, "❌ Failed to get history records, please try again later.")
			return
		}
	}
	b.sendMessage(chatID, formatHistory(report.RecentHistory))
}

func (b *Bot) handleStats(chatID int64) {
	stats := b.source.Stats()
	b.sendMessage(chatID, formatStats(stats, stats.Trend(trendWindow)))
}

// Subscribe 订阅推送
func (b *Bot) Subscribe(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[chatID] = struct{}{}
}

// Unsubscribe 取消订阅
func (b *Bot) Unsubscribe(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, chatID)
}

// recipients 配置的推送目标加订阅用户，去重后排序
func (b *Bot) recipients() []int64 {
	set := make(map[int64]struct{}, len(b.broadcastIDs))
	for _, id := range b.broadcastIDs {
		set[id] = struct{}{}
	}

	b.mu.RLock()
	for id := range b.subscribers {
		set[id] = struct{}{}
	}
	b.mu.RUnlock()

	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// BroadcastNewPrediction 推送新预测，可直接注册为 service.Listener
func (b *Bot) BroadcastNewPrediction(report *service.CycleReport) {
	ids := b.recipients()
	if len(ids) == 0 {
		return
	}

	text := formatBroadcast(report)
	sent := 0
	for _, id := range ids {
		if err := b.limiter.Wait(context.Background()); err != nil {
			break
		}
		if b.send(tgbotapi.NewMessage(id, text)) {
			sent++
		}
	}

	logger.Infof("Broadcasted prediction for %s to %d/%d chats", report.Prediction.TargetPeriod, sent, len(ids))
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendWithKeyboard(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = inlineKeyboard()
	b.send(msg)
}

func (b *Bot) send(msg tgbotapi.MessageConfig) bool {
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		logger.Errorf("Failed to send message to chat %d: %v", msg.ChatID, err)
		return false
	}
	return true
}
