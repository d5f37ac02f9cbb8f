// Package execution turns buy and sell requests into ledger trades.
//
// The Executor is the only component that touches both a price quote and
// ledger state. It validates the request, resolves the fill price against
// the market data collaborator and delegates to the Ledger; ledger errors
// are returned unchanged. Committed fills are announced to the notifier and
// the websocket gateway.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"papertrade/internal/gateway"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/metrics"
	"papertrade/internal/model"
	"papertrade/internal/notification"
)

const notifyTimeout = 15 * time.Second

// OrderRequest is a buy or sell order. A nil or zero Price is a market order
// filled at the current quote. Plan fields apply to buys only.
type OrderRequest struct {
	AccountID string           `json:"-" validate:"required,max=64"`
	Side      model.TradeType  `json:"side" validate:"required,oneof=BUY SELL"`
	Symbol    string           `json:"symbol" validate:"required,max=20,alphanum,uppercase"`
	Quantity  int64            `json:"quantity" validate:"gt=0"`
	Price     *decimal.Decimal `json:"price,omitempty" validate:"omitempty,gte=0"`

	EntryPrice *decimal.Decimal `json:"entry_price,omitempty" validate:"omitempty,gt=0"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty" validate:"omitempty,gt=0"`
	Target     *decimal.Decimal `json:"target,omitempty" validate:"omitempty,gt=0"`
}

func (r *OrderRequest) plan() *model.TradePlan {
	if r.EntryPrice == nil && r.StopLoss == nil && r.Target == nil {
		return nil
	}
	return &model.TradePlan{EntryPrice: r.EntryPrice, StopLoss: r.StopLoss, Target: r.Target}
}

func (r *OrderRequest) limit() *decimal.Decimal {
	if r.Price == nil || r.Price.IsZero() {
		return nil
	}
	return r.Price
}

// Publisher fans events out to connected clients.
type Publisher interface {
	Publish(channel, account string, data any)
}

// Config configures an Executor.
type Config struct {
	// Universe lists the tradable symbols; empty allows any symbol.
	Universe []string
	// SlippageBps moves market-order fills against the trader.
	SlippageBps int64
}

// Executor validates orders and applies them to the ledger.
type Executor struct {
	ledger      *ledger.Ledger
	market      model.MarketData
	universe    map[string]bool
	slippageBps int64
	validate    *validator.Validate

	notifier  notification.Notifier
	publisher Publisher
	metrics   *metrics.Metrics
	log       *slog.Logger

	pending sync.WaitGroup
}

// Option customizes an Executor.
type Option func(*Executor)

// WithNotifier sends a fill alert for every committed trade.
func WithNotifier(n notification.Notifier) Option {
	return func(e *Executor) { e.notifier = n }
}

// WithPublisher publishes every committed trade on the trades channel.
func WithPublisher(p Publisher) Option {
	return func(e *Executor) { e.publisher = p }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New creates an Executor. md may be nil, in which case every order must
// carry a price and symbols are checked against the universe only.
func New(cfg Config, l *ledger.Ledger, md model.MarketData, log *slog.Logger, opts ...Option) *Executor {
	if log == nil {
		log = slog.Default()
	}
	e := &Executor{
		ledger:      l,
		market:      md,
		universe:    make(map[string]bool, len(cfg.Universe)),
		slippageBps: cfg.SlippageBps,
		validate:    newValidator(),
		log:         log.With("component", "executor"),
	}
	for _, s := range cfg.Universe {
		e.universe[s] = true
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute runs one order end to end and returns the committed trade record.
func (e *Executor) Execute(ctx context.Context, req OrderRequest) (model.TradeRecord, error) {
	start := time.Now()
	rec, err := e.execute(ctx, req)
	outcome := classify(err)
	e.metrics.ObserveOrder(string(req.Side), outcome, time.Since(start))

	attrs := append(logger.Attrs(ctx),
		"account", req.AccountID,
		"side", req.Side,
		"symbol", req.Symbol,
		"quantity", req.Quantity,
	)
	switch outcome {
	case "rejected":
		e.log.Info("order rejected", append(attrs, "error", err)...)
		return model.TradeRecord{}, err
	case "error":
		e.log.Error("order failed", append(attrs, "error", err)...)
		return model.TradeRecord{}, err
	}

	e.log.Info("order filled", append(attrs,
		"trade_id", rec.ID,
		"price", rec.Price.StringFixed(2),
		"total", rec.TotalValue.StringFixed(2),
	)...)
	if e.publisher != nil {
		e.publisher.Publish(gateway.ChannelTrades, rec.AccountID, rec)
	}
	e.notify(ctx, rec)
	return rec, nil
}

func (e *Executor) execute(ctx context.Context, req OrderRequest) (model.TradeRecord, error) {
	if err := e.validate.StructCtx(ctx, req); err != nil {
		return model.TradeRecord{}, validationError(err)
	}
	if len(e.universe) > 0 && !e.universe[req.Symbol] {
		return model.TradeRecord{}, &model.InvalidSymbolError{Symbol: req.Symbol, Reason: "not in the trading universe"}
	}

	limit := req.limit()
	var quote model.Quote
	if e.market != nil {
		q, err := e.market.CurrentPrice(ctx, req.Symbol)
		switch {
		case errors.Is(err, model.ErrSymbolNotFound):
			return model.TradeRecord{}, &model.InvalidSymbolError{Symbol: req.Symbol, Reason: "no market data"}
		case err != nil:
			return model.TradeRecord{}, err
		}
		quote = q
	} else if limit == nil {
		return model.TradeRecord{}, fmt.Errorf("%w: price is required without a market data source", model.ErrInvalidOrder)
	}
	price := fillPrice(req.Side, limit, quote.Price, e.slippageBps)

	if req.Side == model.TradeBuy {
		return e.ledger.Buy(ctx, req.AccountID, req.Symbol, req.Quantity, price, req.plan())
	}
	return e.ledger.Sell(ctx, req.AccountID, req.Symbol, req.Quantity, price)
}

// notify delivers the fill alert in the background; Close waits for it.
func (e *Executor) notify(ctx context.Context, rec model.TradeRecord) {
	if e.notifier == nil {
		return
	}
	alert := notification.FillAlert(rec)
	attrs := logger.Attrs(ctx)
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := e.notifier.Send(ctx, alert); err != nil {
			e.metrics.IncNotifyFailure()
			e.log.Warn("fill notification failed", append(attrs, "trade_id", rec.ID, "error", err)...)
		}
	}()
}

// Close waits for in-flight notifications.
func (e *Executor) Close() {
	e.pending.Wait()
}

// classify maps an order error to its metrics outcome.
func classify(err error) string {
	switch {
	case err == nil:
		return "filled"
	case errors.Is(err, model.ErrInvalidOrder),
		errors.Is(err, model.ErrInvalidSymbol),
		errors.Is(err, model.ErrInsufficientFunds),
		errors.Is(err, model.ErrInsufficientHolding),
		errors.Is(err, model.ErrAccountNotFound):
		return "rejected"
	default:
		return "error"
	}
}
