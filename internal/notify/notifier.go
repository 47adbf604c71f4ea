// Package notify delivers operator alerts, chiefly ledger reconciliation
// cases where a swap settled on chain but could not be recorded.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"solana-pool-sniper/internal/domain"
)

// Sender is one alert channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans an alert out to every sender.
type Notifier struct {
	senders []Sender
	logger  *log.Logger
}

// NewNotifier creates a notifier. A nil logger uses log.Default().
func NewNotifier(logger *log.Logger, senders ...Sender) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{senders: senders, logger: logger}
}

// Notify sends to all senders. A failing sender does not stop delivery to the rest.
func (n *Notifier) Notify(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Printf("[notify] sender %s failed: %v", s.Name(), err)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Reconcile reports a sent trade whose on-chain effect may not match the
// ledger: either it confirmed and the ledger write failed, or its outcome is unknown.
func (n *Notifier) Reconcile(ctx context.Context, userID string, res domain.TradeExecutionResult, cause error) error {
	title := "Ledger reconciliation required"
	if res.FailureKind != domain.FailureLedgerUnreconciled {
		title = "Trade outcome unknown"
	}
	msg := fmt.Sprintf("user=%s mint=%s side=%s kind=%s amount=%g price=%g signature=%s request=%s: %v",
		userID, res.TokenMint, res.Side, res.FailureKind, res.Amount, res.ExecutedPrice, res.Signature, res.RequestID, cause)
	return n.Notify(ctx, title, msg)
}

// LogSender writes alerts to a logger.
type LogSender struct {
	logger *log.Logger
}

// NewLogSender creates a LogSender. A nil logger uses log.Default().
func NewLogSender(logger *log.Logger) *LogSender {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, title, message string) error {
	s.logger.Printf("[alert] %s: %s", title, message)
	return nil
}

func (s *LogSender) Name() string { return "log" }
