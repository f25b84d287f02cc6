// Package command parses subscription command lines and renders their outcome
// as the human readable messages returned to the rollup.
package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/smallbiznis/subscription-coprocessor/internal/config"
	"github.com/smallbiznis/subscription-coprocessor/internal/observability/logger"
	"github.com/smallbiznis/subscription-coprocessor/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/subscription-coprocessor/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	CommandSubscribe = "subscribe"
	CommandCheck     = "check"
	CommandPay       = "pay"
)

// PayloadField is the key of the command line inside a decoded advance object.
const PayloadField = "payload"

var ErrUnknownCommand = errors.New("unknown_command")

// Result is the rendered outcome of one command line.
type Result struct {
	Command string
	Message string
	// Err is the validation error behind the message, nil on success.
	Err error
}

type Dispatcher struct {
	log     *zap.Logger
	svc     subscriptiondomain.Service
	policy  *config.PolicyHolder
	metrics *metrics.Metrics
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Service subscriptiondomain.Service
	Policy  *config.PolicyHolder
	Metrics *metrics.Metrics `optional:"true"`
}

func NewDispatcher(p Params) (*Dispatcher, error) {
	if p.Log == nil || p.Service == nil || p.Policy == nil {
		return nil, subscriptiondomain.ErrInvalidConfig
	}
	return &Dispatcher{
		log:     p.Log.Named("command"),
		svc:     p.Service,
		policy:  p.Policy,
		metrics: p.Metrics,
	}, nil
}

// Dispatch executes the command line carried by a decoded advance object.
// Business rule failures become messages; only store failures are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, input map[string]any) (Result, error) {
	line, _ := input[PayloadField].(string)
	return d.Execute(ctx, line)
}

// Execute runs one "<command> <subscriberId> <amount>" line.
func (d *Dispatcher) Execute(ctx context.Context, line string) (Result, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return d.finish(ctx, Result{Err: ErrUnknownCommand}), nil
	}

	name := fields[0]
	args := fields[1:]

	var (
		res Result
		err error
	)
	switch name {
	case CommandSubscribe:
		res, err = d.subscribe(ctx, args)
	case CommandCheck:
		res, err = d.check(ctx, args)
	case CommandPay:
		res, err = d.pay(ctx, args)
	default:
		res = Result{Err: ErrUnknownCommand}
	}
	if err != nil {
		d.metrics.RecordCommand(ctx, name, "error")
		return Result{}, fmt.Errorf("%s: %w", name, err)
	}
	if res.Err != ErrUnknownCommand {
		res.Command = name
	}
	return d.finish(ctx, res), nil
}

func (d *Dispatcher) subscribe(ctx context.Context, args []string) (Result, error) {
	subscriberID, amount, res, ok := d.parseArgs(CommandSubscribe, args, true)
	if !ok {
		return res, nil
	}

	sub, err := d.svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{SubscriberID: subscriberID, Amount: amount})
	switch {
	case errors.Is(err, subscriptiondomain.ErrAlreadySubscribed):
		return Result{Err: err, Message: fmt.Sprintf("User %s is already subscribed.", subscriberID)}, nil
	case subscriptiondomain.IsValidation(err):
		return Result{Err: err}, nil
	case err != nil:
		return Result{}, err
	}

	return Result{
		Message: fmt.Sprintf("User %s successfully subscribed. Subscription valid until %s.", sub.SubscriberID, sub.ExpiryDate),
	}, nil
}

func (d *Dispatcher) check(ctx context.Context, args []string) (Result, error) {
	subscriberID, _, res, ok := d.parseArgs(CommandCheck, args, false)
	if !ok {
		return res, nil
	}

	out, err := d.svc.Check(ctx, subscriberID)
	switch {
	case errors.Is(err, subscriptiondomain.ErrNotSubscribed):
		return Result{Err: err, Message: fmt.Sprintf("User %s is not subscribed.", subscriberID)}, nil
	case subscriptiondomain.IsValidation(err):
		return Result{Err: err}, nil
	case err != nil:
		return Result{}, err
	}

	if out.Status == subscriptiondomain.CheckStatusExpired {
		return Result{Message: fmt.Sprintf("User %s's subscription has expired.", subscriberID)}, nil
	}
	return Result{
		Message: fmt.Sprintf("User %s is subscribed until %s.", subscriberID, out.Subscription.ExpiryDate),
	}, nil
}

func (d *Dispatcher) pay(ctx context.Context, args []string) (Result, error) {
	subscriberID, amount, res, ok := d.parseArgs(CommandPay, args, true)
	if !ok {
		return res, nil
	}

	sub, err := d.svc.Pay(ctx, subscriptiondomain.PayRequest{SubscriberID: subscriberID, Amount: amount})
	switch {
	case errors.Is(err, subscriptiondomain.ErrNotSubscribed):
		return Result{Err: err, Message: fmt.Sprintf("User %s is not subscribed. Please subscribe first.", subscriberID)}, nil
	case subscriptiondomain.IsValidation(err):
		return Result{Err: err}, nil
	case err != nil:
		return Result{}, err
	}

	d.metrics.RecordPayment(ctx, CommandPay, amount)
	return Result{
		Message: fmt.Sprintf("Payment of %s received. Subscription extended until %s.", formatAmount(amount), sub.ExpiryDate),
	}, nil
}

// parseArgs extracts the subscriber id and, when required, the amount. When
// ok is false res already carries the rendered usage problem.
func (d *Dispatcher) parseArgs(name string, args []string, withAmount bool) (subscriberID string, amount float64, res Result, ok bool) {
	if len(args) == 0 {
		return "", 0, Result{
			Err:     subscriptiondomain.ErrMissingSubscriber,
			Message: fmt.Sprintf("Missing subscriber id. Usage: %s <id> [amount].", name),
		}, false
	}
	subscriberID = args[0]
	if !withAmount {
		return subscriberID, 0, Result{}, true
	}

	raw := ""
	if len(args) > 1 {
		raw = args[1]
	}
	amount, err := parseAmount(raw)
	if err != nil {
		return "", 0, Result{
			Err:     subscriptiondomain.ErrInvalidAmount,
			Message: fmt.Sprintf("Invalid amount %q.", raw),
		}, false
	}
	return subscriberID, amount, Result{}, true
}

// finish fills in the message for validation errors and records the outcome.
func (d *Dispatcher) finish(ctx context.Context, res Result) Result {
	if res.Message == "" {
		res.Message = d.render(res.Err)
	}

	result := "ok"
	if res.Err != nil {
		result = errorLabel(res.Err)
	}
	command := res.Command
	if command == "" {
		command = "unknown"
	}
	d.metrics.RecordCommand(ctx, command, result)

	logger.WithContext(ctx, d.log).Debug("command executed",
		zap.String("command", command),
		zap.String("result", result),
	)
	return res
}

func (d *Dispatcher) render(err error) string {
	var insufficient *subscriptiondomain.InsufficientAmountError
	switch {
	case errors.As(err, &insufficient):
		return fmt.Sprintf("Insufficient amount. Minimum amount required is %s.", formatAmount(insufficient.Minimum))
	case errors.Is(err, subscriptiondomain.ErrInsufficientAmount):
		return fmt.Sprintf("Insufficient amount. Minimum amount required is %s.", formatAmount(d.policy.Get().MinimumPayment))
	default:
		return "Invalid command. Use 'subscribe', 'check', or 'pay'."
	}
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, subscriptiondomain.ErrAlreadySubscribed):
		return "already_subscribed"
	case errors.Is(err, subscriptiondomain.ErrNotSubscribed):
		return "not_subscribed"
	case errors.Is(err, subscriptiondomain.ErrInsufficientAmount):
		return "insufficient_amount"
	case errors.Is(err, subscriptiondomain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, subscriptiondomain.ErrMissingSubscriber):
		return "missing_subscriber"
	default:
		return "unknown_command"
	}
}

func parseAmount(raw string) (float64, error) {
	if raw == "" {
		return 0, subscriptiondomain.ErrInvalidAmount
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, subscriptiondomain.ErrInvalidAmount
	}
	return amount, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
