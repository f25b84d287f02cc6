// Package handler routes rollup requests to the subscription ledger and
// emits exactly one notice or report per handled request.
package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/smallbiznis/subscription-coprocessor/internal/codec"
	"github.com/smallbiznis/subscription-coprocessor/internal/command"
	obscontext "github.com/smallbiznis/subscription-coprocessor/internal/observability/context"
	"github.com/smallbiznis/subscription-coprocessor/internal/observability/logger"
	"github.com/smallbiznis/subscription-coprocessor/internal/observability/metrics"
	"github.com/smallbiznis/subscription-coprocessor/internal/rollup"
	subscriptiondomain "github.com/smallbiznis/subscription-coprocessor/internal/subscription/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	RouteList       = "list"
	RouteTotal      = "total"
	RouteSubscriber = "subscriber/"
)

const (
	MessageMalformedPayload   = "payload is not in the expected format"
	MessageRouteNotFound      = "route not implemented"
	MessageSubscriberNotFound = "subscriber not found"
	MessageInternalError      = "internal error"
)

const (
	outputNotice = "notice"
	outputReport = "report"
)

type listResponse struct {
	Users []subscriptiondomain.Subscription `json:"users"`
}

type totalResponse struct {
	TotalOperations uint64 `json:"total_operations"`
}

type Router struct {
	log        *zap.Logger
	client     rollup.Client
	dispatcher *command.Dispatcher
	svc        subscriptiondomain.Service

	runnerMetrics *metrics.RunnerMetrics
	metrics       *metrics.Metrics
	tracer        trace.Tracer
}

type Params struct {
	fx.In

	Log           *zap.Logger
	Client        rollup.Client
	Dispatcher    *command.Dispatcher
	Service       subscriptiondomain.Service
	RunnerMetrics *metrics.RunnerMetrics   `optional:"true"`
	Metrics       *metrics.Metrics         `optional:"true"`
	Tracer        *sdktrace.TracerProvider `optional:"true"`
}

func NewRouter(p Params) (*Router, error) {
	if p.Log == nil || p.Client == nil || p.Dispatcher == nil || p.Service == nil {
		return nil, subscriptiondomain.ErrInvalidConfig
	}

	var provider trace.TracerProvider = otel.GetTracerProvider()
	if p.Tracer != nil {
		provider = p.Tracer
	}

	return &Router{
		log:           p.Log.Named("handler"),
		client:        p.Client,
		dispatcher:    p.Dispatcher,
		svc:           p.Service,
		runnerMetrics: p.RunnerMetrics,
		metrics:       p.Metrics,
		tracer:        provider.Tracer("subscription-coprocessor/handler"),
	}, nil
}

// Handle routes one request and returns the status to report on the next
// finish call. A returned error means a notice or report could not be
// delivered and the loop must stop.
func (r *Router) Handle(ctx context.Context, req *rollup.Request) (rollup.Status, error) {
	requestType := req.RequestType
	ctx = obscontext.WithRequestType(ctx, requestType)
	ctx, span := r.tracer.Start(ctx, "rollup.handle",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("rollup.request_type", requestType)),
	)
	defer span.End()

	start := time.Now()
	var (
		status rollup.Status
		err    error
	)
	switch requestType {
	case rollup.RequestTypeAdvance:
		status, err = r.HandleAdvance(ctx, req)
	case rollup.RequestTypeInspect:
		status, err = r.HandleInspect(ctx, req)
	default:
		logger.WithContext(ctx, r.log).Warn("unknown request type, rejecting")
		requestType = "unknown"
		status = rollup.StatusReject
	}

	outcome := string(status)
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("rollup.status", outcome))
	r.runnerMetrics.ObserveRequest(requestType, outcome, time.Since(start))
	return status, err
}

// HandleAdvance decodes the payload as a JSON object, counts the operation and
// emits the dispatcher message as a notice.
func (r *Router) HandleAdvance(ctx context.Context, req *rollup.Request) (rollup.Status, error) {
	data, err := req.Advance()
	if err != nil {
		return r.rejectMalformed(ctx, rollup.RequestTypeAdvance, err)
	}

	ctx = obscontext.WithInputIndex(ctx, data.Metadata.InputIndex)
	if sender := normalizeSender(data.Metadata.MsgSender); sender != "" {
		ctx = obscontext.WithSender(ctx, sender)
	}
	log := logger.WithContext(ctx, r.log)

	value, err := codec.DecodeHexJSON(data.Payload)
	if err != nil {
		return r.rejectMalformed(ctx, rollup.RequestTypeAdvance, err)
	}
	input, ok := value.(map[string]any)
	if !ok {
		return r.rejectMalformed(ctx, rollup.RequestTypeAdvance, errors.New("payload is not an object"))
	}

	total, err := r.svc.RecordOperation(ctx)
	if err != nil {
		return r.rejectInternal(ctx, rollup.RequestTypeAdvance, err)
	}

	res, err := r.dispatcher.Dispatch(ctx, input)
	if err != nil {
		return r.rejectInternal(ctx, rollup.RequestTypeAdvance, err)
	}

	if err := r.emit(ctx, outputNotice, rollup.RequestTypeAdvance, res.Message); err != nil {
		return rollup.StatusReject, err
	}

	if count, err := r.svc.Count(ctx); err == nil {
		r.runnerMetrics.SetStoreSize(total, count)
	}
	log.Info("advance handled",
		zap.String("command", res.Command),
		zap.Uint64("total_operations", total),
	)
	return rollup.StatusAccept, nil
}

// HandleInspect answers read-only queries. Inspect never mutates the ledger.
func (r *Router) HandleInspect(ctx context.Context, req *rollup.Request) (rollup.Status, error) {
	data, err := req.Inspect()
	if err != nil {
		return r.rejectMalformed(ctx, rollup.RequestTypeInspect, err)
	}
	route, err := codec.DecodeHexText(data.Payload)
	if err != nil {
		return r.rejectMalformed(ctx, rollup.RequestTypeInspect, err)
	}
	route = strings.TrimSpace(route)

	response, err := r.inspect(ctx, route)
	if err != nil {
		return r.rejectInternal(ctx, rollup.RequestTypeInspect, err)
	}
	if err := r.emit(ctx, outputReport, rollup.RequestTypeInspect, response); err != nil {
		return rollup.StatusReject, err
	}

	logger.WithContext(ctx, r.log).Debug("inspect handled", zap.String("route", route))
	return rollup.StatusAccept, nil
}

func (r *Router) inspect(ctx context.Context, route string) (any, error) {
	switch {
	case route == RouteList:
		users, err := r.svc.List(ctx)
		if err != nil {
			return nil, err
		}
		if users == nil {
			users = []subscriptiondomain.Subscription{}
		}
		return listResponse{Users: users}, nil
	case route == RouteTotal:
		total, err := r.svc.TotalOperations(ctx)
		if err != nil {
			return nil, err
		}
		return totalResponse{TotalOperations: total}, nil
	case strings.HasPrefix(route, RouteSubscriber):
		subscription, err := r.svc.Get(ctx, strings.TrimPrefix(route, RouteSubscriber))
		switch {
		case subscriptiondomain.IsValidation(err):
			return MessageSubscriberNotFound, nil
		case err != nil:
			return nil, err
		}
		return subscription, nil
	default:
		return MessageRouteNotFound, nil
	}
}

func (r *Router) rejectMalformed(ctx context.Context, requestType string, cause error) (rollup.Status, error) {
	r.runnerMetrics.IncDecodeError(requestType)
	logger.WithContext(ctx, r.log).Warn("malformed payload, rejecting", zap.Error(cause))

	if err := r.emit(ctx, outputReport, requestType, MessageMalformedPayload); err != nil {
		return rollup.StatusReject, err
	}
	return rollup.StatusReject, nil
}

func (r *Router) rejectInternal(ctx context.Context, requestType string, cause error) (rollup.Status, error) {
	logger.WithContext(ctx, r.log).Error("request failed, rejecting", zap.Error(cause))

	if err := r.emit(ctx, outputReport, requestType, MessageInternalError); err != nil {
		return rollup.StatusReject, err
	}
	return rollup.StatusReject, nil
}

func (r *Router) emit(ctx context.Context, kind, requestType string, value any) error {
	payload, err := codec.EncodeHexJSON(value)
	if err != nil {
		return err
	}

	if kind == outputNotice {
		err = r.client.Notice(ctx, payload)
	} else {
		err = r.client.Report(ctx, payload)
	}
	if err != nil {
		return err
	}
	r.metrics.RecordOutput(ctx, kind, requestType)
	return nil
}

// normalizeSender checksums well-formed addresses and passes anything else through.
func normalizeSender(sender string) string {
	sender = strings.TrimSpace(sender)
	if common.IsHexAddress(sender) {
		return common.HexToAddress(sender).Hex()
	}
	return sender
}
