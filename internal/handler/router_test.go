package handler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/subscription-coprocessor/internal/clock"
	"github.com/smallbiznis/subscription-coprocessor/internal/codec"
	"github.com/smallbiznis/subscription-coprocessor/internal/command"
	"github.com/smallbiznis/subscription-coprocessor/internal/config"
	"github.com/smallbiznis/subscription-coprocessor/internal/rollup"
	"github.com/smallbiznis/subscription-coprocessor/internal/rollup/mocks"
	subscriptiondomain "github.com/smallbiznis/subscription-coprocessor/internal/subscription/domain"
	"github.com/smallbiznis/subscription-coprocessor/internal/subscription/repository"
	"github.com/smallbiznis/subscription-coprocessor/internal/subscription/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	router  *Router
	client  *mocks.MockClient
	svc     subscriptiondomain.Service
	notices []string
	reports []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	policy := config.NewStaticPolicyHolder(config.DefaultPolicy())
	svc, err := service.NewService(service.ServiceParam{
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)),
		Policy: policy,
		Repo:   repository.Provide(),
	})
	require.NoError(t, err)

	dispatcher, err := command.NewDispatcher(command.Params{Log: zap.NewNop(), Service: svc, Policy: policy})
	require.NoError(t, err)

	router, err := NewRouter(Params{
		Log:        zap.NewNop(),
		Client:     client,
		Dispatcher: dispatcher,
		Service:    svc,
	})
	require.NoError(t, err)

	return &fixture{router: router, client: client, svc: svc}
}

func (f *fixture) expectNotices(n int) {
	f.client.EXPECT().Notice(gomock.Any(), gomock.Any()).Times(n).DoAndReturn(func(_ context.Context, payload string) error {
		f.notices = append(f.notices, payload)
		return nil
	})
}

func (f *fixture) expectReports(n int) {
	f.client.EXPECT().Report(gomock.Any(), gomock.Any()).Times(n).DoAndReturn(func(_ context.Context, payload string) error {
		f.reports = append(f.reports, payload)
		return nil
	})
}

func advance(t *testing.T, payload string) *rollup.Request {
	t.Helper()
	data, err := json.Marshal(rollup.AdvanceData{
		Metadata: rollup.Metadata{MsgSender: "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", InputIndex: 1},
		Payload:  payload,
	})
	require.NoError(t, err)
	return &rollup.Request{RequestType: rollup.RequestTypeAdvance, Data: data}
}

func advanceCommand(t *testing.T, line string) *rollup.Request {
	t.Helper()
	payload, err := codec.EncodeHexJSON(map[string]any{"payload": line})
	require.NoError(t, err)
	return advance(t, payload)
}

func inspect(t *testing.T, route string) *rollup.Request {
	t.Helper()
	data, err := json.Marshal(rollup.InspectData{Payload: codec.EncodeHex([]byte(route))})
	require.NoError(t, err)
	return &rollup.Request{RequestType: rollup.RequestTypeInspect, Data: data}
}

func decodeOutput(t *testing.T, payload string) any {
	t.Helper()
	value, err := codec.DecodeHexJSON(payload)
	require.NoError(t, err)
	return value
}

func TestAdvanceSubscribeEmitsNotice(t *testing.T) {
	f := newFixture(t)
	f.expectNotices(1)

	status, err := f.router.Handle(context.Background(), advanceCommand(t, "subscribe alice 20"))
	require.NoError(t, err)
	assert.Equal(t, rollup.StatusAccept, status)

	require.Len(t, f.notices, 1)
	assert.Equal(t, "User alice successfully subscribed. Subscription valid until 2026-02-15.", decodeOutput(t, f.notices[0]))

	total, err := f.svc.TotalOperations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
}

func TestAdvanceValidationFailureStillAccepts(t *testing.T) {
	f := newFixture(t)
	f.expectNotices(1)

	status, err := f.router.Handle(context.Background(), advanceCommand(t, "pay bob 50"))
	require.NoError(t, err)
	assert.Equal(t, rollup.StatusAccept, status)
	assert.Equal(t, "User bob is not subscribed. Please subscribe first.", decodeOutput(t, f.notices[0]))
}

func TestAdvanceMalformedPayloadRejectsWithoutCounting(t *testing.T) {
	cases := map[string]string{
		"array":       mustHexJSON(t, []any{"subscribe", "alice", 20}),
		"string":      mustHexJSON(t, "subscribe alice 20"),
		"not hex":     "subscribe alice 20",
		"invalid hex": "0xzz",
		"not json":    codec.EncodeHex([]byte("{subscribe")),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.expectReports(1)

			status, err := f.router.Handle(context.Background(), advance(t, payload))
			require.NoError(t, err)
			assert.Equal(t, rollup.StatusReject, status)
			assert.Equal(t, MessageMalformedPayload, decodeOutput(t, f.reports[0]))

			total, err := f.svc.TotalOperations(context.Background())
			require.NoError(t, err)
			assert.Zero(t, total)
		})
	}
}

func TestInspectTotalCountsAcceptedAdvances(t *testing.T) {
	f := newFixture(t)
	f.expectNotices(3)
	f.expectReports(1)
	ctx := context.Background()

	for _, line := range []string{"subscribe alice 20", "check alice", "bogus"} {
		status, err := f.router.Handle(ctx, advanceCommand(t, line))
		require.NoError(t, err)
		require.Equal(t, rollup.StatusAccept, status)
	}

	status, err := f.router.Handle(ctx, inspect(t, "total"))
	require.NoError(t, err)
	assert.Equal(t, rollup.StatusAccept, status)
	assert.Equal(t, map[string]any{"total_operations": float64(3)}, decodeOutput(t, f.reports[0]))
}

func TestInspectListIsSortedAndReadOnly(t *testing.T) {
	f := newFixture(t)
	f.expectNotices(2)
	f.expectReports(2)
	ctx := context.Background()

	for _, line := range []string{"subscribe zoe 10", "subscribe adam 30"} {
		_, err := f.router.Handle(ctx, advanceCommand(t, line))
		require.NoError(t, err)
	}

	_, err := f.router.Handle(ctx, inspect(t, "list"))
	require.NoError(t, err)
	_, err = f.router.Handle(ctx, inspect(t, " list\n"))
	require.NoError(t, err)
	assert.Equal(t, f.reports[0], f.reports[1])

	out := decodeOutput(t, f.reports[0]).(map[string]any)
	users := out["users"].([]any)
	require.Len(t, users, 2)
	assert.Equal(t, "adam", users[0].(map[string]any)["subscriber_id"])
	assert.Equal(t, "zoe", users[1].(map[string]any)["subscriber_id"])
	assert.Equal(t, "2026-02-15", users[0].(map[string]any)["expiry_date"])

	total, err := f.svc.TotalOperations(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
}

func TestInspectEmptyList(t *testing.T) {
	f := newFixture(t)
	f.expectReports(1)

	_, err := f.router.Handle(context.Background(), inspect(t, "list"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"users": []any{}}, decodeOutput(t, f.reports[0]))
}

func TestInspectSubscriberAndUnknownRoutes(t *testing.T) {
	f := newFixture(t)
	f.expectNotices(1)
	f.expectReports(3)
	ctx := context.Background()

	_, err := f.router.Handle(ctx, advanceCommand(t, "subscribe alice 20"))
	require.NoError(t, err)

	for _, route := range []string{"subscriber/alice", "subscriber/ghost", "users"} {
		status, err := f.router.Handle(ctx, inspect(t, route))
		require.NoError(t, err)
		assert.Equal(t, rollup.StatusAccept, status)
	}

	record := decodeOutput(t, f.reports[0]).(map[string]any)
	assert.Equal(t, "alice", record["subscriber_id"])
	assert.Equal(t, float64(20), record["balance"])
	assert.Equal(t, MessageSubscriberNotFound, decodeOutput(t, f.reports[1]))
	assert.Equal(t, MessageRouteNotFound, decodeOutput(t, f.reports[2]))
}

func TestInspectMalformedPayloadRejects(t *testing.T) {
	f := newFixture(t)
	f.expectReports(1)

	data, err := json.Marshal(rollup.InspectData{Payload: "list"})
	require.NoError(t, err)
	status, err := f.router.Handle(context.Background(), &rollup.Request{RequestType: rollup.RequestTypeInspect, Data: data})
	require.NoError(t, err)
	assert.Equal(t, rollup.StatusReject, status)
	assert.Equal(t, MessageMalformedPayload, decodeOutput(t, f.reports[0]))
}

func TestUnknownRequestTypeRejectsSilently(t *testing.T) {
	f := newFixture(t)

	status, err := f.router.Handle(context.Background(), &rollup.Request{RequestType: "voucher_state"})
	require.NoError(t, err)
	assert.Equal(t, rollup.StatusReject, status)
}

func TestNoticeFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	transportErr := &rollup.TransportError{Operation: "notice", StatusCode: 500}
	f.client.EXPECT().Notice(gomock.Any(), gomock.Any()).Return(transportErr)

	_, err := f.router.Handle(context.Background(), advanceCommand(t, "subscribe alice 20"))
	require.ErrorIs(t, err, rollup.ErrTransport)
}

func TestNormalizeSender(t *testing.T) {
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", normalizeSender("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"))
	assert.Equal(t, "not-an-address", normalizeSender(" not-an-address "))
}

func mustHexJSON(t *testing.T, value any) string {
	t.Helper()
	payload, err := codec.EncodeHexJSON(value)
	require.NoError(t, err)
	return payload
}
