// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeranaias/chatgate/internal/gateway"
)

// 1x1 transparent PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func newTestServer(t *testing.T, mutate func(*Options)) (*Server, *gateway.Client) {
	t.Helper()
	opts := Options{
		Balance: decimal.NewFromInt(10),
		Logger:  zap.NewNop().Sugar(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv := New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := gateway.NewClient(ts.URL)
	require.NoError(t, err)
	return srv, client
}

func newRoom(t *testing.T, c *gateway.Client) string {
	t.Helper()
	room, err := c.CreateRoom(context.Background(), gateway.CreateRoomRequest{Title: "테스트", ModelID: 1})
	require.NoError(t, err)
	require.NotEmpty(t, room.RoomID)
	return room.RoomID
}

// =============================================================================
// SEND
// =============================================================================

func TestSendStreamsCannedReply(t *testing.T) {
	_, c := newTestServer(t, nil)
	ctx := context.Background()
	roomID := newRoom(t, c)

	var started bool
	var text strings.Builder
	var done gateway.Completion
	err := c.SendMessage(ctx, roomID, gateway.SendMessageRequest{Message: "안녕하세요", ModelID: 1}, gateway.StreamHandlers{
		OnStart:     func() { started = true },
		OnDelta:     func(s string) { text.WriteString(s) },
		OnCompleted: func(cpl gateway.Completion) { done = cpl },
	})
	require.NoError(t, err)

	assert.True(t, started)
	assert.Equal(t, findReply("안녕"), text.String())
	assert.NotEmpty(t, done.AIResponseID)
	assert.NotEmpty(t, done.UserMessageID)
	assert.Positive(t, done.OutputTokens)

	history, err := c.AllMessages(ctx, roomID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Equal(t, done.AIResponseID, history[1].MessageID)
	assert.Equal(t, text.String(), history[1].Content)

	bal, err := c.GetBalance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Balance.LessThan(decimal.NewFromInt(10)), "balance %s was not debited", bal.Balance)

	msg, err := c.GetMessage(ctx, done.AIResponseID)
	require.NoError(t, err)
	assert.Equal(t, roomID, msg.RoomID)
}

func TestSendPreservesNewlines(t *testing.T) {
	_, c := newTestServer(t, nil)
	roomID := newRoom(t, c)

	var text strings.Builder
	err := c.SendMessage(context.Background(), roomID, gateway.SendMessageRequest{Message: "go channels", ModelID: 1},
		gateway.StreamHandlers{OnDelta: func(s string) { text.WriteString(s) }})
	require.NoError(t, err)
	assert.Equal(t, findReply("go"), text.String())
	assert.Contains(t, text.String(), "```go\n")
}

func TestSendRejections(t *testing.T) {
	srv, c := newTestServer(t, nil)
	ctx := context.Background()
	roomID := newRoom(t, c)

	tests := []struct {
		name   string
		room   string
		req    gateway.SendMessageRequest
		before func()
		want   error
	}{
		{"unknown room", "missing", gateway.SendMessageRequest{Message: "hi", ModelID: 1}, nil, gateway.ErrRoomNotFound},
		{"unknown model", roomID, gateway.SendMessageRequest{Message: "hi", ModelID: 99}, nil, gateway.ErrModelNotFound},
		{"inactive model", roomID, gateway.SendMessageRequest{Message: "hi", ModelID: 3}, nil, gateway.ErrModelNotActive},
		{"empty balance", roomID, gateway.SendMessageRequest{Message: "hi", ModelID: 1},
			func() { srv.SetBalance(decimal.Zero) }, gateway.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.before != nil {
				tt.before()
			}
			var gotErr error
			err := c.SendMessage(ctx, tt.room, tt.req, gateway.StreamHandlers{
				OnError: func(e error) { gotErr = e },
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, err, gotErr)
		})
	}
}

func TestSendRejectsOverlongMessage(t *testing.T) {
	srv := New(Options{Balance: decimal.NewFromInt(1), Logger: zap.NewNop().Sugar()})
	roomID := srv.store.createRoom("r", 1).RoomID

	body := `{"message":"` + strings.Repeat("가", gateway.MaxMessageLength+1) + `","modelId":1}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/send/"+roomID, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestSendCancelledIsNotBilled(t *testing.T) {
	_, c := newTestServer(t, func(o *Options) { o.DeltaDelay = 20 * time.Millisecond })
	roomID := newRoom(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	var deltas int
	err := c.SendMessage(ctx, roomID, gateway.SendMessageRequest{Message: "날씨", ModelID: 1}, gateway.StreamHandlers{
		OnDelta: func(string) {
			deltas++
			if deltas == 3 {
				cancel()
			}
		},
		OnCompleted: func(gateway.Completion) { t.Error("completed after cancel") },
	})
	require.NoError(t, err)

	bal, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(decimal.NewFromInt(10)), "balance = %s", bal.Balance)

	// The handler notices the disconnect at its next delta.
	assert.Eventually(t, func() bool {
		msgs, err := c.AllMessages(context.Background(), roomID)
		return err == nil && len(msgs) == 0
	}, time.Second, 20*time.Millisecond)
}

// =============================================================================
// UPLOAD
// =============================================================================

func TestUploadIsSingleUse(t *testing.T) {
	_, c := newTestServer(t, nil)
	ctx := context.Background()
	roomID := newRoom(t, c)

	fileID, err := c.Upload(ctx, 1, gateway.UploadFile{Name: "dot.png", ContentType: "image/png", Data: tinyPNG})
	require.NoError(t, err)
	require.NotEmpty(t, fileID)

	var text strings.Builder
	err = c.SendMessage(ctx, roomID, gateway.SendMessageRequest{ModelID: 1, FileID: fileID},
		gateway.StreamHandlers{OnDelta: func(s string) { text.WriteString(s) }})
	require.NoError(t, err)
	assert.Equal(t, imageOnlyReply, text.String())

	history, err := c.AllMessages(ctx, roomID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	detail, err := c.GetMessage(ctx, history[0].MessageID)
	require.NoError(t, err)
	require.NotNil(t, detail.FileURL)
	assert.Contains(t, *detail.FileURL, "dot.png")

	err = c.SendMessage(ctx, roomID, gateway.SendMessageRequest{ModelID: 1, FileID: fileID}, gateway.StreamHandlers{})
	var se *gateway.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, gateway.CodeValidation, se.Code)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	srv := New(Options{Logger: zap.NewNop().Sugar()})

	var body bytes.Buffer
	body.WriteString("--b\r\nContent-Disposition: form-data; name=\"modelId\"\r\n\r\n1\r\n")
	body.WriteString("--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"x.bin\"\r\n")
	body.WriteString("Content-Type: application/x-msdownload\r\n\r\nMZ\x90\x00\r\n--b--\r\n")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/files/upload", &body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported file type")
}

// =============================================================================
// ROOMS, MODELS, WALLET
// =============================================================================

func TestRoomLifecycle(t *testing.T) {
	_, c := newTestServer(t, nil)
	ctx := context.Background()

	first := newRoom(t, c)
	second := newRoom(t, c)

	page, err := c.ListRooms(ctx, gateway.PageParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalElements)

	got, err := c.GetRoom(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "테스트", got.Title)

	require.NoError(t, c.DeleteRoom(ctx, first))
	_, err = c.GetRoom(ctx, first)
	assert.ErrorIs(t, err, gateway.ErrRoomNotFound)
	assert.ErrorIs(t, c.DeleteRoom(ctx, first), gateway.ErrRoomNotFound)
}

func TestCreateRoomValidation(t *testing.T) {
	_, c := newTestServer(t, nil)
	_, err := c.CreateRoom(context.Background(), gateway.CreateRoomRequest{Title: "x", ModelID: 42})
	assert.ErrorIs(t, err, gateway.ErrModelNotFound)
}

func TestModels(t *testing.T) {
	_, c := newTestServer(t, nil)
	ctx := context.Background()

	models, err := c.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 3)

	m, err := c.GetModel(ctx, 3)
	require.NoError(t, err)
	assert.False(t, m.IsActive)

	_, err = c.GetModel(ctx, 77)
	assert.ErrorIs(t, err, gateway.ErrModelNotFound)
}

func TestWalletLedger(t *testing.T) {
	_, c := newTestServer(t, nil)
	ctx := context.Background()
	roomID := newRoom(t, c)

	require.NoError(t, c.SendMessage(ctx, roomID, gateway.SendMessageRequest{Message: "코딩", ModelID: 2}, gateway.StreamHandlers{}))

	w, err := c.GetWallet(ctx)
	require.NoError(t, err)
	assert.True(t, w.TotalPurchased.Equal(decimal.NewFromInt(10)))
	assert.True(t, w.TotalUsed.IsPositive())
	assert.True(t, w.Balance.Equal(w.TotalPurchased.Sub(w.TotalUsed)))

	bonus, err := c.GetTransaction(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, gateway.TransactionBonus, bonus.Type)

	usage, err := c.GetTransaction(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, gateway.TransactionUsage, usage.Type)
	require.NotNil(t, usage.RoomID)
	assert.Equal(t, roomID, *usage.RoomID)
	assert.True(t, usage.BalanceAfter.Equal(w.Balance))

	_, err = c.GetTransaction(ctx, "999")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestPaymentsAndUser(t *testing.T) {
	_, c := newTestServer(t, nil)
	ctx := context.Background()

	all, err := c.ListPayments(ctx, gateway.PaymentListParams{})
	require.NoError(t, err)
	require.Len(t, all.Content, 2)
	assert.EqualValues(t, 2, all.Content[0].PaymentID, "newest first")

	done, err := c.ListPayments(ctx, gateway.PaymentListParams{Status: gateway.PaymentCompleted})
	require.NoError(t, err)
	require.Len(t, done.Content, 1)

	p, err := c.GetPayment(ctx, done.Content[0].PaymentID)
	require.NoError(t, err)
	assert.Equal(t, gateway.PaymentCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)

	_, err = c.GetPayment(ctx, 99)
	assert.ErrorIs(t, err, gateway.ErrNotFound)

	u, err := c.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, mockUserID, u.UserID)
	assert.True(t, u.IsActivated)
}

func TestDashboardTracksUsage(t *testing.T) {
	_, c := newTestServer(t, nil)
	ctx := context.Background()

	st, err := c.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.MostUsedModel)
	assert.Zero(t, st.TotalMessages)

	roomID := newRoom(t, c)
	require.NoError(t, c.SendMessage(ctx, roomID, gateway.SendMessageRequest{Message: "코딩", ModelID: 2}, gateway.StreamHandlers{}))

	st, err = c.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.TotalMessages)
	assert.EqualValues(t, 1, st.TotalChatRooms)
	require.NotNil(t, st.MostUsedModel)
	assert.EqualValues(t, 2, st.MostUsedModel.ModelID)
	assert.True(t, st.MostUsedModel.UsagePercentage.Equal(decimal.NewFromInt(100)))
	assert.True(t, st.Last30DaysUsage.Equal(st.TotalCoinUsed))

	usage, err := c.GetMonthlyUsage(ctx, gateway.UsageMonth{})
	require.NoError(t, err)
	require.Len(t, usage.ModelUsage, 1)
	assert.EqualValues(t, 2, usage.ModelUsage[0].MessageCount)
	assert.True(t, usage.TotalCoinUsed.Equal(st.TotalCoinUsed))
	require.Len(t, usage.DailyUsage, 1)

	empty, err := c.GetMonthlyUsage(ctx, gateway.UsageMonth{Year: 2001, Month: 1})
	require.NoError(t, err)
	assert.Empty(t, empty.ModelUsage)
	assert.True(t, empty.TotalCoinUsed.IsZero())
}

func TestPricingIsPublic(t *testing.T) {
	srv := New(Options{SessionCookie: "SESSION", SessionValue: "s3cret", Logger: zap.NewNop().Sugar()})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	anon, err := gateway.NewClient(ts.URL)
	require.NoError(t, err)
	prices, err := anon.GetModelsPricing(context.Background())
	require.NoError(t, err)
	assert.Len(t, prices, 3)

	_, err = anon.GetDashboardStats(context.Background())
	assert.ErrorIs(t, err, gateway.ErrUnauthenticated)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestSessionAuth(t *testing.T) {
	srv := New(Options{SessionCookie: "SESSION", SessionValue: "s3cret", Logger: zap.NewNop().Sugar()})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	anon, err := gateway.NewClient(ts.URL)
	require.NoError(t, err)
	_, err = anon.GetBalance(context.Background())
	assert.ErrorIs(t, err, gateway.ErrUnauthenticated)

	authed, err := gateway.NewClient(ts.URL)
	require.NoError(t, err)
	authed.WithCookies(map[string]string{"SESSION": "s3cret"})
	_, err = authed.GetBalance(context.Background())
	assert.NoError(t, err)
}

func TestValidateSessionValue(t *testing.T) {
	assert.True(t, ValidateSessionValue("abc", "abc"))
	assert.False(t, ValidateSessionValue("abd", "abc"))
	assert.False(t, ValidateSessionValue("", ""))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestMetricsEndpoint(t *testing.T) {
	_, c := newTestServer(t, nil)
	_, err := c.ListModels(context.Background())
	require.NoError(t, err)

	resp, err := http.Get(c.BaseURL() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `chatgate_mock_requests_total{method="GET",route="/api/v1/models",status="200"} 1`)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := New(Options{Addr: "127.0.0.1:0", Logger: zap.NewNop().Sugar()})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func TestWriteEventRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEvent(&buf, "delta", "line one\n\n  indented"))
	require.NoError(t, writeEvent(&buf, "delta", "\n"))

	r := gateway.NewSSEReader(&buf)
	ev, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "delta", ev.Name)
	assert.Equal(t, "line one\n\n  indented", ev.Data)

	ev, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "\n", ev.Data)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	p := paginate(items, 1, 2)
	assert.Equal(t, []int{3, 4}, p.Content)
	assert.Equal(t, 5, p.TotalElements)
	assert.Equal(t, 3, p.TotalPages)

	empty := paginate(items, 9, 2)
	assert.Empty(t, empty.Content)
}

func TestReplyFor(t *testing.T) {
	assert.Equal(t, imageOnlyReply, replyFor("  ", true))
	assert.True(t, strings.HasPrefix(replyFor("날씨", true), "이미지와 함께"))
	assert.Equal(t, defaultReply, replyFor("무엇이든", false))
	assert.Equal(t, findReply("Go"), replyFor("GO", false))
}
