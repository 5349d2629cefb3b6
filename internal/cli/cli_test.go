// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	corechat "github.com/jeranaias/chatgate/internal/chat"
	"github.com/jeranaias/chatgate/internal/config"
	"github.com/jeranaias/chatgate/internal/gateway"
	"github.com/jeranaias/chatgate/internal/server"
)

// env is a mock gateway plus an isolated home and config file.
type env struct {
	t       *testing.T
	srv     *server.Server
	baseURL string
	cfgPath string
	dir     string
}

func newEnv(t *testing.T, balance int64) *env {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	srv := server.New(server.Options{
		Balance: decimal.NewFromInt(balance),
		Logger:  zap.NewNop().Sugar(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.Gateway.BaseURL = ts.URL
	cfg.Gateway.RateLimit = 0
	cfg.Gateway.Cookies = map[string]string{"SESSION": "secret-token"}
	cfg.Log.OutputPath = filepath.Join(dir, "logs")
	cfg.Storage.Path = filepath.Join(dir, "transcripts.db")
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, config.SaveTOML(cfg, cfgPath))

	return &env{t: t, srv: srv, baseURL: ts.URL, cfgPath: cfgPath, dir: dir}
}

// run executes one command line and returns stdout, stderr and the error.
func (e *env) run(stdin string, args ...string) (string, string, error) {
	e.t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand(strings.NewReader(stdin), &out, &errOut)
	root.SetArgs(append([]string{"--config", e.cfgPath}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func decodeJSON(t *testing.T, raw string, data interface{}) JSONResponse {
	t.Helper()
	resp := JSONResponse{Data: data}
	require.NoError(t, json.Unmarshal([]byte(raw), &resp), raw)
	return resp
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_StreamsReplyAndPrintsRoom(t *testing.T) {
	e := newEnv(t, 50)

	out, errOut, err := e.run("", "ask", "안녕")
	require.NoError(t, err)
	assert.Contains(t, out, "목 서버입니다")
	assert.Contains(t, errOut, "room: ")
}

func TestAsk_ReadsPromptFromStdin(t *testing.T) {
	e := newEnv(t, 50)

	out, _, err := e.run("날씨 알려줘\n", "ask")
	require.NoError(t, err)
	assert.Contains(t, out, "날씨 안내")
}

func TestIsTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	assert.False(t, isTerminal(strings.NewReader("piped")))
	assert.False(t, isTerminal(&bytes.Buffer{}))
	assert.False(t, isTerminal(r))
	assert.False(t, isTerminal(w))
}

func TestAsk_EmptyPromptIsUsageError(t *testing.T) {
	e := newEnv(t, 50)

	_, _, err := e.run("", "ask")
	require.Error(t, err)
	assert.ErrorIs(t, err, corechat.ErrEmptyMessage)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestAsk_JSON(t *testing.T) {
	e := newEnv(t, 50)

	out, _, err := e.run("", "--json", "ask", "hello")
	require.NoError(t, err)

	var res askResult
	resp := decodeJSON(t, out, &res)
	assert.True(t, resp.Success)
	assert.Equal(t, "chatgate ask", resp.Command)
	assert.Equal(t, "completed", res.State)
	assert.Equal(t, int64(1), res.ModelID)
	assert.NotEmpty(t, res.RoomID)
	assert.NotEmpty(t, res.AIResponseID)
	assert.Contains(t, res.Reply, "흥미로운 질문이네요")
	assert.Positive(t, res.OutputTokens)
}

func TestAsk_InsufficientBalance(t *testing.T) {
	e := newEnv(t, 0)

	_, _, err := e.run("", "ask", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrInsufficientBalance)
	assert.Equal(t, ExitBalanceError, ExitCode(err))
}

func TestAsk_InactiveModel(t *testing.T) {
	e := newEnv(t, 50)

	_, _, err := e.run("", "--model", "3", "ask", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrModelNotActive)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestAsk_RejectsNonImageAttachment(t *testing.T) {
	e := newEnv(t, 50)
	path := filepath.Join(e.dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o600))

	_, _, err := e.run("", "ask", "--image", path, "what is this")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestAsk_ContinuesRoomAndRecordsTranscript(t *testing.T) {
	e := newEnv(t, 50)

	out, _, err := e.run("", "--json", "ask", "안녕")
	require.NoError(t, err)
	var first askResult
	decodeJSON(t, out, &first)

	_, _, err = e.run("", "--room", first.RoomID, "ask", "go 예제")
	require.NoError(t, err)

	out, _, err = e.run("", "history", first.RoomID)
	require.NoError(t, err)
	assert.Contains(t, out, "안녕")
	assert.Contains(t, out, "go 예제")
	assert.Contains(t, out, "goroutines")

	out, _, err = e.run("", "transcripts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, first.RoomID[:8])

	exportPath := filepath.Join(e.dir, "export.md")
	_, _, err = e.run("", "transcripts", "export", first.RoomID, exportPath)
	require.NoError(t, err)
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "goroutines")
}

// =============================================================================
// ACCOUNT AND ROOMS
// =============================================================================

func TestModels(t *testing.T) {
	e := newEnv(t, 50)

	out, _, err := e.run("", "models")
	require.NoError(t, err)
	assert.Contains(t, out, "GPT-4o mini")
	assert.Contains(t, out, "gpt-4o-mini")
	assert.Contains(t, out, "inactive")

	out, _, err = e.run("", "models", "--active")
	require.NoError(t, err)
	assert.NotContains(t, out, "inactive")

	out, _, err = e.run("", "--json", "models", "2")
	require.NoError(t, err)
	var m gateway.AIModel
	decodeJSON(t, out, &m)
	assert.Equal(t, int64(2), m.ModelID)

	_, _, err = e.run("", "models", "abc")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestBalanceWalletTransaction(t *testing.T) {
	e := newEnv(t, 50)

	out, _, err := e.run("", "balance")
	require.NoError(t, err)
	assert.Contains(t, out, "50.00 coins")

	out, _, err = e.run("", "wallet")
	require.NoError(t, err)
	assert.Contains(t, out, "Purchased")

	out, _, err = e.run("", "--json", "transaction", "1")
	require.NoError(t, err)
	var tx gateway.TransactionDetail
	decodeJSON(t, out, &tx)
	assert.Equal(t, gateway.TransactionBonus, tx.Type)

	_, _, err = e.run("", "transaction", "999")
	require.Error(t, err)
	assert.Equal(t, ExitNotFoundError, ExitCode(err))
}

func TestPaymentsCommand(t *testing.T) {
	e := newEnv(t, 50)

	out, _, err := e.run("", "payments")
	require.NoError(t, err)
	assert.Contains(t, out, "10,000")
	assert.Contains(t, out, "cancelled")

	out, _, err = e.run("", "--json", "payments", "--status", "completed")
	require.NoError(t, err)
	var page gateway.Page[gateway.Payment]
	decodeJSON(t, out, &page)
	require.Len(t, page.Content, 1)

	out, _, err = e.run("", "payments", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "mockpay")

	_, _, err = e.run("", "payments", "99")
	assert.Equal(t, ExitNotFoundError, ExitCode(err))

	_, _, err = e.run("", "payments", "--status", "refunded")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestDashboardCommands(t *testing.T) {
	e := newEnv(t, 50)

	_, _, err := e.run("", "ask", "코딩")
	require.NoError(t, err)

	out, _, err := e.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "mock@chatgate.local")

	out, _, err = e.run("", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "GPT-4o mini")
	assert.Contains(t, out, "Messages")

	out, _, err = e.run("", "usage")
	require.NoError(t, err)
	assert.Contains(t, out, "GPT-4o mini")

	_, _, err = e.run("", "usage", "--month", "13")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	out, _, err = e.run("", "--json", "pricing")
	require.NoError(t, err)
	var prices []gateway.ModelPricing
	decodeJSON(t, out, &prices)
	assert.Len(t, prices, 3)
}

func TestRoomsLifecycle(t *testing.T) {
	e := newEnv(t, 50)

	out, _, err := e.run("", "--json", "rooms", "create", "여행", "계획")
	require.NoError(t, err)
	var room gateway.RoomDetail
	decodeJSON(t, out, &room)
	assert.Equal(t, "여행 계획", room.Title)

	out, _, err = e.run("", "rooms", "list")
	require.NoError(t, err)
	assert.Contains(t, out, room.RoomID)
	assert.Contains(t, out, "여행 계획")

	out, _, err = e.run("", "rooms", "show", room.RoomID)
	require.NoError(t, err)
	assert.Contains(t, out, "Coins used")

	_, _, err = e.run("", "rooms", "delete", room.RoomID)
	require.NoError(t, err)

	_, _, err = e.run("", "rooms", "show", room.RoomID)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrRoomNotFound)
	assert.Equal(t, ExitNotFoundError, ExitCode(err))
}

func TestRoomsListRejectsOversizedPage(t *testing.T) {
	e := newEnv(t, 50)

	_, _, err := e.run("", "rooms", "list", "--size", "500")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestHistoryNeedsRoom(t *testing.T) {
	e := newEnv(t, 50)

	_, _, err := e.run("", "history")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

// =============================================================================
// CONFIG AND VERSION
// =============================================================================

func TestConfigShowRedactsCookies(t *testing.T) {
	e := newEnv(t, 50)

	out, _, err := e.run("", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, redacted)
	assert.NotContains(t, out, "secret-token")
}

func TestConfigInit(t *testing.T) {
	e := newEnv(t, 50)
	path := filepath.Join(e.dir, "fresh", "config.toml")

	var out bytes.Buffer
	root := NewRootCommand(strings.NewReader(""), &out, io.Discard)
	root.SetArgs([]string{"--config", path, "config", "init"})
	require.NoError(t, root.Execute())
	assert.FileExists(t, path)

	root = NewRootCommand(strings.NewReader(""), &out, io.Discard)
	root.SetArgs([]string{"--config", path, "config", "init"})
	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Gateway.BaseURL, cfg.Gateway.BaseURL)
}

func TestInvalidConfigIsConfigError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[gateway]\nbase_url = \"ftp://nope\"\n"), 0o600))

	root := NewRootCommand(strings.NewReader(""), io.Discard, io.Discard)
	root.SetArgs([]string{"--config", path, "balance"})
	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestVersionJSON(t *testing.T) {
	e := newEnv(t, 50)

	out, _, err := e.run("", "--json", "version")
	require.NoError(t, err)
	var info versionInfo
	decodeJSON(t, out, &info)
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

// =============================================================================
// REPL
// =============================================================================

// scriptedLines feeds the REPL fixed input, then reports EOF.
type scriptedLines struct {
	lines   []string
	history []string
}

func (s *scriptedLines) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedLines) AppendHistory(item string) {
	s.history = append(s.history, item)
}

func newTestApp(t *testing.T, e *env) (*app, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	cfg, err := config.LoadFromPath(e.cfgPath)
	require.NoError(t, err)
	cfg.Storage.Enabled = false
	var out, errOut bytes.Buffer
	a := &app{in: strings.NewReader(""), out: &out, errOut: &errOut, cfg: cfg}
	t.Cleanup(a.teardown)
	return a, &out, &errOut
}

func TestREPL_ConversationAndCommands(t *testing.T) {
	e := newEnv(t, 50)
	a, out, errOut := newTestApp(t, e)

	lines := &scriptedLines{lines: []string{
		"",
		"/model 3",
		"/model 2",
		"안녕",
		"/room",
		"/balance",
		"/bogus",
		"/quit",
		"never sent",
	}}
	require.NoError(t, a.runREPL(context.Background(), lines))

	assert.Contains(t, errOut.String(), "model 3 is not active")
	assert.Contains(t, out.String(), "model 2")
	assert.Contains(t, out.String(), "목 서버입니다")
	assert.Contains(t, out.String(), "tokens")
	assert.Contains(t, out.String(), "coins")
	assert.Contains(t, errOut.String(), "unknown command /bogus")
	assert.NotContains(t, lines.history, "")
	assert.Contains(t, lines.history, "안녕")
	assert.Equal(t, []string{"never sent"}, lines.lines)
}

func TestREPL_AttachImage(t *testing.T) {
	e := newEnv(t, 50)
	a, out, errOut := newTestApp(t, e)

	img := filepath.Join(e.dir, "dot.png")
	require.NoError(t, os.WriteFile(img, tinyPNG, 0o600))

	lines := &scriptedLines{lines: []string{
		"/attach " + img,
		"이 사진 어때?",
	}}
	require.NoError(t, a.runREPL(context.Background(), lines))

	assert.Contains(t, out.String(), "attached dot.png")
	assert.Contains(t, out.String(), "이미지와 함께 보내주신 메시지를 잘 받았습니다")
	assert.Empty(t, errOut.String())
}

// 1x1 transparent PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", usagef("bad"), ExitUsageError},
		{"validation", &gateway.ValidationError{Field: "message", Message: "too long"}, ExitUsageError},
		{"config", &configError{err: errors.New("broken")}, ExitConfigError},
		{"auth", &gateway.ServerError{Code: gateway.CodeInvalidToken, Status: 401}, ExitAuthError},
		{"balance", &gateway.ServerError{Code: gateway.CodeInsufficientBalance, Status: 400}, ExitBalanceError},
		{"negative balance", corechat.ErrNegativeBalance, ExitBalanceError},
		{"not found", &gateway.ServerError{Code: gateway.CodeMessageNotFound, Status: 404}, ExitNotFoundError},
		{"idle", &gateway.ProtocolError{Err: gateway.ErrIdleTimeout}, ExitTimeoutError},
		{"transport", &gateway.TransportError{Op: "get", Err: errors.New("refused")}, ExitNetworkError},
		{"wrapped", newCommandError("rooms", "show", &gateway.ServerError{Code: gateway.CodeRoomNotFound, Status: 404}), ExitNotFoundError},
		{"other", fmt.Errorf("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
