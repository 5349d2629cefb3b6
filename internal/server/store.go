// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jeranaias/chatgate/internal/gateway"
)

// mockUserID owns every room and the wallet.
const mockUserID int64 = 1

// storedFile is an uploaded attachment awaiting its send.
type storedFile struct {
	name        string
	contentType string
	size        int
	modelID     int64
	url         string
}

// store holds all mock gateway state in memory.
type store struct {
	mu sync.Mutex

	rooms    map[string]*gateway.RoomDetail
	lastMsg  map[string]time.Time
	messages map[string][]gateway.MessageDetail
	byID     map[string]gateway.MessageDetail
	files    map[string]storedFile
	models   []gateway.AIModel
	wallet   gateway.WalletInfo
	ledger   map[int64]gateway.TransactionDetail
	nextTxID int64
	payments []gateway.PaymentDetail
	user     gateway.UserInfo

	now func() time.Time
}

func newStore(balance decimal.Decimal, now func() time.Time) *store {
	if now == nil {
		now = time.Now
	}
	created := now().UTC()
	s := &store{
		rooms:    make(map[string]*gateway.RoomDetail),
		lastMsg:  make(map[string]time.Time),
		messages: make(map[string][]gateway.MessageDetail),
		byID:     make(map[string]gateway.MessageDetail),
		files:    make(map[string]storedFile),
		ledger:   make(map[int64]gateway.TransactionDetail),
		models:   seedModels(created),
		payments: seedPayments(created),
		nextTxID: 1,
		now:      now,
	}
	s.user = gateway.UserInfo{
		UserID:      mockUserID,
		Username:    "mock",
		Email:       "mock@chatgate.local",
		IsActivated: true,
		CreatedAt:   created,
	}
	s.wallet = gateway.WalletInfo{
		WalletID:  1,
		UserID:    mockUserID,
		CreatedAt: created,
		UpdatedAt: created,
	}
	if balance.IsPositive() {
		s.appendTransaction(gateway.TransactionBonus, balance, nil, nil, nil, "Welcome credit")
	}
	return s
}

func seedModels(created time.Time) []gateway.AIModel {
	price := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return []gateway.AIModel{
		{
			ModelID: 1, ModelName: "gpt-4o-mini", DisplayName: "GPT-4o mini",
			DisplayExplain:  "Fast everyday model",
			InputPricePer1k: price("0.15"), OutputPricePer1k: price("0.60"), AveragePricePer1k: price("0.375"),
			IsActive: true, CreatedAt: created,
		},
		{
			ModelID: 2, ModelName: "gpt-4o", DisplayName: "GPT-4o",
			DisplayExplain:  "Multimodal flagship model",
			InputPricePer1k: price("2.50"), OutputPricePer1k: price("10.00"), AveragePricePer1k: price("6.25"),
			IsActive: true, CreatedAt: created,
		},
		{
			ModelID: 3, ModelName: "gpt-3.5-turbo", DisplayName: "GPT-3.5 Turbo",
			DisplayExplain:  "Retired",
			InputPricePer1k: price("0.50"), OutputPricePer1k: price("1.50"), AveragePricePer1k: price("1.00"),
			IsActive: false, CreatedAt: created,
		},
	}
}

// seedPayments returns a short history, newest first.
func seedPayments(created time.Time) []gateway.PaymentDetail {
	done := created.Add(-24*time.Hour + time.Minute)
	return []gateway.PaymentDetail{
		{
			Payment: gateway.Payment{
				PaymentID: 2, TransactionID: "mock-tx-0002", PaymentMethod: "card",
				AmountKRW: decimal.NewFromInt(5000), CoinAmount: decimal.NewFromInt(5),
				Status: gateway.PaymentCancelled, CreatedAt: created.Add(-2 * time.Hour),
			},
			AmountUSD:      decimal.RequireFromString("3.60"),
			PaymentGateway: "mockpay",
			Metadata:       map[string]interface{}{"reason": "changed my mind"},
		},
		{
			Payment: gateway.Payment{
				PaymentID: 1, TransactionID: "mock-tx-0001", PaymentMethod: "card",
				AmountKRW: decimal.NewFromInt(10000), CoinAmount: decimal.NewFromInt(10),
				BonusCoin: decimal.NewFromInt(1), Status: gateway.PaymentCompleted,
				CreatedAt: created.Add(-24 * time.Hour), CompletedAt: &done,
			},
			AmountUSD:      decimal.RequireFromString("7.20"),
			PaymentGateway: "mockpay",
			Metadata:       map[string]interface{}{},
		},
	}
}

// =============================================================================
// ROOMS
// =============================================================================

func (s *store) createRoom(title string, modelID int64) gateway.RoomDetail {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	room := &gateway.RoomDetail{
		RoomID:    uuid.NewString(),
		Title:     title,
		UserID:    mockUserID,
		CoinUsage: decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.rooms[room.RoomID] = room
	return *room
}

func (s *store) room(roomID string) (gateway.RoomDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return gateway.RoomDetail{}, false
	}
	return *r, true
}

func (s *store) deleteRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return false
	}
	for _, m := range s.messages[roomID] {
		delete(s.byID, m.MessageID)
	}
	delete(s.rooms, roomID)
	delete(s.messages, roomID)
	delete(s.lastMsg, roomID)
	return true
}

// listRooms returns the caller's rooms ordered by sort ("field,dir").
func (s *store) listRooms(sortSpec string) []gateway.Room {
	s.mu.Lock()
	out := make([]gateway.Room, 0, len(s.rooms))
	for id, r := range s.rooms {
		room := gateway.Room{
			RoomID:    r.RoomID,
			Title:     r.Title,
			CoinUsage: r.CoinUsage,
			CreatedAt: r.CreatedAt,
		}
		if t, ok := s.lastMsg[id]; ok {
			t := t
			room.LastMessageAt = &t
		}
		out = append(out, room)
	}
	s.mu.Unlock()

	field, desc := parseSort(sortSpec, "createdAt", true)
	key := func(r gateway.Room) time.Time {
		if field == "lastMessageAt" && r.LastMessageAt != nil {
			return *r.LastMessageAt
		}
		return r.CreatedAt
	}
	sort.SliceStable(out, func(i, j int) bool {
		if field == "title" {
			if desc {
				return out[i].Title > out[j].Title
			}
			return out[i].Title < out[j].Title
		}
		if desc {
			return key(out[i]).After(key(out[j]))
		}
		return key(out[i]).Before(key(out[j]))
	})
	return out
}

// =============================================================================
// MESSAGES
// =============================================================================

func (s *store) listMessages(roomID, sortSpec string) ([]gateway.APIMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return nil, false
	}
	msgs := s.messages[roomID]
	out := make([]gateway.APIMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m.APIMessage
	}
	if _, desc := parseSort(sortSpec, "createdAt", false); desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, true
}

func (s *store) message(messageID string) (gateway.MessageDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	return m, ok
}

// exchange is one billed send ready to be committed.
type exchange struct {
	roomID       string
	model        gateway.AIModel
	prompt       string
	reply        string
	file         *storedFile
	inputTokens  int
	outputTokens int
}

// commit persists both messages, debits the wallet, and returns the
// completion payload. The debit may take the balance below zero.
func (s *store) commit(ex exchange) (gateway.Completion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[ex.roomID]
	if !ok {
		return gateway.Completion{}, false
	}

	now := s.now().UTC()
	cost := ex.model.EstimateCost(ex.inputTokens, ex.outputTokens)

	user := gateway.MessageDetail{
		APIMessage: gateway.APIMessage{
			MessageID:  uuid.NewString(),
			Role:       "user",
			Content:    ex.prompt,
			TokenCount: ex.inputTokens,
			CoinCount:  decimal.Zero,
			ModelID:    ex.model.ModelID,
			CreatedAt:  now,
		},
		RoomID: ex.roomID,
	}
	if ex.file != nil {
		u := ex.file.url
		user.FileURL = &u
	}
	reply := gateway.MessageDetail{
		APIMessage: gateway.APIMessage{
			MessageID:  uuid.NewString(),
			Role:       "assistant",
			Content:    ex.reply,
			TokenCount: ex.outputTokens,
			CoinCount:  cost,
			ModelID:    ex.model.ModelID,
			CreatedAt:  now.Add(time.Millisecond),
		},
		RoomID: ex.roomID,
	}

	s.messages[ex.roomID] = append(s.messages[ex.roomID], user, reply)
	s.byID[user.MessageID] = user
	s.byID[reply.MessageID] = reply

	s.lastMsg[ex.roomID] = reply.CreatedAt
	room.CoinUsage = room.CoinUsage.Add(cost)
	room.UpdatedAt = now

	roomID, msgID, modelID := ex.roomID, reply.MessageID, ex.model.ModelID
	s.appendTransaction(gateway.TransactionUsage, cost.Neg(), &roomID, &msgID, &modelID,
		"Chat usage: "+ex.model.DisplayName)

	return gateway.Completion{
		AIResponseID:  reply.MessageID,
		UserMessageID: user.MessageID,
		InputTokens:   ex.inputTokens,
		OutputTokens:  ex.outputTokens,
	}, true
}

// =============================================================================
// FILES
// =============================================================================

func (s *store) addFile(f storedFile) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	f.url = "/files/" + id + "/" + f.name
	s.files[id] = f
	return id
}

// takeFile consumes a single-use upload.
func (s *store) takeFile(fileID string) (storedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if ok {
		delete(s.files, fileID)
	}
	return f, ok
}

// =============================================================================
// MODELS
// =============================================================================

func (s *store) listModels() []gateway.AIModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gateway.AIModel(nil), s.models...)
}

func (s *store) model(modelID int64) (gateway.AIModel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.models {
		if m.ModelID == modelID {
			return m, true
		}
	}
	return gateway.AIModel{}, false
}

// =============================================================================
// WALLET
// =============================================================================

func (s *store) balance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallet.Balance
}

func (s *store) walletInfo() gateway.WalletInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallet
}

func (s *store) transaction(id string) (gateway.TransactionDetail, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return gateway.TransactionDetail{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.ledger[n]
	return tx, ok
}

// setBalance overrides the balance without a ledger entry.
func (s *store) setBalance(b decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallet.Balance = b
}

// appendTransaction must be called with mu held.
func (s *store) appendTransaction(kind gateway.TransactionType, amount decimal.Decimal,
	roomID, messageID *string, modelID *int64, description string) gateway.TransactionDetail {
	now := s.now().UTC()

	s.wallet.Balance = s.wallet.Balance.Add(amount)
	if amount.IsPositive() {
		s.wallet.TotalPurchased = s.wallet.TotalPurchased.Add(amount)
	} else {
		s.wallet.TotalUsed = s.wallet.TotalUsed.Add(amount.Neg())
	}
	s.wallet.LastTransactionAt = &now
	s.wallet.UpdatedAt = now

	tx := gateway.TransactionDetail{
		TransactionID: s.nextTxID,
		UserID:        mockUserID,
		RoomID:        roomID,
		MessageID:     messageID,
		Type:          kind,
		Amount:        amount,
		BalanceAfter:  s.wallet.Balance,
		Description:   description,
		ModelID:       modelID,
		CreatedAt:     now,
	}
	s.ledger[tx.TransactionID] = tx
	s.nextTxID++
	return tx
}

// parseSort splits "field,dir" and applies defaults.
func parseSort(spec, defaultField string, defaultDesc bool) (string, bool) {
	if spec == "" {
		return defaultField, defaultDesc
	}
	field, dir, found := strings.Cut(spec, ",")
	if field == "" {
		field = defaultField
	}
	if !found {
		return field, defaultDesc
	}
	return field, strings.EqualFold(strings.TrimSpace(dir), "desc")
}

// estimateTokens approximates a tokenizer at four characters per token.
func estimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// =============================================================================
// PAYMENTS AND USER
// =============================================================================

// listPayments returns payments newest first, filtered by status when set.
func (s *store) listPayments(status gateway.PaymentStatus) []gateway.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gateway.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		if status == "" || p.Status == status {
			out = append(out, p.Payment)
		}
	}
	return out
}

func (s *store) payment(id int64) (gateway.PaymentDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.PaymentID == id {
			return p, true
		}
	}
	return gateway.PaymentDetail{}, false
}

func (s *store) currentUser() gateway.UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// =============================================================================
// DASHBOARD
// =============================================================================

var hundred = decimal.NewFromInt(100)

// share is part/total as a percentage rounded to two places.
func share(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(total).Round(2)
}

func (s *store) stats() gateway.DashboardStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	out := gateway.DashboardStats{
		TotalCoinPurchased: s.wallet.TotalPurchased,
		TotalCoinUsed:      s.wallet.TotalUsed,
		CurrentBalance:     s.wallet.Balance,
		TotalChatRooms:     int64(len(s.rooms)),
		Last30DaysUsage:    decimal.Zero,
		MemberSince:        s.user.CreatedAt,
	}

	byModel := make(map[int64]decimal.Decimal)
	used := decimal.Zero
	for _, msgs := range s.messages {
		out.TotalMessages += int64(len(msgs))
		for _, m := range msgs {
			if m.CoinCount.IsZero() {
				continue
			}
			byModel[m.ModelID] = byModel[m.ModelID].Add(m.CoinCount)
			used = used.Add(m.CoinCount)
			if now.Sub(m.CreatedAt) <= 30*24*time.Hour {
				out.Last30DaysUsage = out.Last30DaysUsage.Add(m.CoinCount)
			}
		}
	}

	var top int64
	for id, coins := range byModel {
		if top == 0 || coins.GreaterThan(byModel[top]) || (coins.Equal(byModel[top]) && id < top) {
			top = id
		}
	}
	if top != 0 {
		for _, m := range s.models {
			if m.ModelID == top {
				out.MostUsedModel = &gateway.MostUsedModel{
					ModelID:         m.ModelID,
					ModelName:       m.ModelName,
					DisplayName:     m.DisplayName,
					UsagePercentage: share(byModel[top], used),
				}
			}
		}
	}
	return out
}

// monthlyUsage aggregates the messages created in year/month (UTC).
func (s *store) monthlyUsage(year, month int) gateway.MonthlyUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := gateway.MonthlyUsage{
		Year:          year,
		Month:         month,
		TotalCoinUsed: decimal.Zero,
		ModelUsage:    []gateway.ModelUsage{},
		DailyUsage:    []gateway.DailyUsage{},
	}
	perModel := make(map[int64]*gateway.ModelUsage)
	perDay := make(map[string]*gateway.DailyUsage)

	for _, msgs := range s.messages {
		for _, m := range msgs {
			at := m.CreatedAt.UTC()
			if at.Year() != year || int(at.Month()) != month {
				continue
			}
			out.TotalCoinUsed = out.TotalCoinUsed.Add(m.CoinCount)

			usage, ok := perModel[m.ModelID]
			if !ok {
				usage = &gateway.ModelUsage{ModelID: m.ModelID, CoinUsed: decimal.Zero}
				for _, am := range s.models {
					if am.ModelID == m.ModelID {
						usage.ModelName, usage.DisplayName = am.ModelName, am.DisplayName
					}
				}
				perModel[m.ModelID] = usage
			}
			usage.CoinUsed = usage.CoinUsed.Add(m.CoinCount)
			usage.MessageCount++
			usage.TokenCount += int64(m.TokenCount)

			day := at.Format("2006-01-02")
			du, ok := perDay[day]
			if !ok {
				du = &gateway.DailyUsage{Date: day, CoinUsed: decimal.Zero}
				perDay[day] = du
			}
			du.CoinUsed = du.CoinUsed.Add(m.CoinCount)
			du.MessageCount++
		}
	}

	for _, usage := range perModel {
		usage.Percentage = share(usage.CoinUsed, out.TotalCoinUsed)
		out.ModelUsage = append(out.ModelUsage, *usage)
	}
	sort.Slice(out.ModelUsage, func(i, j int) bool {
		if !out.ModelUsage[i].CoinUsed.Equal(out.ModelUsage[j].CoinUsed) {
			return out.ModelUsage[i].CoinUsed.GreaterThan(out.ModelUsage[j].CoinUsed)
		}
		return out.ModelUsage[i].ModelID < out.ModelUsage[j].ModelID
	})
	for _, du := range perDay {
		out.DailyUsage = append(out.DailyUsage, *du)
	}
	sort.Slice(out.DailyUsage, func(i, j int) bool {
		return out.DailyUsage[i].Date < out.DailyUsage[j].Date
	})
	return out
}

func (s *store) pricing() []gateway.ModelPricing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gateway.ModelPricing, len(s.models))
	for i, m := range s.models {
		out[i] = gateway.ModelPricing{
			ModelID:           m.ModelID,
			ModelName:         m.ModelName,
			DisplayName:       m.DisplayName,
			InputPricePer1k:   m.InputPricePer1k,
			OutputPricePer1k:  m.OutputPricePer1k,
			AveragePricePer1k: m.AveragePricePer1k,
			IsActive:          m.IsActive,
		}
	}
	return out
}
