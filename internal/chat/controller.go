// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jeranaias/chatgate/internal/gateway"
	"github.com/jeranaias/chatgate/internal/logging"
	"github.com/jeranaias/chatgate/internal/model"
)

// recordTimeout bounds a transcript write after a completed exchange.
const recordTimeout = 5 * time.Second

// =============================================================================
// COLLABORATORS
// =============================================================================

// Sender streams a chat send.
type Sender interface {
	SendMessage(ctx context.Context, roomID string, req gateway.SendMessageRequest, h gateway.StreamHandlers) error
}

// Uploader stores an attachment and returns its single-use file id.
type Uploader interface {
	Upload(ctx context.Context, modelID int64, f gateway.UploadFile) (string, error)
}

// RoomCreator creates a chat room.
type RoomCreator interface {
	CreateRoom(ctx context.Context, req gateway.CreateRoomRequest) (gateway.RoomDetail, error)
}

// HistoryLoader reads a room's stored messages.
type HistoryLoader interface {
	AllMessages(ctx context.Context, roomID string) ([]gateway.APIMessage, error)
}

// Gateway is everything the Controller needs from the backend.
// *gateway.Client satisfies it.
type Gateway interface {
	Sender
	Uploader
	RoomCreator
	HistoryLoader
}

// Recorder persists finished exchanges.
type Recorder interface {
	RecordExchange(ctx context.Context, roomID string, modelID int64, user, reply model.Message) error
}

// =============================================================================
// UPDATES
// =============================================================================

// UpdateKind identifies what changed.
type UpdateKind int

const (
	UpdateAppended UpdateKind = iota + 1
	UpdateDelta
	UpdateCompleted
	UpdateFailed
	UpdateCancelled
	UpdateIncomplete
	UpdateHistory
	UpdateRoom
	UpdateAttachment
)

// String returns the update name for logs.
func (k UpdateKind) String() string {
	switch k {
	case UpdateAppended:
		return "appended"
	case UpdateDelta:
		return "delta"
	case UpdateCompleted:
		return "completed"
	case UpdateFailed:
		return "failed"
	case UpdateCancelled:
		return "cancelled"
	case UpdateIncomplete:
		return "incomplete"
	case UpdateHistory:
		return "history"
	case UpdateRoom:
		return "room"
	case UpdateAttachment:
		return "attachment"
	}
	return "unknown"
}

// Update is delivered to Options.OnUpdate after each state change.
// Changed holds copies of the messages that changed, in list order.
type Update struct {
	Kind      UpdateKind
	Changed   []model.Message
	Streaming bool
	RoomID    string
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Options configures a Controller.
type Options struct {
	// RoomID is empty for a room that has not been created yet.
	RoomID  string
	ModelID int64
	Gateway Gateway

	// OnError receives failures that happen after Send returns.
	OnError func(error)
	// OnUpdate is called after every change, never while the Controller
	// holds its lock.
	OnUpdate func(Update)

	Notices        *NoticeFormatter
	Recorder       Recorder
	ChainResponses bool
	Logger         *zap.SugaredLogger
}

// Controller owns the message list of one room and at most one streaming
// session.
type Controller struct {
	gw       Gateway
	onError  func(error)
	onUpdate func(Update)
	notices  *NoticeFormatter
	recorder Recorder
	chain    bool
	log      *zap.SugaredLogger

	baseCtx  context.Context
	shutdown context.CancelFunc

	// notifyMu is held across a mutation and its notification, so observers
	// see updates in mutation order. Lock order is notifyMu, then mu.
	notifyMu sync.Mutex

	mu        sync.Mutex
	conv      *model.Conversation
	modelID   int64
	pending   *Attachment
	balance   *decimal.Decimal
	streaming bool
	sess      *session
}

// session is one accepted send, from acceptance to its terminal outcome.
type session struct {
	roomID  string
	modelID int64
	abort   *cancelManager
	user    *model.Message
	reply   *model.Message
	done    chan struct{}
}

// NewController creates a Controller. Gateway is required.
func NewController(opts Options) (*Controller, error) {
	if opts.Gateway == nil {
		return nil, errors.New("chat: gateway is required")
	}
	if opts.Notices == nil {
		opts.Notices = NewNoticeFormatter("en")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Named("chat")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		gw:       opts.Gateway,
		onError:  opts.OnError,
		onUpdate: opts.OnUpdate,
		notices:  opts.Notices,
		recorder: opts.Recorder,
		chain:    opts.ChainResponses,
		log:      opts.Logger,
		baseCtx:  ctx,
		shutdown: cancel,
		conv:     model.NewConversation(opts.RoomID),
		modelID:  opts.ModelID,
	}, nil
}

// =============================================================================
// SEND
// =============================================================================

// Send submits text with an optional attachment. When att is nil the
// pending attachment set by Attach is used.
//
// The returned error is a synchronous rejection: ErrEmptyMessage,
// ErrSendInProgress, ErrNegativeBalance or a *gateway.ValidationError.
// Nothing changes when Send rejects. Later failures go to OnError.
func (c *Controller) Send(text string, att *Attachment) error {
	c.mu.Lock()
	if att == nil {
		att = c.pending
	}
	if strings.TrimSpace(text) == "" && att == nil {
		c.mu.Unlock()
		return ErrEmptyMessage
	}
	if c.sess != nil {
		c.mu.Unlock()
		return ErrSendInProgress
	}

	probe := gateway.SendMessageRequest{Message: text, ModelID: c.modelID}
	if att != nil {
		probe.FileID = "pending"
	}
	if err := gateway.Validate(probe); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.balance != nil && c.balance.IsNegative() {
		c.mu.Unlock()
		return ErrNegativeBalance
	}

	ctx, cancel := context.WithCancel(c.baseCtx)
	s := &session{
		roomID:  c.conv.RoomID,
		modelID: c.modelID,
		abort:   newCancelManager(cancel),
		done:    make(chan struct{}),
	}
	c.sess = s
	c.mu.Unlock()

	c.log.Debugw("send accepted", "room", s.roomID, "model", s.modelID, "attachment", att != nil)
	go c.run(ctx, s, text, att)
	return nil
}

// run performs upload, room creation, append and streaming in order.
func (c *Controller) run(ctx context.Context, s *session, text string, att *Attachment) {
	defer c.finish(s)

	fileID, err := c.ensureUploaded(ctx, s.modelID, att)
	if err != nil {
		if ctx.Err() == nil {
			c.report(&UploadError{Err: err})
		}
		return
	}

	roomID, err := c.ensureRoom(ctx, s, text)
	if err != nil {
		if ctx.Err() == nil {
			c.report(&RoomCreationError{Err: err})
		}
		return
	}

	req, ok := c.appendExchange(ctx, s, text, att, fileID)
	if !ok {
		return
	}

	completed := false
	err = c.gw.SendMessage(ctx, roomID, req, gateway.StreamHandlers{
		OnDelta: func(t string) {
			c.applyDelta(s, t)
		},
		OnCompleted: func(comp gateway.Completion) {
			completed = true
			c.applyCompletion(s, comp)
		},
		OnDiagnostic: func(d gateway.Diagnostic) {
			c.log.Warnw("unusable stream record", "event", d.Event, "error", d.Err)
		},
	})

	switch {
	case ctx.Err() != nil:
		c.applyCancel(s)
	case err != nil:
		c.applyError(s, err)
		c.report(err)
	case !completed:
		c.log.Warnw("stream ended without completion", "room", roomID)
		c.applyIncomplete(s)
	}
}

// ensureUploaded returns the file id for att, uploading it first if needed.
// An upload already in flight for att is waited for rather than repeated.
func (c *Controller) ensureUploaded(ctx context.Context, modelID int64, att *Attachment) (string, error) {
	if att == nil {
		return "", nil
	}
	for {
		c.mu.Lock()
		if att.FileID != "" {
			fileID := att.FileID
			c.mu.Unlock()
			return fileID, nil
		}
		inflight := att.uploading
		if inflight == nil {
			att.uploading = make(chan struct{})
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		select {
		case <-inflight:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	fileID, err := c.gw.Upload(ctx, modelID, att.File)

	c.mu.Lock()
	if err == nil {
		att.FileID = fileID
	}
	close(att.uploading)
	att.uploading = nil
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	return fileID, nil
}

// ensureRoom creates the room on first send.
func (c *Controller) ensureRoom(ctx context.Context, s *session, text string) (string, error) {
	if s.roomID != "" {
		return s.roomID, nil
	}
	room, err := c.gw.CreateRoom(ctx, gateway.CreateRoomRequest{
		Title:   c.roomTitle(text),
		ModelID: s.modelID,
	})
	if err != nil {
		return "", err
	}

	c.log.Infow("room created", "room", room.RoomID, "title", room.Title)
	c.mutate(func() (Update, bool) {
		s.roomID = room.RoomID
		c.conv.RoomID = room.RoomID
		c.conv.SetTitle(room.Title)
		return Update{Kind: UpdateRoom, RoomID: room.RoomID, Streaming: c.streaming}, true
	})
	return room.RoomID, nil
}

// roomTitle is the first MaxRoomTitle runes of the trimmed text.
func (c *Controller) roomTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if title == "" {
		return c.notices.ImageTitle()
	}
	if runes := []rune(title); len(runes) > gateway.MaxRoomTitle {
		title = strings.TrimSpace(string(runes[:gateway.MaxRoomTitle]))
	}
	return title
}

// appendExchange adds the user message and placeholder in one step and
// builds the send request. It returns false if the session was cancelled
// before the append.
func (c *Controller) appendExchange(ctx context.Context, s *session, text string, att *Attachment, fileID string) (gateway.SendMessageRequest, bool) {
	var req gateway.SendMessageRequest
	ok := c.mutate(func() (Update, bool) {
		if ctx.Err() != nil {
			return Update{}, false
		}
		req = gateway.SendMessageRequest{Message: text, ModelID: s.modelID, FileID: fileID}
		if c.chain {
			req.PreviousResponseID = c.conv.LastAIResponseID()
		}

		user, reply := c.conv.AppendExchange(text, att.reference())
		s.user, s.reply = user, reply
		c.streaming = true
		if att != nil && c.pending == att {
			c.pending = nil
		}
		return Update{
			Kind:      UpdateAppended,
			Changed:   []model.Message{user.Clone(), reply.Clone()},
			Streaming: true,
			RoomID:    s.roomID,
		}, true
	})
	return req, ok
}

// =============================================================================
// STREAM OUTCOMES
// =============================================================================

func (c *Controller) applyDelta(s *session, text string) {
	c.mutate(func() (Update, bool) {
		if !s.reply.AppendDelta(text) {
			return Update{}, false
		}
		return Update{Kind: UpdateDelta, Changed: []model.Message{s.reply.Clone()}, Streaming: c.streaming, RoomID: s.roomID}, true
	})
}

func (c *Controller) applyCompletion(s *session, comp gateway.Completion) {
	var user, reply model.Message
	done := c.mutate(func() (Update, bool) {
		if !s.reply.IsOpen() {
			return Update{}, false
		}
		s.user.SetMetadata(model.Metadata{
			UserMessageID: comp.UserMessageID,
			InputTokens:   comp.InputTokens,
			ModelID:       s.modelID,
		})
		s.reply.Complete(model.Metadata{
			AIResponseID: comp.AIResponseID,
			OutputTokens: comp.OutputTokens,
			ModelID:      s.modelID,
		})
		c.streaming = false
		user, reply = s.user.Clone(), s.reply.Clone()
		return Update{Kind: UpdateCompleted, Changed: []model.Message{user, reply}, RoomID: s.roomID}, true
	})
	if !done {
		return
	}

	c.log.Infow("reply completed", "room", s.roomID, "ai_response_id", comp.AIResponseID,
		"input_tokens", comp.InputTokens, "output_tokens", comp.OutputTokens)
	c.record(s, user, reply)
}

func (c *Controller) applyError(s *session, err error) {
	notice := c.notices.Format(err)
	c.mutate(func() (Update, bool) {
		s.reply.Fail(notice)
		c.streaming = false
		return Update{Kind: UpdateFailed, Changed: []model.Message{s.reply.Clone()}, RoomID: s.roomID}, true
	})
}

func (c *Controller) applyCancel(s *session) {
	c.mutate(func() (Update, bool) {
		c.streaming = false
		if s.reply == nil || !s.reply.IsOpen() {
			return Update{}, false
		}
		s.reply.Cancel()
		return Update{Kind: UpdateCancelled, Changed: []model.Message{s.reply.Clone()}, RoomID: s.roomID}, true
	})
}

func (c *Controller) applyIncomplete(s *session) {
	c.mutate(func() (Update, bool) {
		s.reply.MarkIncomplete()
		c.streaming = false
		return Update{Kind: UpdateIncomplete, Changed: []model.Message{s.reply.Clone()}, RoomID: s.roomID}, true
	})
}

// finish clears the session and releases its context.
func (c *Controller) finish(s *session) {
	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	c.streaming = false
	c.mu.Unlock()

	s.abort.release()
	close(s.done)
}

func (c *Controller) record(s *session, user, reply model.Message) {
	if c.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.baseCtx, recordTimeout)
	defer cancel()
	if err := c.recorder.RecordExchange(ctx, s.roomID, s.modelID, user, reply); err != nil {
		c.log.Warnw("failed to record exchange", "room", s.roomID, "error", err)
	}
}

func (c *Controller) report(err error) {
	c.log.Warnw("send failed", "error", err)
	if c.onError != nil {
		c.onError(err)
	}
}

// mutate runs fn under mu and, when fn reports a change, delivers its update
// before any later mutation can run. It returns what fn reported.
func (c *Controller) mutate(fn func() (Update, bool)) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	u, changed := fn()
	c.mu.Unlock()

	if changed && c.onUpdate != nil {
		c.onUpdate(u)
	}
	return changed
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel aborts the open session. Streaming stops immediately and partial
// content is kept. Calling it again, or with no open session, does nothing.
func (c *Controller) Cancel() {
	var roomID string
	fired := false
	c.mutate(func() (Update, bool) {
		s := c.sess
		if s == nil || !s.abort.cancel() {
			return Update{}, false
		}
		fired, roomID = true, s.roomID
		c.streaming = false
		if s.reply == nil || !s.reply.IsOpen() {
			return Update{}, false
		}
		s.reply.Cancel()
		return Update{Kind: UpdateCancelled, Changed: []model.Message{s.reply.Clone()}, RoomID: s.roomID}, true
	})
	if fired {
		c.log.Debugw("send cancelled", "room", roomID)
	}
}

// Wait blocks until the open session, if any, has finished.
func (c *Controller) Wait() {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s != nil {
		<-s.done
	}
}

// Close cancels any open session and waits for it.
func (c *Controller) Close() {
	c.Cancel()
	c.shutdown()
	c.Wait()
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// Attach queues an attachment for the next send, replacing any pending one.
func (c *Controller) Attach(att *Attachment) {
	c.mutate(func() (Update, bool) {
		c.pending = att
		return c.attachmentUpdate(), true
	})
}

// attachmentUpdate must be called with mu held.
func (c *Controller) attachmentUpdate() Update {
	return Update{Kind: UpdateAttachment, Streaming: c.streaming, RoomID: c.conv.RoomID}
}

// ClearAttachment drops the pending attachment.
func (c *Controller) ClearAttachment() {
	c.Attach(nil)
}

// PendingAttachment returns the queued attachment or nil.
func (c *Controller) PendingAttachment() *Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// PendingUploaded reports whether the pending attachment already has a
// file id.
func (c *Controller) PendingUploaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil && c.pending.FileID != ""
}

// Upload uploads the pending attachment ahead of the send so its file id is
// ready. Failures are returned and also reported to OnError.
func (c *Controller) Upload(ctx context.Context) error {
	c.mu.Lock()
	att := c.pending
	modelID := c.modelID
	c.mu.Unlock()
	if att == nil {
		return ErrNoAttachment
	}
	if modelID <= 0 {
		return &gateway.ValidationError{Field: "modelId", Message: "must be greater than 0"}
	}
	if _, err := c.ensureUploaded(ctx, modelID, att); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		uerr := &UploadError{Err: err}
		c.report(uerr)
		return uerr
	}
	c.mutate(func() (Update, bool) { return c.attachmentUpdate(), true })
	return nil
}

// =============================================================================
// STATE ACCESSORS
// =============================================================================

// Messages returns a copy of the message list.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Snapshot()
}

// IsStreaming reports whether a reply is being streamed into the list.
func (c *Controller) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// Busy reports whether a send has been accepted and not yet finished.
// It is true during upload and room creation, before streaming starts.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// RoomID returns the current room, empty before the first send creates it.
func (c *Controller) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.RoomID
}

// Title returns the room title.
func (c *Controller) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.GetTitle()
}

// ModelID returns the model used for the next send.
func (c *Controller) ModelID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modelID
}

// SetModel changes the model for later sends. An open session keeps the
// model it started with.
func (c *Controller) SetModel(modelID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modelID = modelID
}

// SetBalance records the last observed wallet balance. A negative balance
// blocks new sends.
func (c *Controller) SetBalance(b decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = &b
}

// SwitchRoom clears the list and points the Controller at roomID. An empty
// roomID starts a new room on the next send.
func (c *Controller) SwitchRoom(roomID string) error {
	busy := false
	c.mutate(func() (Update, bool) {
		if c.sess != nil {
			busy = true
			return Update{}, false
		}
		c.conv = model.NewConversation(roomID)
		return Update{Kind: UpdateHistory, RoomID: roomID}, true
	})
	if busy {
		return ErrSendInProgress
	}
	return nil
}

// LoadHistory replaces the list with the room's stored messages.
func (c *Controller) LoadHistory(ctx context.Context) error {
	c.mu.Lock()
	roomID := c.conv.RoomID
	busy := c.sess != nil
	c.mu.Unlock()
	if roomID == "" {
		return ErrNoRoom
	}
	if busy {
		return ErrSendInProgress
	}

	msgs, err := c.gw.AllMessages(ctx, roomID)
	if err != nil {
		return err
	}
	conv, skipped := model.FromAPIMessages(roomID, msgs)
	if skipped > 0 {
		c.log.Warnw("skipped history entries with unknown role", "room", roomID, "count", skipped)
	}

	busy = false
	c.mutate(func() (Update, bool) {
		if c.sess != nil {
			busy = true
			return Update{}, false
		}
		if c.conv.RoomID != roomID {
			return Update{}, false
		}
		conv.Title = c.conv.Title
		c.conv = conv
		return Update{Kind: UpdateHistory, Changed: conv.Snapshot(), RoomID: roomID}, true
	})
	if busy {
		return ErrSendInProgress
	}
	return nil
}
