// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/chatgate/internal/gateway"
)

// handleSend streams a canned reply as started, delta..., completed.
//
// Every check runs before the first byte so that rejections arrive as a
// plain JSON envelope with a 4xx status. Once started is written the
// exchange is only persisted and billed if the stream reaches completed.
func (s *Server) handleSend(c *gin.Context) {
	roomID := c.Param("roomId")

	var req gateway.SendMessageRequest
	if !s.bindJSON(c, &req) {
		s.metrics.sends.WithLabelValues("rejected").Inc()
		return
	}
	if _, ok := s.store.room(roomID); !ok {
		s.metrics.sends.WithLabelValues("rejected").Inc()
		writeError(c, http.StatusNotFound, "ROOM_NOT_FOUND", "chat room not found")
		return
	}
	model, ok := s.store.model(req.ModelID)
	if !ok {
		s.metrics.sends.WithLabelValues("rejected").Inc()
		writeError(c, http.StatusNotFound, "MODEL_NOT_FOUND", "model does not exist")
		return
	}
	if !model.IsActive {
		s.metrics.sends.WithLabelValues("rejected").Inc()
		writeError(c, http.StatusBadRequest, "MODEL_NOT_ACTIVE", model.DisplayName+" is not available")
		return
	}
	if !s.store.balance().IsPositive() {
		s.metrics.sends.WithLabelValues("rejected").Inc()
		writeError(c, http.StatusBadRequest, "INSUFFICIENT_BALANCE", "insufficient coin balance")
		return
	}

	var file *storedFile
	if req.FileID != "" {
		f, ok := s.store.takeFile(req.FileID)
		if !ok {
			s.metrics.sends.WithLabelValues("rejected").Inc()
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "fileId is unknown or already used")
			return
		}
		file = &f
	}

	reply := replyFor(req.Message, file != nil)
	ex := exchange{
		roomID:       roomID,
		model:        model,
		prompt:       req.Message,
		reply:        reply,
		file:         file,
		inputTokens:  estimateTokens(req.Message),
		outputTokens: estimateTokens(reply),
	}
	if file != nil {
		// Images are billed as a flat block of input tokens.
		ex.inputTokens += 85
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	s.log.Debugw("stream started", "room", roomID, "model", model.ModelID, "file", file != nil,
		"previous", req.PreviousResponseID)

	if err := s.streamReply(ctx, c.Writer, reply); err != nil {
		s.metrics.sends.WithLabelValues("aborted").Inc()
		s.log.Infow("stream aborted", "room", roomID, "error", err)
		return
	}

	done, ok := s.store.commit(ex)
	if !ok {
		// Room deleted mid-stream; end without completed.
		s.metrics.sends.WithLabelValues("aborted").Inc()
		return
	}
	payload, err := json.Marshal(done)
	if err != nil {
		s.log.Errorw("encode completion", "error", err)
		return
	}
	if err := writeEvent(c.Writer, gateway.EventNameCompleted, string(payload)); err != nil {
		s.metrics.sends.WithLabelValues("aborted").Inc()
		return
	}
	c.Writer.Flush()

	cost := model.EstimateCost(ex.inputTokens, ex.outputTokens)
	coins, _ := cost.Float64()
	s.metrics.coinsSpent.Add(coins)
	s.metrics.sends.WithLabelValues("completed").Inc()
	s.log.Infow("stream completed", "room", roomID, "reply", done.AIResponseID,
		"input_tokens", done.InputTokens, "output_tokens", done.OutputTokens, "cost", cost.String())
}

// streamReply writes started and one delta per character, pausing between
// deltas. It returns ctx.Err() if the client goes away.
func (s *Server) streamReply(ctx context.Context, w gin.ResponseWriter, reply string) error {
	if err := writeEvent(w, gateway.EventNameStarted, "{}"); err != nil {
		return err
	}
	w.Flush()

	var timer *time.Timer
	if s.opts.DeltaDelay > 0 {
		timer = time.NewTimer(s.opts.DeltaDelay)
		defer timer.Stop()
	}

	for _, r := range reply {
		if timer != nil {
			timer.Reset(s.opts.DeltaDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := writeEvent(w, gateway.EventNameDelta, string(r)); err != nil {
			return err
		}
		w.Flush()
		s.metrics.deltas.Inc()
	}
	return nil
}

// writeEvent frames one SSE record, splitting data over as many data
// lines as it has lines so that newlines survive the round trip.
func writeEvent(w io.Writer, name, data string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", name)
	data = strings.ReplaceAll(data, "\r\n", "\n")
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
