// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/insight-health/insight/lib/clock"
)

// Role identifies who a transcript message belongs to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one transcript entry. Content is always the complete
// cumulative string, never a delta, so consumers re-render by
// replacement.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
}

// ToolStatus is the lifecycle of one tool call.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolExecuting ToolStatus = "executing"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// ToolCall is one entry in the tool-call ledger.
type ToolCall struct {
	ID     string
	Name   string
	Status ToolStatus
	Input  json.RawMessage
	Result json.RawMessage
}

// Conversation merges text, thinking, and tool events into an
// ordered message list and a tool-call ledger.
//
// Tool results correlate by recency, not by id: the ledger keeps a
// single-slot "active call" register, and tool_result patches
// whatever that register points at. This leans on the upstream
// guarantee that specialists run one tool call at a time; the
// register is nil whenever no call is outstanding, so a stray result
// drops instead of mispatching.
type Conversation struct {
	clock  clock.Clock
	logger *slog.Logger

	messages []Message

	// synthesisID is the id of the current cumulative assistant
	// message, or empty when the next non-empty prose fragment should
	// start a fresh one. Thinking and tool activity clear it.
	synthesisID string
	synthesis   strings.Builder

	tools []ToolCall

	// activeTool indexes the outstanding call in tools, or -1.
	activeTool int
}

// NewConversation creates an empty Conversation.
func NewConversation(clk clock.Clock, logger *slog.Logger) *Conversation {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		clock:      clk,
		logger:     logger,
		activeTool: -1,
	}
}

// Messages returns a copy of the transcript in event order.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// ToolCalls returns a copy of the tool-call ledger.
func (c *Conversation) ToolCalls() []ToolCall {
	out := make([]ToolCall, len(c.tools))
	copy(out, c.tools)
	return out
}

// AddUser appends the user's submitted message.
func (c *Conversation) AddUser(text string) Message {
	return c.append(RoleUser, text)
}

// AddThinking appends one discrete thought bubble. Thoughts are never
// merged, and thinking resets synthesis: the next prose fragment
// starts a new assistant message.
func (c *Conversation) AddThinking(content string) Message {
	c.resetSynthesis()
	return c.append(RoleAssistant, content)
}

// AppendProse accumulates processed assistant text. The first
// non-empty fragment since the last thinking/tool activity creates
// the synthesis message; every later fragment patches that message
// with the full accumulated string.
func (c *Conversation) AppendProse(fragment string) {
	if c.synthesisID == "" {
		if strings.TrimSpace(fragment) == "" {
			return
		}
		message := c.append(RoleAssistant, "")
		c.synthesisID = message.ID
		c.synthesis.Reset()
	}
	c.synthesis.WriteString(fragment)
	c.patch(c.synthesisID, c.synthesis.String())
}

// BeginTool records a pending tool call and points the active-call
// register at it. Tool activity resets synthesis.
func (c *Conversation) BeginTool(id, name string, input json.RawMessage) {
	c.resetSynthesis()
	if id == "" {
		id = uuid.NewString()
	}
	c.tools = append(c.tools, ToolCall{
		ID:     id,
		Name:   name,
		Status: ToolPending,
		Input:  input,
	})
	c.activeTool = len(c.tools) - 1
}

// MarkToolExecuting marks the active call as running. A stray
// executing signal with no active call is dropped.
func (c *Conversation) MarkToolExecuting() {
	c.resetSynthesis()
	if c.activeTool < 0 {
		c.logger.Debug("tool_executing with no active tool call; dropping")
		return
	}
	c.tools[c.activeTool].Status = ToolExecuting
}

// FinishTool patches the active call with its result and releases
// the register. Does not create a transcript message. A stray result
// with no active call is dropped.
func (c *Conversation) FinishTool(result json.RawMessage) {
	c.resetSynthesis()
	if c.activeTool < 0 {
		c.logger.Debug("tool_result with no active tool call; dropping")
		return
	}
	c.tools[c.activeTool].Status = ToolCompleted
	c.tools[c.activeTool].Result = result
	c.activeTool = -1
}

func (c *Conversation) append(role Role, content string) Message {
	message := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: c.clock.Now(),
	}
	c.messages = append(c.messages, message)
	return message
}

// patch replaces the content of the message with the given id. A
// patch against an id that no longer exists (an ordering anomaly) is
// dropped silently rather than crashing the session.
func (c *Conversation) patch(id, content string) {
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].Content = content
			return
		}
	}
	c.logger.Debug("patch target missing; dropping update", "message_id", id)
}

func (c *Conversation) resetSynthesis() {
	c.synthesisID = ""
	c.synthesis.Reset()
}
