/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/confplanner/internal/catalog"
	"github.com/friendsincode/confplanner/internal/planner"
	"github.com/friendsincode/confplanner/internal/telemetry"
)

const tracerName = "confplanner/assistant"

// Agent names.
const (
	AgentSearch = "search"
	AgentInfo   = "info"
)

// DefaultMaxSteps bounds model calls per chat request.
const DefaultMaxSteps = 5

var (
	// ErrNoUserMessage is returned when the conversation has no user turn.
	ErrNoUserMessage = errors.New("no user message found")
	// ErrModelUnavailable is returned while the model circuit breaker is open.
	ErrModelUnavailable = errors.New("model unavailable")
)

// ChatMessage is one plain-text turn as sent by clients.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall records one tool execution during a chat.
type ToolCall struct {
	Name        string          `json:"name"`
	Input       json.RawMessage `json:"input"`
	OutputCount int             `json:"output_count"`
	Error       string          `json:"error,omitempty"`
}

// Reply is the assistant's answer.
type Reply struct {
	Agent     string     `json:"agent"`
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls"`
	Steps     int        `json:"steps"`
}

// Models selects the model per pipeline stage. Info falls back to Router.
type Models struct {
	Router Model
	Search Model
	Info   Model
}

// Options configures the assistant.
type Options struct {
	Conference Conference
	Location   *time.Location
	MaxSteps   int
	MaxTokens  int
}

// Service runs the router and agent pipeline.
type Service struct {
	models    Models
	tools     *toolbox
	conf      Conference
	maxSteps  int
	maxTokens int
	logger    zerolog.Logger
}

// New creates the assistant.
func New(m Models, cat *catalog.Service, plan *planner.Service, opts Options, logger zerolog.Logger) *Service {
	if m.Info == nil {
		m.Info = m.Router
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		models:    m,
		tools:     &toolbox{catalog: cat, planner: plan, loc: opts.Location},
		conf:      opts.Conference,
		maxSteps:  opts.MaxSteps,
		maxTokens: opts.MaxTokens,
		logger:    logger.With().Str("component", "assistant").Logger(),
	}
}

// Chat routes the conversation to an agent and runs its tool loop.
func (s *Service) Chat(ctx context.Context, userID string, history []ChatMessage) (*Reply, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ai.chat.request")
	defer span.End()
	started := time.Now()

	messages, last := normalize(history)
	if last == "" {
		return nil, ErrNoUserMessage
	}

	agent := s.route(ctx, last)
	telemetry.AddSpanAttributes(span, map[string]any{
		"ai.pipeline.name": "conference-scheduler",
		"ai.agent":         agent,
		"user.id":          userID,
	})

	reply, err := s.runAgent(ctx, agent, userID, messages)
	status := "ok"
	if err != nil {
		status = "error"
		telemetry.RecordError(span, err)
	}
	telemetry.AssistantRequestsTotal.WithLabelValues(agent, status).Inc()

	s.logger.Info().
		Str("user_id", userID).
		Str("agent", agent).
		Int("message_count", len(history)).
		Dur("duration", time.Since(started)).
		Str("status", status).
		Msg("assistant chat request processed")
	return reply, err
}

// route asks the router model for an agent. Anything but "info", including
// a router failure, selects the search agent.
func (s *Service) route(ctx context.Context, userMessage string) string {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ai.agent.router")
	defer span.End()

	resp, err := s.models.Router.Complete(ctx, Request{
		System:    routerSystemPrompt,
		Messages:  []Message{TextMessage(RoleUser, userMessage)},
		MaxTokens: 16,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Warn().Err(err).Msg("router failed, using search agent")
		return AgentSearch
	}

	choice := strings.ToLower(strings.TrimSpace(resp.Text()))
	choice = strings.Trim(choice, `"'.`)
	telemetry.AddSpanAttributes(span, map[string]any{"ai.routing.selected": choice})
	if choice == AgentInfo {
		return AgentInfo
	}
	return AgentSearch
}

func (s *Service) runAgent(ctx context.Context, agent, userID string, messages []Message) (*Reply, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ai.agent."+agent)
	defer span.End()

	conf := s.conference(ctx)
	var (
		model  Model
		system string
		tools  []tool
	)
	if agent == AgentInfo {
		model = s.models.Info
		system = infoSystemPrompt(conf)
		tools = []tool{s.tools.getTracks(), s.tools.getUserSchedule(userID)}
	} else {
		model = s.models.Search
		system = searchSystemPrompt(conf)
		tools = []tool{s.tools.searchTalks(), s.tools.getTalkDetails(), s.tools.checkConflicts()}
	}

	byName := make(map[string]tool, len(tools))
	specs := make([]ToolSpec, len(tools))
	for i, t := range tools {
		byName[t.spec.Name] = t
		specs[i] = t.spec
	}

	reply := &Reply{Agent: agent, ToolCalls: []ToolCall{}}
	var texts []string
	for reply.Steps < s.maxSteps {
		resp, err := model.Complete(ctx, Request{
			System:    system,
			Messages:  messages,
			Tools:     specs,
			MaxTokens: s.maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("%s agent: %w", agent, err)
		}
		reply.Steps++

		if text := strings.TrimSpace(resp.Text()); text != "" {
			texts = append(texts, text)
		}
		uses := resp.ToolUses()
		if resp.StopReason != StopToolUse || len(uses) == 0 {
			break
		}

		messages = append(messages, Message{Role: RoleAssistant, Content: nonEmptyBlocks(resp.Content)})
		results := make([]ContentBlock, 0, len(uses))
		for _, use := range uses {
			result, call := s.execute(ctx, byName, use)
			results = append(results, result)
			reply.ToolCalls = append(reply.ToolCalls, call)
		}
		messages = append(messages, Message{Role: RoleUser, Content: results})
	}

	reply.Text = strings.Join(texts, "\n\n")
	telemetry.AddSpanAttributes(span, map[string]any{
		"ai.steps":      reply.Steps,
		"ai.tool_calls": len(reply.ToolCalls),
	})
	return reply, nil
}

// execute runs one tool call and builds the tool_result block for it.
func (s *Service) execute(ctx context.Context, tools map[string]tool, use ContentBlock) (ContentBlock, ToolCall) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "execute_tool "+use.Name)
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"gen_ai.tool.name":  use.Name,
		"gen_ai.tool.input": string(use.Input),
	})

	call := ToolCall{Name: use.Name, Input: use.Input}
	result := ContentBlock{Type: BlockToolResult, ToolUseID: use.ID}

	t, ok := tools[use.Name]
	if !ok {
		call.Error = "unknown tool"
		result.Content = fmt.Sprintf("unknown tool %q", use.Name)
		result.IsError = true
		telemetry.AssistantToolCallsTotal.WithLabelValues("unknown", "error").Inc()
		return result, call
	}

	out, count, err := t.run(ctx, use.Input)
	if err == nil {
		var data []byte
		data, err = json.Marshal(out)
		result.Content = string(data)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		call.Error = err.Error()
		result.Content = err.Error()
		result.IsError = true
		telemetry.AssistantToolCallsTotal.WithLabelValues(use.Name, "error").Inc()
		s.logger.Warn().Err(err).Str("tool", use.Name).Msg("tool execution failed")
		return result, call
	}

	call.OutputCount = count
	telemetry.AddSpanAttributes(span, map[string]any{"gen_ai.tool.output_count": count})
	telemetry.AssistantToolCallsTotal.WithLabelValues(use.Name, "ok").Inc()
	return result, call
}

// conference fills in tracks and the event date from the catalog.
func (s *Service) conference(ctx context.Context) Conference {
	conf := s.conf
	if len(conf.Tracks) == 0 {
		if tracks, err := s.tools.catalog.ListTracks(ctx); err == nil {
			conf.Tracks = tracks
		}
	}
	if conf.Date.IsZero() {
		if talks, err := s.tools.catalog.ListTalks(ctx); err == nil && len(talks) > 0 {
			conf.Date = talks[0].StartsAt.In(s.tools.loc)
		}
	}
	return conf
}

// normalize drops empty and unknown-role turns, merges consecutive turns of
// the same role and trims leading assistant turns. It returns the model
// messages and the text of the last user turn.
func normalize(history []ChatMessage) ([]Message, string) {
	var (
		out  []Message
		last string
	)
	for _, m := range history {
		if m.Content == "" || (m.Role != RoleUser && m.Role != RoleAssistant) {
			continue
		}
		if m.Role == RoleUser {
			last = m.Content
		}
		if len(out) == 0 && m.Role == RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content[0].Text += "\n\n" + m.Content
			continue
		}
		out = append(out, TextMessage(m.Role, m.Content))
	}
	return out, last
}

func nonEmptyBlocks(blocks []ContentBlock) []ContentBlock {
	out := make([]ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == BlockText && strings.TrimSpace(b.Text) == "" {
			continue
		}
		out = append(out, b)
	}
	return out
}
