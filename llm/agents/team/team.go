// Package team coordinates the specialist agents behind one conversation.
//
// The coordinator is itself an agents.Agent. In model routing it gets a
// delegation tool and decides which members to call; in rules routing a fixed
// router picks the members up front and the coordinator only synthesizes.
package team

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"research-assistant/llm/agents"
	"research-assistant/llm/memory"
	"research-assistant/llm/providers/shared"
	"research-assistant/llm/tools"
)

// Routing modes.
const (
	RoutingModel = "model"
	RoutingRules = "rules"
)

// Options configure the coordination behavior.
type Options struct {
	Routing             string
	ShowMemberResponses bool
	// HistoryRuns is the coordinator's history window.
	HistoryRuns int
	// DelegationConcurrency bounds delegate calls running at once.
	DelegationConcurrency int
}

// Config assembles a Team.
type Config struct {
	Provider shared.LLMProvider
	Store    memory.Store
	// Tools resolves the members' tool names. Nil leaves members without tools.
	Tools   *tools.Registry
	Members []agents.Descriptor
	Options Options
	// Agent carries model settings shared by the coordinator and members.
	Agent  agents.Options
	Router *agents.Router
	Logger *zerolog.Logger
	Now    func() time.Time
}

// MemberResult is the outcome of one delegation.
type MemberResult struct {
	Member  string `json:"member"`
	Task    string `json:"task"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Failed reports whether the member returned an error.
func (r MemberResult) Failed() bool { return r.Error != "" }

// Text is what the coordinator sees for this delegation.
func (r MemberResult) Text() string {
	if r.Failed() {
		return fmt.Sprintf("Member %s failed: %s", r.Member, r.Error)
	}
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Sprintf("Member %s returned no content.", r.Member)
	}
	return r.Content
}

// Result is a finished team run.
type Result struct {
	*agents.RunOutput
	Members []MemberResult `json:"members,omitempty"`
}

// Team is the coordinator plus its members. It is safe for concurrent use
// across sessions.
type Team struct {
	coordinator *agents.Agent
	members     map[string]*agents.Agent
	order       []agents.Descriptor
	store       memory.Store
	router      *agents.Router
	opts        Options
	logger      zerolog.Logger
}

// New builds the coordinator and one agent per member descriptor.
func New(cfg Config) (*Team, error) {
	if cfg.Provider == nil {
		return nil, &agents.ValidationError{Field: "provider", Message: "a model provider is required"}
	}
	if cfg.Store == nil {
		return nil, &agents.ValidationError{Field: "store", Message: "a memory store is required"}
	}
	if len(cfg.Members) == 0 {
		return nil, &agents.ValidationError{Field: "members", Message: "at least one member is required"}
	}
	opts := cfg.Options
	if opts.Routing == "" {
		opts.Routing = RoutingModel
	}
	if opts.Routing != RoutingModel && opts.Routing != RoutingRules {
		return nil, &agents.ValidationError{Field: "routing", Message: fmt.Sprintf("unknown routing mode %q", opts.Routing)}
	}
	if opts.DelegationConcurrency <= 0 {
		opts.DelegationConcurrency = 1
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	router := cfg.Router
	if router == nil {
		router = agents.DefaultRouter()
	}

	t := &Team{
		members: make(map[string]*agents.Agent, len(cfg.Members)),
		store:   cfg.Store,
		router:  router,
		opts:    opts,
		logger:  logger.With().Str("component", "team").Logger(),
	}

	for _, desc := range cfg.Members {
		var kit *tools.Toolkit
		if len(desc.Tools) > 0 && cfg.Tools != nil {
			var err error
			if kit, err = cfg.Tools.Toolkit(desc.Tools...); err != nil {
				return nil, fmt.Errorf("member %s: %w", desc.Name, err)
			}
		}
		memberOpts := cfg.Agent
		memberOpts.ToolConcurrency = 1
		a, err := agents.New(agents.Config{
			Descriptor: desc,
			Provider:   cfg.Provider,
			Store:      cfg.Store,
			Toolkit:    kit,
			Options:    memberOpts,
			Logger:     &logger,
			Now:        cfg.Now,
		})
		if err != nil {
			return nil, err
		}
		t.members[desc.Name] = a
		t.order = append(t.order, desc.Clone())
	}
	if _, ok := t.members[agents.GeneralAssistant]; !ok {
		return nil, &agents.ValidationError{Field: "members", Message: agents.GeneralAssistant + " is required as the fallback member"}
	}

	coordOpts := cfg.Agent
	coordOpts.ToolConcurrency = opts.DelegationConcurrency
	coord, err := agents.New(agents.Config{
		Descriptor: coordinatorDescriptor(t.order, opts.HistoryRuns),
		Provider:   cfg.Provider,
		Store:      cfg.Store,
		Options:    coordOpts,
		Logger:     &logger,
		Now:        cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	t.coordinator = coord
	return t, nil
}

// Descriptor returns the coordinator's descriptor.
func (t *Team) Descriptor() agents.Descriptor { return t.coordinator.Descriptor() }

// Members returns the member descriptors in registration order.
func (t *Team) Members() []agents.Descriptor {
	out := make([]agents.Descriptor, len(t.order))
	for i, d := range t.order {
		out[i] = d.Clone()
	}
	return out
}

// Store returns the shared memory store.
func (t *Team) Store() memory.Store { return t.store }

// Routing returns the routing mode.
func (t *Team) Routing() string { return t.opts.Routing }

// Member resolves a member id as the model writes it. Unknown ids fall back
// to GeneralAssistant; the second value reports whether the id matched.
func (t *Team) Member(id string) (*agents.Agent, bool) {
	want := normalizeID(id)
	for _, d := range t.order {
		if normalizeID(d.Name) == want {
			return t.members[d.Name], true
		}
	}
	return t.members[agents.GeneralAssistant], false
}

func normalizeID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Run answers query for the session. Content events of the coordinator are
// always forwarded; member content only with ShowMemberResponses.
func (t *Team) Run(ctx context.Context, sessionID, query string, emit agents.Emitter) (*Result, error) {
	emit = emit.Synchronized()
	r := &teamRun{team: t, sessionID: sessionID, emit: emit}

	memories, err := t.store.Memories(ctx, sessionID)
	if err != nil {
		t.logger.Warn().Err(err).Msg("failed to load memories")
	}

	in := agents.RunInput{SessionID: sessionID, Task: query, Memories: memories}
	switch t.opts.Routing {
	case RoutingRules:
		for _, name := range t.router.Route(query) {
			r.delegate(ctx, name, query, "")
		}
		in.Context = []string{responsesBlock(r.results())}
		in.Tools = t.memoryTools(sessionID)
	default:
		in.Tools = tools.NewToolkit(&delegateTool{run: r}).With(t.memoryTools(sessionID))
	}

	out, err := t.coordinator.Run(ctx, in, emit)
	res := &Result{RunOutput: out, Members: r.results()}
	if err != nil {
		return res, err
	}
	t.logger.Info().
		Str("session_id", sessionID).
		Int("members", len(res.Members)).
		Dur("duration", out.Stats.Duration).
		Msg("team run completed")
	return res, nil
}

// memoryTools are offered to the coordinator in every routing mode.
func (t *Team) memoryTools(sessionID string) *tools.Toolkit {
	return tools.NewToolkit(
		&memoryTool{store: t.store, sessionID: sessionID},
		&searchMemoryTool{store: t.store, sessionID: sessionID},
	)
}

// teamRun is the state shared by the delegations of one Run.
type teamRun struct {
	team      *Team
	sessionID string
	emit      agents.Emitter

	mu      sync.Mutex
	members []MemberResult
}

func (r *teamRun) results() []MemberResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MemberResult(nil), r.members...)
}

func (r *teamRun) memberEmitter() agents.Emitter {
	if r.emit == nil {
		return nil
	}
	return func(ev agents.Event) {
		if ev.Type == agents.EventContent && !r.team.opts.ShowMemberResponses {
			return
		}
		r.emit(ev)
	}
}

// delegate runs one member. Failures become part of the result, never an
// error, so the coordinator can carry on with the other findings.
func (r *teamRun) delegate(ctx context.Context, memberID, task, expected string) MemberResult {
	member, ok := r.team.Member(memberID)
	if !ok {
		r.team.logger.Warn().Str("member_id", memberID).Msg("unknown member, falling back to " + agents.GeneralAssistant)
	}

	full := task
	if strings.TrimSpace(expected) != "" {
		full = task + "\n\n<expected_output>\n" + expected + "\n</expected_output>"
	}
	var shared []string
	if block := interactionsBlock(r.results()); block != "" {
		shared = append(shared, block)
	}

	out, err := member.Run(ctx, agents.RunInput{SessionID: r.sessionID, Task: full, Context: shared}, r.memberEmitter())
	res := MemberResult{Member: member.Name(), Task: task}
	if err != nil {
		res.Error = cause(err).Error()
		r.team.logger.Error().Err(err).Str("member", member.Name()).Msg("member failed")
	} else {
		res.Content = out.Content
	}

	r.mu.Lock()
	r.members = append(r.members, res)
	r.mu.Unlock()
	return res
}

// cause drops the member-name prefix added by agents.Agent.Run.
func cause(err error) error {
	if inner := errors.Unwrap(err); inner != nil {
		return inner
	}
	return err
}
