package a2a

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/zhengjr9/genrelay/internal/studio"
)

// Polisher is the studio feature the agent exposes.
type Polisher interface {
	PolishContent(ctx context.Context, in studio.PolishInput) (*studio.PolishResult, error)
}

// AgentConfig holds the configuration for the content-polishing A2A agent.
type AgentConfig struct {
	// Name is the agent name exposed via A2A AgentCard.
	Name string
	// Description is exposed via A2A AgentCard.
	Description string
	// Polisher runs the generation. The caller's Bearer token, when the HTTP
	// middleware stored one with generator.WithAPIKey, rides in the
	// invocation context.
	Polisher Polisher
	// Tone is passed to every polish call; empty means the studio default.
	Tone string
}

// New returns an agent.Agent that polishes the user's message and answers
// with the rewritten text.
func New(cfg AgentConfig) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("a2a agent: Name must not be empty")
	}
	if cfg.Polisher == nil {
		return nil, fmt.Errorf("a2a agent: Polisher must not be nil")
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run:         runFunc(cfg),
	})
}

// runFunc returns the Run closure that drives one agent invocation.
func runFunc(cfg AgentConfig) func(agent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			query := extractQuery(ctx.UserContent())
			if query == "" {
				ev := session.NewEvent(ctx.InvocationID())
				ev.Author = cfg.Name
				ev.LLMResponse = model.LLMResponse{
					Content: textContent("(empty input)"),
				}
				yield(ev, nil)
				return
			}

			answer, err := polish(ctx, cfg, query)
			if err != nil {
				yield(nil, err)
				return
			}

			// A single non-partial event, so IsFinalResponse() is true and
			// the runner closes the invocation.
			finalEv := session.NewEvent(ctx.InvocationID())
			finalEv.Author = cfg.Name
			finalEv.Branch = ctx.Branch()
			finalEv.LLMResponse = model.LLMResponse{
				Content: textContent(answer),
			}
			yield(finalEv, nil)
		}
	}
}

func polish(ctx context.Context, cfg AgentConfig, query string) (string, error) {
	out, err := cfg.Polisher.PolishContent(ctx, studio.PolishInput{Text: query, Tone: cfg.Tone})
	if err != nil {
		return "", err
	}
	if len(out.Changes) == 0 {
		return out.Text, nil
	}
	return out.Text + "\n\nChanges:\n- " + strings.Join(out.Changes, "\n- "), nil
}

// extractQuery pulls the plain-text content from the genai.Content that ADK
// puts in the InvocationContext when the caller sends a message.
func extractQuery(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// textContent is a small helper that wraps a string into a *genai.Content.
func textContent(text string) *genai.Content {
	return &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{{Text: text}},
	}
}
