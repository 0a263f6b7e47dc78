package chatcmder

import (
	"context"
	"fmt"
	"time"

	apisearch "github.com/papercomputeco/ragora/api/search"
	"github.com/papercomputeco/ragora/pkg/cliui"
	"github.com/papercomputeco/ragora/pkg/dotdir"
	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/storage"
	"github.com/papercomputeco/ragora/pkg/utils"
)

const titleLength = 60

// Streamer is the subset of *ragora.Client a conversation needs.
type Streamer interface {
	ChatStream(ctx context.Context, req ragora.ChatRequest) (*ragora.ChatStream, error)
	AgentChatStream(ctx context.Context, agentID string, req ragora.AgentChatRequest) (*ragora.ChatStream, error)
}

// conversation is one chat session: its stored history and the way to send
// the next question.
type conversation struct {
	client Streamer
	driver storage.Driver
	ddm    *dotdir.Manager
	dir    string

	kind    string
	agentID string

	session *storage.Session
	history []*storage.Turn
	stored  bool
}

// reset starts a new, not yet stored session with the same model and
// collections.
func (c *conversation) reset() {
	next := storage.NewSession(c.kind)
	next.AgentID = c.agentID
	if c.session != nil {
		next.Model = c.session.Model
		next.Collections = c.session.Collections
	}

	c.session = next
	c.history = nil
	c.stored = false
}

func (c *conversation) load(ctx context.Context, id string) error {
	session, err := c.driver.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session.Kind != c.kind || session.AgentID != c.agentID {
		return fmt.Errorf("session %s belongs to a different %s conversation", id, session.Kind)
	}

	turns, err := c.driver.Turns(ctx, id)
	if err != nil {
		return fmt.Errorf("loading session history: %w", err)
	}

	c.session = session
	c.history = turns
	c.stored = true
	return nil
}

// ask streams the answer to question onto out, then records both turns.
func (c *conversation) ask(ctx context.Context, question string, out *cliui.Output) error {
	stream, err := c.open(ctx, question)
	if err != nil {
		return err
	}

	out.Print(cliui.AssistantPrompt)

	summary := &ragora.StreamSummary{}
	for chunk, err := range stream.All() {
		if err != nil {
			return err
		}
		if chunk.Content != "" {
			out.Print(chunk.Content)
		}
		summary.Add(chunk)
	}
	out.Println("")

	if id := stream.SessionID(); id != "" {
		c.session.RemoteSessionID = id
	}

	printSources(out, summary.Sources)

	return c.record(ctx, question, summary)
}

func (c *conversation) open(ctx context.Context, question string) (*ragora.ChatStream, error) {
	if c.kind == storage.KindAgent {
		return c.client.AgentChatStream(ctx, c.agentID, ragora.AgentChatRequest{
			Message:   question,
			SessionID: c.session.RemoteSessionID,
		})
	}

	messages := append(storage.Messages(c.history), ragora.Message{Role: ragora.RoleUser, Content: question})
	return c.client.ChatStream(ctx, ragora.ChatRequest{
		Messages:      messages,
		CollectionIDs: c.session.Collections,
		Model:         c.session.Model,
	})
}

func (c *conversation) record(ctx context.Context, question string, summary *ragora.StreamSummary) error {
	if !c.stored {
		c.session.Title = utils.Truncate(utils.SingleLine(question), titleLength)
	}
	if err := c.driver.PutSession(ctx, c.session); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	c.stored = true

	now := time.Now().UTC()
	turns := []*storage.Turn{
		{SessionID: c.session.ID, Role: ragora.RoleUser, Content: question, CreatedAt: now},
		{
			SessionID:    c.session.ID,
			Role:         ragora.RoleAssistant,
			Content:      summary.Content,
			FinishReason: summary.FinishReason,
			Sources:      summary.Sources,
			CreatedAt:    now,
		},
	}
	if err := c.driver.AppendTurns(ctx, turns...); err != nil {
		return fmt.Errorf("saving turn: %w", err)
	}
	c.history = append(c.history, turns...)

	return c.ddm.SaveActiveSession(&dotdir.ActiveSession{
		SessionID: c.session.ID,
		Kind:      c.session.Kind,
		AgentID:   c.session.AgentID,
	}, c.dir)
}

func printSources(out *cliui.Output, sources []ragora.SearchResult) {
	if len(sources) == 0 {
		return
	}

	out.Printf("\n  %s\n", cliui.DimStyle.Render("Sources"))
	for i, src := range sources {
		name := apisearch.SourceName(src.Metadata)
		if name == "" {
			name = src.ID
		}
		out.Printf("  %s %s %s\n",
			cliui.RankStyle.Render(fmt.Sprintf("[%d]", i+1)),
			cliui.PreviewStyle.Render(cliui.Preview(name, out.Width()-20)),
			cliui.ScoreStyle.Render(fmt.Sprintf("%.2f", src.Score)),
		)
	}
}
