// Package chatcmder provides the chat commands: an interactive, streaming
// conversation with Ragora chat completions or with a Ragora agent.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/cliui"
	"github.com/papercomputeco/ragora/pkg/config"
	"github.com/papercomputeco/ragora/pkg/dotdir"
	"github.com/papercomputeco/ragora/pkg/storage"
)

type chatCommander struct {
	kind      string
	agentID   string
	sessionID string
	fresh     bool

	v      *viper.Viper
	logger *slog.Logger
}

const chatLongDesc string = `Start an interactive chat grounded on your Ragora collections.

Answers stream in as they are generated and the sources they were grounded
on are listed after each answer. Every turn is recorded in the local session
store, and the next "ragora chat" resumes the most recent conversation.

Pass a question as arguments to ask once and exit.

Inside the chat:
  /new     Start a new conversation
  /exit    Quit (Ctrl+D works too)

Examples:
  ragora chat
  ragora chat --collection col_123 --model gpt-4o-mini
  ragora chat --new
  ragora chat "What is our refund policy?"`

const chatShortDesc string = "Chat with your collections"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{kind: storage.KindChat}

	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, strings.Join(args, " "))
		},
	}

	cmder.addFlags(cmd)
	cmdutil.AddFlags(cmd, config.ChatFlags)

	return cmd
}

const agentChatLongDesc string = `Start an interactive chat with a Ragora agent.

The agent answers with its own model, prompt and collections. The session
the API assigns is kept in the local session store, so the next
"ragora agent chat" with the same agent continues the conversation.

Examples:
  ragora agent chat agt_123
  ragora agent chat agt_123 --new
  ragora agent chat agt_123 "Summarise yesterday's tickets"`

const agentChatShortDesc string = "Chat with an agent"

// NewAgentChatCmd returns the "agent chat" subcommand.
func NewAgentChatCmd() *cobra.Command {
	cmder := &chatCommander{kind: storage.KindAgent}

	cmd := &cobra.Command{
		Use:   "chat <agent-id> [question]",
		Short: agentChatShortDesc,
		Long:  agentChatLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.agentID = args[0]
			return cmder.run(cmd, strings.Join(args[1:], " "))
		},
	}

	cmder.addFlags(cmd)

	return cmd
}

func (c *chatCommander) addFlags(cmd *cobra.Command) {
	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmdutil.AddFlags(cmd, config.StorageFlags)
	cmd.Flags().StringVar(&c.sessionID, "session", "", "Resume a specific local session")
	cmd.Flags().BoolVarP(&c.fresh, "new", "n", false, "Start a new conversation instead of resuming")
}

func (c *chatCommander) load(cmd *cobra.Command) error {
	var err error
	c.v, err = cmdutil.LoadViper(cmd, config.ClientFlags, config.ChatFlags, config.StorageFlags)
	return err
}

func (c *chatCommander) run(cmd *cobra.Command, question string) error {
	ctx := cmd.Context()
	configDir := cmdutil.ConfigDir(cmd)
	c.logger = cmdutil.Logger(cmd)

	client, err := cmdutil.NewClient(c.v, c.logger)
	if err != nil {
		return err
	}

	driver, err := cmdutil.OpenStorage(ctx, c.v, configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	conv := &conversation{
		client:  client,
		driver:  driver,
		ddm:     dotdir.NewManager(),
		dir:     configDir,
		kind:    c.kind,
		agentID: c.agentID,
	}

	resumed, err := c.resume(ctx, conv)
	if err != nil {
		return err
	}
	c.applyDefaults(cmd, conv)

	out := cliui.NewOutput(cmd.OutOrStdout())

	if question != "" {
		return conv.ask(ctx, question, out)
	}

	out.Println("")
	if resumed {
		out.Printf("  %s Resuming %s %s\n",
			cliui.SuccessMark,
			cliui.IDStyle.Render(conv.session.ID),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(conv.history))),
		)
	} else {
		out.Printf("  %s New conversation\n", cliui.DimStyle.Render("●"))
	}
	if c.kind == storage.KindAgent {
		out.Printf("  %s %s\n", cliui.KeyStyle.Render("Agent:"), cliui.NameStyle.Render(c.agentID))
	} else if conv.session.Model != "" {
		out.Printf("  %s %s\n", cliui.KeyStyle.Render("Model:"), cliui.NameStyle.Render(conv.session.Model))
	}
	out.Printf("\n  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /new starts over, /exit or Ctrl+D quits."))

	return c.loop(ctx, cmd.InOrStdin(), out, conv)
}

func (c *chatCommander) loop(ctx context.Context, in io.Reader, out *cliui.Output, conv *conversation) error {
	scanner := bufio.NewScanner(in)

	for {
		out.Print(cliui.UserPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			out.Println("")
			return nil
		case "/new":
			conv.reset()
			if err := conv.ddm.ClearActiveSession(conv.dir); err != nil {
				c.logger.Warn("could not clear active session", "error", err)
			}
			out.Printf("  %s New conversation\n\n", cliui.DimStyle.Render("●"))
			continue
		}

		if err := conv.ask(ctx, input, out); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			out.Printf("\n  %s %v\n\n", cliui.FailMark, err)
			continue
		}
		out.Println("")
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	out.Println("")
	return nil
}

// resume picks the session to continue: --session, else the active session
// of the same kind and agent, else the latest stored one of that kind and
// agent, else a new one. It reports whether an existing session was loaded.
func (c *chatCommander) resume(ctx context.Context, conv *conversation) (bool, error) {
	if c.fresh {
		conv.reset()
		return false, nil
	}

	id := c.sessionID
	if id == "" {
		active, err := conv.ddm.LoadActiveSession(conv.dir)
		if err != nil {
			c.logger.Warn("ignoring unreadable active session", "error", err)
		}
		if active != nil && active.Kind == c.kind && active.AgentID == c.agentID {
			id = active.SessionID
		}
	}
	if id == "" {
		latest, err := conv.driver.LatestSession(ctx, c.kind, c.agentID)
		switch {
		case err == nil:
			id = latest.ID
		case !storage.IsNotFound(err):
			return false, fmt.Errorf("finding latest session: %w", err)
		}
	}

	if id == "" {
		conv.reset()
		return false, nil
	}

	err := conv.load(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case storage.IsNotFound(err) && c.sessionID == "":
		c.logger.Debug("active session no longer stored, starting fresh", "session_id", id)
		conv.reset()
		return false, nil
	default:
		return false, err
	}
}

// applyDefaults fills model and collections from configuration. A resumed
// session keeps its own unless the flags were given explicitly.
func (c *chatCommander) applyDefaults(cmd *cobra.Command, conv *conversation) {
	if c.kind == storage.KindAgent {
		return
	}
	if conv.session.Model == "" || cmd.Flags().Changed("model") {
		conv.session.Model = c.v.GetString("chat.model")
	}
	if len(conv.session.Collections) == 0 || cmd.Flags().Changed("collection") {
		conv.session.Collections = config.List(c.v, "chat.collections")
	}
}
