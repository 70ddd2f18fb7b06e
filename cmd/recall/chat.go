package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/recall/internal/util"
	"github.com/hrygo/recall/plugin/ai"
	"github.com/hrygo/recall/plugin/ai/agent"
	"github.com/hrygo/recall/store"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a model in the terminal",
	Long: `Chat with a model in the terminal.

Without --conversation a new conversation is created and its uid printed, so
it can be resumed later. --ephemeral chats without storing anything.

Commands: /summary prints the current summary, /exit quits.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		conversationUID, _ := cmd.Flags().GetString("conversation")
		ephemeral, _ := cmd.Flags().GetBool("ephemeral")
		name, _ := cmd.Flags().GetString("name")

		instanceProfile, err := loadProfile()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		aiConfig := ai.NewConfigFromProfile(instanceProfile)
		if err := aiConfig.Validate(); err != nil {
			return errors.Wrap(err, "invalid ai config")
		}
		llm, err := ai.NewLLMService(&aiConfig.LLM)
		if err != nil {
			return err
		}
		embedder, err := ai.NewEmbeddingService(&aiConfig.Embedding)
		if err != nil {
			return err
		}

		defaults := agent.AgentConfig{
			Model:        instanceProfile.ChatModel,
			SummaryModel: instanceProfile.SummaryModel,
		}
		deps := agent.Deps{LLM: llm, Embedder: embedder, Metrics: agent.NewAgentMetrics()}

		var session *agent.Session
		if ephemeral {
			session, err = agent.NewSession("", defaults.WithDefaults("", ""), deps, nil)
			if err != nil {
				return err
			}
		} else {
			storeInstance, err := openStore(ctx, instanceProfile)
			if err != nil {
				return err
			}
			defer storeInstance.Close()

			if conversationUID == "" {
				conversationUID, err = createConversation(ctx, storeInstance, defaults, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "New conversation %s\n", conversationUID)
			}

			registry := agent.NewRegistry(agent.RegistryConfig{Capacity: 1, IdleTTL: instanceProfile.SessionIdleTTL})
			defer registry.Close()
			session, err = registry.GetOrCreate(ctx, conversationUID, agent.StoreBuilder(storeInstance, deps, defaults))
			if err != nil {
				return err
			}
			defer session.Release()
		}
		defer deps.Metrics.LogSummary()

		return repl(ctx, session, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().String("conversation", "", "uid of the conversation to resume")
	chatCmd.Flags().Bool("ephemeral", false, "do not store the conversation")
	chatCmd.Flags().String("name", "", "name of a new conversation")
}

func createConversation(ctx context.Context, st *store.Store, defaults agent.AgentConfig, name string) (string, error) {
	if name == "" {
		name = "Terminal chat " + time.Now().Format("2006-01-02 15:04")
	}
	cfg := defaults.WithDefaults("", "")
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	conv := &store.Conversation{UID: util.GenUID(), Name: name}
	cfg.ApplyTo(conv)
	created, err := st.CreateConversation(ctx, conv)
	if err != nil {
		return "", err
	}
	return created.UID, nil
}

// repl reads one message per line and streams each reply to out.
func repl(ctx context.Context, session *agent.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()

		switch strings.TrimSpace(line) {
		case "/exit", "/quit":
			return nil
		case "/summary":
			if summary := session.Summary(); summary != "" {
				fmt.Fprintln(out, summary)
			} else {
				fmt.Fprintln(out, "(no summary yet)")
			}
			continue
		}

		content, errs := session.HandleTurn(ctx, line)
		for chunk := range content {
			fmt.Fprint(out, chunk)
		}
		fmt.Fprintln(out)
		if err := <-errs; err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}
