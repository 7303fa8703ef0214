package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/demi-app/demi/backend/pkg/client"
	"github.com/demi-app/demi/backend/pkg/protocol"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the companion in the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if c.IsSessionTimedOut() {
			return fmt.Errorf("session timed out after inactivity; run `demictl login` again")
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		ch := c.NewChannel()
		ch.Open(ctx)
		defer ch.Close()

		state := client.NewConversationState()

		// Render events in the background; the main loop owns stdin.
		go func() {
			for ev := range ch.Events() {
				state.Apply(ev)
				render(state, ev)
			}
		}()

		fmt.Println("Connected to", serverURL, "- type a message, or /quit to leave.")
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case line == "/quit":
				return nil
			case line == "":
				continue
			}
			if err := ch.Send(line); err != nil {
				if errors.Is(err, client.ErrEmptyMessage) {
					continue
				}
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
		}
		return scanner.Err()
	},
}

// render prints a line per interesting event. Receipts and the caller's own
// echo stay quiet; the terminal already shows what was typed.
func render(state *client.ConversationState, ev client.Event) {
	switch ev.Kind {
	case client.KindStatus:
		fmt.Printf("-- %s --\n", ev.Status)

	case client.KindHistory:
		for _, msg := range ev.Messages {
			printMessage(msg)
		}

	case client.KindMessage:
		if ev.Message != nil && ev.Message.Sender == protocol.SenderAssistant {
			printMessage(*ev.Message)
			if mood, ok := state.DominantEmotion(); ok {
				fmt.Printf("   (feeling: %s)\n", mood)
			}
		}

	case client.KindTyping:
		if ev.IsTyping {
			fmt.Println("...")
		}

	case client.KindError:
		fmt.Fprintf(os.Stderr, "!! %s\n", ev.Detail)
	}
}

func printMessage(msg protocol.Message) {
	who := "you"
	if msg.Sender == protocol.SenderAssistant {
		who = "demi"
	}
	fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04"), who, msg.Content)
}
