package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/demi-app/demi/backend/internal/companion"
	"github.com/demi-app/demi/backend/internal/config"
	"github.com/demi-app/demi/backend/internal/handler"
	"github.com/demi-app/demi/backend/internal/service/ai"
	authservice "github.com/demi-app/demi/backend/internal/service/auth"
	chatservice "github.com/demi-app/demi/backend/internal/service/chat"
	emotionservice "github.com/demi-app/demi/backend/internal/service/emotion"
	"github.com/demi-app/demi/backend/pkg/client"
	"github.com/demi-app/demi/backend/pkg/protocol"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()

	authSvc := authservice.NewService(config.AuthConfig{
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  30 * 24 * time.Hour,
		MaxLoginAttempts: 5,
	})
	if _, err := authSvc.RegisterUser("demo@demi.app", "demi-demo"); err != nil {
		t.Fatalf("register user: %v", err)
	}

	profile := companion.Default()
	chatSvc := chatservice.NewService(chatservice.NewMemoryStore())
	emotions, err := emotionservice.NewService(context.Background(), nil, emotionservice.Config{})
	if err != nil {
		t.Fatalf("emotion service: %v", err)
	}

	srv := httptest.NewServer(handler.NewRouter(profile, authSvc, chatSvc, ai.NewScripted(profile), emotions))
	t.Cleanup(srv.Close)
	return srv
}

// TestFullConversationFlow walks the whole path a device takes: login,
// open the channel, receive history, send a message and watch it move
// through sent, delivered and the companion's reply.
func TestFullConversationFlow(t *testing.T) {
	srv := newBackend(t)

	c := client.New(client.Config{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.Login(ctx, "demo@demi.app", "demi-demo", "e2e device"); err != nil {
		t.Fatalf("login: %v", err)
	}

	ch := c.NewChannel()
	ch.Open(ctx)
	defer ch.Close()

	state := client.NewConversationState()

	// Drain events until connected with history in hand.
	waitState(t, ctx, ch, state, func() bool {
		return state.Status == client.StatusConnected && state.ConversationID != ""
	}, "connect and load history")

	if err := ch.Send("hello demi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// The echo arrives with status sent.
	waitState(t, ctx, ch, state, func() bool {
		return len(state.Messages) >= 1 && state.Messages[0].Content == "hello demi"
	}, "message echo")
	if got := state.Messages[0].Sender; got != protocol.SenderUser {
		t.Errorf("expected user sender on echo, got %q", got)
	}

	// The delivery receipt advances it to delivered; the companion's read
	// and reply follow.
	waitState(t, ctx, ch, state, func() bool {
		return state.Messages[0].Status.Rank() >= protocol.StatusDelivered.Rank()
	}, "delivery receipt")

	waitState(t, ctx, ch, state, func() bool {
		return len(state.Messages) >= 2 && state.Messages[1].Sender == protocol.SenderAssistant
	}, "companion reply")

	if state.CurrentEmotion() == nil {
		t.Error("expected an emotional state after the companion reply")
	}

	// Acknowledge the reply; the server confirms the transition.
	replyID := state.Messages[1].MessageID
	if err := ch.SendReadReceipt(replyID); err != nil {
		t.Fatalf("read receipt: %v", err)
	}
	waitState(t, ctx, ch, state, func() bool {
		return state.Messages[1].Status == protocol.StatusRead
	}, "read receipt confirmation")
}

func TestSendBeforeConnectFails(t *testing.T) {
	srv := newBackend(t)
	c := client.New(client.Config{BaseURL: srv.URL})

	ch := c.NewChannel()
	if err := ch.Send("too early"); !errors.Is(err, client.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected on an unopened channel, got %v", err)
	}
	if err := ch.Send("   "); !errors.Is(err, client.ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage for blank content, got %v", err)
	}
}

func waitState(t *testing.T, ctx context.Context, ch *client.Channel, state *client.ConversationState, done func() bool, what string) {
	t.Helper()
	if done() {
		return
	}
	for {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				t.Fatalf("event stream closed while waiting for %s", what)
			}
			state.Apply(ev)
			if done() {
				return
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}
