package framework

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"risubot/audio"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (f *fakeSender) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, channelID+":"+content)
	if f.fail {
		return nil, errors.New("discord is down")
	}
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestNotifierKeepsOrder(t *testing.T) {
	s := &fakeSender{}
	n := NewNotifier(s, rate.Inf, 8, zerolog.Nop())

	origin := audio.Origin{ChannelID: "c1"}
	for _, m := range []string{"one", "two", "three"} {
		if err := n.Notify(origin, m); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(s.messages()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("sent %v", s.messages())
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := s.messages()
	want := []string{"c1:one", "c1:two", "c1:three"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent %v, want %v", got, want)
		}
	}
}

func TestNotifierDropsWhenFull(t *testing.T) {
	n := NewNotifier(&fakeSender{}, rate.Inf, 1, zerolog.Nop())
	origin := audio.Origin{ChannelID: "c1"}

	if err := n.Notify(origin, "first"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(origin, "second"); !errors.Is(err, ErrNoticeDropped) {
		t.Fatalf("Notify on full buffer = %v, want ErrNoticeDropped", err)
	}
	if err := n.Notify(audio.Origin{}, "nowhere"); err == nil {
		t.Fatal("Notify without channel succeeded")
	}
}

func TestNotifierSurvivesSendErrors(t *testing.T) {
	s := &fakeSender{fail: true}
	n := NewNotifier(s, rate.Inf, 4, zerolog.Nop())
	origin := audio.Origin{ChannelID: "c1"}
	_ = n.Notify(origin, "a")
	_ = n.Notify(origin, "b")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(s.messages()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("sent %v", s.messages())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
