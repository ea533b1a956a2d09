package core

import (
	"context"
	"strconv"
	"testing"

	"github.com/vovakirdan/duochat-server/internal/presence"
)

func BenchmarkRouteToOnlineRecipient(b *testing.B) {
	st := newFakeStore()
	st.seed("bench", "sender", "target")
	reg := presence.NewRegistry[*Client]()
	router := NewRouter(reg, st, DefaultRetryPolicy(), nil)

	target := NewClient("target")
	reg.Register("target", target)

	req := SendRequest{SenderID: "sender", RecipientID: "target", ConversationID: "bench", Text: "payload"}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := router.Route(ctx, req); err != nil {
			b.Fatal(err)
		}
		<-target.Events
	}
}

func benchmarkPresenceBroadcast(b *testing.B, online int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(newFakeStore(), DefaultRetryPolicy(), nil)
	go hub.Run(ctx)

	for i := range online {
		c := NewClient("c" + strconv.Itoa(i))
		if err := hub.Identify(ctx, c, "u"+strconv.Itoa(i)); err != nil {
			b.Fatal(err)
		}
		// Drain events to avoid channel backpressure.
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}

	churn := NewClient("churn")
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		// Alternating users keeps the registry size stable.
		if err := hub.Identify(ctx, churn, "churn-"+strconv.Itoa(i%2)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPresenceBroadcast_10(b *testing.B)  { benchmarkPresenceBroadcast(b, 10) }
func BenchmarkPresenceBroadcast_100(b *testing.B) { benchmarkPresenceBroadcast(b, 100) }
