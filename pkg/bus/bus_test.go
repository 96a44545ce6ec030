package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPublishConsume(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ev := Event{SenderID: 7, Peer: Peer{Kind: PeerGroup, ID: 42}, Text: "hello"}
	if err := mb.PublishInbound(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, ok := mb.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("consume returned !ok")
	}
	if got.Text != "hello" || got.Peer.ID != 42 {
		t.Errorf("got %+v", got)
	}
}

func TestPublish_Closed(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()
	mb.Close()

	if err := mb.PublishInbound(context.Background(), Event{}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("got %v, want ErrBusClosed", err)
	}
	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Error("consume on closed bus returned ok")
	}
}

func TestTryConsume_DrainsAfterClose(t *testing.T) {
	mb := NewMessageBusSize(4)
	for i := int64(1); i <= 3; i++ {
		if err := mb.PublishInbound(context.Background(), Event{SenderID: i}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	mb.Close()

	var got []int64
	for {
		ev, ok := mb.TryConsumeInbound()
		if !ok {
			break
		}
		got = append(got, ev.SenderID)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("drained %v, want [1 2 3]", got)
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	mb := NewMessageBusSize(0)
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := mb.PublishInbound(ctx, Event{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", err)
	}
}

func TestMediaKind_String(t *testing.T) {
	cases := map[MediaKind]string{
		MediaPhoto:     "photo",
		MediaVideoNote: "video_note",
		MediaNone:      "none",
		MediaKind(99):  "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(k), got, want)
		}
	}
}
