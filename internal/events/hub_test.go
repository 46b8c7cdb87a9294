package events

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHubFanOutByTopic(t *testing.T) {
	hub := NewHub(nil, 10)

	all, unsubAll := hub.Subscribe("")
	defer unsubAll()
	votes, unsubVotes := hub.Subscribe(TopicVote)
	defer unsubVotes()

	hub.Publish(TopicVote, map[string]string{"projectId": "p1"})
	hub.Publish(TopicAlertCreated, map[string]string{"projectId": "p1"})

	ev := <-votes
	require.Equal(t, TopicVote, ev.Topic)
	require.JSONEq(t, `{"projectId":"p1"}`, string(ev.Data))

	require.Equal(t, TopicVote, (<-all).Topic)
	require.Equal(t, TopicAlertCreated, (<-all).Topic)

	select {
	case ev := <-votes:
		t.Fatalf("чужой топик доставлен: %s", ev.Topic)
	default:
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(nil, 10)
	_, unsub := hub.Subscribe("")
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuf*3; i++ {
			hub.Publish(TopicVote, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish заблокировался на медленном подписчике")
	}
}

func TestHubReplayBounded(t *testing.T) {
	hub := NewHub(nil, 3)
	for i := 0; i < 5; i++ {
		hub.Publish(TopicVote, i)
	}

	evs, err := hub.Replay(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	require.Equal(t, int64(3), evs[0].ID)

	evs, err = hub.Replay(context.Background(), TopicVote, 4)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, int64(5), evs[0].ID)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	hub := NewHub(nil, 3)
	ch, unsub := hub.Subscribe("")
	unsub()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
	hub.Publish(TopicVote, 1)
}

func TestHubConcurrentPublish(t *testing.T) {
	hub := NewHub(nil, 1000)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.Publish(TopicVote, i)
		}(i)
	}
	wg.Wait()

	evs, err := hub.Replay(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, evs, 20)
	seen := map[int64]bool{}
	for _, ev := range evs {
		require.False(t, seen[ev.ID], "повтор ID %d", ev.ID)
		seen[ev.ID] = true
	}
}

func TestSSEReplaysHistory(t *testing.T) {
	hub := NewHub(nil, 10)
	hub.Publish(TopicVote, map[string]int{"n": 1})
	hub.Publish(TopicStatusChanged, map[string]int{"n": 2})
	hub.Publish(TopicVote, map[string]int{"n": 3})

	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?topic="+TopicVote, nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 3 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line != "" {
			lines = append(lines, line)
		}
	}
	require.Equal(t, []string{"id: 3", "event: " + TopicVote, `data: {"n":3}`}, lines)
}
