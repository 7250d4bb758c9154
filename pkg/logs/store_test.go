package logs

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStoreHistoryAndSubscribe(t *testing.T) {
	s := NewStore()
	s.Push(Entry{Type: EntryText, Content: "hello"})

	ch, cancel := s.Subscribe(8)
	defer cancel()

	s.Push(Entry{Type: EntryText, Content: "world"})

	hist := s.History()
	if len(hist) != 2 {
		t.Fatalf("history len = %d, want 2", len(hist))
	}
	if hist[0].Content != "hello" || hist[1].Content != "world" {
		t.Fatalf("history = %+v", hist)
	}

	select {
	case e := <-ch:
		if e.Content != "world" {
			t.Fatalf("subscriber got %q, want world", e.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received entry")
	}
}

func TestStoreCloseSealsAndClosesSubscribers(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe(1)
	defer cancel()

	s.Close()
	s.Push(Entry{Type: EntryText, Content: "late"})
	s.PushRawLine(SourceStdout, "late raw")

	if len(s.History()) != 0 || len(s.RawHistory()) != 0 {
		t.Fatal("pushes after close must be dropped")
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel, got entry")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed")
	}
}

func TestStoreSlowSubscriberDropsNotBlocks(t *testing.T) {
	s := NewStore()
	_, cancel := s.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Push(Entry{Type: EntryText, Content: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked on slow subscriber")
	}
	if len(s.History()) != 10 {
		t.Fatalf("history len = %d, want 10", len(s.History()))
	}
}

func TestStoreCancelIdempotent(t *testing.T) {
	s := NewStore()
	_, cancel := s.Subscribe(1)
	cancel()
	cancel()
	s.Push(Entry{Type: EntryText})
}

func TestScanJSONLines(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"text"}`,
		"",
		"not json",
		`{"type":"done"}`,
	}, "\n")

	var got []string
	var rawValid []bool
	err := ScanJSONLines(strings.NewReader(input), func(line string, raw json.RawMessage) bool {
		got = append(got, line)
		rawValid = append(rawValid, raw != nil)
		return true
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("lines = %v, want 3 (blank skipped)", got)
	}
	if !rawValid[0] || rawValid[1] || !rawValid[2] {
		t.Fatalf("raw validity = %v", rawValid)
	}
}

func TestScanJSONLinesEarlyStop(t *testing.T) {
	input := "a\nb\nc\n"
	var n int
	err := ScanJSONLines(strings.NewReader(input), func(string, json.RawMessage) bool {
		n++
		return n < 2
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n != 2 {
		t.Fatalf("visited %d lines, want 2", n)
	}
}
