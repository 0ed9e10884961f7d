package transcript

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signlink/signlink/internal/domain"
)

func TestAppendPreservesArrivalOrder(t *testing.T) {
	tr := New()
	tr.Append(domain.Entry{Text: "HELLO", Sender: domain.SenderLocal})
	tr.Append(domain.Entry{Text: "THANKS", Sender: domain.SenderRemote})
	tr.Append(domain.Entry{Text: "BYE", Sender: domain.SenderLocal})

	got := tr.Snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, "HELLO", got[0].Text)
	assert.Equal(t, domain.SenderRemote, got[1].Sender)
	assert.Equal(t, "BYE", got[2].Text)
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := New()
	tr.Append(domain.Entry{Text: "HELLO", Sender: domain.SenderLocal})

	snap := tr.Snapshot()
	snap[0].Text = "mutated"
	assert.Equal(t, "HELLO", tr.Snapshot()[0].Text)
}

func TestOnAppendHook(t *testing.T) {
	tr := New()
	var seen []string
	tr.OnAppend(func(e domain.Entry) { seen = append(seen, e.Text) })

	tr.Append(domain.Entry{Text: "A", At: time.Now()})
	tr.Append(domain.Entry{Text: "B", At: time.Now()})
	assert.Equal(t, []string{"A", "B"}, seen)
}

func TestClear(t *testing.T) {
	tr := New()
	tr.Append(domain.Entry{Text: "A"})
	tr.Clear()
	assert.Equal(t, 0, tr.Len())
}

func TestConcurrentAppendPerSenderFIFO(t *testing.T) {
	tr := New()

	var wg sync.WaitGroup
	for _, sender := range []domain.Sender{domain.SenderLocal, domain.SenderRemote} {
		wg.Add(1)
		go func(s domain.Sender) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tr.Append(domain.Entry{Text: string(rune('a' + i%26)), Sender: s, At: time.Now()})
			}
		}(sender)
	}
	wg.Wait()

	got := tr.Snapshot()
	require.Len(t, got, 200)

	// Entries of one sender keep their issue order even when interleaved.
	var local, remote []string
	for _, e := range got {
		if e.Sender == domain.SenderLocal {
			local = append(local, e.Text)
		} else {
			remote = append(remote, e.Text)
		}
	}
	for i := range local {
		assert.Equal(t, string(rune('a'+i%26)), local[i])
	}
	for i := range remote {
		assert.Equal(t, string(rune('a'+i%26)), remote[i])
	}
}
