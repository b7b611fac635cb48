package events_test

import (
	"testing"

	"github.com/contentledger/blockchain/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestEvents(t *testing.T) {
	t.Log("Given the need to fan out events to receivers.")
	{
		const testID = 0
		evts := events.New[int]()

		ch1 := evts.Acquire("one")
		ch2 := evts.Acquire("two")
		if evts.Acquire("one") != ch1 {
			t.Fatalf("\t%s\tTest %d:\tShould get back the same channel for the same id.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould get back the same channel for the same id.", success, testID)

		evts.Send(7)
		if v := <-ch1; v != 7 {
			t.Fatalf("\t%s\tTest %d:\tShould receive the event on the first channel, got %d.", failed, testID, v)
		}
		if v := <-ch2; v != 7 {
			t.Fatalf("\t%s\tTest %d:\tShould receive the event on the second channel, got %d.", failed, testID, v)
		}
		t.Logf("\t%s\tTest %d:\tShould receive the event on every channel.", success, testID)

		for i := 0; i < 500; i++ {
			evts.Send(i)
		}
		t.Logf("\t%s\tTest %d:\tShould not block when a receiver is slow.", success, testID)

		if err := evts.Release("one"); err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould be able to release a channel: %s", failed, testID, err)
		}
		if err := evts.Release("one"); err == nil {
			t.Fatalf("\t%s\tTest %d:\tShould not be able to release a channel twice.", failed, testID)
		}
		t.Logf("\t%s\tTest %d:\tShould be able to release a channel.", success, testID)

		evts.Shutdown()
		if evts.Count() != 0 {
			t.Fatalf("\t%s\tTest %d:\tShould remove every channel on shutdown.", failed, testID)
		}
		for range ch2 {
		}
		t.Logf("\t%s\tTest %d:\tShould close every channel on shutdown.", success, testID)
	}
}
