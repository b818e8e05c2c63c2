package progress

import (
	"context"
	"fmt"
	"time"
)

type itemCountingSink struct {
	items int
}

func (s *itemCountingSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		if evt.Stage == StageItemDone {
			s.items++
		}
	}
	return nil
}

func (s *itemCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting item events and flushing via Close.
func ExampleHub_Emit() {
	sink := &itemCountingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)

	for i := 1; i <= 2; i++ {
		hub.Emit(Event{
			JobID:  "job-1",
			TS:     time.Unix(0, 0),
			Stage:  StageItemDone,
			ItemID: fmt.Sprintf("item-%d", i),
			Done:   i,
			Total:  2,
		})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("items scraped: %d\n", sink.items)
	// Output:
	// items scraped: 2
}
