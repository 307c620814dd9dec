package orby_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/orbyio/orby"
	"github.com/orbyio/orby/cell"
)

func Example() {
	ctx := context.Background()

	eng, err := orby.New("sessions").
		Capacity(1024).
		Lanes(2).
		Ring().
		Build(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close(ctx)

	// Lane 0 holds a key, lane 1 a value; both cells of a row share one index.
	rows := []orby.Row{
		{cell.FromUint64(7), cell.FromUint64(700)},
		{cell.FromUint64(8), cell.FromUint64(800)},
	}
	if _, err := eng.InsertBatch(ctx, rows); err != nil {
		log.Fatal(err)
	}

	found, err := eng.FindBy(ctx, 0, []cell.Cell{cell.FromUint64(8)}, 0)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(found[0][1].String())
	// Output: 0x00000000000000000000000000000320
}

func Example_durability() {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "orby")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	eng, err := orby.New("events").
		Capacity(1024).
		Lanes(1).
		Bounded().
		WithVault(dir).
		Build(ctx)
	if err != nil {
		log.Fatal(err)
	}

	if _, err := eng.InsertBatch(ctx, []orby.Row{{cell.FromUint64(1)}}); err != nil {
		log.Fatal(err)
	}
	if err := eng.Sleep(ctx); err != nil { // durable after this
		log.Fatal(err)
	}
	if err := eng.Close(ctx); err != nil {
		log.Fatal(err)
	}

	eng, err = orby.New("events").
		Capacity(1024).
		Lanes(1).
		Bounded().
		WithVault(dir).
		Build(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close(ctx)

	fmt.Println(eng.LiveCount())
	// Output: 1
}
