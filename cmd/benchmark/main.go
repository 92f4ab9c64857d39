package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/delaneyj/trackerparty/tracker"
	"github.com/delaneyj/trackerparty/value"
	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

const (
	widthKey = "width"
	depthKey = "depth"
	itersKey = "iters"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Measure invalidate+flush propagation through computation chains",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  widthKey,
				Usage: "Maximum number of parallel chains",
				Value: 100,
			},
			&cli.UintFlag{
				Name:  depthKey,
				Usage: "Maximum chain depth",
				Value: 100,
			},
			&cli.UintFlag{
				Name:  itersKey,
				Usage: "Samples per topology",
				Value: 100,
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	maxWidth := int(cmd.Uint(widthKey))
	maxDepth := int(cmd.Uint(depthKey))
	iters := int(cmd.Uint(itersKey))

	log.Print("warming up")
	if err := benchmarkTopology(nil, 10, 10, iters); err != nil {
		return err
	}

	tbl := table.NewWriter()
	tbl.SetTitle("Tracker propagation")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "reruns", "avg", "min", "p75", "p99", "max"})

	for w := 1; w <= maxWidth; w *= 10 {
		for d := 1; d <= maxDepth; d *= 10 {
			if err := benchmarkTopology(tbl, w, d, iters); err != nil {
				return err
			}
		}
	}

	tbl.Render()
	return nil
}

// Builds w parallel chains of d computations each, every computation reading
// one cell and writing the next, then samples the latency of a source write
// followed by a full synchronous flush.
func benchmarkTopology(tbl table.Writer, w, d, iters int) error {
	trk := tracker.New(tracker.WithOnError(func(from any, err error) {
		log.Panic(err)
	}))

	src := value.New(trk, 1)
	reruns := 0
	for i := 0; i < w; i++ {
		prev := src
		for j := 0; j < d; j++ {
			prev = chainLink(trk, prev, &reruns)
		}
	}
	reruns = 0

	tach := tachymeter.New(&tachymeter.Config{Size: iters})
	for i := 0; i < iters; i++ {
		start := time.Now()
		src.Set(src.Get() + 1)
		trk.Flush()
		tach.AddTime(time.Since(start))
	}

	if tbl == nil {
		return nil
	}
	calc := tach.Calc()
	tbl.AppendRows([]table.Row{
		{
			fmt.Sprintf("propagate: %d * %d", w, d),
			humanize.Comma(int64(reruns)),
			calc.Time.Avg,
			calc.Time.Min,
			calc.Time.P75,
			calc.Time.P99,
			calc.Time.Max,
		},
	})
	return nil
}

func chainLink(trk *tracker.Tracker, in *value.Value[int], reruns *int) *value.Value[int] {
	out := value.New(trk, 0)
	_, err := trk.Track(func(c *tracker.Computation) error {
		if !c.FirstRun() {
			*reruns++
		}
		out.Set(in.Get() + 1)
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	return out
}
