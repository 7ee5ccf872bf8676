package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/delaneyj/bindparty/binding"
	"github.com/delaneyj/bindparty/listeners"
	"github.com/delaneyj/bindparty/observe"
	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

type result struct {
	name string
	calc *tachymeter.Metrics
}

// link is one hop of a benchmark path.
type link struct {
	observe.Observable
	next  *link
	value int
}

func (l *link) Next() *link { return l.next }
func (l *link) SetNext(n *link) {
	l.next = n
	l.RaiseMemberChanged(l, "Next")
}

func (l *link) Value() int { return l.value }
func (l *link) SetValue(v int) {
	l.value = v
	l.RaiseMemberChanged(l, "Value")
}

func chain(depth int) (*link, []*link) {
	links := make([]*link, depth+1)
	for i := range links {
		links[i] = &link{}
	}
	for i := 0; i < depth; i++ {
		links[i].next = links[i+1]
	}
	return links[0], links
}

var depths = []int{1, 2, 4, 8, 16, 32}

func runPath(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()
	iters := int(cmd.Uint(itersKey))
	obs := observe.NewObservers()

	var results []result
	for _, depth := range depths {
		root, links := chain(depth)
		path := strings.TrimPrefix(strings.Repeat(".Next", depth)+".Value", ".")

		o, err := obs.Observe(root, path)
		if err != nil {
			return err
		}
		seen := 0
		l := &observe.PathListenerFuncs{
			LastMemberChanged: func(observe.MemberPathObserver) { seen++ },
		}
		tok := o.AddListener(l)

		leafTach := tachymeter.New(&tachymeter.Config{Size: iters})
		last := links[depth]
		for i := 0; i < iters; i++ {
			t := time.Now()
			last.SetValue(i)
			leafTach.AddTime(time.Since(t))
		}

		// Swap the middle hop so the tail of the path is resolved again.
		midTach := tachymeter.New(&tachymeter.Config{Size: iters})
		mid := links[depth/2]
		for i := 0; i < iters; i++ {
			fresh, _ := chain(depth - depth/2 - 1)
			t := time.Now()
			mid.SetNext(fresh)
			midTach.AddTime(time.Since(t))
		}

		tok.Remove()
		o.Dispose()
		runtime.KeepAlive(l)
		if seen < iters {
			return fmt.Errorf("depth %d: %d notifications for %d changes", depth, seen, iters)
		}
		results = append(results,
			result{name: fmt.Sprintf("leaf change: depth %d", depth), calc: leafTach.Calc()},
			result{name: fmt.Sprintf("mid swap: depth %d", depth), calc: midTach.Calc()},
		)
	}
	return finish(cmd, "Member paths", start, results)
}

type counter struct {
	binding.ListenerFuncs
	updates int
}

func runBinding(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()
	cfg, err := loadScenario(cmd)
	if err != nil {
		return err
	}
	iters := int(cmd.Uint(itersKey))
	most := int(cmd.Uint(countKey))

	c := &counter{}
	c.TargetUpdated = func(*binding.Binding, any) { c.updates++ }
	m := binding.NewManager(
		binding.WithConfig(cfg),
		binding.WithLogger(cfg.NewLogger(os.Stderr)),
		binding.WithObservers(observe.NewObservers()),
		binding.WithListener(c),
	)
	bld, err := m.Compile(binding.Request{
		Target: binding.Path("Value"),
		Source: binding.Path("Value"),
	})
	if err != nil {
		return err
	}

	var results []result
	for n := 1; n <= most; n *= 10 {
		src := observe.NewProperty(0)
		targets := make([]*observe.Property[int], n)
		for i := range targets {
			targets[i] = observe.NewProperty(0)
			if _, err := bld.Build(ctx, targets[i], src); err != nil {
				return err
			}
		}

		tach := tachymeter.New(&tachymeter.Config{Size: iters})
		for i := 0; i < iters; i++ {
			t := time.Now()
			src.SetValue(i + 1)
			tach.AddTime(time.Since(t))
		}
		if cfg.Delay == 0 && targets[n-1].Value() != iters {
			return fmt.Errorf("%d targets: last target at %d, want %d", n, targets[n-1].Value(), iters)
		}

		for _, t := range targets {
			m.DetachAll(t)
		}
		results = append(results, result{
			name: fmt.Sprintf("fan out: %s targets (%s)", humanize.Comma(int64(n)), bld.Mode()),
			calc: tach.Calc(),
		})
	}
	log.Printf("%s target updates delivered", humanize.Comma(int64(c.updates)))
	return finish(cmd, "Bindings", start, results)
}

type sink struct{ hits int }

func (s *sink) Handle(any, any) bool { s.hits++; return true }
func (s *sink) IsWeak() bool         { return true }

func runRegistry(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()
	n := int(cmd.Uint(countKey))

	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.SetHeader([]string{"round", "added", "live", "holes", "capacity", "compacted", "raise", "heap"})

	var results []result
	for round := 1; round <= 3; round++ {
		r := listeners.New(nil, nil)
		kept := make([]*sink, 0, n/2)
		for i := 0; i < n; i++ {
			s := &sink{}
			r.Add(s, nil)
			if i%2 == 0 {
				kept = append(kept, s)
			}
		}
		runtime.GC()

		before := r.Stats()
		compacted := r.Compact()
		after := r.Stats()

		tach := tachymeter.New(&tachymeter.Config{Size: 1})
		t := time.Now()
		r.Raise(nil, nil, nil)
		raised := time.Since(t)
		tach.AddTime(raised)

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		tbl.Append([]string{
			fmt.Sprint(round),
			humanize.Comma(int64(n)),
			humanize.Comma(int64(after.Live)),
			humanize.Comma(int64(before.Holes)),
			humanize.Comma(int64(after.Capacity)),
			humanize.Comma(int64(compacted)),
			raised.String(),
			humanize.Bytes(mem.HeapAlloc),
		})
		results = append(results, result{
			name: fmt.Sprintf("raise: %s listeners, round %d", humanize.Comma(int64(n)), round),
			calc: tach.Calc(),
		})
		runtime.KeepAlive(kept)
	}
	tbl.Render()
	return finish(cmd, "Listener registry", start, results)
}

func renderResults(title string, results []result) {
	tbl := table.NewWriter()
	tbl.SetTitle(title)
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})
	for _, r := range results {
		tbl.AppendRow(table.Row{
			r.name,
			r.calc.Time.Avg,
			r.calc.Time.Min,
			r.calc.Time.P75,
			r.calc.Time.P99,
			r.calc.Time.Max,
		})
	}
	tbl.Render()
}
