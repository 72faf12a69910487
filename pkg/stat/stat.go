// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stat provides prometheus/streamz style metrics (Val type) for
// instrumenting code for monitoring, plus a global registry for them.
//
// Simple use:
//
//	statFoo := stat.New("foo", "number of foo events")
//	statFoo.Add(1)
package stat

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	vals     = make(map[string]*Val)
	hists    = make(map[string]*Hist)
	registry = prometheus.NewRegistry()
)

// Registry returns the prometheus registry all metrics are exported to.
// Hosts mount it on their metrics endpoint.
func Registry() *prometheus.Registry {
	return registry
}

// Val is a monotonic counter. New with an already registered name returns
// the existing counter, so packages can declare metrics independently.
func New(name, desc string) *Val {
	mu.Lock()
	defer mu.Unlock()
	if v := vals[name]; v != nil {
		return v
	}
	v := &Val{Name: name, Desc: desc}
	v.prom = prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name),
		Help: desc,
	})
	registry.MustRegister(v.prom)
	vals[name] = v
	return v
}

type Val struct {
	Name string
	Desc string
	v    atomic.Uint64
	prom prometheus.Counter
}

func (v *Val) Add(n int) {
	if n < 0 {
		panic("stat: negative counter increment")
	}
	v.v.Add(uint64(n))
	v.prom.Add(float64(n))
}

func (v *Val) Val() uint64 {
	return v.v.Load()
}

// Hist tracks a streaming approximation of a value distribution.
func NewHist(name, desc string) *Hist {
	mu.Lock()
	defer mu.Unlock()
	if h := hists[name]; h != nil {
		return h
	}
	h := &Hist{
		Name: name,
		Desc: desc,
		hist: gohistogram.NewHistogram(32),
	}
	hists[name] = h
	return h
}

type Hist struct {
	Name string
	Desc string
	mu   sync.Mutex
	hist *gohistogram.NumericHistogram
}

func (h *Hist) Add(x float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hist.Add(x)
}

func (h *Hist) Quantile(q float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.Quantile(q)
}

// UI is a snapshot of one metric for display.
type UI struct {
	Name  string
	Desc  string
	Value string
}

// Collect returns a snapshot of all registered metrics, sorted by name.
func Collect() []UI {
	mu.Lock()
	defer mu.Unlock()
	var res []UI
	for _, v := range vals {
		res = append(res, UI{v.Name, v.Desc, fmt.Sprint(v.Val())})
	}
	for _, h := range hists {
		res = append(res, UI{h.Name, h.Desc, fmt.Sprintf("p50=%.1f", h.Quantile(0.5))})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

func promName(name string) string {
	res := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9':
			res = append(res, c)
		default:
			res = append(res, '_')
		}
	}
	return "ilmut_" + string(res)
}
