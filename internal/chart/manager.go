// Package chart maintains the scrolling node window drawn by the scope.
//
// The window lives in a normalized MaxX×MaxY space. Measurements enter on the
// right at the swap point, every tick moves them left at DeltaX units per second
// and they are retired once they have left the visible area. A sentinel node far
// to the right is never moved; it anchors the line while the next reading is
// awaited.
package chart

import (
	"context"
	"sync"
	"time"

	"github.com/dooshek/micscope/internal/logger"
	"github.com/dooshek/micscope/internal/measurement"
	"gonum.org/v1/gonum/floats"
)

// Node is a point in chart space. Larger y means a smaller measurement.
type Node struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bounds is the running y range of the settled region.
type Bounds struct {
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

// Frame is a copy of the window handed to renderers.
type Frame struct {
	Nodes    []Node  `json:"nodes"`
	Bounds   Bounds  `json:"bounds"`
	MaxX     float64 `json:"max_x"`
	MaxY     float64 `json:"max_y"`
	MaxValue float64 `json:"max_value"`
}

// NodeManager owns the node window and its scale bounds. Every exported method
// runs under one mutex, so Ingest and Tick may be called from different goroutines.
type NodeManager struct {
	cfg Config

	mu       sync.Mutex
	nodes    []Node
	bounds   Bounds
	lastTick time.Time
	dropped  int
}

// NewNodeManager creates an empty window.
func NewNodeManager(cfg Config) *NodeManager {
	cfg = cfg.withDefaults()
	return &NodeManager{
		cfg:      cfg,
		nodes:    make([]Node, 0, 64),
		bounds:   defaultBounds(cfg),
		lastTick: time.Now(),
	}
}

func defaultBounds(cfg Config) Bounds {
	return Bounds{MinY: cfg.MaxY, MaxY: 0}
}

// Config returns the geometry the manager was built with.
func (nm *NodeManager) Config() Config {
	return nm.cfg
}

// Ingest adds a measurement to the window.
//
// Nodes beyond the swap point (the previous sentinel, or anything still parked
// there) are pulled back to max(MaxX, x of the second to last node), then a new
// reading node is appended at the swap point followed by a new sentinel.
func (nm *NodeManager) Ingest(value float64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	cfg := nm.cfg
	y := (cfg.MaxValue - value) / cfg.MaxValue * cfg.MaxY
	swapX := cfg.SwapX()

	anchorX := cfg.MaxX
	if n := len(nm.nodes); n >= 2 {
		anchorX = max(cfg.MaxX, nm.nodes[n-2].X)
	}
	for i := range nm.nodes {
		if nm.nodes[i].X > swapX {
			nm.nodes[i].X = anchorX
		}
	}

	nm.nodes = append(nm.nodes,
		Node{X: swapX, Y: y},
		Node{X: cfg.SentinelX(), Y: y},
	)
	nm.enforceCap()
}

// enforceCap drops the oldest nodes once the window outgrows its cap.
// The final two nodes are always kept.
func (nm *NodeManager) enforceCap() {
	limit := max(nm.cfg.NodeCap(), 2)
	excess := len(nm.nodes) - limit
	if excess <= 0 {
		return
	}
	n := copy(nm.nodes, nm.nodes[excess:])
	nm.nodes = nm.nodes[:n]
	nm.dropped += excess
	logger.Debugf("Node window over capacity, dropped %d oldest nodes", excess)
}

// Tick advances the animation by the wall time elapsed since the previous tick.
func (nm *NodeManager) Tick(now time.Time) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	delta := now.Sub(nm.lastTick).Seconds()
	nm.lastTick = now
	if delta < 0 {
		delta = 0
	}
	nm.advance(delta)
}

// Advance moves the window by deltaSeconds without consulting the clock.
func (nm *NodeManager) Advance(deltaSeconds float64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.advance(deltaSeconds)
}

func (nm *NodeManager) advance(deltaSeconds float64) {
	cfg := nm.cfg
	retireX := cfg.RetireX()
	swapX := cfg.SwapX()
	shift := cfg.DeltaX * deltaSeconds

	live := nm.nodes[:0]
	for _, node := range nm.nodes {
		if node.X <= retireX {
			continue
		}
		if node.X <= swapX {
			node.X -= shift
		}
		live = append(live, node)
	}
	clear(nm.nodes[len(live):])
	nm.nodes = live

	settled := nm.settledY()
	if len(settled) == 0 {
		nm.bounds = defaultBounds(cfg)
		return
	}
	nm.bounds.MinY = min(nm.bounds.MinY, floats.Min(settled))
	nm.bounds.MaxY = max(nm.bounds.MaxY, floats.Max(settled))
}

// ResetBounds recomputes the bounds from the settled region alone, discarding
// the widening history.
func (nm *NodeManager) ResetBounds() {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	settled := nm.settledY()
	if len(settled) == 0 {
		nm.bounds = defaultBounds(nm.cfg)
		return
	}
	nm.bounds = Bounds{MinY: floats.Min(settled), MaxY: floats.Max(settled)}
}

func (nm *NodeManager) settledY() []float64 {
	var ys []float64
	for _, node := range nm.nodes {
		if node.X >= nm.cfg.SettledX {
			ys = append(ys, node.Y)
		}
	}
	return ys
}

// Bounds returns the current scale bounds.
func (nm *NodeManager) Bounds() Bounds {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return nm.bounds
}

// Len returns the number of live nodes.
func (nm *NodeManager) Len() int {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return len(nm.nodes)
}

// Dropped returns how many nodes were discarded by the capacity limit.
func (nm *NodeManager) Dropped() int {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return nm.dropped
}

// Snapshot copies the window for a renderer.
func (nm *NodeManager) Snapshot() Frame {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nodes := make([]Node, len(nm.nodes))
	copy(nodes, nm.nodes)
	return Frame{
		Nodes:    nodes,
		Bounds:   nm.bounds,
		MaxX:     nm.cfg.MaxX,
		MaxY:     nm.cfg.MaxY,
		MaxValue: nm.cfg.MaxValue,
	}
}

// Run feeds measurements into the window and ticks it every tickInterval until
// ctx is done. It returns once both loops have exited.
func (nm *NodeManager) Run(ctx context.Context, measurements <-chan measurement.Measurement, tickInterval time.Duration) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-measurements:
				if !ok {
					logger.Debug("Measurement stream closed, chart ingest stopped")
					return
				}
				nm.Ingest(m.Value)
			}
		}
	}()

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		nm.mu.Lock()
		nm.lastTick = time.Now()
		nm.mu.Unlock()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				nm.Tick(now)
			}
		}
	}()

	wg.Wait()
}
