package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Generator hands out time-ordered unique IDs. IDs from one generator are
// strictly increasing, which is what message append order relies on.
type Generator struct {
	mu   sync.Mutex
	node *snowflake.Node
	last int64
}

// NewGenerator creates a generator for the given node (0-1023).
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &Generator{node: node}, nil
}

// Next returns an ID greater than every ID previously returned.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := g.node.Generate().Int64()
	// snowflake follows the wall clock; keep monotonic across clock steps.
	if next <= g.last {
		next = g.last + 1
	}
	g.last = next
	return next
}

// NextString is Next formatted as a fixed-width decimal string so that
// lexical and numeric order agree.
func (g *Generator) NextString() string {
	return Format(g.Next())
}

// Format renders an ID as a 19-digit zero-padded decimal.
func Format(v int64) string {
	const width = 19
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf)
}
