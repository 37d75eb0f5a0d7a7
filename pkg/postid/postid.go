package postid

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

// Post ID Format:
// Timestamp (41-bits)
// Node ID (10-bits)
// Increment (12-bits)

const Epoch int64 = 1735689600000 // 2025-01-01 12am GMT

const (
	TimestampBits = 41
	TimestampMask = (1 << TimestampBits) - 1

	NodeIdBits = 10
	NodeIdMask = (1 << NodeIdBits) - 1

	IncrementBits = 12
	IncrementMask = (1 << IncrementBits) - 1
)

var ErrInvalidNodeId = errors.New("node id out of range")

type Generator struct {
	nodeId int64
	now    func() time.Time

	lock      sync.Mutex
	lastTs    int64
	increment int64
}

func NewGenerator(nodeId int, now func() time.Time) (*Generator, error) {
	if nodeId < 0 || nodeId > NodeIdMask {
		return nil, ErrInvalidNodeId
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{nodeId: int64(nodeId), now: now}, nil
}

// Next returns an ID strictly greater than every ID this generator returned
// before, even if the clock moves backwards.
func (g *Generator) Next() int64 {
	ts := g.now().UnixMilli()

	g.lock.Lock()
	defer g.lock.Unlock()
	if ts < g.lastTs {
		ts = g.lastTs
	}
	if ts == g.lastTs {
		if g.increment >= IncrementMask {
			// Increment space exhausted, borrow the next millisecond
			ts++
			g.increment = 0
		} else {
			g.increment++
		}
	} else {
		g.increment = 0
	}
	g.lastTs = ts

	id := (ts - Epoch) << (NodeIdBits + IncrementBits)
	id |= g.nodeId << IncrementBits
	id |= g.increment

	return id
}

func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}

func Extract(id int64) struct {
	Timestamp time.Time
	NodeId    int64
	Increment int64
} {
	return struct {
		Timestamp time.Time
		NodeId    int64
		Increment int64
	}{
		Timestamp: time.UnixMilli(((id >> (NodeIdBits + IncrementBits)) & TimestampMask) + Epoch),
		NodeId:    (id >> IncrementBits) & NodeIdMask,
		Increment: id & IncrementMask,
	}
}
