package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// Epoch 2024-01-01 00:00:00 UTC，毫秒
	Epoch int64 = 1704067200000

	NodeBits     = 10
	SequenceBits = 12

	MaxNode      = -1 ^ (-1 << NodeBits)
	sequenceMask = -1 ^ (-1 << SequenceBits)
	nodeShift    = SequenceBits
	timeShift    = SequenceBits + NodeBits
)

var ErrInvalidNode = errors.New("node id out of range")

// Generator 生成按时间递增的 63 位事件 ID：41 位毫秒时间戳 | 10 位节点 | 12 位序号。
// 多个服务实例向同一个 topic 发布事件时，用节点号区分来源，消费方据此去重
type Generator struct {
	mu   sync.Mutex
	node int64
	now  func() time.Time

	last int64
	seq  int64
}

func NewGenerator(node int64) (*Generator, error) {
	return newGenerator(node, time.Now)
}

func newGenerator(node int64, now func() time.Time) (*Generator, error) {
	if node < 0 || node > MaxNode {
		return nil, ErrInvalidNode
	}
	return &Generator{node: node, now: now}, nil
}

// Next 返回下一个 ID。时钟回拨时沿用上一次的时间戳继续递增序号，保证单调
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now().UnixMilli() - Epoch
	if ts < g.last {
		ts = g.last
	}

	if ts == g.last {
		g.seq = (g.seq + 1) & sequenceMask
		if g.seq == 0 {
			// 同一毫秒序号用尽，借用下一毫秒
			ts = g.last + 1
		}
	} else {
		g.seq = 0
	}
	g.last = ts

	return ts<<timeShift | g.node<<nodeShift | g.seq
}

// Time 从 ID 中取出生成时间
func Time(id int64) time.Time {
	return time.UnixMilli(id>>timeShift + Epoch).UTC()
}

// Node 从 ID 中取出节点号
func Node(id int64) int64 {
	return id >> nodeShift & MaxNode
}
