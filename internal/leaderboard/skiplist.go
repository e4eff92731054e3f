package leaderboard

import (
	"math/rand"
)

// skipNode is one entry in the skip list: a user's score plus the
// forward-pointer vector sized to its randomly chosen level.
type skipNode struct {
	userID     string
	score      float64
	lastUpdate int64
	forward    []*skipNode
}

// skipList orders entries by (score desc, userID asc): higher score ranks
// earlier, ties broken by user id ascending. An auxiliary index map gives
// O(1) lookup by user id, kept in lock-step with the linked structure.
type skipList struct {
	header       *skipNode
	maxLevel     int
	probability  float64
	currentLevel int
	index        map[string]*skipNode
	rng          *rand.Rand
}

// newSkipList builds an empty skip list. maxLevel is clamped to [1,32]; a
// probability outside (0,1) is replaced by 0.5.
func newSkipList(maxLevel int, probability float64) *skipList {
	if maxLevel < 1 {
		maxLevel = 1
	}
	if maxLevel > 32 {
		maxLevel = 32
	}
	if probability <= 0 || probability >= 1 {
		probability = 0.5
	}

	return &skipList{
		header:       &skipNode{forward: make([]*skipNode, maxLevel)},
		maxLevel:     maxLevel,
		probability:  probability,
		currentLevel: 1,
		index:        make(map[string]*skipNode),
		rng:          rand.New(rand.NewSource(rand.Int63())),
	}
}

// before reports whether node should be strictly ordered ahead of the
// (score, userID) pair: higher score first, ties broken by userID.
func before(node *skipNode, score float64, userID string) bool {
	if node.score != score {
		return node.score > score
	}
	return node.userID < userID
}

// locate descends from the top level, filling update with, for each level,
// the last node strictly ordered ahead of (score, userID).
func (sl *skipList) locate(score float64, userID string) []*skipNode {
	update := make([]*skipNode, sl.maxLevel)
	x := sl.header
	for i := sl.currentLevel - 1; i >= 0; i-- {
		for x.forward[i] != nil && before(x.forward[i], score, userID) {
			x = x.forward[i]
		}
		update[i] = x
	}
	for i := sl.currentLevel; i < sl.maxLevel; i++ {
		update[i] = sl.header
	}
	return update
}

func (sl *skipList) randomLevel() int {
	level := 1
	for level < sl.maxLevel && sl.rng.Float64() < sl.probability {
		level++
	}
	return level
}

// upsert inserts a new entry or repositions an existing one (by erasing it
// first) so the ordering invariant holds for the new score.
func (sl *skipList) upsert(userID string, score float64, ts int64) *skipNode {
	if _, exists := sl.index[userID]; exists {
		sl.erase(userID)
	}

	update := sl.locate(score, userID)

	level := sl.randomLevel()
	if level > sl.currentLevel {
		for i := sl.currentLevel; i < level; i++ {
			update[i] = sl.header
		}
		sl.currentLevel = level
	}

	node := &skipNode{
		userID:     userID,
		score:      score,
		lastUpdate: ts,
		forward:    make([]*skipNode, level),
	}

	for i := 0; i < level; i++ {
		node.forward[i] = update[i].forward[i]
		update[i].forward[i] = node
	}

	sl.index[userID] = node
	return node
}

// erase removes userID's entry, if present, and reports whether it existed.
func (sl *skipList) erase(userID string) bool {
	node, exists := sl.index[userID]
	if !exists {
		return false
	}

	update := sl.locate(node.score, node.userID)

	for i := 0; i < sl.currentLevel; i++ {
		if update[i].forward[i] == node {
			update[i].forward[i] = node.forward[i]
		}
	}

	for sl.currentLevel > 1 && sl.header.forward[sl.currentLevel-1] == nil {
		sl.currentLevel--
	}

	delete(sl.index, userID)
	return true
}

// find returns the entry for userID via the O(1) auxiliary index.
func (sl *skipList) find(userID string) (*skipNode, bool) {
	node, ok := sl.index[userID]
	return node, ok
}

// size returns the number of entries.
func (sl *skipList) size() int {
	return len(sl.index)
}

// topK collects up to k entries walking level 0 from the header.
func (sl *skipList) topK(k int) []*skipNode {
	out := make([]*skipNode, 0, k)
	x := sl.header.forward[0]
	for x != nil && len(out) < k {
		out = append(out, x)
		x = x.forward[0]
	}
	return out
}

// rankOf returns userID's 1-based rank via a level-0 linear walk, or 0 if
// absent. This is the baseline O(n) implementation; a span-augmented
// O(log n) variant would be a valid refinement but isn't required here.
func (sl *skipList) rankOf(userID string) int {
	if _, ok := sl.index[userID]; !ok {
		return 0
	}

	rank := 0
	x := sl.header.forward[0]
	for x != nil {
		rank++
		if x.userID == userID {
			return rank
		}
		x = x.forward[0]
	}
	return 0
}

// tail returns the lowest-ranked entry, or nil if the list is empty.
func (sl *skipList) tail() *skipNode {
	x := sl.header.forward[0]
	if x == nil {
		return nil
	}
	for x.forward[0] != nil {
		x = x.forward[0]
	}
	return x
}

// forEach visits every entry in rank order.
func (sl *skipList) forEach(fn func(*skipNode)) {
	for x := sl.header.forward[0]; x != nil; x = x.forward[0] {
		fn(x)
	}
}
