// Package scheduling picks which items a session should present: the ones due
// for review and the ones belonging to topics the learner keeps getting wrong.
package scheduling

import (
	"iter"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/danieldreier/mcp-studycoach/internal/content"
	"github.com/danieldreier/mcp-studycoach/internal/progress"
)

const (
	// WeakMinAttempts is the number of attempts before a topic can be judged.
	WeakMinAttempts = 5
	// WeakAccuracy is the accuracy below which a judged topic is weak.
	WeakAccuracy = 0.60
)

// TopicStat aggregates quiz and exam outcomes for one topic key.
type TopicStat struct {
	Correct  int `json:"correct"`
	Attempts int `json:"attempts"`
}

// Accuracy returns the fraction of correct attempts, 0 when never attempted.
func (s TopicStat) Accuracy() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Attempts)
}

// IsWeak reports whether the topic has enough attempts and too few correct.
func (s TopicStat) IsWeak() bool {
	return s.Attempts >= WeakMinAttempts && s.Accuracy() < WeakAccuracy
}

// WeakTopic is a weak topic key together with its stats.
type WeakTopic struct {
	TopicKey string    `json:"topic_key"`
	Stat     TopicStat `json:"stat"`
	Accuracy float64   `json:"accuracy"`
}

// Engine combines per-item progress with per-topic statistics.
// It is not safe for concurrent use.
type Engine struct {
	store  *progress.Store
	topics map[string]TopicStat
}

// NewEngine creates an engine over store with no topic statistics.
func NewEngine(store *progress.Store) *Engine {
	return &Engine{
		store:  store,
		topics: make(map[string]TopicStat),
	}
}

// Store returns the progress store the engine reads due dates from.
func (e *Engine) Store() *progress.Store {
	return e.store
}

// SelectDue yields the items that are due at now. Every range over the
// returned sequence re-evaluates the source slice.
func (e *Engine) SelectDue(items []content.Item, now time.Time) iter.Seq[content.Item] {
	return func(yield func(content.Item) bool) {
		for _, item := range items {
			if !e.store.IsDue(item.ID, now) {
				continue
			}
			if !yield(item) {
				return
			}
		}
	}
}

// SelectWeak yields the items whose topic is weak. When none of the items
// belongs to a weak topic it yields all of them instead.
func (e *Engine) SelectWeak(items []content.Item) iter.Seq[content.Item] {
	return func(yield func(content.Item) bool) {
		anyWeak := false
		for _, item := range items {
			if e.topics[item.TopicKey()].IsWeak() {
				anyWeak = true
				break
			}
		}
		for _, item := range items {
			if anyWeak && !e.topics[item.TopicKey()].IsWeak() {
				continue
			}
			if !yield(item) {
				return
			}
		}
	}
}

// RecordTopicOutcome counts one attempt for topicKey.
func (e *Engine) RecordTopicOutcome(topicKey string, correct bool) TopicStat {
	stat := e.topics[topicKey]
	stat.Attempts++
	if correct {
		stat.Correct++
	}
	e.topics[topicKey] = stat
	return stat
}

// TopicStat returns the stats for topicKey, zero when unknown.
func (e *Engine) TopicStat(topicKey string) TopicStat {
	return e.topics[topicKey]
}

// WeakTopics lists the weak topics, weakest first.
func (e *Engine) WeakTopics() []WeakTopic {
	var weak []WeakTopic
	for key, stat := range e.topics {
		if stat.IsWeak() {
			weak = append(weak, WeakTopic{TopicKey: key, Stat: stat, Accuracy: stat.Accuracy()})
		}
	}
	sort.Slice(weak, func(i, j int) bool {
		if weak[i].Accuracy != weak[j].Accuracy {
			return weak[i].Accuracy < weak[j].Accuracy
		}
		return weak[i].TopicKey < weak[j].TopicKey
	})
	return weak
}

// TopicSnapshot returns a copy of all topic stats.
func (e *Engine) TopicSnapshot() map[string]TopicStat {
	out := make(map[string]TopicStat, len(e.topics))
	for k, v := range e.topics {
		out[k] = v
	}
	return out
}

// RestoreTopics replaces the topic stats. Entries with negative counts or
// more correct answers than attempts are dropped.
func (e *Engine) RestoreTopics(stats map[string]TopicStat) {
	e.topics = make(map[string]TopicStat, len(stats))
	for k, v := range stats {
		if v.Attempts < 0 || v.Correct < 0 || v.Correct > v.Attempts {
			continue
		}
		e.topics[k] = v
	}
}

// Take collects seq, shuffles it with rng and keeps at most size items.
// A size of zero or less keeps everything. A nil rng leaves the order as is.
func Take(seq iter.Seq[content.Item], size int, rng *rand.Rand) []content.Item {
	var out []content.Item
	for item := range seq {
		out = append(out, item)
	}
	if rng != nil {
		rng.Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
	}
	if size > 0 && len(out) > size {
		out = out[:size]
	}
	return out
}
