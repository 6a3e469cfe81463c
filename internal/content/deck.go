package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrDuplicateItem is returned when two items in a deck share an ID.
var ErrDuplicateItem = errors.New("duplicate item id")

// Deck is an immutable collection of items addressable by ID.
type Deck struct {
	Name  string
	items []Item
	byID  map[string]int
}

type deckFile struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// NewDeck validates items and assigns content-derived IDs to items that have
// none. The slice is copied; callers may reuse it.
func NewDeck(name string, items []Item) (*Deck, error) {
	d := &Deck{
		Name:  name,
		items: make([]Item, 0, len(items)),
		byID:  make(map[string]int, len(items)),
	}
	for _, item := range items {
		item.Topic = strings.TrimSpace(item.Topic)
		item.Subject = ParseSubject(string(item.Subject))
		if strings.TrimSpace(item.Front) == "" {
			return nil, fmt.Errorf("item %q in topic %q has no front text", item.ID, item.Topic)
		}
		if item.ID == "" {
			item.ID = StableID(item.Subject, item.Topic, item.Front)
		}
		if _, exists := d.byID[item.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
		}
		if item.Question != nil {
			if _, err := item.Assessment(); err != nil {
				return nil, err
			}
		}
		d.byID[item.ID] = len(d.items)
		d.items = append(d.items, item)
	}
	return d, nil
}

// LoadDeck reads a JSON deck file.
func LoadDeck(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deck file: %w", err)
	}
	var file deckFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deck file %s: %w", path, err)
	}
	deck, err := NewDeck(file.Name, file.Items)
	if err != nil {
		return nil, fmt.Errorf("invalid deck %s: %w", path, err)
	}
	return deck, nil
}

// SaveDeck writes the deck as JSON, replacing the target atomically.
func SaveDeck(path string, d *Deck) error {
	data, err := json.MarshalIndent(deckFile{Name: d.Name, Items: d.items}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal deck: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// Len returns the number of items.
func (d *Deck) Len() int {
	return len(d.items)
}

// Items returns a copy of all items in deck order.
func (d *Deck) Items() []Item {
	out := make([]Item, len(d.items))
	copy(out, d.items)
	return out
}

// Get looks up an item by ID.
func (d *Deck) Get(id string) (Item, bool) {
	idx, ok := d.byID[id]
	if !ok {
		return Item{}, false
	}
	return d.items[idx], true
}

// Filter returns the items matching subject and topic. Empty values match
// everything; topics compare case-insensitively.
func (d *Deck) Filter(subject Subject, topic string) []Item {
	topic = strings.ToLower(strings.TrimSpace(topic))
	var out []Item
	for _, item := range d.items {
		if subject != "" && item.Subject != subject {
			continue
		}
		if topic != "" && strings.ToLower(item.Topic) != topic {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Assessable returns the items carrying a question.
func Assessable(items []Item) []Item {
	var out []Item
	for _, item := range items {
		if item.Assessable() {
			out = append(out, item)
		}
	}
	return out
}

// TopicKeys returns the distinct topic keys in the deck, sorted.
func (d *Deck) TopicKeys() []string {
	seen := make(map[string]struct{})
	for _, item := range d.items {
		seen[item.TopicKey()] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
