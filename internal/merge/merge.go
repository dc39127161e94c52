// Package merge produces the canonical ordered, deduplicated message list of a room.
package merge

import (
	"slices"
	"strings"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

// Merge concatenates existing and incoming and returns the canonical list for roomID.
//
// Messages are deduplicated by id, first occurrence wins, so an entry already
// in existing is never overwritten by a later copy. The one explicit
// replacement is reconciliation: a confirmed incoming message whose
// CorrelationID matches a pending entry takes that entry's place.
// Entries without an id are deduplicated by correlation token, and kept as-is
// when they have neither.
//
// The result is stably sorted by CreatedAt, so equal timestamps keep arrival
// order. Messages with a zero CreatedAt, which is what the wire layer produces
// for unparseable timestamps, are stamped with now before sorting: they are
// ordered as if they had arrived at merge time.
//
// Incoming messages that name a different ChatID are dropped.
func Merge(roomID string, incoming, existing []core.Message, now time.Time) []core.Message {
	out := make([]core.Message, 0, len(existing)+len(incoming))
	seen := make(map[string]int, len(existing)+len(incoming))
	pending := make(map[string]int)
	dropped := make(map[int]struct{})

	add := func(m core.Message) {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if key := dedupKey(m); key != "" {
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = len(out)
		}
		if m.Pending && m.CorrelationID != "" {
			pending[m.CorrelationID] = len(out)
		}
		out = append(out, m)
	}

	for _, m := range existing {
		add(m)
	}

	for _, m := range incoming {
		if roomID != "" && m.ChatID != "" && m.ChatID != roomID {
			continue
		}
		if !m.Pending && m.CorrelationID != "" {
			if idx, ok := pending[m.CorrelationID]; ok {
				delete(pending, m.CorrelationID)
				if m.ID != "" {
					if _, dup := seen[m.ID]; dup {
						// Confirmed copy already present: the provisional entry just goes away.
						dropped[idx] = struct{}{}
						continue
					}
				}
				delete(seen, dedupKey(out[idx]))
				if m.CreatedAt.IsZero() {
					m.CreatedAt = now
				}
				out[idx] = m
				if key := dedupKey(m); key != "" {
					seen[key] = idx
				}
				continue
			}
		}
		add(m)
	}

	if len(dropped) > 0 {
		kept := out[:0]
		for i, m := range out {
			if _, drop := dropped[i]; !drop {
				kept = append(kept, m)
			}
		}
		out = kept
	}

	slices.SortStableFunc(out, func(a, b core.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func dedupKey(m core.Message) string {
	if m.ID != "" {
		return m.ID
	}
	if m.CorrelationID != "" {
		return "corr:" + m.CorrelationID
	}
	return ""
}

// ApplyEdit replaces the message with id in place, keeping its position.
// It reports false and returns messages unchanged when no entry matches.
func ApplyEdit(messages []core.Message, id string, patch core.Patch) ([]core.Message, bool) {
	idx := slices.IndexFunc(messages, func(m core.Message) bool { return m.ID == id })
	if idx < 0 || id == "" {
		return messages, false
	}
	out := slices.Clone(messages)
	m := out[idx]
	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.Attachment != nil {
		a := *patch.Attachment
		m.Attachment = &a
	}
	if !patch.EditedAt.IsZero() {
		m.EditedAt = patch.EditedAt
	}
	out[idx] = m
	return out, true
}

// ApplyDelete removes the message with id. Absent ids are a no-op.
func ApplyDelete(messages []core.Message, id string) ([]core.Message, bool) {
	idx := slices.IndexFunc(messages, func(m core.Message) bool { return m.ID == id })
	if idx < 0 || id == "" {
		return messages, false
	}
	out := make([]core.Message, 0, len(messages)-1)
	out = append(out, messages[:idx]...)
	out = append(out, messages[idx+1:]...)
	return out, true
}

// Reconcile swaps the pending entry sent with correlationID for the confirmed message.
// If the confirmed id is already present the pending entry is dropped.
func Reconcile(messages []core.Message, correlationID string, confirmed core.Message, now time.Time) []core.Message {
	confirmed.CorrelationID = correlationID
	confirmed.Pending = false
	return Merge(confirmed.ChatID, []core.Message{confirmed}, messages, now)
}

// RemoveProvisional drops the pending entry sent with correlationID.
func RemoveProvisional(messages []core.Message, correlationID string) ([]core.Message, bool) {
	idx := slices.IndexFunc(messages, func(m core.Message) bool {
		return m.Pending && m.CorrelationID == correlationID
	})
	if idx < 0 || correlationID == "" {
		return messages, false
	}
	out := make([]core.Message, 0, len(messages)-1)
	out = append(out, messages[:idx]...)
	out = append(out, messages[idx+1:]...)
	return out, true
}

// Search returns messages whose content or sender name contains term, ignoring case.
func Search(messages []core.Message, term string) []core.Message {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}
	var out []core.Message
	for _, m := range messages {
		if strings.Contains(strings.ToLower(m.Content), term) ||
			strings.Contains(strings.ToLower(m.Sender.Name), term) {
			out = append(out, m)
		}
	}
	return out
}
