// Package chat keeps a session's chat log: optimistic sends, periodic
// refreshes from the backend and the reconciliation between the two.
package chat

import (
	"sort"

	"github.com/navikt/liveroom/internal/models"
)

// SortByTimestamp orders messages ascending by timestamp. The sort is stable
// so messages with equal timestamps keep their relative order.
func SortByTimestamp(msgs []models.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// Reconcile merges a fetched message list into the locally held one.
//
// The initial load replaces local state wholesale. Later loads take the
// fetched list as authoritative and keep every local entry the backend has
// not reflected yet: pending placeholders (including failed sends) and
// confirmed messages sent from this client that the fetched list does not
// contain. The result is sorted ascending by timestamp.
func Reconcile(local, fetched []models.ChatMessage, initial bool) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(local)+len(fetched))
	out = append(out, fetched...)

	if !initial {
		seen := make(map[string]struct{}, len(fetched))
		for _, m := range fetched {
			if id, ok := m.ID.ServerID(); ok {
				seen[id] = struct{}{}
			}
		}

		for _, m := range local {
			if m.ID.IsPending() {
				out = append(out, m)
				continue
			}
			id, _ := m.ID.ServerID()
			if _, ok := seen[id]; !ok && m.Local {
				out = append(out, m)
			}
		}
	}

	SortByTimestamp(out)
	return out
}
