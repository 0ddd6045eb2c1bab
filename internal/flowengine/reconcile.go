package flowengine

import "github.com/ehr/opdflow/pkg/flowmodel"

// upsertEntry replaces the entry with the same id, or prepends it.
func upsertEntry(list []flowmodel.FlowListEntry, entry flowmodel.FlowListEntry) []flowmodel.FlowListEntry {
	for i := range list {
		if list[i].ID == entry.ID {
			out := append([]flowmodel.FlowListEntry(nil), list...)
			out[i] = entry
			return out
		}
	}
	out := make([]flowmodel.FlowListEntry, 0, len(list)+1)
	out = append(out, entry)
	return append(out, list...)
}

// refreshEntry replaces the entry with the same id unless the listed row
// is newer, and leaves the list untouched otherwise.
func refreshEntry(list []flowmodel.FlowListEntry, entry flowmodel.FlowListEntry) []flowmodel.FlowListEntry {
	for i := range list {
		if list[i].ID == entry.ID {
			if list[i].Version > entry.Version {
				return list
			}
			out := append([]flowmodel.FlowListEntry(nil), list...)
			out[i] = entry
			return out
		}
	}
	return list
}

// mergeListItems copies a fetched page, keeping the cached row for any visit
// whose snapshot is newer than the listed one.
func mergeListItems(cache map[string]*flowmodel.FlowSnapshot, items []flowmodel.FlowListEntry) []flowmodel.FlowListEntry {
	out := make([]flowmodel.FlowListEntry, len(items))
	for i, item := range items {
		if cached, ok := cache[item.ID]; ok && cached.Version > item.Version {
			out[i] = cached.Entry()
			continue
		}
		out[i] = item
	}
	return out
}

// isStale reports whether the cache already holds a newer snapshot.
func isStale(cache map[string]*flowmodel.FlowSnapshot, snap *flowmodel.FlowSnapshot) bool {
	cached, ok := cache[snap.ID]
	return ok && cached.Version > snap.Version
}

func withSnapshot(m map[string]*flowmodel.FlowSnapshot, snap *flowmodel.FlowSnapshot) map[string]*flowmodel.FlowSnapshot {
	out := make(map[string]*flowmodel.FlowSnapshot, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[snap.ID] = snap
	return out
}

// reconcileLoaded merges a fetched snapshot. A snapshot older than the
// cached one is dropped. Drafts are reset only when the selected visit's
// snapshot arrives and the drafts belong to another visit.
func reconcileLoaded(s State, e FlowLoaded) State {
	snap := e.Snapshot
	if snap == nil || snap.ID == "" || isStale(s.Snapshots, snap) {
		return s
	}
	s.Snapshots = withSnapshot(s.Snapshots, snap)
	s.List = refreshEntry(s.List, snap.Entry())
	if snap.ID != s.SelectedID {
		return s
	}
	s.FlowError = nil
	if s.DraftOwnerID != snap.ID {
		s.Drafts = DefaultDrafts()
		s.DraftOwnerID = snap.ID
		s.FormError = nil
	}
	return s
}

// reconcileMutation merges the snapshot returned by a start or transition.
// A response for a visit that is no longer selected only updates the list
// and the background cache.
func reconcileMutation(s State, e MutationSucceeded) (State, []Effect) {
	if s.Pending != nil && s.Pending.Kind == e.Kind && s.Pending.FlowID == e.FlowID {
		s.Pending = nil
	}
	snap := e.Snapshot
	if snap == nil || snap.ID == "" {
		return s, nil
	}
	if isStale(s.Snapshots, snap) {
		snap = s.Snapshots[snap.ID]
	} else {
		s.Snapshots = withSnapshot(s.Snapshots, snap)
	}
	s.List = upsertEntry(s.List, snap.Entry())

	stillSelected := e.Kind == flowmodel.ActionStartVisit || e.FlowID == s.SelectedID
	if !stillSelected {
		return s, []Effect{FetchList{Params: s.Filter}}
	}
	s.SelectedID = snap.ID
	s.DraftOwnerID = snap.ID
	s.Drafts = DefaultDrafts()
	s.FormError = nil
	s.FlowError = nil
	return s, []Effect{
		NavigateTo{Path: VisitPath(s.ListRoot, snap.ID)},
		FetchList{Params: s.Filter},
	}
}
