package core

import "time"

// RetentionHorizon is how long a deleted transaction stays in the trash.
const RetentionHorizon = 30 * 24 * time.Hour

// FilterTrash returns the items deleted less than horizon before now.
func FilterTrash(items []TrashItem, now time.Time, horizon time.Duration) []TrashItem {
	cutoff := now.Add(-horizon)
	out := make([]TrashItem, 0, len(items))
	for _, it := range items {
		if it.DeletedAt.After(cutoff) {
			out = append(out, it)
		}
	}
	return out
}
