package history

import (
	"sort"
	"strings"
	"time"

	"kb-assistant-be/internal/entity"
)

type BucketKey string

const (
	BucketToday     BucketKey = "today"
	BucketYesterday BucketKey = "yesterday"
	BucketLastWeek  BucketKey = "last_7_days"
	BucketOlder     BucketKey = "older"
)

var bucketOrder = []BucketKey{BucketToday, BucketYesterday, BucketLastWeek, BucketOlder}

var bucketLabels = map[BucketKey]string{
	BucketToday:     "Today",
	BucketYesterday: "Yesterday",
	BucketLastWeek:  "Last 7 Days",
	BucketOlder:     "Older",
}

type Group struct {
	Key           BucketKey
	Label         string
	Conversations []*entity.Conversation
}

// Classify places one timestamp relative to now. Calendar days are taken in
// now's location, so callers pass now in the viewer's time zone.
func Classify(updatedAt, now time.Time) BucketKey {
	loc := now.Location()
	today := startOfDay(now, 0)
	yesterday := startOfDay(now, -1)
	lastWeek := startOfDay(now, -7)
	day := startOfDay(updatedAt.In(loc), 0)

	switch {
	case !day.Before(today):
		// clock skew can put a record slightly in the future
		return BucketToday
	case day.Equal(yesterday):
		return BucketYesterday
	case !day.Before(lastWeek):
		return BucketLastWeek
	default:
		return BucketOlder
	}
}

// Bucket filters conversations by a case-insensitive title match and groups
// them by recency. Empty groups are omitted; each group is newest first.
func Bucket(convs []*entity.Conversation, query string, now time.Time) []Group {
	query = strings.ToLower(strings.TrimSpace(query))

	grouped := make(map[BucketKey][]*entity.Conversation, len(bucketOrder))
	for _, c := range convs {
		if query != "" && !strings.Contains(strings.ToLower(c.Title), query) {
			continue
		}
		key := Classify(c.UpdatedAt, now)
		grouped[key] = append(grouped[key], c)
	}

	groups := make([]Group, 0, len(bucketOrder))
	for _, key := range bucketOrder {
		items := grouped[key]
		if len(items) == 0 {
			continue
		}
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		})
		groups = append(groups, Group{Key: key, Label: bucketLabels[key], Conversations: items})
	}
	return groups
}

func startOfDay(t time.Time, offsetDays int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+offsetDays, 0, 0, 0, 0, t.Location())
}
