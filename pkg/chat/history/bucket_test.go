package history

import (
	"testing"
	"time"

	"kb-assistant-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	now := time.Date(2024, 5, 10, 15, 30, 0, 0, loc)

	tests := []struct {
		name      string
		updatedAt time.Time
		want      BucketKey
	}{
		{name: "start of today", updatedAt: time.Date(2024, 5, 10, 0, 0, 0, 0, loc), want: BucketToday},
		{name: "end of today", updatedAt: time.Date(2024, 5, 10, 23, 59, 59, 0, loc), want: BucketToday},
		{name: "later today in the future", updatedAt: now.Add(2 * time.Hour), want: BucketToday},
		{name: "yesterday late", updatedAt: time.Date(2024, 5, 9, 23, 59, 0, 0, loc), want: BucketYesterday},
		{name: "two days ago", updatedAt: time.Date(2024, 5, 8, 12, 0, 0, 0, loc), want: BucketLastWeek},
		{name: "seven days ago", updatedAt: time.Date(2024, 5, 3, 0, 0, 0, 0, loc), want: BucketLastWeek},
		{name: "eight days ago", updatedAt: time.Date(2024, 5, 2, 12, 0, 0, 0, loc), want: BucketOlder},
		// 2024-05-09 20:00 UTC is already 2024-05-10 in UTC+7
		{name: "uses the viewer time zone", updatedAt: time.Date(2024, 5, 9, 20, 0, 0, 0, time.UTC), want: BucketToday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.updatedAt, now))
		})
	}
}

func conv(title string, updatedAt time.Time) *entity.Conversation {
	return &entity.Conversation{Id: uuid.New(), Title: title, UpdatedAt: updatedAt}
}

func TestBucketGroupsInOrderAndOmitsEmpty(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	morning := conv("morning", now.Add(-3*time.Hour))
	noon := conv("noon", now)
	old := conv("old", now.AddDate(0, 0, -30))

	groups := Bucket([]*entity.Conversation{morning, old, noon}, "", now)

	require.Len(t, groups, 2)
	assert.Equal(t, BucketToday, groups[0].Key)
	assert.Equal(t, "Today", groups[0].Label)
	assert.Equal(t, []*entity.Conversation{noon, morning}, groups[0].Conversations)
	assert.Equal(t, BucketOlder, groups[1].Key)
	assert.Equal(t, []*entity.Conversation{old}, groups[1].Conversations)
}

func TestBucketFiltersCaseInsensitively(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	match := conv("Quarterly Revenue", now)
	other := conv("Holiday plans", now)

	groups := Bucket([]*entity.Conversation{match, other}, "  REVENUE ", now)

	require.Len(t, groups, 1)
	assert.Equal(t, []*entity.Conversation{match}, groups[0].Conversations)
	assert.Empty(t, Bucket([]*entity.Conversation{match, other}, "nothing", now))
}

func TestBucketIsExhaustive(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	var convs []*entity.Conversation
	for days := 0; days < 20; days++ {
		convs = append(convs, conv("c", now.AddDate(0, 0, -days)))
	}

	total := 0
	for _, g := range Bucket(convs, "", now) {
		total += len(g.Conversations)
	}
	assert.Equal(t, len(convs), total)
}
