package kemono

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `{
	"props": {"name": "Some Creator", "count": 103},
	"results": [
		{
			"id": "101",
			"user": "123456",
			"service": "patreon",
			"title": "First post",
			"published": "2024-04-01T12:30:00",
			"file": {"name": "cover.jpg", "path": "/aa/bb/cover.jpg"},
			"attachments": [
				{"name": "extra.png", "path": "/cc/dd/extra.png"}
			]
		},
		{
			"id": "102",
			"user": "123456",
			"service": "patreon",
			"title": "Text only",
			"published": "2024-04-02T08:00:00",
			"file": {},
			"attachments": []
		}
	],
	"result_previews": [
		[
			{"server": "https://n1.kemono.su", "name": "cover.jpg", "path": "/aa/bb/cover.jpg"}
		],
		[]
	],
	"result_attachments": [
		[
			{"server": "https://n4.kemono.su", "name": "extra.png", "path": "/cc/dd/extra.png"}
		],
		[]
	]
}`

func TestPostsLegacyResponseUnmarshal(t *testing.T) {
	var page PostsLegacyResponse
	require.NoError(t, json.Unmarshal([]byte(samplePage), &page))

	assert.Equal(t, "Some Creator", page.Props.Name)
	assert.Equal(t, 103, page.Props.Count)
	require.Len(t, page.Results, 2)

	first := page.Results[0]
	assert.Equal(t, "101", first.ID)
	assert.Equal(t, "cover.jpg", first.File.Name)
	assert.Equal(t, "/aa/bb/cover.jpg", first.File.Path)
	require.Len(t, first.Attachments, 1)
	assert.Equal(t, "/cc/dd/extra.png", first.Attachments[0].Path)

	second := page.Results[1]
	assert.True(t, second.File.IsZero())
	assert.Empty(t, second.Attachments)
}

func TestFlattenedEntries(t *testing.T) {
	var page PostsLegacyResponse
	require.NoError(t, json.Unmarshal([]byte(samplePage), &page))

	entries := page.FlattenedEntries()
	require.Len(t, entries, 2)
	// Previews come before attachments
	assert.Equal(t, "/aa/bb/cover.jpg", entries[0].Path)
	assert.Equal(t, "/cc/dd/extra.png", entries[1].Path)
}

func TestServerIndex(t *testing.T) {
	page := PostsLegacyResponse{
		ResultPreviews: [][]ServerEntry{
			{{Server: "https://n1.kemono.su", Path: "/a.jpg"}},
		},
		ResultAttachments: [][]ServerEntry{
			{
				{Server: "https://n2.kemono.su", Path: "/a.jpg"}, // duplicate path, first entry wins
				{Server: "https://n3.kemono.su", Path: "/b.png"},
				{Server: "", Path: "/ignored.gif"},
				{Server: "https://n4.kemono.su", Path: ""},
			},
		},
	}

	index := page.ServerIndex()
	assert.Equal(t, "https://n1.kemono.su", index["/a.jpg"])
	assert.Equal(t, "https://n3.kemono.su", index["/b.png"])
	assert.NotContains(t, index, "/ignored.gif")
	assert.NotContains(t, index, "")
}

func TestPublishedTime(t *testing.T) {
	tests := []struct {
		name      string
		published string
		wantOK    bool
		want      time.Time
	}{
		{
			name:      "API timestamp",
			published: "2024-04-01T12:30:00",
			wantOK:    true,
			want:      time.Date(2024, 4, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			name:      "with microseconds",
			published: "2024-04-01T12:30:00.123456",
			wantOK:    true,
			want:      time.Date(2024, 4, 1, 12, 30, 0, 123456000, time.UTC),
		},
		{
			name:      "empty",
			published: "",
			wantOK:    false,
		},
		{
			name:      "garbage",
			published: "yesterday",
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := Post{Published: tt.published}
			got, ok := post.PublishedTime()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTargetString(t *testing.T) {
	target := Target{Site: "kemono.su", Service: "patreon", Creator: "123"}
	assert.Equal(t, "kemono.su:patreon:123", target.String())
}
