package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyYouTubeVariants(t *testing.T) {
	links := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ?si=share",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ",
		"https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ",
	}
	for _, link := range links {
		c, err := Classify(link)
		require.NoError(t, err, link)
		assert.Equal(t, Video{ID: "dQw4w9WgXcQ"}, c, link)
	}
}

func TestClassifyDocuments(t *testing.T) {
	links := []string{
		"https://drive.google.com/file/d/abc/preview",
		"https://www.youtube.com/channel/UC123",
		"https://www.youtube.com/watch?v=short",
		"https://notyoutube.com/watch?v=dQw4w9WgXcQ",
	}
	for _, link := range links {
		c, err := Classify(link)
		require.NoError(t, err, link)
		assert.Equal(t, Document{URL: link}, c, link)
	}
}

func TestClassifyEmpty(t *testing.T) {
	_, err := Classify("   ")
	require.ErrorIs(t, err, ErrEmptyLink)
}

func TestContentJSON(t *testing.T) {
	out, err := json.Marshal(Video{ID: "dQw4w9WgXcQ"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"video","video_id":"dQw4w9WgXcQ","embed_url":"https://www.youtube.com/embed/dQw4w9WgXcQ"}`, string(out))

	out, err = json.Marshal(Document{URL: "https://example.com/book"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"document","url":"https://example.com/book"}`, string(out))
}
