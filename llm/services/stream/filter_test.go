package stream

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestClassify(t *testing.T) {
	f := NewFilter()
	cases := map[string]Kind{
		"Here is":                          Visible,
		" the answer.\n":                   Visible,
		"   ":                              Visible,
		"duckduckgo_search(query=go)":      Marker,
		"  web_crawler(url=https://x.org)": Marker,
		"youtube_video_captions(url=u)":    Marker,
		"resend_send_email(to=a@b.co)":     Marker,
		"github_list_issues(repo=a/b)":     Marker,
		"hackernews_top_stories()":         Marker,
		"update_user_memory(action=add)":   Marker,
		"search_memory(query=sister)":      Marker,
		"transfer_task_to_member(member_id=WebCrawler) completed in 1.20s.": Marker,
		"Calling delegate_task_to_member now":                               Marker,
		"GitHub is a code host":                                             Visible,
		"I searched duckduckgo_ for you":                                    Visible,
	}
	for frag, want := range cases {
		assert.Equal(t, want, f.Classify(frag), frag)
	}
}

func TestCustomPrefixes(t *testing.T) {
	f := NewFilter("calc_")
	assert.Equal(t, Marker, f.Classify("calc_add(a=1)"))
	assert.Equal(t, Visible, f.Classify("duckduckgo_search(q)"))
}

func TestVisibleTextSkipsMarkers(t *testing.T) {
	f := NewFilter()
	fragments := []string{"The ", "duckduckgo_search(query=go) completed in 0.40s.", "answer ", "is ", "web_crawler(url=x)", "42."}

	var buf DisplayBuffer
	var markers []string
	for _, frag := range fragments {
		if f.Classify(frag) == Marker {
			markers = append(markers, frag)
			continue
		}
		buf.Append(frag)
	}
	assert.Equal(t, "The answer is 42.", buf.String())
	assert.Len(t, markers, 2)
	for _, m := range markers {
		assert.NotContains(t, buf.String(), m)
	}
}

func TestDisplayBufferConcurrentAppend(t *testing.T) {
	defer goleak.VerifyNone(t)

	var d DisplayBuffer
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Append("ab")
		}()
	}
	wg.Wait()
	assert.Equal(t, strings.Repeat("ab", 8), d.String())
	assert.True(t, strings.HasPrefix(Marker.String(), "mark"))
}
