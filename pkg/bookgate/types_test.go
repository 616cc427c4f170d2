package bookgate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bookgate/bookgate/pkg/bookgate"
)

func TestNormalizeCodeValue(t *testing.T) {
	assert.Equal(t, "ABCD-EFGH-IJKL", bookgate.NormalizeCodeValue("  abcd-efgh-ijkl "))
	assert.Equal(t, "ABCD-EFGH-IJKL-MNOP", bookgate.NormalizeCodeValue("abcd-efgh-ijkl-mnop"))
}

func TestValidCodeValue(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"ABCD-EFGH-IJKL", true},
		{"ABCD-EFGH-IJKL-MNOP", true},
		{"AB12-C3D4-9999", true},
		{"abcd-efgh-ijkl", false},
		{"ABCD-EFGH-IJK", false},
		{"ABCD-EFGH", false},
		{"ABCD-EFGH-IJKL-MNOP-QRST", false},
		{"ABCD EFGH IJKL", false},
		{"ABCD-EFGH-IJ!L", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.valid, bookgate.ValidCodeValue(tt.value))
		})
	}
}

func TestCodeExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.False(t, (&bookgate.ActivationCode{}).Expired(now))
	assert.True(t, (&bookgate.ActivationCode{ExpiryDate: &past}).Expired(now))
	assert.False(t, (&bookgate.ActivationCode{ExpiryDate: &future}).Expired(now))
}

func TestResourceReferencedURLs(t *testing.T) {
	resource := &bookgate.Resource{
		CoverURL:    "memory://covers/a.jpg",
		DocumentURL: "memory://books/b.pdf",
		PageAudio:   []bookgate.PageMedia{{PageNumber: 1, URL: "memory://audio/c.mp3"}},
		PageVideo:   []bookgate.PageMedia{{PageNumber: 2, URL: "memory://video/d.mp4"}},
		Answers:     []bookgate.MaterialGroup{{Title: "Unit 1", URLs: []string{"memory://answers/e.pdf"}}},
		Materials:   []bookgate.MaterialGroup{{Title: "Extras", URLs: []string{"memory://materials/f.pdf"}}},
		Classroom: &bookgate.Classroom{
			DocumentURL: "memory://classroom/g.pdf",
			Media:       []bookgate.PageMedia{{PageNumber: 3, URL: "memory://classroom/h.mp4"}},
		},
		Glossary: []bookgate.GlossaryEntry{{Term: "term", ImageURL: "memory://glossary/i.png"}},
	}

	urls := resource.ReferencedURLs()
	assert.Len(t, urls, 9)
	assert.Contains(t, urls, "memory://classroom/h.mp4")
	assert.Contains(t, urls, "memory://glossary/i.png")

	empty := &bookgate.Resource{Title: "bare"}
	assert.Empty(t, empty.ReferencedURLs())
}
