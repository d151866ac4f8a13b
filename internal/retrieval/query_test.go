package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsInScope(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"best pizza recipe", false},
		{"Which movie is trending?", false},
		{"pizza options in the hostel mess", true},
		{"TTS 4821 cabin", true},
		{"When does the exam start?", true},
		{"hello there", true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInScope(tt.query))
		})
	}
}

func TestExpand(t *testing.T) {
	assert.Equal(t, "when is the exam schedule? exam examination schedule timetable", Expand("  When is the EXAM schedule?  "))
	assert.Equal(t, "tts 4821 cabin tts teacher cabin room", Expand("TTS 4821 cabin"))
	assert.Equal(t, "where is the canteen", Expand("Where is the canteen"))
}

func TestIdentifiers(t *testing.T) {
	tests := []struct {
		query string
		has   bool
		ids   []string
	}{
		{"TTS: 4821 and room 305, also 12345", true, []string{"4821", "12345"}},
		{"where is room 305", true, nil},
		{"id 77", true, []string{"77"}},
		{"who sits in 4821?", true, []string{"4821"}},
		{"dean of computing", false, nil},
		{"call 123456 now", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.has, HasIdentifier(tt.query))
			assert.Equal(t, tt.ids, ExtractIdentifiers(tt.query))
		})
	}
}

func TestContainsIdentifier(t *testing.T) {
	assert.True(t, containsIdentifier("Dr. R. Meena TTS No. 4821 Room 305", []string{"4821"}))
	assert.True(t, containsIdentifier("cabin 305 is in A block", []string{"305"}))
	assert.False(t, containsIdentifier("Room 112", []string{"4821"}))
}
