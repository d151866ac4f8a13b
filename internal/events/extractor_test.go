package events

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-rag-go/internal/model"
)

func fixedClock() Option {
	return WithClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) })
}

func TestExtract_SampleLine(t *testing.T) {
	e := NewExtractor(fixedClock())
	events := e.Extract("The mid-semester examination will be conducted on 15/03/2024 in Hall A.", "calendar.pdf")

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, model.EventExam, ev.EventType)
	assert.Equal(t, "2024-03-15", ev.Date)
	assert.Equal(t, "calendar.pdf", ev.SourceFile)
	assert.InDelta(t, 0.87, ev.Confidence, 1e-9)
	assert.Greater(t, ev.Confidence, 0.8)
	assert.True(t, ev.IsActive)
}

func TestExtract_DateFormats(t *testing.T) {
	e := NewExtractor(fixedClock())

	tests := []struct {
		name string
		line string
		date string
	}{
		{"day month year", "Fee payment closes on 31 March 2024 for all students", "2024-03-31"},
		{"day month short year", "Fee payment closes on 5 Apr 24 for all students", "2024-04-05"},
		{"month day year", "Fee payment closes on March 9, 2024 for all students", "2024-03-09"},
		{"hyphenated month", "Fee payment closes on 07-Aug-2024 for all students", "2024-08-07"},
		{"iso", "Fee payment closes on 2024-11-02 for all students", "2024-11-02"},
		{"dotted numeric", "Fee payment closes on 1.12.2025 for all students", "2025-12-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := e.Extract(tt.line, "fees.txt")
			require.NotEmpty(t, events)
			for _, ev := range events {
				assert.Equal(t, tt.date, ev.Date)
				assert.Equal(t, model.EventFee, ev.EventType)
			}
		})
	}
}

func TestExtract_Confidence(t *testing.T) {
	e := NewExtractor(fixedClock())

	events := e.Extract("Last date for fee payment is 31 March 2024", "fees.txt")
	require.NotEmpty(t, events)
	assert.Equal(t, model.EventDeadline, events[0].EventType)
	assert.Equal(t, 1.0, events[0].Confidence)

	// 日期离行首较远时没有位置加成。
	far := "Students of the hostel and the day scholar wing are informed that the annual cultural night will happen on 12/10/2024"
	events = e.Extract(far, "notice.txt")
	require.Len(t, events, 1)
	assert.InDelta(t, 0.5+0.6*0.3, events[0].Confidence, 1e-9)
}

func TestExtract_Window(t *testing.T) {
	e := NewExtractor(fixedClock())

	assert.Empty(t, e.Extract("Examination results of 15/03/2015 were archived", "old.txt"))
	assert.Empty(t, e.Extract("Examination planned tentatively for 15/03/2031", "future.txt"))
	assert.NotEmpty(t, e.Extract("Examination planned tentatively for 31/12/2029", "future.txt"))
	assert.NotEmpty(t, e.Extract("Examination results of 01/01/2019 were archived", "old.txt"))
}

func TestExtract_SkipsInvalidInput(t *testing.T) {
	e := NewExtractor(fixedClock())

	assert.Empty(t, e.Extract("5/3/2024", "short.txt"))
	assert.Empty(t, e.Extract("Examination results on 31/02/2024 are void", "bad.txt"))
	assert.Empty(t, e.Extract("The library has a large reading room.", "plain.txt"))
	assert.Empty(t, e.Extract("", "empty.txt"))
}

func TestExtract_UsesNeighbouringLines(t *testing.T) {
	e := NewExtractor(fixedClock())
	text := "Hostel registration window opens\non 10 January 2024 at 9 AM"

	events := e.Extract(text, "hostel.txt")
	var reg *model.Event
	for i := range events {
		if events[i].EventType == model.EventRegistration {
			reg = &events[i]
		}
	}
	require.NotNil(t, reg)
	assert.Equal(t, "2024-01-10", reg.Date)
	assert.Equal(t, "Hostel registration window opens", reg.Title)
}

func TestExtract_DedupeAndSort(t *testing.T) {
	e := NewExtractor(fixedClock())
	text := strings.Join([]string{
		"Project review meeting on 20/09/2024 for final year",
		"Project review meeting on 20/09/2024 for final year",
		"Seminar on research ethics on 02/02/2024 in the main hall",
	}, "\n")

	events := e.Extract(text, "notices.txt")
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.LessOrEqual(t, events[i-1].Date, events[i].Date)
	}

	seen := map[string]bool{}
	for _, ev := range events {
		key := ev.Title + "-" + ev.Date + "-" + string(ev.EventType)
		assert.False(t, seen[key], "duplicate %s", key)
		seen[key] = true
	}
	assert.Equal(t, "2024-02-02", events[0].Date)
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Mid-term test", cleanTitle("mid-term \t test"))

	long := strings.Repeat("a", 250)
	title := cleanTitle(long)
	assert.Equal(t, 203, len(title))
	assert.True(t, strings.HasPrefix(title, "A"))
	assert.True(t, strings.HasSuffix(title, "..."))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "short line", describe("short line"))
	long := strings.Repeat("b", 120)
	assert.Equal(t, strings.Repeat("b", 100)+"...", describe(long))
}

func TestDetectEventType(t *testing.T) {
	tests := []struct {
		text string
		want model.EventType
		ok   bool
	}{
		{"Semester examination timetable", model.EventExam, true},
		{"Online enrollment portal", model.EventRegistration, true},
		{"Tuition charges revised", model.EventFee, true},
		{"Diwali vacation", model.EventHoliday, true},
		{"Results declared", model.EventResult, true},
		{"Placement drive", model.EventInternship, true},
		{"Hello world", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := DetectEventType(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_MidSemesterSample(t *testing.T) {
	events := NewExtractor(fixedClock()).Extract("Mid-semester exam scheduled on 15 March 2024 for all departments.", "calendar.txt")

	require.Len(t, events, 1)
	assert.Equal(t, model.EventExam, events[0].EventType)
	assert.Equal(t, "2024-03-15", events[0].Date)
	assert.Greater(t, events[0].Confidence, 0.8)
}
