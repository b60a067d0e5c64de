package timeslot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinutesRoundTrip(t *testing.T) {
	tests := []struct {
		hhmm    TimeOfDay
		minutes int
	}{
		{0, 0},
		{800, 480},
		{1030, 630},
		{1759, 1079},
		{1800, 1080},
		{2359, 1439},
	}

	for _, tt := range tests {
		t.Run(tt.hhmm.String(), func(t *testing.T) {
			assert.Equal(t, tt.minutes, tt.hhmm.Minutes())
			assert.Equal(t, tt.hhmm, FromMinutes(tt.minutes))
		})
	}
}

func TestAddCrossesHourBoundary(t *testing.T) {
	got, ok := TimeOfDay(1030).Add(30)
	require.True(t, ok)
	assert.Equal(t, TimeOfDay(1100), got)

	got, ok = TimeOfDay(1000).Add(-45)
	require.True(t, ok)
	assert.Equal(t, TimeOfDay(915), got)

	_, ok = TimeOfDay(30).Add(-60)
	assert.False(t, ok)
}

func TestTimeOfDayValid(t *testing.T) {
	assert.True(t, TimeOfDay(0).Valid())
	assert.True(t, TimeOfDay(2359).Valid())
	assert.False(t, TimeOfDay(2400).Valid())
	assert.False(t, TimeOfDay(1060).Valid())
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "10:30", want: 1030},
		{in: "08:00", want: 800},
		{in: "930", want: 930},
		{in: "1800", want: 1800},
		{in: "24:00", wantErr: true},
		{in: "10:75", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDay(t *testing.T) {
	tests := []struct {
		in      string
		want    Day
		wantErr bool
	}{
		{in: "Monday", want: Monday},
		{in: "sunday", want: Sunday},
		{in: "Wed", want: Wednesday},
		{in: " FRIDAY ", want: Friday},
		{in: "Funday", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDayString(t *testing.T) {
	assert.Equal(t, "Monday", Monday.String())
	assert.Equal(t, "Sunday", Sunday.String())
	assert.Equal(t, "Day(9)", Day(9).String())
}

func TestAtomic(t *testing.T) {
	slot := New(Monday, 1000, 1130)
	parts := slot.Atomic()

	require.Len(t, parts, 3)
	assert.Equal(t, New(Monday, 1000, 1030), parts[0])
	assert.Equal(t, New(Monday, 1030, 1100), parts[1])
	assert.Equal(t, New(Monday, 1100, 1130), parts[2])
}

func TestOverlapsAndTouches(t *testing.T) {
	a := New(Monday, 1000, 1100)

	assert.True(t, a.Overlaps(New(Monday, 1030, 1130)))
	assert.False(t, a.Overlaps(New(Monday, 1100, 1130)), "abutting slots do not overlap")
	assert.False(t, a.Overlaps(New(Tuesday, 1000, 1100)))

	assert.True(t, a.Touches(New(Monday, 1100, 1130)))
	assert.False(t, a.Touches(New(Monday, 1130, 1200)))

	assert.Equal(t, New(Monday, 1000, 1130), a.Union(New(Monday, 1100, 1130)))
}

func TestSlotValid(t *testing.T) {
	assert.True(t, New(Monday, 800, 830).Valid())
	assert.False(t, New(Monday, 900, 900).Valid())
	assert.False(t, New(Monday, 1000, 900).Valid())
	assert.False(t, New(Day(7), 800, 830).Valid())
	assert.True(t, New(Monday, 800, 1800).WithinOperatingHours())
	assert.False(t, New(Monday, 730, 900).WithinOperatingHours())
}
