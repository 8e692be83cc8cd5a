package schedule

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery(t *testing.T) {
	s := Every(5 * time.Minute)
	now := time.Now()
	next := s.Next(now)

	assert.Equal(t, now.Add(5*time.Minute), next)
}

func TestEvery_MultipleNext(t *testing.T) {
	s := Every(time.Hour)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	next1 := s.Next(start)
	next2 := s.Next(next1)

	assert.Equal(t, time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC), next1)
	assert.Equal(t, time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), next2)
}

func TestEvery_NonPositive(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(time.Second), Every(0).Next(start))
}

func TestCron(t *testing.T) {
	s := Cron("*/5 * * * *")
	from := time.Date(2024, 1, 1, 8, 1, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 1, 1, 8, 5, 0, 0, time.UTC), s.Next(from))
}

func TestCron_Descriptor(t *testing.T) {
	s := Cron("@hourly")
	from := time.Date(2024, 1, 1, 8, 1, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), s.Next(from))
}

func TestCron_InvalidExpression_Panics(t *testing.T) {
	assert.Panics(t, func() {
		Cron("invalid cron")
	})
}

func TestParse(t *testing.T) {
	from := time.Date(2024, 1, 1, 8, 0, 30, 0, time.UTC)

	s, err := Parse("90s")
	require.NoError(t, err)
	assert.Equal(t, from.Add(90*time.Second), s.Next(from))
	assert.Equal(t, "every 1m30s", fmt.Sprint(s))

	s, err = Parse(" * * * * * ")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 1, 0, 0, time.UTC), s.Next(from))

	for _, bad := range []string{"", "-1s", "every now and then"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}
