package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProfile() LocationRequestProfile {
	return LocationRequestProfile{
		Priority:        PriorityHighAccuracy,
		Interval:        3 * time.Millisecond,
		FastestInterval: time.Second,
		NumUpdates:      10,
		Expiration:      200 * time.Second,
		NeedAddress:     true,
		Language:        "en",
		CountryCode:     "en",
	}
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Priority
	}{
		{"high_accuracy", PriorityHighAccuracy},
		{"HIGH", PriorityHighAccuracy},
		{"balanced", PriorityBalanced},
		{"low_power", PriorityLowPower},
		{" passive ", PriorityNoPower},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePriority(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParsePriority("turbo")
	assert.Error(t, err)
}

func TestPriorityString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "high_accuracy", PriorityHighAccuracy.String())
	assert.Equal(t, "no_power", PriorityNoPower.String())
	assert.Equal(t, "unknown", Priority(7).String())
}

func TestEffectiveInterval_ClampedToFastest(t *testing.T) {
	t.Parallel()

	p := validProfile()
	assert.Equal(t, time.Second, p.EffectiveInterval())

	p.Interval = 5 * time.Second
	assert.Equal(t, 5*time.Second, p.EffectiveInterval())
}

func TestBatchSize(t *testing.T) {
	t.Parallel()

	p := validProfile()
	assert.Equal(t, 1, p.BatchSize())

	p.MaxWaitTime = 3500 * time.Millisecond
	assert.Equal(t, 3, p.BatchSize())

	p.MaxWaitTime = time.Hour
	assert.Equal(t, 10, p.BatchSize(), "batch never exceeds the update cap")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validProfile().Validate())

	tests := []struct {
		name   string
		mutate func(*LocationRequestProfile)
	}{
		{"bad priority", func(p *LocationRequestProfile) { p.Priority = 1 }},
		{"zero interval", func(p *LocationRequestProfile) { p.Interval, p.FastestInterval = 0, 0 }},
		{"negative interval", func(p *LocationRequestProfile) { p.Interval = -time.Second }},
		{"negative updates", func(p *LocationRequestProfile) { p.NumUpdates = -1 }},
		{"negative displacement", func(p *LocationRequestProfile) { p.SmallestDisplacement = -1 }},
		{"negative expiration", func(p *LocationRequestProfile) { p.Expiration = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validProfile()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestLocaleNormalize(t *testing.T) {
	t.Parallel()

	got, err := Locale{Language: "EN", Country: "us"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, Locale{Language: "en", Country: "US"}, got)
	assert.Equal(t, "en-US", Locale{Language: "en", Country: "us"}.Tag())

	// "en" is not a region; it is dropped instead of failing the request.
	got, err = Locale{Language: "en", Country: "en"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "", got.Country)
	assert.Equal(t, "en", Locale{Language: "en", Country: "en"}.Tag())

	_, err = Locale{Language: "not a language"}.Normalize()
	assert.Error(t, err)
}

func TestNotificationSpecValidate(t *testing.T) {
	t.Parallel()

	n := NotificationSpec{ContentTitle: "Current Location", ChannelName: "MyChannel", Priority: 2}
	require.NoError(t, n.Validate())

	n.ChannelName = ""
	assert.Error(t, n.Validate())

	n = NotificationSpec{ContentTitle: "x", ChannelName: "y", Priority: 5}
	assert.Error(t, n.Validate())
}
