package model

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
)

// Locale is a language/country pair passed to geocoding services.
type Locale struct {
	Language string `json:"language"`
	Country  string `json:"country"`
}

// Normalize canonicalizes the language and region codes. An unknown region
// is dropped rather than rejected since providers treat it as a hint.
func (l Locale) Normalize() (Locale, error) {
	base, err := language.ParseBase(strings.TrimSpace(l.Language))
	if err != nil {
		return Locale{}, eris.Wrapf(err, "model: parse language %q", l.Language)
	}
	out := Locale{Language: base.String()}
	if c := strings.TrimSpace(l.Country); c != "" {
		if region, err := language.ParseRegion(c); err == nil {
			out.Country = region.String()
		}
	}
	return out, nil
}

// Tag returns the BCP 47 tag for the locale, e.g. "en-US".
func (l Locale) Tag() string {
	n, err := l.Normalize()
	if err != nil {
		return l.Language
	}
	if n.Country == "" {
		return n.Language
	}
	return n.Language + "-" + n.Country
}

// GeocodeQuery is a forward geocoding request.
type GeocodeQuery struct {
	Name       string `json:"name"`
	MaxResults int    `json:"max_results"`
	Locale     Locale `json:"locale"`
}

// NotificationSpec describes the foreground notification shown while
// background location is enabled.
type NotificationSpec struct {
	ContentTitle string `json:"content_title" yaml:"content_title"`
	ContentText  string `json:"content_text" yaml:"content_text"`
	Category     string `json:"category" yaml:"category"`
	Priority     int    `json:"priority" yaml:"priority"`
	ChannelName  string `json:"channel_name" yaml:"channel_name"`
	DefType      string `json:"def_type" yaml:"def_type"`
	ResourceName string `json:"resource_name" yaml:"resource_name"`
}

// Validate checks the fields the platform requires to post the notification.
func (n NotificationSpec) Validate() error {
	if n.ContentTitle == "" {
		return eris.New("model: notification content_title is required")
	}
	if n.ChannelName == "" {
		return eris.New("model: notification channel_name is required")
	}
	if n.Priority < -2 || n.Priority > 2 {
		return eris.Errorf("model: notification priority %d out of range [-2, 2]", n.Priority)
	}
	return nil
}
