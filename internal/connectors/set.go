package connectors

import (
	"context"

	"github.com/chrissnell/launchplanner/internal/keys"
)

// ProbeFunc runs one cheap authenticated call with a specific key
type ProbeFunc func(ctx context.Context, key string) error

// Set holds one connector per vendor, all sharing a Client
type Set struct {
	Client    *Client
	Census    *Census
	WorldBank *WorldBank
	FRED      *FRED
	YouTube   *YouTube
	News      *NewsAPI
	SerpAPI   *SerpAPI
	Facebook  *Facebook
	Instagram *Instagram
	Bing      *Bing
	Twitter   *Twitter
	Reddit    *Reddit
}

// NewSet builds every connector on top of c
func NewSet(c *Client) *Set {
	return &Set{
		Client:    c,
		Census:    NewCensus(c),
		WorldBank: NewWorldBank(c),
		FRED:      NewFRED(c),
		YouTube:   NewYouTube(c),
		News:      NewNewsAPI(c),
		SerpAPI:   NewSerpAPI(c),
		Facebook:  NewFacebook(c),
		Instagram: NewInstagram(c),
		Bing:      NewBing(c),
		Twitter:   NewTwitter(c),
		Reddit:    NewReddit(c),
	}
}

// Prober returns the probe for a keyed service
func (s *Set) Prober(svc keys.Service) (ProbeFunc, bool) {
	switch svc {
	case keys.NewsAPI:
		return s.News.Probe, true
	case keys.YouTube:
		return s.YouTube.Probe, true
	case keys.FRED:
		return s.FRED.Probe, true
	case keys.Facebook:
		return s.Facebook.Probe, true
	case keys.SerpAPI:
		return s.SerpAPI.Probe, true
	case keys.Bing:
		return s.Bing.Probe, true
	case keys.Twitter:
		return s.Twitter.Probe, true
	case keys.Reddit:
		return s.Reddit.Probe, true
	case keys.Instagram:
		return s.Instagram.Probe, true
	case keys.Census:
		return s.Census.Probe, true
	}
	return nil, false
}
