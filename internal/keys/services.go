// Package keys manages vendor API keys: it merges them from several sources
// in priority order and rotates through each service's keys round-robin,
// taking keys that keep failing out of rotation.
package keys

import "sort"

// Service identifies a vendor API
type Service string

const (
	NewsAPI   Service = "newsapi"
	YouTube   Service = "youtube"
	FRED      Service = "fred"
	Facebook  Service = "facebook"
	SerpAPI   Service = "serpapi"
	Bing      Service = "bing"
	Twitter   Service = "twitter"
	Reddit    Service = "reddit"
	Instagram Service = "instagram"
	Census    Service = "census"
)

// ServiceInfo describes where a service's keys come from and how to get one
type ServiceInfo struct {
	Service     Service
	DisplayName string
	// EnvVars are the variable names holding the key, in lookup order.
	EnvVars []string
	// SecretVar, when set, holds a second credential that is joined to the
	// EnvVars value as "id:secret".
	SecretVar string
	SignupURL string
	Notes     string
}

var registry = map[Service]ServiceInfo{
	NewsAPI: {
		Service:     NewsAPI,
		DisplayName: "News API",
		EnvVars:     []string{"NEWS_API_KEY", "NEWSAPI_KEY"},
		SignupURL:   "https://newsapi.org/register",
		Notes:       "The free developer plan allows 100 requests per day and only works from localhost.",
	},
	YouTube: {
		Service:     YouTube,
		DisplayName: "YouTube Data API v3",
		EnvVars:     []string{"YOUTUBE_API_KEY"},
		SignupURL:   "https://console.cloud.google.com/apis/library/youtube.googleapis.com",
		Notes:       "Enable the YouTube Data API v3 for the project, then create an API key. Search calls cost 100 quota units.",
	},
	FRED: {
		Service:     FRED,
		DisplayName: "FRED (St. Louis Fed)",
		EnvVars:     []string{"FRED_API_KEY"},
		SignupURL:   "https://fred.stlouisfed.org/docs/api/api_key.html",
		Notes:       "Keys are 32 lower-case alphanumeric characters.",
	},
	Facebook: {
		Service:     Facebook,
		DisplayName: "Facebook Graph API",
		EnvVars:     []string{"FACEBOOK_ACCESS_TOKEN", "FB_ACCESS_TOKEN"},
		SignupURL:   "https://developers.facebook.com/tools/explorer/",
		Notes:       "Graph Explorer tokens expire after about an hour; exchange them for a long-lived token.",
	},
	SerpAPI: {
		Service:     SerpAPI,
		DisplayName: "SerpApi",
		EnvVars:     []string{"SERPAPI_KEY", "SERPAPI_API_KEY"},
		SignupURL:   "https://serpapi.com/users/sign_up",
		Notes:       "The free plan includes 100 searches per month.",
	},
	Bing: {
		Service:     Bing,
		DisplayName: "Bing Web Search",
		EnvVars:     []string{"BING_SEARCH_KEY", "BING_API_KEY"},
		SignupURL:   "https://portal.azure.com/#create/microsoft.bingsearch",
		Notes:       "Create a Bing Search resource in Azure and copy one of its two keys.",
	},
	Twitter: {
		Service:     Twitter,
		DisplayName: "Twitter API v2",
		EnvVars:     []string{"TWITTER_BEARER_TOKEN"},
		SignupURL:   "https://developer.twitter.com/en/portal/dashboard",
		Notes:       "Recent tweet counts require at least the Basic access tier.",
	},
	Reddit: {
		Service:     Reddit,
		DisplayName: "Reddit API",
		EnvVars:     []string{"REDDIT_CLIENT_ID"},
		SecretVar:   "REDDIT_CLIENT_SECRET",
		SignupURL:   "https://www.reddit.com/prefs/apps",
		Notes:       "Create a \"script\" app; both the client ID and the client secret are required.",
	},
	Instagram: {
		Service:     Instagram,
		DisplayName: "Instagram Graph API",
		EnvVars:     []string{"INSTAGRAM_ACCESS_TOKEN"},
		SignupURL:   "https://developers.facebook.com/docs/instagram-basic-display-api/getting-started",
		Notes:       "Tokens come from a Facebook app with the Instagram product added.",
	},
	Census: {
		Service:     Census,
		DisplayName: "US Census Bureau",
		EnvVars:     []string{"CENSUS_API_KEY"},
		SignupURL:   "https://api.census.gov/data/key_signup.html",
		Notes:       "Optional: the ACS endpoints answer small volumes of keyless requests.",
	},
}

// Lookup returns the registry entry for a service
func Lookup(s Service) (ServiceInfo, bool) {
	info, ok := registry[s]
	return info, ok
}

// AllServices returns every known service sorted by name
func AllServices() []Service {
	services := make([]Service, 0, len(registry))
	for s := range registry {
		services = append(services, s)
	}
	sort.Slice(services, func(i, j int) bool { return services[i] < services[j] })
	return services
}

// ParseService maps a user-supplied name onto a known service
func ParseService(name string) (Service, bool) {
	s := Service(name)
	_, ok := registry[s]
	return s, ok
}
