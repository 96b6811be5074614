package config

import (
	"maps"
	"net/url"
	"strings"
)

// SiteConfig holds the settings for one university site.
type SiteConfig struct {
	// School is the display name of the university, passed to the model.
	School string `yaml:"school,omitempty"`

	// Cookie is an HTTP cookie sent with every request to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent with every request to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the global crawl depth. Zero uses the global value.
	Depth int `yaml:"depth,omitempty"`

	// MaxChildren overrides the sampling cap. Zero uses the global value.
	MaxChildren int `yaml:"maxChildren,omitempty"`

	// Keywords are extra heuristic keywords for link following.
	Keywords []string `yaml:"keywords,omitempty"`

	// Blacklist are extra keywords whose links are never followed.
	Blacklist []string `yaml:"blacklist,omitempty"`

	// IgnorePatterns are URL path globs skipped during crawling.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL path globs; when set, only matching pages are fetched.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .univcrawl configuration file.
type File struct {
	// Sites maps a host name (e.g. "www.chiba-u.ac.jp") to its configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host merged over the defaults.
// A leading "www." is ignored on both sides.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	siteConfig, ok := cf.Sites[host]
	if !ok {
		want := strings.TrimPrefix(strings.ToLower(host), "www.")
		for k, v := range cf.Sites {
			if strings.TrimPrefix(strings.ToLower(k), "www.") == want {
				siteConfig, ok = v, true
				break
			}
		}
	}
	if !ok {
		return result
	}

	if siteConfig.School != "" {
		result.School = siteConfig.School
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.MaxChildren != 0 {
		result.MaxChildren = siteConfig.MaxChildren
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	// Keyword lists add up; pattern lists replace.
	result.Keywords = append(append([]string(nil), cf.Defaults.Keywords...), siteConfig.Keywords...)
	result.Blacklist = append(append([]string(nil), cf.Defaults.Blacklist...), siteConfig.Blacklist...)
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	return result
}

// ForURL returns the site configuration of the host of rawURL. A nil File
// or an unparsable URL yields the zero SiteConfig.
func (cf *File) ForURL(rawURL string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return cf.Defaults
	}
	return cf.GetSiteConfig(u.Hostname())
}
