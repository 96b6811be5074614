// Package config provides the configuration of univcrawl: crawl bounds,
// model settings, the keyword lists of the link policy and the per-site
// YAML configuration file.
package config
