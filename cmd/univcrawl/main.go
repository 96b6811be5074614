// Package main provides the entry point for the univcrawl CLI.
//
// univcrawl crawls university websites, asks a language model which pages
// and files are about admissions, and hands the admissions documents off for
// download.
//
// Usage:
//
//	univcrawl crawl https://www.chiba-u.ac.jp/
//	univcrawl queue add https://www.chiba-u.ac.jp/ --school 千葉大学
//	univcrawl crawl
//
// See --help for all available options.
package main

// main is the entry point for univcrawl.
func main() {
	Execute()
}
