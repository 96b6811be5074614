// Package keyword matches URLs and link texts against keyword lists.
//
// Keywords written in ASCII (news, access, pdf) only match whole tokens, so
// "form" does not fire on "information". Other keywords (入試, お知らせ) match
// as plain substrings because Japanese text has no word separators.
package keyword
