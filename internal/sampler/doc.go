// Package sampler caps the fan-out of a crawl tree before it is sent to the model.
//
// Large university sites routinely have index pages with hundreds of links
// (news archives, faculty lists). Sending all of them to the model would make
// one father dominate every chunk, so each father keeps only its first few
// children in discovery order. The rest are marked SampledOut together with
// everything below them.
package sampler
