// Package chunker packs tree nodes into byte-bounded text chunks for the model.
//
// Nodes are rendered one line each and grouped into clusters by father:
//
//	-- GROUP START (Father: 12) --
//	FATHER -> 12 | 3 | 入試情報 | Top > 入試情報 | 学部入試 | /admission/
//	  CHILD -> 40 | 12 | 学部入試 | Top > 入試情報 > 学部入試 | 募集要項 | /admission/guide.pdf
//	-- GROUP END --
//
// A cluster that does not fit in the remaining space of a chunk continues in
// the next chunk under a repeated header, so the model always sees which
// father a child belongs to.
package chunker
