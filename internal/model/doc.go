// Package model defines the data shared by every crawl stage.
//
// This package contains the following main types:
//   - Node: one page or file discovered under a seed URL
//   - Tree: the arena of nodes of one crawl, indexed by Node.Index
//   - Chunk: a slice of the tree small enough for one model request
//   - Task: the lifecycle record of one seed URL
//
// Nodes reference their father by index instead of by pointer so a tree
// can be stored row by row and restored after an interrupted run.
package model
