// Package partition splits a classified tree into a high-confidence and a
// low-confidence output and lists the files to hand off for download.
package partition
