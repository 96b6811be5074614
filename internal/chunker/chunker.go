package chunker

import (
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/nao1215/univcrawl/internal/model"
)

// DefaultMaxChunkBytes is the chunk budget used when none is configured.
const DefaultMaxChunkBytes = 16 * 1024

const (
	footer      = "-- GROUP END --\n\n"
	fatherLabel = "FATHER -> "
	childLabel  = "  CHILD -> "
)

// LineFormatter renders one node as a single line without trailing newline.
type LineFormatter func(n *model.Node, shortURL string) string

// Option configures a Packer.
type Option func(*Packer)

// WithBaseURL sets the URL that links are shortened against.
func WithBaseURL(base string) Option {
	return func(p *Packer) {
		p.baseURL = base
	}
}

// WithLineFormatter replaces the default node line format.
func WithLineFormatter(f LineFormatter) Option {
	return func(p *Packer) {
		if f != nil {
			p.format = f
		}
	}
}

// Packer turns a node sequence into chunks of at most maxBytes bytes.
// A Packer holds no state between calls to Pack.
type Packer struct {
	tree     *model.Tree
	maxBytes int
	baseURL  string
	format   LineFormatter
}

// New creates a Packer over tree.
func New(tree *model.Tree, maxBytes int, opts ...Option) *Packer {
	p := &Packer{
		tree:     tree,
		maxBytes: maxBytes,
		format:   DefaultLine,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultLine renders "Index | FatherIndex | FatherTitle | Breadcrumb | Title | ShortURL".
func DefaultLine(n *model.Node, shortURL string) string {
	return fmt.Sprintf("%d | %d | %s | %s | %s | %s",
		n.Index, n.FatherIndex, clean(n.FatherTitle), clean(n.BreadcrumbString()), clean(n.Title), shortURL)
}

// Order returns nodes grouped by father. Fathers appear in the order their
// first child appears in nodes and children keep their relative order.
func Order(tree *model.Tree, nodes []int) []int {
	groups := make(map[int][]int)
	var fathers []int
	for _, i := range nodes {
		n := tree.Node(i)
		if n == nil {
			continue
		}
		if _, ok := groups[n.FatherIndex]; !ok {
			fathers = append(fathers, n.FatherIndex)
		}
		groups[n.FatherIndex] = append(groups[n.FatherIndex], i)
	}

	out := make([]int, 0, len(nodes))
	for _, f := range fathers {
		out = append(out, groups[f]...)
	}
	return out
}

// Pack returns the chunks for nodes, in order. Consecutive nodes sharing a
// father form one cluster, so callers normally pass the result of Order.
// Concatenating NodeRefs of all chunks yields nodes unchanged.
//
// The sequence is lazy and can be ranged over any number of times. If a
// single node cannot fit in a chunk even on its own, the sequence yields an
// *model.OversizedNodeError and ends.
func (p *Packer) Pack(nodes []int) iter.Seq2[model.Chunk, error] {
	return func(yield func(model.Chunk, error) bool) {
		b := &builder{p: p, yield: yield}
		for _, i := range nodes {
			n := p.tree.Node(i)
			if n == nil {
				yield(model.Chunk{}, fmt.Errorf("%w: node %d", model.ErrDanglingParent, i))
				return
			}
			if !b.add(n) {
				return
			}
		}
		b.flush()
	}
}

// builder accumulates one chunk at a time.
type builder struct {
	p     *Packer
	yield func(model.Chunk, error) bool

	seq        int
	buf        strings.Builder
	refs       []int
	boundaries []int

	// father is the cluster currently open in buf, valid when open is true.
	father int
	open   bool
	done   bool
}

// add appends n to the current chunk, closing and yielding chunks as needed.
// It returns false when iteration must stop.
func (b *builder) add(n *model.Node) bool {
	line := childLabel + b.p.format(n, ShortURL(b.p.baseURL, n.URL)) + "\n"

	if b.open && b.father == n.FatherIndex {
		if b.buf.Len()+len(line)+len(footer) <= b.p.maxBytes {
			b.write(n.Index, line)
			return true
		}
		// Cluster continues in the next chunk.
		if !b.emit() {
			return false
		}
		return b.startCluster(n, line)
	}

	if b.open {
		b.buf.WriteString(footer)
		b.open = false
	}
	head := b.header(n.FatherIndex, line)
	if b.buf.Len()+len(head)+len(line)+len(footer) > b.p.maxBytes && len(b.refs) > 0 {
		if !b.emit() {
			return false
		}
	}
	return b.startCluster(n, line)
}

// startCluster opens a cluster for n's father in the current chunk and writes line.
func (b *builder) startCluster(n *model.Node, line string) bool {
	head := b.header(n.FatherIndex, line)
	if b.buf.Len()+len(head)+len(line)+len(footer) > b.p.maxBytes {
		b.done = true
		b.yield(model.Chunk{}, &model.OversizedNodeError{
			NodeIndex: n.Index,
			Size:      len(head) + len(line) + len(footer),
			Limit:     b.p.maxBytes,
		})
		return false
	}
	b.buf.WriteString(head)
	b.boundaries = append(b.boundaries, n.FatherIndex)
	b.father = n.FatherIndex
	b.open = true
	b.write(n.Index, line)
	return true
}

// header renders the cluster opening for father. The FATHER line is left out
// when it would not leave room for line in an empty chunk.
func (b *builder) header(father int, line string) string {
	start := fmt.Sprintf("-- GROUP START (Father: %d) --\n", father)
	fn := b.p.tree.Node(father)
	if fn == nil {
		return start
	}
	full := start + fatherLabel + b.p.format(fn, ShortURL(b.p.baseURL, fn.URL)) + "\n"
	if len(full)+len(line)+len(footer) > b.p.maxBytes {
		return start
	}
	return full
}

func (b *builder) write(idx int, line string) {
	b.buf.WriteString(line)
	b.refs = append(b.refs, idx)
}

// emit closes the current chunk and hands it to the consumer.
func (b *builder) emit() bool {
	if b.open {
		b.buf.WriteString(footer)
		b.open = false
	}
	payload := b.buf.String()
	chunk := model.Chunk{
		Seq:             b.seq,
		NodeRefs:        b.refs,
		SerializedBytes: len(payload),
		GroupBoundaries: b.boundaries,
		Payload:         payload,
	}
	b.seq++
	b.buf.Reset()
	b.refs = nil
	b.boundaries = nil
	if !b.yield(chunk, nil) {
		b.done = true
		return false
	}
	return true
}

func (b *builder) flush() {
	if b.done || len(b.refs) == 0 {
		return
	}
	b.emit()
}

// Collect drains a chunk sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[model.Chunk, error]) ([]model.Chunk, error) {
	var chunks []model.Chunk
	for c, err := range seq {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// ShortURL returns target relative to base when both share scheme and host,
// and target unchanged otherwise. The site root collapses to base itself.
func ShortURL(base, target string) string {
	if base == "" {
		return target
	}
	bu, err := url.Parse(base)
	if err != nil {
		return target
	}
	tu, err := url.Parse(target)
	if err != nil {
		return target
	}
	if !strings.EqualFold(bu.Host, tu.Host) || !strings.EqualFold(bu.Scheme, tu.Scheme) {
		return target
	}

	short := tu.EscapedPath()
	if short == "" {
		short = "/"
	}
	if tu.RawQuery != "" {
		short += "?" + tu.RawQuery
	}
	if short == "/" {
		return base
	}
	return short
}

// clean keeps a field on one line and free of the column separator.
func clean(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ", "|", "/").Replace(s)
	return strings.TrimSpace(s)
}
