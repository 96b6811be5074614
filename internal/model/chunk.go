package model

// Chunk is a byte-bounded batch of serialized nodes sent to the model in one call.
type Chunk struct {
	// Seq is the zero-based position of the chunk in the packer output.
	Seq int `json:"seq"`

	// NodeRefs lists the packed node indices in payload order.
	NodeRefs []int `json:"node_refs"`

	// SerializedBytes is len(Payload). Never larger than the packer's limit.
	SerializedBytes int `json:"serialized_bytes"`

	// GroupBoundaries lists the father indices whose cluster is opened in this
	// chunk, including clusters continued from the previous chunk.
	GroupBoundaries []int `json:"group_boundaries"`

	// Payload is the text rendered into the prompt.
	Payload string `json:"-"`
}

// Decision is one verdict about one node, produced by a model call or a rule.
// Decisions are merged into the tree by node index and then discarded.
type Decision struct {
	NodeIndex int     `json:"node_index"`
	Stage     Stage   `json:"stage"`
	Outcome   Outcome `json:"outcome"`

	// Category is the verdict of the category stage.
	Category Category `json:"category"`

	// Drop is the verdict of the pruning stage: true removes the node's whole subtree.
	Drop bool `json:"drop"`

	Confidence   float64 `json:"confidence"`
	RawModelText string  `json:"raw_model_text,omitempty"`
}

// Verdict renders the decision's verdict as text.
func (d Decision) Verdict() string {
	if d.Stage == StagePruning {
		if d.Drop {
			return "DROP"
		}
		return "KEEP"
	}
	return d.Category.String()
}
