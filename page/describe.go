package page

import (
	"fmt"
	"strings"
)

// DescribeOptions controls the diagnostic traversal (§4.8).
type DescribeOptions struct {
	// ReadOffLinePage, when true, asks storage to materialize a
	// non-resident child just to describe it. When false (the
	// default), an off-line child is reported as such without
	// touching disk.
	ReadOffLinePage bool
	Storage         Storage
}

// Describe renders a recursive, indented dump of the subtree rooted at
// n, for diagnostics only — it exercises the read path but plays no
// role in correctness (§4.8).
func (n *NodePage[K]) Describe(opts DescribeOptions) string {
	var b strings.Builder
	n.describeInto(&b, "", opts)
	return b.String()
}

func (n *NodePage[K]) describeInto(b *strings.Builder, indent string, opts DescribeOptions) {
	fmt.Fprintf(b, "%sNodePage keys=%d pos=%d mem=%d\n", indent, len(n.keys), n.Pos(), n.memory)
	fmt.Fprintf(b, "%schildren: %d\n", indent, len(n.children))
	for i, c := range n.children {
		fmt.Fprintf(b, "%s  [%d]\n", indent, i)
		if p := c.residentPage(); p != nil {
			if child, ok := p.(*NodePage[K]); ok {
				child.describeInto(b, indent+"    ", opts)
				continue
			}
			fmt.Fprintf(b, "%s    leaf (resident)\n", indent)
			continue
		}
		if opts.ReadOffLinePage && opts.Storage != nil {
			p, err := c.GetPage(opts.Storage)
			if err != nil {
				fmt.Fprintf(b, "%s    *** read error: %v ***\n", indent, err)
				continue
			}
			if child, ok := p.(*NodePage[K]); ok {
				child.describeInto(b, indent+"    ", opts)
				continue
			}
			fmt.Fprintf(b, "%s    leaf (read on demand)\n", indent)
			continue
		}
		fmt.Fprintf(b, "%s    *** off-line *** pos=%d\n", indent, c.Pos())
	}
}
