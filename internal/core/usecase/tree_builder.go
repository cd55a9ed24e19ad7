package usecase

import (
	"strings"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

// TreeBuilder merges extractor blocks and image captions into the
// hierarchical document tree the rest of the pipeline walks.
type TreeBuilder struct{}

func NewTreeBuilder() *TreeBuilder {
	return &TreeBuilder{}
}

// Build walks blocks in document order keeping a stack of open sections by
// depth. A heading of depth d closes any open sections of depth >= d.
// Image captions are inserted at their reading-order positions.
func (b *TreeBuilder) Build(title string, extracted *ports.ExtractedDocument, captions map[int]string) *domain.DocumentTree {
	tree := domain.NewDocumentTree(title)

	// stack of open section node indices; stack[0] is the root.
	stack := []int{0}
	depthOf := func(idx int) int { return tree.Nodes[idx].Depth }

	emitImages := func(position int) {
		for _, img := range extracted.Images {
			if img.ReadingOrder != position {
				continue
			}
			caption, ok := captions[img.ReadingOrder]
			if !ok || caption == "" {
				continue
			}
			parent := stack[len(stack)-1]
			tree.AddNode(parent, domain.Node{
				Kind:          domain.NodeImageDescription,
				Content:       caption,
				PageNumber:    img.PageNumber,
				Depth:         depthOf(parent) + 1,
				HierarchyPath: b.pathUnder(tree, parent),
			})
		}
	}

	for i, block := range extracted.Blocks {
		emitImages(i)

		switch block.Role {
		case ports.BlockTitle, ports.BlockHeading:
			depth := block.Depth
			if depth < 1 {
				depth = 1
			}
			for len(stack) > 1 && depthOf(stack[len(stack)-1]) >= depth {
				stack = stack[:len(stack)-1]
			}
			parent := stack[len(stack)-1]
			idx := tree.AddNode(parent, domain.Node{
				Kind:          domain.NodeSection,
				Title:         strings.TrimSpace(block.Text),
				Depth:         depth,
				PageNumber:    block.PageNumber,
				HierarchyPath: b.pathUnder(tree, parent),
			})
			stack = append(stack, idx)

		case ports.BlockTable:
			parent := stack[len(stack)-1]
			tree.AddNode(parent, domain.Node{
				Kind:          domain.NodeTable,
				Content:       serializeRows(block.Rows),
				PageNumber:    block.PageNumber,
				Depth:         depthOf(parent) + 1,
				HierarchyPath: b.pathUnder(tree, parent),
			})

		default:
			text := strings.TrimSpace(block.Text)
			if text == "" {
				continue
			}
			parent := stack[len(stack)-1]
			tree.AddNode(parent, domain.Node{
				Kind:          domain.NodeParagraph,
				Content:       text,
				PageNumber:    block.PageNumber,
				Depth:         depthOf(parent) + 1,
				HierarchyPath: b.pathUnder(tree, parent),
			})
		}
	}

	emitImages(len(extracted.Blocks))
	return tree
}

// pathUnder is the parent's path extended by the parent's title when the
// parent is a section.
func (b *TreeBuilder) pathUnder(tree *domain.DocumentTree, parent int) []string {
	p := &tree.Nodes[parent]
	if p.Kind != domain.NodeSection {
		return append([]string{}, p.HierarchyPath...)
	}
	path := make([]string, 0, len(p.HierarchyPath)+1)
	path = append(path, p.HierarchyPath...)
	path = append(path, p.Title)
	return path
}

// serializeRows renders a table as positional pipe-joined rows.
func serializeRows(rows [][]string) string {
	var lines []string
	for _, row := range rows {
		lines = append(lines, strings.Join(row, " | "))
	}
	return strings.Join(lines, "\n")
}
