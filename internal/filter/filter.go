// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Structured representation of ffmpeg filter graphs.
//
// Graphs are assembled as typed chains and rendered to lavfi textual syntax
// only at the ffmpeg invocation boundary.
package filter

import "strings"

// Filter is a single ffmpeg filter with optional arguments.
type Filter struct {
	Name string
	Args string
}

func (f Filter) render() string {
	if f.Args == "" {
		return f.Name
	}
	return f.Name + "=" + f.Args
}

// Chain is a sequence of filters applied to a labeled input stream producing a
// labeled output stream e.g. "[0:v]crop=1920:800:0:140[dist]".
type Chain struct {
	Input   string
	Output  string
	Filters []Filter
}

// Append adds filter to the end of chain.
func (c *Chain) Append(f ...Filter) {
	c.Filters = append(c.Filters, f...)
}

// Prepend adds filter to the front of chain.
func (c *Chain) Prepend(f ...Filter) {
	c.Filters = append(f, c.Filters...)
}

func (c *Chain) render() string {
	var sb strings.Builder
	sb.WriteString("[" + c.Input + "]")
	// A chain with no filters still needs to pass the stream through to keep
	// output label valid.
	if len(c.Filters) == 0 {
		sb.WriteString("null")
	}
	for i, f := range c.Filters {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(f.render())
	}
	sb.WriteString("[" + c.Output + "]")
	return sb.String()
}

// Graph is a full lavfi filter graph: per-stream chains followed by a
// two-input metric filter consuming the chain outputs.
type Graph struct {
	Chains []Chain
	// Metric filter fed with labeled outputs of Chains, in order.
	Metric Filter
}

// Render serializes graph to ffmpeg lavfi syntax.
func (g *Graph) Render() string {
	var parts []string
	var labels strings.Builder
	for _, c := range g.Chains {
		parts = append(parts, c.render())
		labels.WriteString("[" + c.Output + "]")
	}
	parts = append(parts, labels.String()+g.Metric.render())
	return strings.Join(parts, ";")
}
