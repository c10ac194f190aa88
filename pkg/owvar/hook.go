// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import "sort"

// Handler takes care of type tags the dispatcher does not decode itself.
// TryHandle runs synchronously inside the poll and must not block; it
// reports whether it consumed the command.
type Handler interface {
	TryHandle(tag uint8) bool
}

// HandlerFunc adapts a plain function to the Handler interface
type HandlerFunc func(tag uint8) bool

// TryHandle calls f(tag)
func (f HandlerFunc) TryHandle(tag uint8) bool {
	return f(tag)
}

// TagHandler accepts a fixed set of tags and counts how often each one was
// seen. It is what the CLI installs from the [hook] config section.
type TagHandler struct {
	accept map[uint8]bool
	hits   map[uint8]uint64
}

// NewTagHandler creates a handler accepting the given tags
func NewTagHandler(tags ...uint8) *TagHandler {
	h := &TagHandler{
		accept: make(map[uint8]bool, len(tags)),
		hits:   make(map[uint8]uint64),
	}
	for _, t := range tags {
		h.accept[t] = true
	}
	return h
}

// TryHandle implements Handler
func (h *TagHandler) TryHandle(tag uint8) bool {
	if !h.accept[tag] {
		return false
	}
	h.hits[tag]++
	return true
}

// Hits returns how many times tag was accepted
func (h *TagHandler) Hits(tag uint8) uint64 {
	return h.hits[tag]
}

// Tags returns the accepted tags in ascending order
func (h *TagHandler) Tags() []uint8 {
	tags := make([]uint8, 0, len(h.accept))
	for t := range h.accept {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
