// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package htmlutil has small helpers on top of golang.org/x/net/html.
package htmlutil

import (
	"golang.org/x/net/html"
)

// Visit walks the node tree depth-first, calling fn on every node; a non-nil
// error from fn aborts the walk.
func Visit(node *html.Node, fn func(*html.Node) error) error {
	if err := fn(node); err != nil {
		return err
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if err := Visit(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// Attr returns the value of the named (un-namespaced) attribute.
func Attr(node *html.Node, name string) (val string, ok bool) {
	if node == nil {
		return "", false
	}
	for _, attr := range node.Attr {
		if attr.Namespace == "" && attr.Key == name {
			return attr.Val, true
		}
	}
	return "", false
}

// IsElement reports whether the node is an element with the given tag name.
func IsElement(node *html.Node, tag string) bool {
	return node.Type == html.ElementNode && node.Data == tag
}
