// Package cii builds, validates and reads Cross-Industry Invoice XML documents.
package cii

import (
	"github.com/beevik/etree"
)

// CII namespace URIs
const (
	NamespaceRSM = "urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
	NamespaceRAM = "urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"
	NamespaceUDT = "urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100"
	NamespaceQDT = "urn:un:unece:uncefact:data:standard:QualifiedDataType:100"
)

// Namespaces maps prefixes to namespace URIs
type Namespaces map[string]string

// KnownNamespaces is the prefix table every locator is written against
func KnownNamespaces() Namespaces {
	return Namespaces{
		"rsm": NamespaceRSM,
		"ram": NamespaceRAM,
		"udt": NamespaceUDT,
		"qdt": NamespaceQDT,
	}
}

// ResolveNamespaces merges the prefixes declared on root over the known table.
// The default namespace is never mapped.
func ResolveNamespaces(root *etree.Element) Namespaces {
	ns := KnownNamespaces()
	if root == nil {
		return ns
	}
	for _, a := range root.Attr {
		if a.Space == "xmlns" && a.Key != "" {
			ns[a.Key] = a.Value
		}
	}
	return ns
}

// namespaceOf returns the namespace URI an element is bound to.
// A prefix with no in-scope declaration falls back to ns.
func namespaceOf(e *etree.Element, ns Namespaces) string {
	for cur := e; cur != nil; cur = cur.Parent() {
		for _, a := range cur.Attr {
			if e.Space == "" {
				if a.Space == "" && a.Key == "xmlns" {
					return a.Value
				}
			} else if a.Space == "xmlns" && a.Key == e.Space {
				return a.Value
			}
		}
	}
	if e.Space != "" {
		return ns[e.Space]
	}
	return ""
}
