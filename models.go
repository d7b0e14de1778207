package oaipmh

import (
	"io"
	"time"

	"github.com/beevik/etree"
)

// Namespace of OAI-PMH 2.0 responses.
const Namespace = "http://www.openarchives.org/OAI/2.0/"

// Fragment is an opaque piece of XML taken from a response, such as record
// metadata or a repository description. It is never interpreted by this
// package.
type Fragment struct {
	el *etree.Element
}

// newFragment detaches a copy of el. Namespace declarations the element
// inherits from its ancestors are declared on the copy, so the fragment
// serializes on its own.
func newFragment(el *etree.Element) *Fragment {
	c := el.Copy()
	declared := make(map[string]bool)
	for _, a := range c.Attr {
		if prefix, ok := nsDeclPrefix(a); ok {
			declared[prefix] = true
		}
	}
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			prefix, ok := nsDeclPrefix(a)
			if !ok || declared[prefix] {
				continue
			}
			declared[prefix] = true
			if prefix == "" {
				c.CreateAttr("xmlns", a.Value)
			} else {
				c.CreateAttr("xmlns:"+prefix, a.Value)
			}
		}
	}
	return &Fragment{el: c}
}

// Tag returns the local name of the root element.
func (f *Fragment) Tag() string {
	return f.el.Tag
}

// Space returns the namespace URI of the root element.
func (f *Fragment) Space() string {
	return namespaceURI(f.el)
}

// Element returns a copy of the root element, which the caller may modify.
func (f *Fragment) Element() *etree.Element {
	return f.el.Copy()
}

// String serializes the fragment.
func (f *Fragment) String() string {
	doc := etree.NewDocument()
	doc.SetRoot(f.el.Copy())
	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}

// WriteTo writes the serialized fragment to w.
func (f *Fragment) WriteTo(w io.Writer) (int64, error) {
	doc := etree.NewDocument()
	doc.SetRoot(f.el.Copy())
	return doc.WriteTo(w)
}

// MarshalText lets fragments appear in JSON or YAML output as XML strings.
func (f *Fragment) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// ResumptionToken is part of OAI flow control (3.5).
type ResumptionToken struct {
	// Value is the token itself, empty for the last page of a list.
	Value string
	// ExpirationDate is zero if the repository did not send one.
	ExpirationDate time.Time
	// CompleteListSize may only be an estimate.
	CompleteListSize *int
	// Cursor counts the elements returned so far, starting at 0.
	Cursor *int
}

// Header is the main response of ListIdentifiers requests and also
// transmitted in ListRecords and GetRecord.
type Header struct {
	Identifier string    `json:"identifier" yaml:"identifier"`
	Datestamp  time.Time `json:"datestamp" yaml:"datestamp"`
	SetSpecs   []string  `json:"sets,omitempty" yaml:"sets,omitempty"`
	Deleted    bool      `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// Record is a header plus metadata. Both may be missing: deleted records
// carry no metadata, and some repositories omit the header.
type Record struct {
	Header   *Header   `json:"header,omitempty" yaml:"header,omitempty"`
	Metadata *Fragment `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Set is a grouping of items. Specs are hierarchical, e.g. "math:algebra".
type Set struct {
	Spec        string    `json:"spec" yaml:"spec"`
	Name        string    `json:"name" yaml:"name"`
	Description *Fragment `json:"description,omitempty" yaml:"description,omitempty"`
}

// MetadataFormat is a format the repository can disseminate.
type MetadataFormat struct {
	Prefix    string `json:"prefix" yaml:"prefix"`
	Schema    string `json:"schema" yaml:"schema"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// Identify response.
type Identify struct {
	RepositoryName    string      `json:"name" yaml:"name"`
	BaseURL           string      `json:"url" yaml:"url"`
	ProtocolVersion   string      `json:"version" yaml:"version"`
	AdminEmails       []string    `json:"email" yaml:"email"`
	EarliestDatestamp time.Time   `json:"earliest" yaml:"earliest"`
	DeletedRecord     string      `json:"delete" yaml:"delete"`
	Granularity       string      `json:"granularity" yaml:"granularity"`
	Compressions      []string    `json:"compression,omitempty" yaml:"compression,omitempty"`
	Descriptions      []*Fragment `json:"description,omitempty" yaml:"description,omitempty"`
}
