package oaipmh

import (
	"fmt"
	"strconv"
	"strings"

	"emperror.dev/errors"
	"github.com/beevik/etree"
)

// nsDeclPrefix reports whether a is a namespace declaration and returns the
// declared prefix, empty for the default namespace.
func nsDeclPrefix(a etree.Attr) (string, bool) {
	switch {
	case a.Space == "" && a.Key == "xmlns":
		return "", true
	case a.Space == "xmlns":
		return a.Key, true
	}
	return "", false
}

// namespaceURI resolves the namespace of el by looking for the declaration of
// its prefix on el and its ancestors.
func namespaceURI(el *etree.Element) string {
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if prefix, ok := nsDeclPrefix(a); ok && prefix == el.Space {
				return a.Value
			}
		}
	}
	return ""
}

func isOAI(el *etree.Element, tag string) bool {
	return el.Tag == tag && namespaceURI(el) == Namespace
}

// child returns the first direct child in the OAI namespace with the given
// local name.
func child(el *etree.Element, tag string) *etree.Element {
	for _, c := range el.ChildElements() {
		if isOAI(c, tag) {
			return c
		}
	}
	return nil
}

func children(el *etree.Element, tag string) []*etree.Element {
	var result []*etree.Element
	for _, c := range el.ChildElements() {
		if isOAI(c, tag) {
			result = append(result, c)
		}
	}
	return result
}

// descendant searches depth first, in document order.
func descendant(el *etree.Element, tag string) *etree.Element {
	for _, c := range el.ChildElements() {
		if isOAI(c, tag) {
			return c
		}
		if d := descendant(c, tag); d != nil {
			return d
		}
	}
	return nil
}

func childText(el *etree.Element, tag string) string {
	if c := child(el, tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func childTexts(el *etree.Element, tag string) []string {
	var result []string
	for _, c := range children(el, tag) {
		if s := strings.TrimSpace(c.Text()); s != "" {
			result = append(result, s)
		}
	}
	return result
}

// payload returns the single element wrapped by el, as in <metadata>,
// <setDescription> or <description>. Empty wrappers and wrappers with more
// than one element yield nil.
func payload(el *etree.Element) *Fragment {
	if el == nil {
		return nil
	}
	elems := el.ChildElements()
	if len(elems) != 1 {
		return nil
	}
	return newFragment(elems[0])
}

func malformed(format string, args ...interface{}) error {
	return errors.WrapIff(ErrMalformedResponse, format, args...)
}

// malformedCause keeps both ErrMalformedResponse and err in the chain.
func malformedCause(err error, what string) error {
	return errors.WithStack(fmt.Errorf("%w: %s: %w", ErrMalformedResponse, what, err))
}

// parseResponse reads a response body and returns the root element. If the
// response carries an error element, the first one is returned as OAIError.
func parseResponse(body []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, malformedCause(err, "cannot parse response")
	}
	root := doc.Root()
	if root == nil {
		return nil, malformed("empty document")
	}
	if e := child(root, "error"); e != nil {
		return nil, OAIError{
			Code:    e.SelectAttrValue("code", ""),
			Message: e.Text(),
		}
	}
	return root, nil
}

func decodeResumptionToken(el *etree.Element) ResumptionToken {
	token := ResumptionToken{Value: el.Text()}
	if s := el.SelectAttrValue("expirationDate", ""); s != "" {
		if t, err := ParseDatestamp(s); err == nil {
			token.ExpirationDate = t
		}
	}
	if v, err := strconv.Atoi(el.SelectAttrValue("completeListSize", "")); err == nil {
		token.CompleteListSize = &v
	}
	if v, err := strconv.Atoi(el.SelectAttrValue("cursor", "")); err == nil {
		token.Cursor = &v
	}
	return token
}

func decodeHeader(el *etree.Element) (Header, error) {
	h := Header{
		Identifier: childText(el, "identifier"),
		SetSpecs:   childTexts(el, "setSpec"),
		Deleted:    el.SelectAttrValue("status", "") == "deleted",
	}
	if h.Identifier == "" {
		return h, malformed("header without identifier")
	}
	t, err := ParseDatestamp(childText(el, "datestamp"))
	if err != nil {
		return h, malformedCause(err, h.Identifier)
	}
	h.Datestamp = t
	return h, nil
}

func decodeRecord(el *etree.Element) (Record, error) {
	var r Record
	if hel := child(el, "header"); hel != nil {
		h, err := decodeHeader(hel)
		if err != nil {
			return r, err
		}
		r.Header = &h
	}
	if r.Header != nil && r.Header.Deleted {
		return r, nil
	}
	r.Metadata = payload(child(el, "metadata"))
	return r, nil
}

func decodeSet(el *etree.Element) (Set, error) {
	s := Set{
		Spec:        childText(el, "setSpec"),
		Name:        childText(el, "setName"),
		Description: payload(child(el, "setDescription")),
	}
	switch {
	case s.Spec == "":
		return s, malformed("set without setSpec")
	case s.Name == "":
		return s, malformed("set %s without setName", s.Spec)
	}
	return s, nil
}

func decodeMetadataFormat(el *etree.Element) (MetadataFormat, error) {
	f := MetadataFormat{
		Prefix:    childText(el, "metadataPrefix"),
		Schema:    childText(el, "schema"),
		Namespace: childText(el, "metadataNamespace"),
	}
	switch {
	case f.Prefix == "":
		return f, malformed("metadataFormat without metadataPrefix")
	case f.Schema == "":
		return f, malformed("metadataFormat %s without schema", f.Prefix)
	case f.Namespace == "":
		return f, malformed("metadataFormat %s without metadataNamespace", f.Prefix)
	}
	return f, nil
}

func decodeIdentify(root *etree.Element) (Identify, error) {
	var id Identify
	el := child(root, "Identify")
	if el == nil {
		return id, malformed("missing Identify element")
	}
	id = Identify{
		RepositoryName:  childText(el, "repositoryName"),
		BaseURL:         childText(el, "baseURL"),
		ProtocolVersion: childText(el, "protocolVersion"),
		AdminEmails:     childTexts(el, "adminEmail"),
		DeletedRecord:   childText(el, "deletedRecord"),
		Granularity:     childText(el, "granularity"),
		Compressions:    childTexts(el, "compression"),
	}
	required := []struct{ tag, value string }{
		{"repositoryName", id.RepositoryName},
		{"baseURL", id.BaseURL},
		{"protocolVersion", id.ProtocolVersion},
		{"deletedRecord", id.DeletedRecord},
		{"granularity", id.Granularity},
	}
	for _, r := range required {
		if r.value == "" {
			return id, malformed("Identify without %s", r.tag)
		}
	}
	t, err := ParseDatestamp(childText(el, "earliestDatestamp"))
	if err != nil {
		return id, malformedCause(err, "earliestDatestamp")
	}
	id.EarliestDatestamp = t
	for _, d := range children(el, "description") {
		if f := payload(d); f != nil {
			id.Descriptions = append(id.Descriptions, f)
		}
	}
	return id, nil
}

func decodeGetRecord(root *etree.Element) (Record, error) {
	container := child(root, VerbGetRecord)
	if container == nil {
		return Record{}, malformed("missing record element")
	}
	el := descendant(container, "record")
	if el == nil {
		return Record{}, malformed("missing record element")
	}
	return decodeRecord(el)
}

// page is the decoded content of one list response.
type page[T any] struct {
	items []T
	token *ResumptionToken
}

// more reports whether another request is needed. A token element with no
// text ends the list just like a missing one.
func (p page[T]) more() bool {
	return p.token != nil && strings.TrimSpace(p.token.Value) != ""
}

// listDecoder returns a function decoding list responses of the given verb,
// where each item element is turned into a T by fn.
func listDecoder[T any](verb, tag string, fn func(*etree.Element) (T, error)) func(*etree.Element) (page[T], error) {
	return func(root *etree.Element) (page[T], error) {
		var p page[T]
		container := child(root, verb)
		if container == nil {
			return p, nil
		}
		for _, el := range children(container, tag) {
			item, err := fn(el)
			if err != nil {
				return p, err
			}
			p.items = append(p.items, item)
		}
		if el := descendant(container, "resumptionToken"); el != nil {
			token := decodeResumptionToken(el)
			p.token = &token
		}
		return p, nil
	}
}

var (
	decodeListSets            = listDecoder(VerbListSets, "set", decodeSet)
	decodeListMetadataFormats = listDecoder(VerbListMetadataFormats, "metadataFormat", decodeMetadataFormat)
	decodeListIdentifiers     = listDecoder(VerbListIdentifiers, "header", decodeHeader)
	decodeListRecords         = listDecoder(VerbListRecords, "record", decodeRecord)
)
