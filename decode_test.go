package oaipmh

import (
	"strings"
	"testing"

	"emperror.dev/errors"
	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseError(t *testing.T) {
	_, err := parseResponse([]byte(envelope(
		`<error code="badArgument">Illegal argument</error>`,
		`<error code="badVerb">Illegal verb</error>`)))
	assert.Equal(t, OAIError{Code: "badArgument", Message: "Illegal argument"}, err)
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestParseResponseUnknownCode(t *testing.T) {
	_, err := parseResponse([]byte(oaiError("tooBusy", "try later")))
	assert.ErrorIs(t, err, ErrProtocol)
	assert.True(t, IsKind(err, KindProtocol))
}

func TestDecodePrefixedNamespace(t *testing.T) {
	body := `<?xml version="1.0"?>
<oai:OAI-PMH xmlns:oai="http://www.openarchives.org/OAI/2.0/">
  <oai:ListIdentifiers>
    <oai:header><oai:identifier>oai:x:1</oai:identifier><oai:datestamp>2000-01-01</oai:datestamp></oai:header>
    <oai:resumptionToken>next</oai:resumptionToken>
  </oai:ListIdentifiers>
</oai:OAI-PMH>`
	root, err := parseResponse([]byte(body))
	require.NoError(t, err)
	p, err := decodeListIdentifiers(root)
	require.NoError(t, err)
	require.Len(t, p.items, 1)
	assert.Equal(t, "oai:x:1", p.items[0].Identifier)
	assert.True(t, p.more())
	assert.Equal(t, "next", p.token.Value)
}

func TestDecodeIgnoresForeignElements(t *testing.T) {
	body := envelope(`<ListIdentifiers>
  <header xmlns="urn:other"><identifier>foreign</identifier></header>
  ` + headerXML("oai:x:1", "2000-01-01") + `
</ListIdentifiers>`)
	root, err := parseResponse([]byte(body))
	require.NoError(t, err)
	p, err := decodeListIdentifiers(root)
	require.NoError(t, err)
	require.Len(t, p.items, 1)
	assert.Equal(t, "oai:x:1", p.items[0].Identifier)
	assert.False(t, p.more())
}

func TestDecodeDeletedRecord(t *testing.T) {
	body := envelope(`<ListRecords><record>
  <header status="deleted"><identifier>oai:x:9</identifier><datestamp>2001-01-01</datestamp></header>
</record></ListRecords>`)
	root, err := parseResponse([]byte(body))
	require.NoError(t, err)
	p, err := decodeListRecords(root)
	require.NoError(t, err)
	require.Len(t, p.items, 1)
	assert.True(t, p.items[0].Header.Deleted)
	assert.Nil(t, p.items[0].Metadata)
}

func TestDecodeDeletedRecordIgnoresMetadata(t *testing.T) {
	body := envelope(`<ListRecords><record>
  <header status="deleted"><identifier>oai:x:9</identifier><datestamp>2001-01-01</datestamp></header>
  <metadata><dc:title xmlns:dc="http://purl.org/dc/elements/1.1/">Leftover</dc:title></metadata>
</record></ListRecords>`)
	root, err := parseResponse([]byte(body))
	require.NoError(t, err)
	p, err := decodeListRecords(root)
	require.NoError(t, err)
	require.Len(t, p.items, 1)
	require.NotNil(t, p.items[0].Header)
	assert.True(t, p.items[0].Header.Deleted)
	assert.Nil(t, p.items[0].Metadata)
}

func TestDecodeRecordWithoutHeader(t *testing.T) {
	body := envelope(`<GetRecord><record>
  <metadata><dc:title xmlns:dc="http://purl.org/dc/elements/1.1/">Headless</dc:title></metadata>
</record></GetRecord>`)
	root, err := parseResponse([]byte(body))
	require.NoError(t, err)
	rec, err := decodeGetRecord(root)
	require.NoError(t, err)
	assert.Nil(t, rec.Header)
	require.NotNil(t, rec.Metadata)
	assert.Equal(t, "title", rec.Metadata.Tag())
	assert.Contains(t, rec.Metadata.String(), "Headless")
}

func TestDecodeMetadataWithSeveralChildren(t *testing.T) {
	body := envelope(`<ListRecords><record>` + headerXML("oai:x:1", "2001-01-01") + `
  <metadata><a xmlns="urn:a"/><b xmlns="urn:b"/></metadata>
</record></ListRecords>`)
	root, err := parseResponse([]byte(body))
	require.NoError(t, err)
	p, err := decodeListRecords(root)
	require.NoError(t, err)
	require.Len(t, p.items, 1)
	assert.Nil(t, p.items[0].Metadata)
}

func TestDecodeMalformedHeader(t *testing.T) {
	var tests = []string{
		`<ListIdentifiers><header><datestamp>2000-01-01</datestamp></header></ListIdentifiers>`,
		`<ListIdentifiers><header><identifier>oai:x:1</identifier><datestamp>yesterday</datestamp></header></ListIdentifiers>`,
		`<ListIdentifiers><header><identifier>oai:x:1</identifier></header></ListIdentifiers>`,
	}
	for _, test := range tests {
		root, err := parseResponse([]byte(envelope(test)))
		require.NoError(t, err)
		_, err = decodeListIdentifiers(root)
		assert.ErrorIs(t, err, ErrMalformedResponse, test)
	}
}

func TestDecodeSetDescription(t *testing.T) {
	body := envelope(`<ListSets><set>
  <setSpec>music</setSpec>
  <setName>Music collection</setName>
  <setDescription>
    <oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/"
               xmlns:dc="http://purl.org/dc/elements/1.1/">
      <dc:description>Scores</dc:description>
    </oai_dc:dc>
  </setDescription>
</set></ListSets>`)
	root, err := parseResponse([]byte(body))
	require.NoError(t, err)
	p, err := decodeListSets(root)
	require.NoError(t, err)
	require.Len(t, p.items, 1)
	s := p.items[0]
	assert.Equal(t, "music", s.Spec)
	assert.Equal(t, "Music collection", s.Name)
	require.NotNil(t, s.Description)
	assert.Equal(t, "http://www.openarchives.org/OAI/2.0/oai_dc/", s.Description.Space())
}

func TestFragmentCarriesInheritedNamespaces(t *testing.T) {
	body := envelope(`<GetRecord><record xmlns:dc="http://purl.org/dc/elements/1.1/">` +
		headerXML("oai:x:1", "2001-01-01") +
		`<metadata><dc:title>Inherited</dc:title></metadata></record></GetRecord>`)
	root, err := parseResponse([]byte(body))
	require.NoError(t, err)
	rec, err := decodeGetRecord(root)
	require.NoError(t, err)
	require.NotNil(t, rec.Metadata)
	assert.Equal(t, "title", rec.Metadata.Tag())
	assert.Equal(t, "http://purl.org/dc/elements/1.1/", rec.Metadata.Space())

	s := rec.Metadata.String()
	assert.True(t, strings.HasPrefix(s, "<dc:title"), s)
	assert.Contains(t, s, `xmlns:dc="http://purl.org/dc/elements/1.1/"`)

	var sb strings.Builder
	_, err = rec.Metadata.WriteTo(&sb)
	require.NoError(t, err)
	assert.Equal(t, s, sb.String())
}

func TestDecodeMissingContainers(t *testing.T) {
	root, err := parseResponse([]byte(envelope()))
	require.NoError(t, err)

	_, err = decodeIdentify(root)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	_, err = decodeGetRecord(root)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	p, err := decodeListRecords(root)
	require.NoError(t, err)
	assert.Empty(t, p.items)
	assert.False(t, p.more())
}

func TestDecodeMissingRequiredElements(t *testing.T) {
	const format = `<schema>http://www.openarchives.org/OAI/2.0/oai_dc.xsd</schema>
<metadataNamespace>http://www.openarchives.org/OAI/2.0/oai_dc/</metadataNamespace>`
	var tests = []struct {
		about  string
		body   string
		decode func(*etree.Element) error
	}{
		{"set without name", `<ListSets><set><setSpec>a</setSpec></set></ListSets>`, listErr(decodeListSets)},
		{"set without spec", `<ListSets><set><setName>A</setName></set></ListSets>`, listErr(decodeListSets)},
		{"format without schema", `<ListMetadataFormats><metadataFormat><metadataPrefix>oai_dc</metadataPrefix>
<metadataNamespace>http://www.openarchives.org/OAI/2.0/oai_dc/</metadataNamespace></metadataFormat></ListMetadataFormats>`,
			listErr(decodeListMetadataFormats)},
		{"format without namespace", `<ListMetadataFormats><metadataFormat><metadataPrefix>oai_dc</metadataPrefix>
<schema>http://www.openarchives.org/OAI/2.0/oai_dc.xsd</schema></metadataFormat></ListMetadataFormats>`,
			listErr(decodeListMetadataFormats)},
		{"format without prefix", `<ListMetadataFormats><metadataFormat>` + format + `</metadataFormat></ListMetadataFormats>`,
			listErr(decodeListMetadataFormats)},
	}
	for _, tag := range []string{"repositoryName", "baseURL", "protocolVersion", "earliestDatestamp", "deletedRecord", "granularity"} {
		tests = append(tests, struct {
			about  string
			body   string
			decode func(*etree.Element) error
		}{"Identify without " + tag, withoutElement(identifyXML, tag), func(root *etree.Element) error {
			_, err := decodeIdentify(root)
			return err
		}})
	}
	for _, test := range tests {
		root, err := parseResponse([]byte(envelope(test.body)))
		require.NoError(t, err, test.about)
		assert.ErrorIs(t, test.decode(root), ErrMalformedResponse, test.about)
	}

	root, err := parseResponse([]byte(envelope(identifyXML)))
	require.NoError(t, err)
	_, err = decodeIdentify(root)
	assert.NoError(t, err)
}

func listErr[T any](fn func(*etree.Element) (page[T], error)) func(*etree.Element) error {
	return func(root *etree.Element) error {
		_, err := fn(root)
		return err
	}
}

// withoutElement drops the line holding the given element from a fixture.
func withoutElement(fixture, tag string) string {
	var lines []string
	for _, line := range strings.Split(fixture, "\n") {
		if !strings.Contains(line, "<"+tag+">") {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func TestMalformedErrorChain(t *testing.T) {
	err := malformed("missing %s element", "Identify")
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Contains(t, err.Error(), "missing Identify element")
	assert.Contains(t, err.Error(), ErrMalformedResponse.Error())
	assert.NotContains(t, err.Error(), "%!")

	cause := errors.NewPlain("unexpected EOF")
	err = malformedCause(cause, "oai:x:1")
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "malformed response: oai:x:1: unexpected EOF", err.Error())
}

func TestResumptionTokenKeptVerbatim(t *testing.T) {
	body := envelope(`<ListIdentifiers>` + headerXML("oai:x:1", "2000-01-01") +
		`<resumptionToken completeListSize="2" cursor="0"> abc 1 </resumptionToken></ListIdentifiers>`)
	root, err := parseResponse([]byte(body))
	require.NoError(t, err)
	p, err := decodeListIdentifiers(root)
	require.NoError(t, err)
	assert.True(t, p.more())
	assert.Equal(t, " abc 1 ", p.token.Value)

	blank := envelope(`<ListIdentifiers>` + headerXML("oai:x:1", "2000-01-01") +
		`<resumptionToken completeListSize="1">
    </resumptionToken></ListIdentifiers>`)
	root, err = parseResponse([]byte(blank))
	require.NoError(t, err)
	p, err = decodeListIdentifiers(root)
	require.NoError(t, err)
	assert.False(t, p.more())
}
