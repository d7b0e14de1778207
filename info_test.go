package oaipmh

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const formatsXML = `<ListMetadataFormats>
  <metadataFormat>
    <metadataPrefix>oai_dc</metadataPrefix>
    <schema>http://www.openarchives.org/OAI/2.0/oai_dc.xsd</schema>
    <metadataNamespace>http://www.openarchives.org/OAI/2.0/oai_dc/</metadataNamespace>
  </metadataFormat>
  <metadataFormat>
    <metadataPrefix>marcxml</metadataPrefix>
    <schema>http://www.loc.gov/standards/marcxml/schema/MARC21slim.xsd</schema>
    <metadataNamespace>http://www.loc.gov/MARC21/slim</metadataNamespace>
  </metadataFormat>
</ListMetadataFormats>`

func TestRepositoryInfo(t *testing.T) {
	_, srv := newRepository(t, func(values url.Values) (int, string) {
		switch values.Get("verb") {
		case VerbIdentify:
			return http.StatusOK, envelope(identifyXML)
		case VerbListMetadataFormats:
			return http.StatusOK, envelope(formatsXML)
		}
		return http.StatusOK, oaiError("noSetHierarchy", "This repository does not support sets")
	})
	info, err := RepositoryInfo(context.Background(), newTestClient(t, srv))
	require.NoError(t, err)
	assert.Equal(t, "Test Repository", info.Identify.RepositoryName)
	assert.Empty(t, info.Sets)
	require.Len(t, info.Formats, 2)
	assert.Equal(t, "marcxml", info.Formats[1].Prefix)
	assert.Positive(t, info.Elapsed)
}

func TestRepositoryInfoSets(t *testing.T) {
	_, srv := newRepository(t, func(values url.Values) (int, string) {
		switch values.Get("verb") {
		case VerbIdentify:
			return http.StatusOK, envelope(identifyXML)
		case VerbListMetadataFormats:
			return http.StatusOK, envelope(formatsXML)
		}
		return http.StatusOK, envelope("<ListSets>",
			"<set><setSpec>a</setSpec><setName>A</setName></set>",
			"<set><setSpec>a:b</setSpec><setName>B</setName></set>",
			"</ListSets>")
	})
	info, err := RepositoryInfo(context.Background(), newTestClient(t, srv))
	require.NoError(t, err)
	assert.Equal(t, []Set{{Spec: "a", Name: "A"}, {Spec: "a:b", Name: "B"}}, info.Sets)
}

func TestRepositoryInfoError(t *testing.T) {
	_, srv := newRepository(t, func(values url.Values) (int, string) {
		switch values.Get("verb") {
		case VerbIdentify:
			return http.StatusOK, envelope(identifyXML)
		case VerbListMetadataFormats:
			return http.StatusOK, oaiError("noMetadataFormats", "")
		}
		return http.StatusOK, envelope("<ListSets/>")
	})
	_, err := RepositoryInfo(context.Background(), newTestClient(t, srv))
	assert.ErrorIs(t, err, ErrNoMetadataFormats)
}
