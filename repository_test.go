package oaipmh

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// repository is a fake OAI-PMH endpoint. It records the parameters of every
// request and answers with whatever handle returns.
type repository struct {
	mu       sync.Mutex
	requests []url.Values
	methods  []string
	agents   []string
	types    []string
	handle   func(url.Values) (int, string)
}

func newRepository(t *testing.T, handle func(url.Values) (int, string)) (*repository, *httptest.Server) {
	t.Helper()
	repo := &repository{handle: handle}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form := make(url.Values)
		for k, vs := range r.Form {
			form[k] = append([]string(nil), vs...)
		}
		repo.mu.Lock()
		repo.requests = append(repo.requests, form)
		repo.methods = append(repo.methods, r.Method)
		repo.agents = append(repo.agents, r.Header.Get("User-Agent"))
		repo.types = append(repo.types, r.Header.Get("Content-Type"))
		repo.mu.Unlock()

		status, body := repo.handle(form)
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return repo, srv
}

func (r *repository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func (r *repository) request(i int) url.Values {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[i]
}

// newTestClient returns a client for srv, which uses the test server's HTTP
// client unless opts say otherwise.
func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(srv.URL, append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	require.NoError(t, err)
	return c
}

func envelope(inner ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"
         xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <responseDate>2002-02-08T12:00:01Z</responseDate>
  <request>http://example.org/oai</request>
  ` + strings.Join(inner, "\n") + `
</OAI-PMH>`
}

func oaiError(code, message string) string {
	return envelope(fmt.Sprintf(`<error code="%s">%s</error>`, code, message))
}

func headerXML(id, datestamp string, sets ...string) string {
	var sb strings.Builder
	sb.WriteString("<header><identifier>" + id + "</identifier><datestamp>" + datestamp + "</datestamp>")
	for _, s := range sets {
		sb.WriteString("<setSpec>" + s + "</setSpec>")
	}
	sb.WriteString("</header>")
	return sb.String()
}

func recordXML(id, datestamp, title string) string {
	return "<record>" + headerXML(id, datestamp) + `<metadata>
  <oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/"
             xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>` + title + `</dc:title>
  </oai_dc:dc>
</metadata></record>`
}

func tokenXML(value string) string {
	return "<resumptionToken>" + value + "</resumptionToken>"
}

const identifyXML = `<Identify>
  <repositoryName>Test Repository</repositoryName>
  <baseURL>http://example.org/oai</baseURL>
  <protocolVersion>2.0</protocolVersion>
  <adminEmail>admin@example.org</adminEmail>
  <adminEmail>help@example.org</adminEmail>
  <earliestDatestamp>2000-01-01T00:00:00Z</earliestDatestamp>
  <deletedRecord>persistent</deletedRecord>
  <granularity>YYYY-MM-DDThh:mm:ssZ</granularity>
  <compression>gzip</compression>
  <description>
    <oai-identifier xmlns="http://www.openarchives.org/OAI/2.0/oai-identifier">
      <scheme>oai</scheme>
      <repositoryIdentifier>example.org</repositoryIdentifier>
    </oai-identifier>
  </description>
</Identify>`
