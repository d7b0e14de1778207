//
// Package oaipmh is a client for the Open Archives Initiative Protocol for
// Metadata Harvesting (OAI-PMH), a low-barrier mechanism for repository
// interoperability.
//
// A Client issues the six protocol verbs against a base URL. List verbs
// return a Pager, which follows resumption tokens lazily:
//
//	c, err := oaipmh.NewClient("http://digitalcommons.unmc.edu/do/oai/")
//	if err != nil {
//		log.Fatal(err)
//	}
//	p := c.ListIdentifiers(ctx, oaipmh.ListOptions{Prefix: "oai_dc"})
//	for p.Next() {
//		fmt.Println(p.Value().Identifier)
//	}
//	if err := p.Err(); err != nil {
//		log.Fatal(err)
//	}
//
// Timeouts are retried with exponential backoff, protocol errors are
// returned as OAIError and can be matched with errors.Is against ErrNoRecordsMatch
// and friends. Metadata payloads are opaque XML fragments.
//
// A Harvester splits a date range into windows and harvests them one after
// another, reporting gaps instead of giving up. The oaipmh command line tool
// wraps all of this:
//
//	$ oaipmh harvest http://digitalcommons.unmc.edu/do/oai/ > metadata.xml
//
package oaipmh
