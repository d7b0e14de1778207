//  Copyright 2015 by Leipzig University Library, http://ub.uni-leipzig.de
//                    The Finc Authors, http://finc.info
//                    Martin Czygan, <martin.czygan@uni-leipzig.de>
//
// This file is part of some open source application.
//
// Some open source application is free software: you can redistribute
// it and/or modify it under the terms of the GNU General Public
// License as published by the Free Software Foundation, either
// version 3 of the License, or (at your option) any later version.
//
// Some open source application is distributed in the hope that it will
// be useful, but WITHOUT ANY WARRANTY; without even the implied warranty
// of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Foobar.  If not, see <http://www.gnu.org/licenses/>.
//
// @license GPL-3.0+ <http://spdx.org/licenses/GPL-3.0+>
//

package oaipmh

import (
	"net/url"
)

// OAI verbs (4. Protocol Requests and Responses).
const (
	VerbIdentify            = "Identify"
	VerbListIdentifiers     = "ListIdentifiers"
	VerbListSets            = "ListSets"
	VerbListMetadataFormats = "ListMetadataFormats"
	VerbListRecords         = "ListRecords"
	VerbGetRecord           = "GetRecord"
)

// OAIVerbMap lists the verbs this client can send.
var OAIVerbMap = map[string]bool{
	VerbIdentify:            true,
	VerbListIdentifiers:     true,
	VerbListSets:            true,
	VerbListMetadataFormats: true,
	VerbListRecords:         true,
	VerbGetRecord:           true,
}

// Values is a thin wrapper around url.Values.
type Values struct {
	url.Values
}

// NewValues returns a new empty struct.
func NewValues() Values {
	return Values{url.Values{}}
}

// AddIfExists add a key value pair only if value is nonempty.
func (v Values) AddIfExists(key, value string) {
	if value != "" {
		v.Add(key, value)
	}
}

// Request can hold any parameter, that you want to send to an OAI server.
// Datestamps are kept in their final string form.
type Request struct {
	Verb            string
	Identifier      string
	Prefix          string
	From            string
	Until           string
	Set             string
	ResumptionToken string
}

// Values returns the query or form parameters for a request. Catches basic
// errors like a missing or unknown verb.
func (r Request) Values() (url.Values, error) {
	if r.Verb == "" {
		return nil, ErrNoVerb
	}
	if !OAIVerbMap[r.Verb] {
		return nil, ErrVerbNotSupported
	}

	values := NewValues()
	values.Add("verb", r.Verb)

	// Collectively these requests are called list requests (3.5):
	// ListIdentifiers, ListRecords, ListSets
	if r.ResumptionToken != "" {
		// An exclusive argument with a value that is the flow control token.
		values.Add("resumptionToken", r.ResumptionToken)
		return values.Values, nil
	}

	values.AddIfExists("identifier", r.Identifier)
	values.AddIfExists("metadataPrefix", r.Prefix)
	values.AddIfExists("from", r.From)
	values.AddIfExists("until", r.Until)
	values.AddIfExists("set", r.Set)
	return values.Values, nil
}

// URL returns the absolute GET URL for a given request.
func (r Request) URL(endpoint string) (string, error) {
	if endpoint == "" {
		return "", ErrNoEndpoint
	}
	values, err := r.Values()
	if err != nil {
		return "", err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range values {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// resume returns the request for the next page of a list.
func (r Request) resume(token string) Request {
	return Request{Verb: r.Verb, ResumptionToken: token}
}
