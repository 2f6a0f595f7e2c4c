package handlers

import (
	"net/http"
	"net/url"
)

// Printer firmware revisions disagree about where device identity lives:
// some put it in the poll body, some in query parameters, some in custom
// headers, and the field names have drifted over the years. Each concern is
// an ordered list of named sources tried in priority order; the first
// non-empty value wins. Keeping the whole compatibility surface in one table
// makes it testable in isolation.

type fieldSource struct {
	name string
	get  func(*requestFields) string
}

type requestFields struct {
	body   map[string]interface{}
	query  url.Values
	header http.Header
}

func fromBody(key string) func(*requestFields) string {
	return func(f *requestFields) string {
		if f.body == nil {
			return ""
		}
		if v, ok := f.body[key].(string); ok {
			return v
		}
		return ""
	}
}

func fromQuery(key string) func(*requestFields) string {
	return func(f *requestFields) string {
		return f.query.Get(key)
	}
}

func fromHeader(key string) func(*requestFields) string {
	return func(f *requestFields) string {
		return f.header.Get(key)
	}
}

var macSources = []fieldSource{
	{"body:printerMAC", fromBody("printerMAC")},
	{"body:mac", fromBody("mac")},
	{"body:printer_mac", fromBody("printer_mac")},
	{"query:mac", fromQuery("mac")},
	{"query:printerMAC", fromQuery("printerMAC")},
	{"query:printer_mac", fromQuery("printer_mac")},
	{"header:X-Star-Mac", fromHeader("X-Star-Mac")},
	{"header:X-Printer-Mac", fromHeader("X-Printer-Mac")},
}

var uidSources = []fieldSource{
	{"body:printerUID", fromBody("printerUID")},
	{"body:uid", fromBody("uid")},
	{"query:uid", fromQuery("uid")},
	{"header:X-Star-Uid", fromHeader("X-Star-Uid")},
}

var nameSources = []fieldSource{
	{"body:printerName", fromBody("printerName")},
	{"body:name", fromBody("name")},
	{"query:name", fromQuery("name")},
}

var tokenSources = []fieldSource{
	{"query:token", fromQuery("token")},
	{"query:jobToken", fromQuery("jobToken")},
	{"body:jobToken", fromBody("jobToken")},
	{"header:X-Job-Token", fromHeader("X-Job-Token")},
}

func firstNonEmpty(f *requestFields, sources []fieldSource) string {
	for _, s := range sources {
		if v := s.get(f); v != "" {
			return v
		}
	}
	return ""
}

type deviceIdentity struct {
	MAC  string
	UID  string
	Name string
}

func extractIdentity(f *requestFields) deviceIdentity {
	return deviceIdentity{
		MAC:  firstNonEmpty(f, macSources),
		UID:  firstNonEmpty(f, uidSources),
		Name: firstNonEmpty(f, nameSources),
	}
}

func extractToken(f *requestFields) string {
	return firstNonEmpty(f, tokenSources)
}
