package arxiv

import "encoding/xml"

// Decode-only structs for the arXiv Atom responses. Only the elements the
// client reads are mapped; the rest of the feed is ignored.

type atomFeed struct {
	XMLName      xml.Name    `xml:"feed"`
	TotalResults int         `xml:"totalResults"`
	Entries      []atomEntry `xml:"entry"`
}

// atomEntry is one paper. ID is the abs URL, not the bare arXiv ID, and
// Published is an RFC 3339 timestamp; both are parsed by the client.
type atomEntry struct {
	ID              string         `xml:"id"`
	Title           string         `xml:"title"`
	Summary         string         `xml:"summary"`
	Published       string         `xml:"published"`
	Updated         string         `xml:"updated"`
	Authors         []atomAuthor   `xml:"author"`
	Categories      []atomCategory `xml:"category"`
	Links           []atomLink     `xml:"link"`
	PrimaryCategory atomCategory   `xml:"primary_category"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}
