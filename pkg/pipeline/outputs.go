package pipeline

// Analysis is the output of the domain-analysis stage.
type Analysis struct {
	Domain      string   `json:"domain"`
	Name        string   `json:"name"`
	TLD         string   `json:"tld"`
	Keywords    []string `json:"keywords"`
	Industry    string   `json:"industry"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Reachable   bool     `json:"reachable"`
}

// Strategy is the output of the strategy stage.
type Strategy struct {
	Audience         string   `json:"audience"`
	Tone             string   `json:"tone"`
	ValueProposition string   `json:"valueProposition"`
	Sections         []string `json:"sections"`
}

// Palette holds CSS hex colors.
type Palette struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Accent     string `json:"accent"`
	Background string `json:"background"`
	Text       string `json:"text"`
}

// Typography names the font families of a design.
type Typography struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Design is the output of the design stage.
type Design struct {
	Palette    Palette    `json:"palette"`
	Typography Typography `json:"typography"`
	Layout     string     `json:"layout"`
}

// Section is one block of page copy.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Content is the output of the content stage.
type Content struct {
	Headline     string    `json:"headline"`
	Tagline      string    `json:"tagline"`
	Sections     []Section `json:"sections"`
	CallToAction string    `json:"callToAction"`
}

// Build is the output of the build stage.
type Build struct {
	HTML     string `json:"html"`
	Bytes    int    `json:"bytes"`
	Checksum string `json:"checksum"`
}

// Deploy is the output of the deploy stage.
type Deploy struct {
	Deployed bool   `json:"deployed"`
	URL      string `json:"url,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	Object   string `json:"object,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
