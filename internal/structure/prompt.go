// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"bytes"
	"text/template"
)

// systemInstruction frames the model as a bibliography parser. Sent as the
// system message on every structuring call.
const systemInstruction = "You are an academic bibliography parsing assistant. " +
	"You convert the raw text of a paper's reference section into structured JSON records, " +
	"extracting fields exactly as they appear without inventing information."

// structuringPromptTmpl is the user prompt for one structuring call. It pins
// the output schema and insists on a bare JSON array so the repair pipeline
// has as little to do as possible.
var structuringPromptTmpl = template.Must(template.New("structuring").Parse(`Extract every reference from the following bibliography section of an academic paper, converting each entry into a structured JSON object.

Bibliography section:
` + "```" + `
{{.Section}}
` + "```" + `

Respond with a JSON array, one element per reference:
` + "```json" + `
[
  {
    "reference_number": 1,
    "title": "Paper title",
    "authors": ["First Author", "Second Author"],
    "year": 2023,
    "venue": "Journal or conference name",
    "venue_type": "journal/conference/arxiv/book/thesis/tech_report/other",
    "volume": "volume if present",
    "issue": "issue if present",
    "pages": "page range if present",
    "doi": "DOI if present",
    "arxiv_id": "arXiv identifier if present",
    "url": "link if present",
    "raw_text": "the original entry text"
  }
]
` + "```" + `

Rules:
1. Set any field you cannot determine to null.
2. reference_number is the entry's 1-based position in the bibliography.
3. authors is an array of name strings; year is an integer.
4. venue_type must be one of the listed options.
5. raw_text preserves the original entry text.
6. Return only the JSON array, with no surrounding explanation.
7. Skip entries that cannot be parsed at all.`))

// renderPrompt executes the structuring prompt template over the section text.
func renderPrompt(section string) (string, error) {
	var buf bytes.Buffer
	if err := structuringPromptTmpl.Execute(&buf, struct{ Section string }{Section: section}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
