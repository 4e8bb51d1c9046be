package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/complia/complia/pkg/model"
)

// BuildDocx renders the Annex IV document as a minimal Office Open XML
// package. Content is ordered by section key, then evidence by id, so the
// rendering is reproducible. The DOCX bytes are not part of the snapshot
// hash.
func BuildDocx(in Input) ([]byte, error) {
	var body strings.Builder

	body.WriteString(docxParagraph("Title", fmt.Sprintf("Annex IV Technical Documentation: %s (%s)",
		in.System.Name, in.Version.Label)))
	body.WriteString(docxParagraph("Normal", fmt.Sprintf("Organization: %s", in.Org.Name)))
	body.WriteString(docxParagraph("Normal", fmt.Sprintf("Status: %s", in.Version.Status)))
	if in.Version.ReleaseDate != nil {
		body.WriteString(docxParagraph("Normal", fmt.Sprintf("Release date: %s", *in.Version.ReleaseDate)))
	}

	sections := append([]*model.AnnexSection{}, in.Sections...)
	sort.Slice(sections, func(i, j int) bool { return sections[i].SectionKey < sections[j].SectionKey })

	for _, sec := range sections {
		body.WriteString(docxParagraph("Heading1", sec.SectionKey))

		fields := make([]string, 0, len(sec.Content))
		for f := range sec.Content {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		if len(fields) == 0 {
			body.WriteString(docxParagraph("Normal", "(no content)"))
		}
		for _, f := range fields {
			body.WriteString(docxParagraph("Normal", fmt.Sprintf("%s: %s", f, renderValue(sec.Content[f]))))
		}

		refs := append([]string{}, sec.EvidenceRefs...)
		sort.Strings(refs)
		for _, ref := range refs {
			line := "Evidence: " + ref
			if e, ok := in.Evidence[ref]; ok {
				line = fmt.Sprintf("Evidence: %s (%s)", e.Title, ref)
			}
			body.WriteString(docxParagraph("Normal", line))
		}
	}

	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	return BuildArchive(map[string][]byte{
		"[Content_Types].xml": []byte(docxContentTypes),
		"_rels/.rels":         []byte(docxRels),
		"word/document.xml":   []byte(document),
	})
}

func docxParagraph(style, text string) string {
	return fmt.Sprintf(`<w:p><w:pPr><w:pStyle w:val="%s"/></w:pPr><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`,
		style, xmlEscape(text))
}

func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, renderValue(item))
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprintf("%v", t)
	}
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

const docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`
