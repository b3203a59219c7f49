package jira

// Node is an Atlassian Document Format node.
type Node struct {
	Type    string         `json:"type"`
	Version int            `json:"version,omitempty"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Content []Node         `json:"content,omitempty"`
}

type Mark struct {
	Type string `json:"type"`
}

func Doc(content ...Node) Node {
	return Node{Type: "doc", Version: 1, Content: content}
}

func Paragraph(content ...Node) Node {
	return Node{Type: "paragraph", Content: content}
}

func StrongText(text string) Node {
	return Node{Type: "text", Text: text, Marks: []Mark{{Type: "strong"}}}
}

func Panel(panelType string, content ...Node) Node {
	return Node{Type: "panel", Attrs: map[string]any{"panelType": panelType}, Content: content}
}

// ExternalImage centres an image referenced by URL.
func ExternalImage(url string) Node {
	return Node{
		Type:  "mediaSingle",
		Attrs: map[string]any{"layout": "center"},
		Content: []Node{{
			Type:  "media",
			Attrs: map[string]any{"type": "external", "url": url},
		}},
	}
}

// EvidenceComment is the comment posted next to an uploaded evidence image:
// a success or error panel with the verdict, then the image itself.
func EvidenceComment(passed bool, imageURL string) Node {
	panelType, verdict := "error", "REPROVADO"
	if passed {
		panelType, verdict = "success", "APROVADO"
	}
	return Doc(
		Panel(panelType, Paragraph(StrongText("TESTE AUTOMAÇÃO "), StrongText(verdict))),
		ExternalImage(imageURL),
	)
}
