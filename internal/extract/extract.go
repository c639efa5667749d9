// Package extract shapes a replayed session request into the rows the
// storage engine persists: flattened response text plus typed annotations.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/digitarald/vscode-session-trace/internal/logreader"
)

// Annotation kinds persisted alongside a turn.
const (
	KindTool       = "tool"
	KindThinking   = "thinking"
	KindFileRef    = "file_ref"
	KindFileEdit   = "file_edit"
	KindCodeblock  = "codeblock"
	KindAttachment = "attachment"
)

// maxDetailLen caps annotation detail text to bound row size. A storage
// hygiene policy, not a correctness requirement.
const maxDetailLen = 500

// Annotation is a structured facet extracted from a turn's response,
// distinct from the flattened searchable text.
type Annotation struct {
	Kind   string
	Name   string
	URI    string
	Detail string
}

// empty reports whether the annotation carries no payload at all.
func (a Annotation) empty() bool {
	return a.Name == "" && a.URI == "" && a.Detail == ""
}

// Extract walks a request's response parts, producing the flattened
// response text and the typed annotations worth keeping.
func Extract(req logreader.Request) (string, []Annotation) {
	var text []string
	var anns []Annotation

	for _, part := range req.Response {
		switch part.Kind {
		case logreader.PartMarkdown, logreader.PartConfirmation:
			if part.Text != "" {
				text = append(text, part.Text)
			}

		case logreader.PartToolInvocation:
			// Always kept when a tool name is present, even with an
			// empty description.
			if part.ToolName != "" {
				anns = append(anns, Annotation{
					Kind:   KindTool,
					Name:   part.ToolName,
					Detail: capDetail(part.ToolMessage),
				})
			}

		case logreader.PartThinking:
			if strings.TrimSpace(part.Text) != "" {
				anns = append(anns, Annotation{
					Kind:   KindThinking,
					Detail: capDetail(part.Text),
				})
			}

		case logreader.PartInlineReference:
			anns = appendLocation(anns, KindFileRef, part.URI)

		case logreader.PartTextEditGroup:
			anns = appendLocation(anns, KindFileEdit, part.URI)

		case logreader.PartCodeblockURI:
			anns = appendLocation(anns, KindCodeblock, part.URI)
		}
	}

	// Attachments come from request-level variable data, not response parts.
	for _, v := range req.VariableData.Variables {
		a := Annotation{
			Kind: KindAttachment,
			Name: v.Name,
			URI:  v.ValueURI(),
		}
		if !a.empty() {
			anns = append(anns, a)
		}
	}

	return strings.TrimSpace(strings.Join(text, "\n")), filterEmpty(anns)
}

// appendLocation keeps a location-bearing annotation only when the
// location resolved to something.
func appendLocation(anns []Annotation, kind, uri string) []Annotation {
	if uri == "" {
		return anns
	}
	return append(anns, Annotation{
		Kind: kind,
		Name: baseName(uri),
		URI:  uri,
	})
}

func filterEmpty(anns []Annotation) []Annotation {
	kept := anns[:0]
	for _, a := range anns {
		if !a.empty() {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func capDetail(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	// Back up to a rune boundary so the cap never splits a character.
	cut := maxDetailLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func baseName(uri string) string {
	trimmed := strings.TrimRight(uri, "/")
	if idx := strings.LastIndexAny(trimmed, "/\\"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
