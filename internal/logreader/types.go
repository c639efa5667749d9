package logreader

import (
	"encoding/json"
	"strings"
)

// StorageType categorizes where a session log lives.
type StorageType string

const (
	StorageWorkspace   StorageType = "workspace"
	StorageGlobal      StorageType = "global"
	StorageTransferred StorageType = "transferred"
)

// DiscoveredFile is one session log found under a storage root.
type DiscoveredFile struct {
	Path         string
	Storage      StorageType
	WorkspaceDir string // storage dir for workspace-scoped sessions, else ""
}

// SessionState is the fully replayed state of one session log. It lives
// only for the duration of one parse; extraction consumes it and it is
// discarded.
type SessionState struct {
	Version      int
	SessionID    string
	CreationDate int64 // epoch millis
	CustomTitle  string
	Requests     []Request
}

// Request is one user<->agent exchange within a session.
type Request struct {
	RequestID      string         `json:"requestId"`
	Message        RequestMessage `json:"message"`
	VariableData   VariableData   `json:"variableData"`
	Response       []ResponsePart `json:"response"`
	Result         *RequestResult `json:"result"`
	Timestamp      int64          `json:"timestamp"`
	ModelID        string         `json:"modelId"`
	Agent          AgentRef       `json:"agent"`
	Vote           int            `json:"vote"`
	VoteDownReason string         `json:"voteDownReason"`
}

// RequestMessage carries the user's prompt.
type RequestMessage struct {
	Text string `json:"text"`
}

// VariableData carries attachment/variable references for a request.
type VariableData struct {
	Variables []Variable `json:"variables"`
}

// Variable is one attached variable or context reference.
type Variable struct {
	Name  string          `json:"name"`
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// ValueURI resolves the variable payload to a location string, if any.
func (v Variable) ValueURI() string {
	return uriString(v.Value)
}

// AgentRef identifies the agent that handled a request.
type AgentRef struct {
	ID string `json:"id"`
}

// RequestResult carries timing, usage and error detail for a request.
type RequestResult struct {
	Timings      *Timings       `json:"timings"`
	ErrorDetails *ErrorDetails  `json:"errorDetails"`
	Metadata     ResultMetadata `json:"metadata"`
}

// Timings holds request timing in milliseconds.
type Timings struct {
	FirstProgress int64 `json:"firstProgress"`
	TotalElapsed  int64 `json:"totalElapsed"`
}

// ErrorDetails holds the failure message for an errored request.
type ErrorDetails struct {
	Message string `json:"message"`
}

// ResultMetadata holds usage counters reported with the result.
type ResultMetadata struct {
	Usage *TokenUsage `json:"usage"`
}

// TokenUsage holds per-request token counters.
type TokenUsage struct {
	TotalTokens      int64 `json:"totalTokens"`
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
}

// PartKind identifies a response part variant. The set is closed; new
// kinds are deliberate additions here, not silently passed-through strings.
type PartKind int

const (
	PartUnknown PartKind = iota
	PartMarkdown
	PartToolInvocation
	PartInlineReference
	PartTextEditGroup
	PartCodeblockURI
	PartThinking
	PartConfirmation
)

// ResponsePart is one element of a request's response sequence.
type ResponsePart struct {
	Kind PartKind

	// Text carries markdown content, thinking detail or confirmation text.
	Text string

	// ToolName and ToolMessage describe a tool invocation.
	ToolName    string
	ToolMessage string

	// URI is the resolved location for reference/edit/codeblock parts.
	URI string
}

// rawPart is the on-disk shape of a response part before kind dispatch.
type rawPart struct {
	Kind              string          `json:"kind"`
	Value             string          `json:"value"`
	Content           json.RawMessage `json:"content"`
	ToolName          string          `json:"toolName"`
	ToolID            string          `json:"toolId"`
	InvocationMessage json.RawMessage `json:"invocationMessage"`
	InlineReference   json.RawMessage `json:"inlineReference"`
	URI               json.RawMessage `json:"uri"`
	Title             string          `json:"title"`
	Message           json.RawMessage `json:"message"`
}

// UnmarshalJSON maps a self-describing wire part onto the closed variant set.
func (p *ResponsePart) UnmarshalJSON(data []byte) error {
	var raw rawPart
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Kind {
	case "markdownContent":
		p.Kind = PartMarkdown
		p.Text = textValue(raw.Content, raw.Value)
	case "toolInvocationSerialized", "toolInvocation":
		p.Kind = PartToolInvocation
		p.ToolName = raw.ToolName
		if p.ToolName == "" {
			p.ToolName = raw.ToolID
		}
		p.ToolMessage = textValue(raw.InvocationMessage, "")
	case "inlineReference":
		p.Kind = PartInlineReference
		p.URI = uriString(raw.InlineReference)
	case "textEditGroup":
		p.Kind = PartTextEditGroup
		p.URI = uriString(raw.URI)
	case "codeblockUri":
		p.Kind = PartCodeblockURI
		p.URI = uriString(raw.URI)
	case "thinking":
		p.Kind = PartThinking
		p.Text = textValue(raw.Content, raw.Value)
	case "confirmation":
		p.Kind = PartConfirmation
		text := raw.Title
		if msg := textValue(raw.Message, ""); msg != "" {
			if text != "" {
				text += "\n"
			}
			text += msg
		}
		p.Text = text
	default:
		p.Kind = PartUnknown
	}
	return nil
}

// textValue resolves content that is either a bare string or a {value}
// wrapper, falling back to the given default.
func textValue(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Value != "" {
		return wrapped.Value
	}
	return fallback
}

// uriString resolves a URI that is either a bare string or a serialized
// URI object ({scheme, path, fsPath, external}). Returns "" when nothing
// usable is present.
func uriString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		FSPath   string          `json:"fsPath"`
		Path     string          `json:"path"`
		External string          `json:"external"`
		Scheme   string          `json:"scheme"`
		URI      json.RawMessage `json:"uri"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	switch {
	case obj.FSPath != "":
		return obj.FSPath
	case obj.Path != "":
		return obj.Path
	case obj.External != "":
		return obj.External
	case len(obj.URI) > 0:
		// Nested {uri: {...}} wrappers appear on some reference parts.
		return uriString(obj.URI)
	}
	return ""
}

// fileBasename extracts the final path segment of a URI-ish string.
func fileBasename(uri string) string {
	trimmed := strings.TrimRight(uri, "/")
	if idx := strings.LastIndexAny(trimmed, "/\\"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
