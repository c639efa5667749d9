package store

// SessionSummary is one persisted row per indexed session. Mutated only by
// upsert during indexing; deleted when its source file is pruned.
type SessionSummary struct {
	SessionID     string
	FilePath      string
	Title         string
	CreationDate  int64 // epoch millis
	RequestCount  int
	LastMessage   string
	ModelIDs      []string
	Agents        []string
	TotalTokens   int64
	HasVotes      bool
	FileSize      int64
	StorageType   string // workspace, global, transferred
	WorkspacePath string // empty unless workspace-scoped
	FileMtime     int64  // staleness watermark, unix nanos
}

// TurnRow is one persisted row per request. (session_id, turn_index) is
// unique; re-indexing replaces a session's turns atomically.
type TurnRow struct {
	ID               int64
	SessionID        string
	TurnIndex        int
	Prompt           string
	Response         string
	Agent            string
	Model            string
	Timestamp        int64 // epoch millis
	DurationMs       int64
	TotalTokens      int64
	PromptTokens     int64
	CompletionTokens int64
	Vote             int // +1, -1, or 0 for none
}

// AnnotationRow is a typed facet attached to a turn. Rows carrying no
// name, uri or detail are discarded at extraction time.
type AnnotationRow struct {
	TurnID int64
	Kind   string
	Name   string
	URI    string
	Detail string
}

// TurnRecord pairs a turn with its annotations for the per-session
// transactional write path.
type TurnRecord struct {
	Turn        TurnRow
	Annotations []AnnotationRow
}

// ListOptions filters ListSessions.
type ListOptions struct {
	MaxAgeDays    int    // 0 = no cutoff
	StorageType   string // "" = all
	WorkspacePath string // "" = all
	Limit         int    // 0 = no limit
	Offset        int
}

// SearchOptions filters Search.
type SearchOptions struct {
	WorkspacePath string // "" = all
	MaxAgeDays    int    // 0 = no cutoff
	Limit         int    // hard cap on hits; 0 uses a default of 50
}

// SearchHit is one full-text match joined back to its turn and session.
type SearchHit struct {
	SessionID     string
	Title         string
	FilePath      string
	WorkspacePath string
	StorageType   string
	TurnIndex     int
	Prompt        string
	Response      string
	Agent         string
	Model         string
	Rank          float64
}

// FileStamp records what the index knows about a source file.
type FileStamp struct {
	SessionID string
	Mtime     int64
}

// NameCount is a name with a usage count, for the describe overview.
type NameCount struct {
	Name  string
	Count int64
}

// Overview is the one-call schema/statistics summary.
type Overview struct {
	SessionCount    int64
	TurnCount       int64
	AnnotationCount int64
	AnnotationKinds map[string]int64
	TopModels       []NameCount
	TopAgents       []NameCount
	TopTools        []NameCount
	OldestSession   int64 // epoch millis, 0 when empty
	NewestSession   int64
}
