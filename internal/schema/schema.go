// Package schema defines the data model shared across the query pipeline:
// documents, retrieval nodes, scored nodes, and chat messages.
package schema

import "time"

// Metadata keys attached to documents at ingestion time and copied onto
// nodes at index-build time. Values are scalars (string, int, float64, bool).
const (
	MetaSpaceID        = "space_id"
	MetaSpaceType      = "space_type"
	MetaDataSourceName = "data_source_name"
	MetaDataSourceType = "data_source_type"
	MetaSourceURI      = "source_uri"
	MetaFileName       = "file_name"
	MetaPageLabel      = "page_label"
	MetaSourceWebsite  = "source_website"
	MetaPageTitle      = "page_title"
	MetaIndexedOn      = "indexed_on"
)

// DataSourceTypeWebBased marks documents scraped from websites. Anything
// else is treated as file-based when formatting sources.
const DataSourceTypeWebBased = "SpaceDataSourceWebBased"

// Document is an immutable unit of ingested content. It is produced by the
// ingestion subsystem and owned by the index once indexed.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
}

// Node is a chunk of a Document, the atomic unit retrieval operates on.
// PrevID/NextID are sibling references within the parent document, not
// ownership relations.
type Node struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
	PrevID   string
	NextID   string
}

// MetaString returns a string metadata value, or "" when absent or not a string.
func (n Node) MetaString(key string) string {
	if n.Metadata == nil {
		return ""
	}
	s, _ := n.Metadata[key].(string)
	return s
}

// ScoredNode pairs a node with a retriever-specific relevance score.
//
// Scores from different retriever types (cosine similarity vs BM25) are not
// comparable with each other. Rank fusion is rank-based for exactly this
// reason; the fused score written back here is an RRF score, not a
// similarity.
type ScoredNode struct {
	Node  Node
	Score float64
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry in a conversation history. Histories are ordered,
// appended to, and never edited.
type ChatMessage struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// NewUserMessage builds a user message with the current time.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage builds an assistant message with the current time.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}
