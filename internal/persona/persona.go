// Package persona defines the prompt personas that shape response
// synthesis. A persona pairs a system prompt with a user prompt template
// whose placeholders are filled at query time.
package persona

import (
	"fmt"
	"strings"
)

// Template placeholders recognized by Render.
const (
	PlaceholderContext = "{context_str}"
	PlaceholderHistory = "{history_str}"
	PlaceholderQuery   = "{query_str}"
)

// Persona holds the prompts for one assistant style.
type Persona struct {
	// Key uniquely identifies the persona.
	Key string

	// Name is the human-readable persona name.
	Name string

	// SystemPrompt becomes the system message of the synthesis call.
	SystemPrompt string

	// UserPromptTemplate is the user message template. It must reference
	// {query_str} and may reference {context_str} and {history_str}.
	UserPromptTemplate string
}

// Validate checks the persona is usable for synthesis.
func (p Persona) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("persona key required")
	}
	if p.SystemPrompt == "" {
		return fmt.Errorf("persona %q: system prompt required", p.Key)
	}
	if !strings.Contains(p.UserPromptTemplate, PlaceholderQuery) {
		return fmt.Errorf("persona %q: user prompt template must reference %s", p.Key, PlaceholderQuery)
	}
	return nil
}

// RenderUserPrompt fills the persona's user prompt template.
func (p Persona) RenderUserPrompt(contextStr, historyStr, queryStr string) string {
	return strings.NewReplacer(
		PlaceholderContext, contextStr,
		PlaceholderHistory, historyStr,
		PlaceholderQuery, queryStr,
	).Replace(p.UserPromptTemplate)
}

// The built-in templates omit {history_str}: synthesis already delivers
// the conversation as chat messages, so inlining a transcript would
// duplicate it. The placeholder stays available for custom personas.
const defaultUserPromptTemplate = `Context information is below.
---------------------
{context_str}
---------------------
Given the context information and not prior knowledge, answer the query.
Query: {query_str}
Answer:`

// Default returns the general-purpose assistant persona.
func Default() Persona {
	return Persona{
		Key:                "default",
		Name:               "General Q&A Assistant",
		SystemPrompt:       "You are a friendly and helpful assistant.",
		UserPromptTemplate: defaultUserPromptTemplate,
	}
}

// MeetingAssistant returns a persona tuned for meeting transcripts and
// minutes.
func MeetingAssistant() Persona {
	return Persona{
		Key:  "meeting-assistant",
		Name: "Meeting Assistant",
		SystemPrompt: "You are a extremely helpful meeting assistant. " +
			"You pay attention to all the details in a meeting. " +
			"You are able to answer questions about the meeting with precision. " +
			"You only use the context provided to answer the question. " +
			"You always state if the context does not contain the answer to the question.",
		UserPromptTemplate: defaultUserPromptTemplate,
	}
}

// Registry resolves persona keys to definitions.
type Registry struct {
	personas map[string]Persona
}

// NewRegistry creates a registry seeded with the built-in personas.
func NewRegistry() *Registry {
	r := &Registry{personas: make(map[string]Persona)}
	r.Register(Default())
	r.Register(MeetingAssistant())
	return r
}

// Register adds or replaces a persona.
func (r *Registry) Register(p Persona) {
	r.personas[p.Key] = p
}

// Get returns the persona for key, falling back to the default persona
// when the key is empty or unknown.
func (r *Registry) Get(key string) Persona {
	if p, ok := r.personas[key]; ok {
		return p
	}
	return Default()
}
