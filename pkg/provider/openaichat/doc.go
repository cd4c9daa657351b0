// Package openaichat implements provider.Provider for OpenAI-compatible
// Chat Completions backends (OpenAI, DeepSeek, Grok, Groq). One package
// serves them all: the backends differ only in endpoint and credential,
// never in wire shape.
//
// The exported Client is also embedded by the zhipu adapter, which swaps
// the static bearer token for a per-request minted one.
package openaichat
