// Package anthropic implements provider.Provider for the Anthropic
// Messages API. The wire shape diverges from Chat Completions in three
// ways: the credential travels in x-api-key rather than a bearer header,
// the system instruction is a top-level field rather than a message, and
// streaming uses typed events (content_block_delta, message_stop) instead
// of choice deltas.
package anthropic
