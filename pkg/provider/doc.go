// Package provider defines the protocol-agnostic interface for AI text
// generation backends. Each adapter (openaichat, anthropic, zhipu, ollama)
// handles its own wire protocol internally and exposes the uniform
// capability set {Generate, Stream, CheckStatus}, keeping backend details
// invisible to the gateway.
package provider
