// Package llm provides a chat-completion client for OpenAI-compatible
// endpoints, used by the analysis stage to produce note summaries and tags.
//
// # Endpoint
//
// The client targets any OpenAI-compatible server. The default base URL
// points at a local LM Studio instance (http://127.0.0.1:1234/v1) and the
// chat/completions path is appended automatically. An API key is optional;
// when configured it is sent as a bearer token, which keeps hosted
// OpenAI-compatible providers usable with the same client.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive JSON response.
// Client.HealthCheck: verify endpoint and model availability.
// DecodeLLMJSON: decode model output tolerating code fences and prose wrapping.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions, and
// network timeouts with exponential backoff (base 1s, max 10s, up to 5
// attempts by default). Context cancellation aborts retries immediately.
package llm
