package anthropic

// CachedSystem builds a system prompt marked for ephemeral prompt caching.
// Signal evaluation reuses one system prompt across every candidate in a
// run, so the cache usually hits from the second call on.
func CachedSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "5m"}}}
}

// PlainSystem builds an uncached system prompt.
func PlainSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text}}
}
