// Package textutil provides text processing utilities for slug generation,
// similarity, and filename sanitization.
//
// The primary use cases are:
//   - Building filesystem-safe bundle folder slugs from post titles
//   - Creating token-based fingerprints from text for comparison
//   - Computing cosine similarity between fingerprints (duplicate-comment
//     suppression)
//   - Sanitizing filenames and path segments for safe filesystem use
//
// Fingerprints use term frequency vectors normalized for efficient comparison.
// The tokenization process lowercases text, splits on non-alphanumeric
// characters, and filters tokens shorter than 3 characters.
package textutil
