// Package vocabulary manages the persistent tag vocabulary shared across
// analysis runs. Tags accumulate append-only: every successful analysis may
// add tags, none are ever removed, and the resulting set is fed back into the
// next analysis prompt so the model reuses established tags instead of
// minting near-duplicates.
//
// # Storage
//
// The vocabulary is stored as a JSON file (default:
// ~/.local/share/distill/known_tags.json) holding a sorted list of
// normalized tags:
//
//	{
//	  "tags": ["ai", "coding", "health", "marketing", "productivity"]
//	}
//
// Writes go through a temp-file-then-rename so a crash never truncates the
// store. An unreadable store degrades to an empty vocabulary with a warning;
// it is rewritten wholesale on the next merge.
package vocabulary
