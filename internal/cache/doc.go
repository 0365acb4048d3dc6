// Package cache stores synthesized PCM so re-running a narration does not
// spend quota on chunks that were already produced. It has an in-memory LRU
// tier (L1) and a zstd-compressed disk tier (L2).
package cache
