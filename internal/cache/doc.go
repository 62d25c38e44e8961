// Package cache holds synthesized speech. AudioCache is a bounded LRU of
// playable resources that never evicts an entry while it is playing;
// DiskCache is an optional zstd-compressed second level that survives
// restarts on a best-effort basis.
package cache
