// Package config loads storyline settings from TOML.
//
// Settings are grouped by section:
//
//	[render]   batch_size, context_window
//	[guard]    cooldown_ms, message
//	[log]      level, format, path
//	[storage]  path
//	[theme]    color class = "#rrggbb"
//
// A missing file yields Default(). Values present in the file override
// the defaults; everything else keeps its default. Watcher reloads the
// file when it changes on disk.
package config
