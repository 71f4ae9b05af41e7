// ABOUTME: Centralized configuration defaults for syndicate
// ABOUTME: Contains file names and display values shared by the CLI and servers

package config

import "time"

// Storage settings
const (
	DefaultDBFilename    = "syndicate.db"
	DefaultFeedsFilename = "feeds.yaml"
)

// HTTP settings
const (
	DefaultHTTPTimeout = 30 * time.Second
	DefaultUserAgent   = "syndicate/1.0 (+https://github.com/harper/syndicate)"
	MaxFeedBytes       = 10 << 20
)

// Display settings
const (
	DefaultListLimit = 20
	DisplayIDLength  = 8
	SeparatorWidth   = 60
	DateFormatShort  = "02 Jan 06 15:04 MST"
	DateFormatLong   = "Mon, 02 Jan 2006 15:04 MST"
)
