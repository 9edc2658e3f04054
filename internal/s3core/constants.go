package s3core

import "runtime"

// Global constants. The User-Agent format is part of the wire contract
// other S3 servers and proxies pattern-match on.
const (
	libraryName    = "s3go"
	libraryVersion = "v0.1.0"
)

const (
	libraryUserAgentPrefix = "s3go (" + runtime.GOOS + "; " + runtime.GOARCH + ") "
	libraryUserAgent       = libraryUserAgentPrefix + libraryName + "/" + libraryVersion
)

// Multipart sizing constants.
const (
	MinPartSize = 5 * 1024 * 1024       // 5 MiB
	MaxPartSize = 5 * 1024 * 1024 * 1024 // 5 GiB
	MaxParts    = 10000
)

const separator = "/"
