package transport

import (
	"mime"
	"strconv"
	"strings"
)

// parseContentRangeTotal extracts the total size from a header of the
// form "bytes 0-0/12345".
func parseContentRangeTotal(header string) int64 {
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return 0
	}
	total, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return total
}

// parseFilename extracts the filename parameter from a Content-Disposition
// header value.
func parseFilename(header string) string {
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
