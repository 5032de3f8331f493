package util

import "strings"

// YoutubeIDToURL builds a watch URL from a video id, tolerating the trailing
// newline yt-dlp prints.
func YoutubeIDToURL(id string) string {
	return "https://www.youtube.com/watch?v=" + strings.TrimSpace(id)
}
