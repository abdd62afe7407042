package ytdl

import (
	"fmt"
	"strconv"

	"github.com/philipphutterer/metube/internal/models"
)

// FormatSelection maps the request's quality/format selectors onto yt-dlp
// arguments: the -f format expression plus any mode flags (audio extraction,
// thumbnail-only mode).
type FormatSelection struct {
	Format string
	Args   []string
}

// SelectFormat translates the UI's format/quality pair. Unknown values fall
// through to a plain best-video selection rather than erroring; yt-dlp is the
// authority on what it can deliver.
func SelectFormat(format, quality string) FormatSelection {
	switch {
	case format == "thumbnail":
		return FormatSelection{Args: []string{"--skip-download", "--write-thumbnail"}}

	case models.AudioFormats[format]:
		sel := FormatSelection{
			Format: "bestaudio/best",
			Args:   []string{"--extract-audio", "--audio-format", format},
		}
		// Audio qualities are bitrates (320/192/128), "best" means default.
		if quality != "" && quality != "best" {
			sel.Args = append(sel.Args, "--audio-quality", quality)
		}
		return sel

	case quality == "audio":
		return FormatSelection{Format: "bestaudio/best"}

	default:
		vfmt, afmt := "bestvideo", "bestaudio"
		if format == "mp4" {
			vfmt += "[ext=mp4]"
			afmt += "[ext=m4a]"
		}
		if height, err := strconv.Atoi(quality); err == nil {
			vfmt += fmt.Sprintf("[height<=%d]", height)
		}
		return FormatSelection{Format: vfmt + "+" + afmt + "/best"}
	}
}
