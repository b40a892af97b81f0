package metab

import (
	"io"

	"github.com/csimplestring/go-csv/detector"
	"github.com/carbocation/pfx"
)

// DetermineDelimiter returns the most likely delimiter of a CSV-like table
// and rewinds r to the start so the caller can parse it from the top. Only tab
// and comma are accepted, since those are the only delimiters any of the
// external classifiers emit; anything else falls back to tab.
func DetermineDelimiter(r io.ReadSeeker) (rune, error) {
	d := detector.New()
	delimiters := d.DetectDelimiter(r, '"')

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, pfx.Err(err)
	}

	for _, v := range delimiters {
		if len(v) == 0 {
			continue
		}
		switch rune(v[0]) {
		case '\t', ',':
			return rune(v[0]), nil
		}
	}

	return '\t', nil
}
