// Package framecheck finds gaps in a directory of rendered frames.
package framecheck

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"

	"framefarm/internal/pkg/errors"
)

// Pattern describes frame file names: Prefix, a zero padded number of at
// least Digits digits, then Ext. The zero value matches frame_0001.exr.
type Pattern struct {
	Prefix string
	Digits int
	Ext    string
}

func (p Pattern) withDefaults() Pattern {
	if p.Prefix == "" {
		p.Prefix = "frame_"
	}
	if p.Digits < 1 {
		p.Digits = 4
	}
	if p.Ext == "" {
		p.Ext = ".exr"
	}
	return p
}

// Name formats frame n the way a renderer would have written it.
func (p Pattern) Name(n int) string {
	p = p.withDefaults()
	return fmt.Sprintf("%s%0*d%s", p.Prefix, p.Digits, n, p.Ext)
}

func (p Pattern) regexp() *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`^%s(\d{%d,})%s$`, regexp.QuoteMeta(p.Prefix), p.Digits, regexp.QuoteMeta(p.Ext)))
}

// Result lists the frames found and the gaps between the lowest and
// highest of them.
type Result struct {
	Pattern Pattern `json:"-"`
	Found   int     `json:"found"`
	First   int     `json:"first"`
	Last    int     `json:"last"`
	Missing []int   `json:"missing"`
}

// Complete reports whether at least one frame was found and none is missing.
func (r Result) Complete() bool {
	return r.Found > 0 && len(r.Missing) == 0
}

// MissingNames formats the missing frames as file names.
func (r Result) MissingNames() []string {
	out := make([]string, len(r.Missing))
	for i, n := range r.Missing {
		out[i] = r.Pattern.Name(n)
	}
	return out
}

// Missing scans dir (not recursively) for files matching p and reports every
// frame number absent between the first and last match.
func Missing(dir string, p Pattern) (Result, error) {
	p = p.withDefaults()
	res := Result{Pattern: p}

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return res, errors.ValidationField("dir", fmt.Sprintf("%s is not a valid directory", dir))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, errors.Wrapf(err, "framecheck.scan", "read %s", dir)
	}

	re := p.regexp()
	seen := make(map[int]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seen[n] = true
	}
	if len(seen) == 0 {
		return res, nil
	}

	frames := make([]int, 0, len(seen))
	for n := range seen {
		frames = append(frames, n)
	}
	sort.Ints(frames)

	res.Found = len(frames)
	res.First = frames[0]
	res.Last = frames[len(frames)-1]
	for n := res.First; n <= res.Last; n++ {
		if !seen[n] {
			res.Missing = append(res.Missing, n)
		}
	}
	return res, nil
}
