package domain

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// DefaultScoreTag is the literal that marks an encoded score in a task title.
const DefaultScoreTag = "ICE-S"

// ScoreWidth is the minimum width of the encoded score, zero-padded on the left.
const ScoreWidth = 5

var ErrInvalidScoreTag = errors.New("score tag must be non-empty and contain no whitespace")

// ScoreCodec reads and writes the "<tag> <score>: " title prefix. Detection
// and stripping share one pattern so a title written by Encode is always
// recognised by Decode and Strip.
type ScoreCodec struct {
	tag     string
	pattern *regexp.Regexp
}

// NewScoreCodec creates a codec for the given tag.
func NewScoreCodec(tag string) (*ScoreCodec, error) {
	if tag == "" || strings.ContainsFunc(tag, isSpace) {
		return nil, ErrInvalidScoreTag
	}
	// The colon may end the title when the service trims trailing spaces.
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(tag) + ` (\d+(?:\.\d+)?):(?: |$)`)
	return &ScoreCodec{tag: tag, pattern: pattern}, nil
}

// MustNewScoreCodec creates a ScoreCodec or panics on error.
func MustNewScoreCodec(tag string) *ScoreCodec {
	c, err := NewScoreCodec(tag)
	if err != nil {
		panic(err)
	}
	return c
}

// Tag returns the literal tag.
func (c *ScoreCodec) Tag() string {
	return c.tag
}

// Decode returns the score encoded at the start of content, if any.
func (c *ScoreCodec) Decode(content string) (Score, bool) {
	m := c.pattern.FindStringSubmatch(content)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return Score(v), true
}

// Strip removes one leading encoded score. Content that does not start with
// an exact match is returned unchanged.
func (c *ScoreCodec) Strip(content string) string {
	loc := c.pattern.FindStringIndex(content)
	if loc == nil {
		return content
	}
	return content[loc[1]:]
}

// Prefix formats the title prefix for a score, e.g. "ICE-S 036.0: ".
func (c *ScoreCodec) Prefix(score Score) string {
	text := score.String()
	if pad := ScoreWidth - len(text); pad > 0 {
		text = strings.Repeat("0", pad) + text
	}
	return c.tag + " " + text + ": "
}

// Encode replaces any prior encoded score in content with score.
func (c *ScoreCodec) Encode(score Score, content string) string {
	return c.Prefix(score) + c.Strip(content)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
