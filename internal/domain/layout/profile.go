package layout

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidProfile is wrapped by every Profile validation failure.
var ErrInvalidProfile = errors.New("layout: invalid profile")

// PageNumberMode controls the footer page-number text.
type PageNumberMode string

const (
	// PageNumbersRunning prints "Page N of M".
	PageNumbersRunning PageNumberMode = "running"
	// PageNumbersLiteral prints "Page 1" on every page, matching documents
	// produced by earlier releases.
	PageNumbersLiteral PageNumberMode = "literal"
)

// ParsePageNumberMode accepts "running" or "literal"; empty means running.
func ParsePageNumberMode(s string) (PageNumberMode, error) {
	switch PageNumberMode(s) {
	case "", PageNumbersRunning:
		return PageNumbersRunning, nil
	case PageNumbersLiteral:
		return PageNumbersLiteral, nil
	}
	return "", fmt.Errorf("%w: unknown page number mode %q", ErrInvalidProfile, s)
}

// Letterhead is printed at the top of the first page.
type Letterhead struct {
	Title    string   `yaml:"title"`
	Subtitle string   `yaml:"subtitle"`
	Lines    []string `yaml:"lines"`
}

// Profile holds page geometry and typography in PDF points.
type Profile struct {
	PageWidth    float64 `yaml:"page_width"`
	PageHeight   float64 `yaml:"page_height"`
	MarginLeft   float64 `yaml:"margin_left"`
	MarginRight  float64 `yaml:"margin_right"`
	MarginTop    float64 `yaml:"margin_top"`
	MarginBottom float64 `yaml:"margin_bottom"`

	TitleSize  float64 `yaml:"title_size"`
	HeaderSize float64 `yaml:"header_size"`
	BodySize   float64 `yaml:"body_size"`
	SmallSize  float64 `yaml:"small_size"`
	// LineHeight is a multiple of the font size.
	LineHeight float64 `yaml:"line_height"`
	CodeIndent float64 `yaml:"code_indent"`

	Letterhead  Letterhead     `yaml:"letterhead"`
	Disclaimer  string         `yaml:"disclaimer"`
	PageNumbers PageNumberMode `yaml:"page_numbers"`
}

// DefaultProfile is US Letter with 0.75in side margins and 1in top and
// bottom margins.
func DefaultProfile() Profile {
	return Profile{
		PageWidth:    612,
		PageHeight:   792,
		MarginLeft:   54,
		MarginRight:  54,
		MarginTop:    72,
		MarginBottom: 72,
		TitleSize:    16,
		HeaderSize:   12,
		BodySize:     10,
		SmallSize:    8,
		LineHeight:   1.4,
		CodeIndent:   12,
		Letterhead: Letterhead{
			Title:    "CLINICAL NOTE",
			Subtitle: "Clinical Documentation",
		},
		Disclaimer: "This note was drafted with automated assistance and must be reviewed " +
			"by the treating provider. Suggested codes are not final until verified.",
		PageNumbers: PageNumbersRunning,
	}
}

// LoadProfile reads a YAML profile. Keys absent from the file keep their
// DefaultProfile values.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("layout: read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("layout: parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// UsableWidth is the text column width.
func (p Profile) UsableWidth() float64 {
	return p.PageWidth - p.MarginLeft - p.MarginRight
}

// bottom is the y threshold no line may cross.
func (p Profile) bottom() float64 {
	return p.PageHeight - p.MarginBottom
}

func (p Profile) lineHeight(size float64) float64 {
	return size * p.LineHeight
}

// Validate reports whether the page is a size the PDF renderer supports
// and can hold at least one line of every text size in use.
func (p Profile) Validate() error {
	switch {
	case p.PageWidth <= 0 || p.PageHeight <= 0:
		return fmt.Errorf("%w: page size must be positive", ErrInvalidProfile)
	case p.MarginLeft < 0 || p.MarginRight < 0 || p.MarginTop < 0 || p.MarginBottom < 0:
		return fmt.Errorf("%w: margins must not be negative", ErrInvalidProfile)
	case p.TitleSize <= 0 || p.HeaderSize <= 0 || p.BodySize <= 0 || p.SmallSize <= 0:
		return fmt.Errorf("%w: font sizes must be positive", ErrInvalidProfile)
	case p.LineHeight < 1:
		return fmt.Errorf("%w: line height must be at least 1", ErrInvalidProfile)
	case p.CodeIndent < 0:
		return fmt.Errorf("%w: code indent must not be negative", ErrInvalidProfile)
	}
	if _, err := ParsePageNumberMode(string(p.PageNumbers)); err != nil {
		return err
	}
	if _, ok := paperName(p.PageWidth, p.PageHeight); !ok {
		return fmt.Errorf("%w: page size %.0fx%.0fpt is not Letter, Legal or A4",
			ErrInvalidProfile, p.PageWidth, p.PageHeight)
	}

	largest := max(p.TitleSize, p.HeaderSize, p.BodySize, p.SmallSize)
	if p.PageHeight-p.MarginTop-p.MarginBottom < p.lineHeight(largest) {
		return fmt.Errorf("%w: usable height %.1fpt cannot hold a %.1fpt line",
			ErrInvalidProfile, p.PageHeight-p.MarginTop-p.MarginBottom, p.lineHeight(largest))
	}
	// a single widest glyph has to fit or hard splitting cannot progress
	if p.UsableWidth()-p.CodeIndent < glyphWidth('W', FontBold, largest) {
		return fmt.Errorf("%w: usable width %.1fpt is too narrow", ErrInvalidProfile, p.UsableWidth())
	}
	return nil
}
