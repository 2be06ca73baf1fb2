// Package query builds and parses GitHub user search query strings.
//
// A Filter is the structured form of the qualifiers ghsearch understands.
// Build renders a Filter into the q parameter of /search/users and Parse
// recovers a Filter from a q string, keeping unknown tokens as free text.
package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AccountType selects users or organizations.
type AccountType string

const (
	AccountUser AccountType = "user"
	AccountOrg  AccountType = "org"
)

// TextFields selects which profile fields free text is matched against.
type TextFields struct {
	Login bool
	Name  bool
	Email bool
}

func (t TextFields) selected() []string {
	var out []string
	if t.Login {
		out = append(out, "login")
	}
	if t.Name {
		out = append(out, "name")
	}
	if t.Email {
		out = append(out, "email")
	}
	return out
}

// JoinedPreset is a relative or custom account creation window.
type JoinedPreset string

const (
	JoinedAny        JoinedPreset = "any"
	JoinedLastYear   JoinedPreset = "last1"
	JoinedOneToThree JoinedPreset = "oneToThree"
	JoinedThreePlus  JoinedPreset = "threePlus"
	JoinedCustom     JoinedPreset = "custom"
)

// Joined bounds the account creation date. From and To are YYYY-MM-DD
// and only used with JoinedCustom; either may be empty.
type Joined struct {
	Preset JoinedPreset
	From   string
	To     string
}

// Filter is the structured form of a user search.
type Filter struct {
	Type            AccountType
	SponsorableOnly bool
	Text            string
	TextFields      TextFields
	Repos           Range
	Followers       Range
	Locations       []string
	Languages       []string
	Joined          Joined
}

// Default returns the empty filter: users, text matched on login and name.
func Default() Filter {
	return Filter{
		Type:       AccountUser,
		TextFields: TextFields{Login: true, Name: true},
		Repos:      Range{Op: OpBetween},
		Followers:  Range{Op: OpBetween},
		Joined:     Joined{Preset: JoinedAny},
	}
}

const dateLayout = "2006-01-02"

// Build renders f as a search query. now anchors the relative joined presets.
func Build(f Filter, now time.Time) string {
	var parts []string

	if text := strings.TrimSpace(f.Text); text != "" {
		// GitHub searches every field when none or all are named.
		fields := f.TextFields.selected()
		if len(fields) > 0 && len(fields) < 3 {
			parts = append(parts, text+" in:"+strings.Join(fields, ","))
		} else {
			parts = append(parts, text)
		}
	}

	if f.SponsorableOnly {
		parts = append(parts, "is:sponsorable")
	}

	typ := f.Type
	if typ == "" {
		typ = AccountUser
	}
	parts = append(parts, "type:"+string(typ))

	for _, loc := range f.Locations {
		parts = append(parts, `location:"`+loc+`"`)
	}
	for _, lang := range f.Languages {
		parts = append(parts, "language:"+lang)
	}

	if q := f.Repos.qualifier(); q != "" {
		parts = append(parts, "repos:"+q)
	}
	if q := f.Followers.qualifier(); q != "" {
		parts = append(parts, "followers:"+q)
	}

	if q := joinedQualifier(f.Joined, now); q != "" {
		parts = append(parts, "created:"+q)
	}

	return strings.Join(parts, " ")
}

func joinedQualifier(j Joined, now time.Time) string {
	oneYearAgo := now.AddDate(-1, 0, 0).UTC().Format(dateLayout)
	threeYearsAgo := now.AddDate(-3, 0, 0).UTC().Format(dateLayout)

	switch j.Preset {
	case JoinedLastYear:
		return ">=" + oneYearAgo
	case JoinedOneToThree:
		return threeYearsAgo + ".." + oneYearAgo
	case JoinedThreePlus:
		return "<=" + threeYearsAgo
	case JoinedCustom:
		if j.From == "" && j.To == "" {
			return ""
		}
		return orStar(j.From) + ".." + orStar(j.To)
	}
	return ""
}

func orStar(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

// tokenRe matches key:"quoted value", key:value, "quoted text" or a bare word.
var tokenRe = regexp.MustCompile(`[a-zA-Z0-9_.-]+:"[^"]*"|[a-zA-Z0-9_.-]+:\S+|"[^"]*"|\S+`)

// Parse recovers a Filter from a query string. Unknown qualifiers and
// qualifiers with unparsable values are kept as free text, which is also
// how GitHub treats them. Joined windows always come back as JoinedCustom
// since relative presets cannot be told apart from fixed dates.
func Parse(q string) Filter {
	f := Default()
	if q == "" {
		return f
	}

	var text []string
	var fields TextFields
	hasFields := false

	for _, tok := range tokenRe.FindAllString(q, -1) {
		key, value, ok := strings.Cut(tok, ":")
		if !ok {
			text = append(text, unquote(tok))
			continue
		}
		value = unquote(value)

		switch key {
		case "type":
			if value == string(AccountOrg) {
				f.Type = AccountOrg
			} else if value == string(AccountUser) {
				f.Type = AccountUser
			}
		case "is":
			if value == "sponsorable" {
				f.SponsorableOnly = true
			}
		case "location":
			f.Locations = append(f.Locations, value)
		case "language":
			f.Languages = append(f.Languages, value)
		case "repos":
			r, err := ParseRange(value)
			if err != nil {
				text = append(text, tok)
				continue
			}
			f.Repos = r
		case "followers":
			r, err := ParseRange(value)
			if err != nil {
				text = append(text, tok)
				continue
			}
			f.Followers = r
		case "created":
			f.Joined = parseJoined(value)
		case "in":
			hasFields = true
			for _, field := range strings.Split(value, ",") {
				switch field {
				case "login":
					fields.Login = true
				case "name":
					fields.Name = true
				case "email":
					fields.Email = true
				}
			}
		default:
			text = append(text, tok)
		}
	}

	f.Text = strings.Join(text, " ")
	if hasFields {
		f.TextFields = fields
	}
	return f
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

func parseJoined(value string) Joined {
	j := Joined{Preset: JoinedCustom}

	if from, to, ok := strings.Cut(value, ".."); ok {
		if from != "*" {
			j.From = from
		}
		if to != "*" {
			j.To = to
		}
		return j
	}

	switch {
	case strings.HasPrefix(value, ">="):
		j.From = value[2:]
	case strings.HasPrefix(value, "<="):
		j.To = value[2:]
	case strings.HasPrefix(value, ">"):
		j.From = value[1:]
	case strings.HasPrefix(value, "<"):
		j.To = value[1:]
	default:
		j.From, j.To = value, value
	}
	return j
}

// Summary describes the active parts of f, one short label each.
func Summary(f Filter) []string {
	var out []string

	if f.Type == AccountOrg {
		out = append(out, "Type: Organizations")
	} else {
		out = append(out, "Type: Users")
	}

	if f.SponsorableOnly {
		out = append(out, "Sponsorable")
	}

	if text := strings.TrimSpace(f.Text); text != "" {
		labels := map[string]string{"login": "login", "name": "full name", "email": "email"}
		var names []string
		for _, field := range f.TextFields.selected() {
			names = append(names, labels[field])
		}
		if len(names) > 0 {
			out = append(out, fmt.Sprintf("Text: %s (%s)", text, strings.Join(names, ", ")))
		} else {
			out = append(out, "Text: "+text)
		}
	}

	if s := f.Repos.String(); s != "" {
		out = append(out, "Repos: "+s)
	}
	if s := f.Followers.String(); s != "" {
		out = append(out, "Followers: "+s)
	}
	for _, loc := range f.Locations {
		out = append(out, "Location: "+loc)
	}
	for _, lang := range f.Languages {
		out = append(out, "Language: "+lang)
	}

	switch f.Joined.Preset {
	case JoinedLastYear:
		out = append(out, "Joined: Last 1 year")
	case JoinedOneToThree:
		out = append(out, "Joined: 1-3 years")
	case JoinedThreePlus:
		out = append(out, "Joined: 3+ years")
	case JoinedCustom:
		if f.Joined.From != "" || f.Joined.To != "" {
			out = append(out, fmt.Sprintf("Joined: %s ~ %s", orDots(f.Joined.From), orDots(f.Joined.To)))
		}
	}

	return out
}

func orDots(s string) string {
	if s == "" {
		return "..."
	}
	return s
}
