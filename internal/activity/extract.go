// Package activity derives "latest activity" and "next hearing" from
// heterogeneous record detail payloads.
//
// Every payload shape is handled by a Rule. Rules are applied uniformly,
// their candidates are pooled and the selection happens once over the pool.
package activity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind tells whether a candidate is a past action or a scheduled hearing.
type Kind int

const (
	KindActivity Kind = iota
	KindHearing
)

// Candidate is one dated item found in a payload.
type Candidate struct {
	Date     time.Time
	Label    string
	Kind     Kind
	Type     string
	Location string
}

// Rule pairs a shape predicate with an extractor and a human label.
type Rule struct {
	Label   string
	Applies func(raw map[string]any) bool
	Extract func(raw map[string]any, label string) []Candidate
}

// Snapshot is the result of running the rules over one payload.
type Snapshot struct {
	LatestActivity *Candidate
	NextHearing    *Candidate
}

// Extract applies rules to raw and selects the latest activity and the
// next hearing relative to now.
func Extract(raw map[string]any, now time.Time, rules []Rule) Snapshot {
	candidates := Collect(raw, rules)
	return Snapshot{
		LatestActivity: Latest(candidates, now),
		NextHearing:    Next(candidates, now),
	}
}

// Collect runs every applicable rule and returns the dated candidates.
func Collect(raw map[string]any, rules []Rule) []Candidate {
	if len(raw) == 0 {
		return nil
	}
	var out []Candidate
	for _, rule := range rules {
		if rule.Applies != nil && !rule.Applies(raw) {
			continue
		}
		for _, c := range rule.Extract(raw, rule.Label) {
			if c.Date.IsZero() {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

// Latest returns the candidate with the maximum date among activities and
// hearings that already took place. Nil when there is none.
func Latest(candidates []Candidate, now time.Time) *Candidate {
	var best *Candidate
	for i := range candidates {
		c := candidates[i]
		if c.Kind == KindHearing && c.Date.After(now) {
			continue
		}
		if best == nil || c.Date.After(best.Date) {
			best = &candidates[i]
		}
	}
	return best
}

// Next returns the earliest hearing strictly after now. Past hearings are
// never reported as next.
func Next(candidates []Candidate, now time.Time) *Candidate {
	var best *Candidate
	for i := range candidates {
		c := candidates[i]
		if c.Kind != KindHearing || !c.Date.After(now) {
			continue
		}
		if best == nil || c.Date.Before(best.Date) {
			best = &candidates[i]
		}
	}
	return best
}

// DefaultRules covers the payload shapes seen upstream.
func DefaultRules() []Rule {
	return []Rule{
		{Label: "Last action", Applies: hasKey("lastActionDate"), Extract: directDate("lastActionDate", KindActivity)},
		{Label: "Status updated", Applies: hasKey("statusDate"), Extract: directDate("statusDate", KindActivity)},
		{Label: "Introduced", Applies: hasKey("introducedDate"), Extract: directDate("introducedDate", KindActivity)},
		{Label: "Action", Applies: hasKey("actions"), Extract: datedEvents("actions", KindActivity)},
		{Label: "History", Applies: hasKey("history"), Extract: datedEvents("history", KindActivity)},
		{Label: "Hearing", Applies: hasKey("hearings"), Extract: datedEvents("hearings", KindHearing)},
		{Label: "Event", Applies: hasKey("events"), Extract: datedEvents("events", KindHearing)},
		{Label: "Committee hearing", Applies: hasKey("committees"), Extract: committeeHearings},
		{Label: "Hearing", Applies: hasKey("nextHearingDate"), Extract: nextHearingTriple},
	}
}

func hasKey(key string) func(map[string]any) bool {
	return func(raw map[string]any) bool {
		v, ok := raw[key]
		return ok && v != nil
	}
}

func directDate(field string, kind Kind) func(map[string]any, string) []Candidate {
	return func(raw map[string]any, label string) []Candidate {
		t, ok := ParseDate(raw[field])
		if !ok {
			return nil
		}
		return []Candidate{{Date: t, Label: label, Kind: kind}}
	}
}

var (
	eventDateKeys     = []string{"date", "eventDate", "actionDate", "hearingDate", "scheduledDate", "startDate"}
	eventLabelKeys    = []string{"description", "action", "title", "name"}
	eventTypeKeys     = []string{"type", "eventType", "hearingType", "name"}
	eventLocationKeys = []string{"location", "room", "venue"}
)

func datedEvents(field string, kind Kind) func(map[string]any, string) []Candidate {
	return func(raw map[string]any, label string) []Candidate {
		items, _ := raw[field].([]any)
		var out []Candidate
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			t, ok := ParseDate(firstValue(obj, eventDateKeys))
			if !ok {
				continue
			}
			c := Candidate{Date: t, Label: label, Kind: kind}
			if kind == KindHearing {
				c.Type = firstString(obj, eventTypeKeys)
				c.Location = firstString(obj, eventLocationKeys)
				if c.Type != "" {
					c.Label = fmt.Sprintf("%s: %s", label, c.Type)
				}
			} else if desc := firstString(obj, eventLabelKeys); desc != "" {
				c.Label = desc
			}
			out = append(out, c)
		}
		return out
	}
}

func committeeHearings(raw map[string]any, label string) []Candidate {
	items, _ := raw["committees"].([]any)
	var out []Candidate
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := firstString(obj, []string{"name", "committee", "title"})
		for _, key := range []string{"hearingDate", "meetingDate", "nextMeeting"} {
			t, ok := ParseDate(obj[key])
			if !ok {
				continue
			}
			out = append(out, Candidate{
				Date:     t,
				Label:    strings.TrimSpace(label + " " + name),
				Kind:     KindHearing,
				Type:     strings.TrimSpace("Committee " + name),
				Location: firstString(obj, eventLocationKeys),
			})
		}
	}
	return out
}

func nextHearingTriple(raw map[string]any, label string) []Candidate {
	t, ok := ParseDate(raw["nextHearingDate"])
	if !ok {
		return nil
	}
	typ := firstString(raw, []string{"nextHearingType"})
	c := Candidate{
		Date:     t,
		Label:    label,
		Kind:     KindHearing,
		Type:     typ,
		Location: firstString(raw, []string{"nextHearingLocation"}),
	}
	if typ != "" {
		c.Label = fmt.Sprintf("%s: %s", label, typ)
	}
	return []Candidate{c}
}

func firstValue(obj map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}
